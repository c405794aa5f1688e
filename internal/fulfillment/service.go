package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/internal/settlement"
	"github.com/angelmondragon/storefront-backend/internal/supplier"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/security"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const defaultLockTTL = 2 * time.Minute

var (
	errMsgDeliveryFailed = types.NewLocalizedText(
		"We could not deliver your codes yet. Please retry shortly.",
		"تعذر تسليم الأكواد حالياً. يرجى إعادة المحاولة بعد قليل.",
	)
	errMsgNoCodes = types.NewLocalizedText(
		"The supplier returned no codes for this order.",
		"لم يرسل المورد أي أكواد لهذا الطلب.",
	)
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DeliveryProvider issues digital codes.
type DeliveryProvider interface {
	ProcessDigitalCardsDelivery(ctx context.Context, req supplier.DeliveryRequest) (*supplier.DeliveryResult, error)
}

// Settler finalizes a deferred wallet debit inside the caller's transaction.
type Settler interface {
	SettleDeferred(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (settlement.SettleResult, error)
}

type Notifier interface {
	Send(ctx context.Context, n notifications.Notification)
}

type ServiceParams struct {
	DB         txRunner
	Orders     *repo.Orders
	Supplier   DeliveryProvider
	Settlement Settler
	Sealer     *security.Sealer
	Locks      Locker
	Outbox     outbox.Emitter
	Notifier   Notifier
	Metrics    *metrics.FulfillmentMetrics
	Logger     *logger.Logger
}

// Outcome is the state of an order after a fulfillment attempt.
type Outcome struct {
	Order          *models.Order
	Delivered      bool
	RequiresReveal bool
}

// RetryInput identifies an order to re-run. CustomerID, when set, must own it.
type RetryInput struct {
	TenantID   uuid.UUID
	OrderID    uuid.UUID
	CustomerID *uuid.UUID
}

// Service obtains supplier codes for digital orders and settles deferred
// wallet payments once codes exist.
type Service struct {
	db         txRunner
	orders     *repo.Orders
	supplier   DeliveryProvider
	settlement Settler
	sealer     *security.Sealer
	locks      Locker
	outbox     outbox.Emitter
	notifier   Notifier
	metrics    *metrics.FulfillmentMetrics
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Supplier == nil {
		return nil, fmt.Errorf("delivery provider required")
	}
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement reconciler required")
	}
	if params.Sealer == nil {
		return nil, fmt.Errorf("code sealer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	locks := params.Locks
	if locks == nil {
		locks = NoopLocker{}
	}
	var notifier Notifier = notifications.Nop{}
	if params.Notifier != nil {
		notifier = params.Notifier
	}
	return &Service{
		db:         params.DB,
		orders:     params.Orders,
		supplier:   params.Supplier,
		settlement: params.Settlement,
		sealer:     params.Sealer,
		locks:      locks,
		outbox:     params.Outbox,
		notifier:   notifier,
		metrics:    params.Metrics,
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

// Retry re-runs fulfillment after checking ownership.
func (s *Service) Retry(ctx context.Context, in RetryInput) (*Outcome, error) {
	if in.CustomerID != nil {
		order, err := s.load(ctx, in.TenantID, in.OrderID)
		if err != nil {
			return nil, err
		}
		if order.CustomerID == nil || *order.CustomerID != *in.CustomerID {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
	}
	return s.Fulfill(ctx, in.TenantID, in.OrderID)
}

// Fulfill delivers the digital items of an order. Codes already issued are
// never requested again; a retry then only re-runs settlement.
func (s *Service) Fulfill(ctx context.Context, tenantID, orderID uuid.UUID) (*Outcome, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	release, err := s.locks.Acquire(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := s.load(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusDelivered {
		s.metrics.IncAttempt(metrics.OutcomeSkipped)
		return s.outcome(order), nil
	}
	if err := checkEligible(order); err != nil {
		s.metrics.IncAttempt(metrics.OutcomeSkipped)
		return nil, err
	}

	var codes []types.DeliveryCode
	var result *supplier.DeliveryResult
	if order.Delivery == nil || !order.Delivery.HasCodes() {
		result, err = s.requestCodes(ctx, order)
		if err != nil {
			s.metrics.IncAttempt(metrics.OutcomeSupplierError)
			return nil, s.recordFailure(ctx, order, errMsgDeliveryFailed, err)
		}
		if !result.HasCodes() {
			s.metrics.IncAttempt(metrics.OutcomeNoCodes)
			msg := errMsgNoCodes
			if result.Error != nil && !result.Error.IsEmpty() {
				msg = *result.Error
			}
			return nil, s.recordFailure(ctx, order, msg, errors.New("supplier returned no codes"))
		}
		codes = result.Codes
	}

	var out *Outcome
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)
		locked, err := orders.Lock(ctx, order.TenantID, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
		}
		if result != nil {
			if err := s.storeCodes(ctx, orders, locked, codes, result); err != nil {
				return err
			}
		}
		if locked.Status.IsTerminal() {
			// codes stay stored for reconciliation but the order is closed
			out = s.outcome(locked)
			return nil
		}
		out, err = s.finalize(ctx, tx, orders, locked, result == nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	switch {
	case out.Delivered:
		s.metrics.IncAttempt(metrics.OutcomeDelivered)
		s.notify(ctx, enums.NotificationTypeOrderDelivered, out.Order)
	case out.RequiresReveal:
		s.metrics.IncAttempt(metrics.OutcomeSettleBlocked)
	default:
		s.metrics.IncAttempt(metrics.OutcomeSkipped)
	}
	return out, nil
}

// Reveal returns the stored codes, masked unless the order is delivered and
// settled.
func (s *Service) Reveal(order *models.Order) ([]types.DeliveryCode, error) {
	if order == nil || order.Delivery == nil || !order.Delivery.HasCodes() {
		return nil, nil
	}
	codes, err := s.sealer.OpenCodes(order.Delivery.SealedCodes)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "open delivery codes")
	}
	if order.Delivery.RequiresReveal || order.Status != enums.OrderStatusDelivered {
		for i := range codes {
			codes[i] = codes[i].Masked()
		}
	}
	return codes, nil
}

// OpenCodes returns the plain stored codes for internal reconciliation.
func (s *Service) OpenCodes(order *models.Order) ([]types.DeliveryCode, error) {
	if order == nil || order.Delivery == nil || !order.Delivery.HasCodes() {
		return nil, nil
	}
	codes, err := s.sealer.OpenCodes(order.Delivery.SealedCodes)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "open delivery codes")
	}
	return codes, nil
}

func (s *Service) load(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, tenantID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func checkEligible(order *models.Order) error {
	if !order.HasInstantProducts {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no digital items")
	}
	if order.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is closed").
			WithDetails(map[string]any{"status": order.Status})
	}
	reserved := order.Settlement != nil && order.Settlement.WalletState == enums.WalletStateReserved
	if order.PaymentStatus != enums.PaymentStatusSucceeded && !reserved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid").
			WithDetails(map[string]any{"payment_status": order.PaymentStatus})
	}
	return nil
}

func (s *Service) requestCodes(ctx context.Context, order *models.Order) (*supplier.DeliveryResult, error) {
	req := supplier.DeliveryRequest{
		TenantID: order.TenantID,
		OrderID:  order.ID,
		Contact:  contactFor(order),
	}
	if order.Settlement != nil {
		req.PayerID = order.Settlement.PayerID
	}
	if order.Delivery != nil {
		req.Formats = order.Delivery.DeliveryFormats
	}
	for _, item := range order.InstantItems() {
		code := ""
		if item.SupplierCode != nil {
			code = strings.TrimSpace(*item.SupplierCode)
		}
		req.Items = append(req.Items, supplier.DeliveryItem{
			ProductID:    item.ProductID,
			SupplierCode: code,
			Name:         item.Name,
			Quantity:     item.Quantity,
		})
	}
	return s.supplier.ProcessDigitalCardsDelivery(ctx, req)
}

func (s *Service) storeCodes(ctx context.Context, orders *repo.Orders, order *models.Order, codes []types.DeliveryCode, result *supplier.DeliveryResult) error {
	sealed, err := s.sealer.SealCodes(codes)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal delivery codes")
	}
	now := s.now().UTC()
	attempts := 1
	if order.Delivery != nil {
		attempts = order.Delivery.Attempts + 1
	}
	delivery := models.OrderDelivery{
		OrderID:          order.ID,
		TenantID:         order.TenantID,
		SealedCodes:      sealed,
		CodeCount:        len(codes),
		SerialsByProduct: result.SerialsByProduct,
		ExportArtifacts:  result.Artifacts,
		RequiresReveal:   true,
		Attempts:         attempts,
		LastAttemptAt:    &now,
	}
	if order.Delivery != nil {
		delivery.DeliveryFormats = order.Delivery.DeliveryFormats
		delivery.CreatedAt = order.Delivery.CreatedAt
	}
	// Save writes every column, clearing any earlier error message.
	if err := orders.DB(ctx).Save(&delivery).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store delivery codes")
	}
	order.Delivery = &delivery
	return nil
}

// finalize settles a reserved wallet amount and marks the order delivered.
// A blocked settlement on stored codes still counts as an attempt so the
// sweep backs off.
func (s *Service) finalize(ctx context.Context, tx *gorm.DB, orders *repo.Orders, order *models.Order, settleOnly bool) (*Outcome, error) {
	if order.Settlement != nil && order.Settlement.WalletState == enums.WalletStateReserved {
		result, err := s.settlement.SettleDeferred(ctx, tx, order.ID)
		if err != nil {
			return nil, err
		}
		if !result.Charged {
			updates := map[string]any{"requires_reveal": true}
			if settleOnly {
				now := s.now().UTC()
				order.Delivery.Attempts++
				order.Delivery.LastAttemptAt = &now
				updates["attempts"] = order.Delivery.Attempts
				updates["last_attempt_at"] = now
			}
			if err := orders.UpdateDelivery(ctx, order.ID, updates); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mask delivery")
			}
			order.Delivery.RequiresReveal = true
			s.logg.Warn(ctx, "fulfillment.codes_masked_pending_settlement")
			return s.outcome(order), nil
		}
		order.PaymentStatus = enums.PaymentStatusSucceeded
		order.Settlement.WalletState = enums.WalletStateCharged
	}

	if !order.Status.CanTransitionTo(enums.OrderStatusDelivered) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be delivered").
			WithDetails(map[string]any{"status": order.Status})
	}
	now := s.now().UTC()
	if err := orders.UpdateDelivery(ctx, order.ID, map[string]any{
		"requires_reveal": false,
		"delivered_at":    now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark delivery revealed")
	}
	if err := orders.UpdateOrder(ctx, order.ID, map[string]any{
		"status":       enums.OrderStatusDelivered,
		"delivered_at": now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order delivered")
	}
	from := order.Status
	order.Status = enums.OrderStatusDelivered
	order.DeliveredAt = &now
	order.Delivery.RequiresReveal = false
	order.Delivery.DeliveredAt = &now

	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderDelivered,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{TenantID: order.TenantID, CustomerID: order.CustomerID},
		Data: payloads.OrderStatusChangedEvent{
			OrderID:       order.ID,
			TenantID:      order.TenantID,
			From:          from,
			To:            order.Status,
			PaymentStatus: order.PaymentStatus,
			OccurredAt:    now,
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order delivered")
	}
	s.logg.Info(ctx, "fulfillment.delivered")
	return s.outcome(order), nil
}

// recordFailure stores the bilingual error and bumps the attempt counter. The
// payment status is left untouched so the order stays retryable.
func (s *Service) recordFailure(ctx context.Context, order *models.Order, msg types.LocalizedText, cause error) error {
	now := s.now().UTC()
	attempts := 1
	if order.Delivery != nil {
		attempts = order.Delivery.Attempts + 1
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		delivery := models.OrderDelivery{OrderID: order.ID, TenantID: order.TenantID}
		if order.Delivery != nil {
			delivery = *order.Delivery
		}
		delivery.Attempts = attempts
		delivery.LastAttemptAt = &now
		delivery.ErrorMessage = &msg
		if err := s.orders.WithTx(tx).DB(ctx).Save(&delivery).Error; err != nil {
			return err
		}
		order.Delivery = &delivery
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFulfillmentFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{TenantID: order.TenantID, CustomerID: order.CustomerID},
			Data: payloads.FulfillmentFailedEvent{
				OrderID:  order.ID,
				TenantID: order.TenantID,
				Attempts: attempts,
				Error:    cause.Error(),
			},
		})
	})
	if err != nil {
		s.logg.Error(ctx, "fulfillment.record_failure_failed", err)
	}

	logCtx := s.logg.WithField(ctx, "attempts", attempts)
	s.logg.Error(logCtx, "fulfillment.supplier_failed", cause)
	s.notify(ctx, enums.NotificationTypeFulfillmentFailed, order)

	return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "digital fulfillment failed").
		WithDetails(map[string]any{"attempts": attempts, "message": msg})
}

func (s *Service) notify(ctx context.Context, kind enums.NotificationType, order *models.Order) {
	for _, n := range notifications.ForOrder(kind, order) {
		s.notifier.Send(ctx, n)
	}
}

func (s *Service) outcome(order *models.Order) *Outcome {
	out := &Outcome{Order: order, Delivered: order.Status == enums.OrderStatusDelivered}
	if order.Delivery != nil {
		out.RequiresReveal = order.Delivery.RequiresReveal
	}
	return out
}

func contactFor(order *models.Order) supplier.Contact {
	var c supplier.Contact
	if order.GuestName != nil {
		c.Name = *order.GuestName
	}
	if order.GuestEmail != nil {
		c.Email = *order.GuestEmail
	}
	if order.GuestPhone != nil {
		c.Phone = *order.GuestPhone
	}
	return c
}
