package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/emergency"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/internal/wallet"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// InventoryReleaser returns reserved stock.
type InventoryReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, lines []inventory.Line) error
}

type WalletRefunder interface {
	FindDebit(ctx context.Context, tx *gorm.DB, reference string) (*models.WalletTransaction, error)
	Credit(ctx context.Context, tx *gorm.DB, entry wallet.Entry) (*models.WalletTransaction, error)
}

type EmergencyInventory interface {
	UpsertEmergencyItems(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, items []emergency.Item) error
}

// CodeReader opens delivery codes. Reveal masks them for unsettled orders.
type CodeReader interface {
	Reveal(order *models.Order) ([]types.DeliveryCode, error)
	OpenCodes(order *models.Order) ([]types.DeliveryCode, error)
}

type Notifier interface {
	Send(ctx context.Context, n notifications.Notification)
}

type ServiceParams struct {
	DB        txRunner
	Orders    *repo.Orders
	Inventory InventoryReleaser
	Wallet    WalletRefunder
	Emergency EmergencyInventory
	Codes     CodeReader
	Outbox    outbox.Emitter
	Notifier  Notifier
	Logger    *logger.Logger
}

// Service owns order state changes after placement and reverses their stock
// and wallet effects.
type Service struct {
	db        txRunner
	orders    *repo.Orders
	inventory InventoryReleaser
	wallet    WalletRefunder
	emergency EmergencyInventory
	codes     CodeReader
	outbox    outbox.Emitter
	notifier  Notifier
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Inventory == nil:
		return nil, fmt.Errorf("inventory releaser required")
	case params.Wallet == nil:
		return nil, fmt.Errorf("wallet ledger required")
	case params.Emergency == nil:
		return nil, fmt.Errorf("emergency inventory required")
	case params.Codes == nil:
		return nil, fmt.Errorf("code reader required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	var notifier Notifier = notifications.Nop{}
	if params.Notifier != nil {
		notifier = params.Notifier
	}
	return &Service{
		db:        params.DB,
		orders:    params.Orders,
		inventory: params.Inventory,
		wallet:    params.Wallet,
		emergency: params.Emergency,
		codes:     params.Codes,
		outbox:    params.Outbox,
		notifier:  notifier,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// Approve moves a pending order to approved.
func (s *Service) Approve(ctx context.Context, in TransitionInput) (*models.Order, error) {
	return s.transition(ctx, in, enums.EventOrderApproved, "", func(_ *gorm.DB, orders *repo.Orders, order *models.Order, _ time.Time) error {
		if order.Status != enums.OrderStatusPending {
			return stateConflict("only pending orders can be approved", order)
		}
		return s.setStatus(ctx, orders, order, enums.OrderStatusApproved, nil)
	})
}

// Cancel returns reserved stock, releases a reserved wallet amount, credits
// back a wallet charge and closes the order. Issued codes go to emergency
// inventory. Only pending and approved orders can be cancelled.
func (s *Service) Cancel(ctx context.Context, in TransitionInput) (*models.Order, error) {
	return s.transition(ctx, in, enums.EventOrderCancelled, enums.NotificationTypeOrderCancelled, func(tx *gorm.DB, orders *repo.Orders, order *models.Order, now time.Time) error {
		if order.Status != enums.OrderStatusPending && order.Status != enums.OrderStatusApproved {
			return stateConflict("order can no longer be cancelled", order)
		}

		lines := []inventory.Line{}
		for _, item := range order.Items {
			if item.StockReserved {
				lines = append(lines, inventory.Line{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: item.Quantity})
			}
		}
		if len(lines) > 0 {
			if err := s.inventory.Release(ctx, tx, lines); err != nil {
				return err
			}
		}
		if err := s.releaseReservation(ctx, orders, order); err != nil {
			return err
		}
		if err := s.returnCodes(ctx, tx, order, "cancelled"); err != nil {
			return err
		}

		extra := map[string]any{"cancelled_at": now}
		if order.Settlement != nil && order.Settlement.WalletState == enums.WalletStateCharged {
			if err := s.refundWallet(ctx, tx, orders, order); err != nil {
				return err
			}
			if order.PaymentStatus.CanTransitionTo(enums.PaymentStatusRefunded) {
				extra["payment_status"] = enums.PaymentStatusRefunded
				extra["refunded_at"] = now
				order.PaymentStatus = enums.PaymentStatusRefunded
				order.RefundedAt = &now
			}
		}
		if reason := strings.TrimSpace(in.Reason); reason != "" {
			extra["cancel_reason"] = reason
			order.CancelReason = &reason
		}
		order.CancelledAt = &now
		return s.setStatus(ctx, orders, order, enums.OrderStatusCancelled, extra)
	})
}

// Reject declines a pending order. Stock and wallet balances are left alone;
// a reserved wallet amount is released since no money moved. Codes issued
// ahead of approval go to emergency inventory.
func (s *Service) Reject(ctx context.Context, in TransitionInput) (*models.Order, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required")
	}
	return s.transition(ctx, in, enums.EventOrderRejected, enums.NotificationTypeOrderRejected, func(tx *gorm.DB, orders *repo.Orders, order *models.Order, _ time.Time) error {
		if order.Status != enums.OrderStatusPending {
			return stateConflict("only pending orders can be rejected", order)
		}
		if err := s.releaseReservation(ctx, orders, order); err != nil {
			return err
		}
		if err := s.returnCodes(ctx, tx, order, "rejected"); err != nil {
			return err
		}
		order.RejectionReason = &reason
		return s.setStatus(ctx, orders, order, enums.OrderStatusRejected, map[string]any{"rejection_reason": reason})
	})
}

// Refund closes the order as refunded, credits back exactly the wallet debit
// and queues delivered digital products for manual review. A second refund is
// a STATE_CONFLICT.
func (s *Service) Refund(ctx context.Context, in TransitionInput) (*models.Order, error) {
	return s.transition(ctx, in, enums.EventOrderRefunded, enums.NotificationTypeOrderRefunded, func(tx *gorm.DB, orders *repo.Orders, order *models.Order, now time.Time) error {
		if order.Status == enums.OrderStatusRefunded || order.PaymentStatus == enums.PaymentStatusRefunded {
			return stateConflict("order is already refunded", order)
		}
		if !order.Status.CanTransitionTo(enums.OrderStatusRefunded) || !order.PaymentStatus.CanTransitionTo(enums.PaymentStatusRefunded) {
			return stateConflict("order cannot be refunded", order)
		}

		if err := s.refundWallet(ctx, tx, orders, order); err != nil {
			return err
		}
		if err := s.returnCodes(ctx, tx, order, "refunded"); err != nil {
			return err
		}

		extra := map[string]any{
			"payment_status": enums.PaymentStatusRefunded,
			"refunded_at":    now,
		}
		if reason := strings.TrimSpace(in.Reason); reason != "" {
			extra["refund_reason"] = reason
			order.RefundReason = &reason
		}
		order.PaymentStatus = enums.PaymentStatusRefunded
		order.RefundedAt = &now
		return s.setStatus(ctx, orders, order, enums.OrderStatusRefunded, extra)
	})
}

// Get returns the order with its delivery codes.
func (s *Service) Get(ctx context.Context, in GetInput) (*OrderDetail, error) {
	order, err := s.orders.FindByID(ctx, in.TenantID, in.OrderID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	if in.CustomerID != nil && !ownedBy(order, *in.CustomerID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	codes, err := s.codes.Reveal(order)
	if err != nil {
		return nil, err
	}
	return &OrderDetail{Order: order, Codes: codes}, nil
}

// List pages through a customer's orders, newest first.
func (s *Service) List(ctx context.Context, in ListInput) ([]models.Order, error) {
	if in.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer required")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := in.Offset
	if offset < 0 {
		offset = 0
	}
	list, err := s.orders.ListByCustomer(ctx, in.TenantID, in.CustomerID, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return list, nil
}

type transitionFn func(tx *gorm.DB, orders *repo.Orders, order *models.Order, now time.Time) error

// transition locks the order, applies fn and emits the status event in one
// transaction. Notifications go out after commit.
func (s *Service) transition(ctx context.Context, in TransitionInput, event enums.OutboxEventType, notify enums.NotificationType, fn transitionFn) (*models.Order, error) {
	ctx = s.logg.WithOrderID(ctx, in.OrderID.String())
	var order *models.Order
	var from enums.OrderStatus
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)
		locked, err := orders.Lock(ctx, in.TenantID, in.OrderID)
		if err != nil {
			return notFoundOr(err)
		}
		if in.Actor.Role == enums.ActorRoleCustomer {
			if in.Actor.CustomerID == nil || !ownedBy(locked, *in.Actor.CustomerID) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
		}
		from = locked.Status
		now := s.now().UTC()
		if err := fn(tx, orders, locked, now); err != nil {
			return err
		}
		order = locked

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     event,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{TenantID: order.TenantID, CustomerID: in.Actor.CustomerID, Role: in.Actor.Role.String()},
			Data: payloads.OrderStatusChangedEvent{
				OrderID:       order.ID,
				TenantID:      order.TenantID,
				From:          from,
				To:            order.Status,
				PaymentStatus: order.PaymentStatus,
				Reason:        strings.TrimSpace(in.Reason),
				OccurredAt:    now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"from": string(from), "to": string(order.Status)})
	s.logg.Info(logCtx, "orders.status_changed")
	if notify != "" {
		for _, n := range notifications.ForOrder(notify, order) {
			s.notifier.Send(ctx, n)
		}
	}
	return order, nil
}

func (s *Service) setStatus(ctx context.Context, orders *repo.Orders, order *models.Order, next enums.OrderStatus, extra map[string]any) error {
	if !order.Status.CanTransitionTo(next) {
		return stateConflict("status transition not allowed", order)
	}
	updates := map[string]any{"status": next}
	for k, v := range extra {
		updates[k] = v
	}
	if err := orders.UpdateOrder(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}
	order.Status = next
	return nil
}

func (s *Service) releaseReservation(ctx context.Context, orders *repo.Orders, order *models.Order) error {
	if order.Settlement == nil || order.Settlement.WalletState != enums.WalletStateReserved {
		return nil
	}
	if err := orders.UpdateSettlement(ctx, order.ID, map[string]any{"wallet_state": enums.WalletStateReleased}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release wallet reservation")
	}
	order.Settlement.WalletState = enums.WalletStateReleased
	return nil
}

// refundWallet credits the original purchase entry back. Orders never debited
// only have their reservation released.
func (s *Service) refundWallet(ctx context.Context, tx *gorm.DB, orders *repo.Orders, order *models.Order) error {
	if order.Settlement == nil || !order.Settlement.UsesWallet() {
		return nil
	}
	if order.Settlement.WalletState == enums.WalletStateReleased {
		return nil
	}

	debit, err := s.wallet.FindDebit(ctx, tx, order.ID.String())
	switch {
	case pkgerrors.Is(err, pkgerrors.CodeNotFound):
		debit = nil
	case err != nil:
		return err
	}
	if debit != nil {
		_, err := s.wallet.Credit(ctx, tx, wallet.Entry{
			TenantID:    order.TenantID,
			CustomerID:  debit.CustomerID,
			Amount:      debit.Amount.Neg(),
			Reference:   order.ID.String(),
			Type:        enums.WalletTransactionRefund,
			Currency:    order.Currency,
			Description: types.NewLocalizedText("Refund for order "+order.OrderNumber, "استرداد للطلب "+order.OrderNumber),
		})
		if err != nil {
			return err
		}
	}
	if err := orders.UpdateSettlement(ctx, order.ID, map[string]any{"wallet_state": enums.WalletStateReleased}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release wallet state")
	}
	order.Settlement.WalletState = enums.WalletStateReleased
	return nil
}

// returnCodes queues every product with issued codes into emergency
// inventory, noting the serials for manual reconciliation.
func (s *Service) returnCodes(ctx context.Context, tx *gorm.DB, order *models.Order, outcome string) error {
	codes, err := s.codes.OpenCodes(order)
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		return nil
	}
	serials := map[string][]string{}
	for _, code := range codes {
		serials[code.ProductID] = append(serials[code.ProductID], code.Serial)
	}

	items := []emergency.Item{}
	seen := map[uuid.UUID]bool{}
	for _, line := range order.InstantItems() {
		if seen[line.ProductID] {
			continue
		}
		seen[line.ProductID] = true
		list := serials[line.ProductID.String()]
		sort.Strings(list)
		notes := fmt.Sprintf("%s order %s", outcome, order.OrderNumber)
		if len(list) > 0 {
			notes += ": " + strings.Join(list, ", ")
		}
		items = append(items, emergency.Item{
			ProductID: line.ProductID,
			Reason:    enums.EmergencyReasonRefundReturned,
			Notes:     notes,
		})
	}
	return s.emergency.UpsertEmergencyItems(ctx, tx, order.TenantID, items)
}

func ownedBy(order *models.Order, customerID uuid.UUID) bool {
	return order.CustomerID != nil && *order.CustomerID == customerID
}

func stateConflict(msg string, order *models.Order) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, msg).
		WithDetails(map[string]any{"status": order.Status, "payment_status": order.PaymentStatus})
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
}
