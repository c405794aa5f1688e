package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

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
	defaultPendingLimit = 25
	defaultMaxAttempts  = 8
	sourceWallet        = "wallet"
	sourceGateway       = "gateway"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type walletDebiter interface {
	Debit(ctx context.Context, tx *gorm.DB, entry wallet.Entry) (*models.WalletTransaction, error)
}

// SettleResult describes what SettleDeferred did.
type SettleResult struct {
	// Charged is true once the wallet amount has been taken, now or earlier.
	Charged bool
	// Insufficient is true when the due debit was refused for lack of funds.
	Insufficient bool
}

// GatewayResult is a normalized payment gateway outcome for one order.
type GatewayResult struct {
	TenantID   uuid.UUID
	OrderID    uuid.UUID
	Result     enums.GatewayResult
	ResultCode string
	Reference  string
	Amount     *decimal.Decimal
}

// ApplyOutcome reports the order after a gateway result was applied.
type ApplyOutcome struct {
	Order            *models.Order
	Changed          bool
	NeedsFulfillment bool
}

type ReconcilerParams struct {
	DB          txRunner
	Orders      *repo.Orders
	Wallet      walletDebiter
	Outbox      outbox.Emitter
	Logger      *logger.Logger
	MaxAttempts int
}

// Reconciler finalizes wallet and gateway settlement of orders.
type Reconciler struct {
	db          txRunner
	orders      *repo.Orders
	wallet      walletDebiter
	outbox      outbox.Emitter
	logg        *logger.Logger
	maxAttempts int
	now         func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Wallet == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Reconciler{
		db:          params.DB,
		orders:      params.Orders,
		wallet:      params.Wallet,
		outbox:      params.Outbox,
		logg:        params.Logger,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

// SettleDeferred takes the reserved wallet amount of an order. It only acts
// while the settlement is RESERVED, so repeated calls never debit twice.
// Insufficient funds are reported in the result, not as an error.
func (r *Reconciler) SettleDeferred(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (SettleResult, error) {
	if tx == nil {
		return SettleResult{}, gorm.ErrInvalidTransaction
	}
	orders := r.orders.WithTx(tx)

	settlement, err := orders.LockSettlement(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SettleResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "order settlement not found")
		}
		return SettleResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order settlement")
	}

	switch settlement.WalletState {
	case enums.WalletStateCharged:
		return SettleResult{Charged: true}, nil
	case enums.WalletStateReserved:
	default:
		return SettleResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no reserved wallet amount").
			WithDetails(map[string]any{"wallet_state": settlement.WalletState})
	}
	if settlement.PayerID == nil {
		return SettleResult{}, pkgerrors.New(pkgerrors.CodeIntegrity, "reserved settlement has no payer")
	}

	order, err := orders.Lock(ctx, settlement.TenantID, orderID)
	if err != nil {
		return SettleResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
	}

	_, err = r.wallet.Debit(ctx, tx, wallet.Entry{
		TenantID:   order.TenantID,
		CustomerID: *settlement.PayerID,
		Amount:     settlement.WalletAmount,
		Reference:  order.ID.String(),
		Currency:   order.Currency,
		Description: types.NewLocalizedText(
			"Payment for order "+order.OrderNumber,
			"دفع الطلب "+order.OrderNumber,
		),
	})
	switch {
	case err == nil:
	case errors.Is(err, wallet.ErrInsufficientBalance):
		logCtx := r.logg.WithOrderID(ctx, order.ID.String())
		r.logg.Warn(logCtx, "settlement.deferred_debit_insufficient")
		return SettleResult{Insufficient: true}, nil
	case errors.Is(err, wallet.ErrAlreadyApplied):
		// A purchase entry exists for this order; only the marker is stale.
		logCtx := r.logg.WithOrderID(ctx, order.ID.String())
		r.logg.Warn(logCtx, "settlement.debit_already_recorded")
	default:
		return SettleResult{}, err
	}

	if !settlement.WalletState.CanTransitionTo(enums.WalletStateCharged) {
		return SettleResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "illegal wallet state transition")
	}
	now := r.now().UTC()
	if err := orders.UpdateSettlement(ctx, order.ID, map[string]any{
		"wallet_state": enums.WalletStateCharged,
	}); err != nil {
		return SettleResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update settlement")
	}
	if err := r.markPaid(ctx, orders, order, now); err != nil {
		return SettleResult{}, err
	}
	if err := r.emitPayment(ctx, tx, order, enums.EventPaymentSettled, enums.WalletStateCharged, sourceWallet); err != nil {
		return SettleResult{}, err
	}

	logCtx := r.logg.WithOrderID(ctx, order.ID.String())
	r.logg.Info(logCtx, "settlement.deferred_debit_charged")
	return SettleResult{Charged: true}, nil
}

// ApplyGatewayResult applies a tri-state gateway outcome in its own
// transaction. Re-applying the same outcome is a no-op.
func (r *Reconciler) ApplyGatewayResult(ctx context.Context, in GatewayResult) (*ApplyOutcome, error) {
	if in.OrderID == uuid.Nil || in.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id and order id are required")
	}
	if !in.Result.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid gateway result")
	}

	outcome := &ApplyOutcome{}
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		orders := r.orders.WithTx(tx)
		order, err := orders.Lock(ctx, in.TenantID, in.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock order")
		}
		outcome.Order = order

		if in.Amount != nil && !in.Amount.Round(2).Equal(order.Total.Round(2)) {
			return pkgerrors.New(pkgerrors.CodeValidation, "gateway amount does not match order total").
				WithDetails(map[string]any{"amount": in.Amount.StringFixed(2), "total": order.Total.StringFixed(2)})
		}

		if order.Settlement != nil {
			updates := map[string]any{"gateway_result": in.Result}
			if ref := strings.TrimSpace(in.Reference); ref != "" {
				updates["gateway_reference"] = ref
			}
			if err := orders.UpdateSettlement(ctx, order.ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record gateway result")
			}
		}

		next := paymentStatusFor(in.Result)
		if order.PaymentStatus == next {
			outcome.NeedsFulfillment = next == enums.PaymentStatusSucceeded && needsFulfillment(order)
			return nil
		}
		if next == enums.PaymentStatusPending && order.PaymentStatus != enums.PaymentStatusFailed {
			// late pending notifications never regress a settled order
			return nil
		}
		if order.Status.IsTerminal() || !order.PaymentStatus.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment status transition not allowed").
				WithDetails(map[string]any{"from": order.PaymentStatus, "to": next, "status": order.Status})
		}

		switch next {
		case enums.PaymentStatusSucceeded:
			if err := r.markPaid(ctx, orders, order, r.now().UTC()); err != nil {
				return err
			}
			if err := r.emitPayment(ctx, tx, order, enums.EventPaymentSettled, walletState(order), sourceGateway); err != nil {
				return err
			}
			outcome.NeedsFulfillment = needsFulfillment(order)
		case enums.PaymentStatusFailed:
			if err := orders.UpdateOrder(ctx, order.ID, map[string]any{"payment_status": next}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment status")
			}
			order.PaymentStatus = next
			if err := r.emitPayment(ctx, tx, order, enums.EventPaymentFailed, walletState(order), sourceGateway); err != nil {
				return err
			}
		default:
			if err := orders.UpdateOrder(ctx, order.ID, map[string]any{"payment_status": next}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment status")
			}
			order.PaymentStatus = next
		}
		outcome.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := r.logg.WithOrderID(ctx, in.OrderID.String())
	logCtx = r.logg.WithFields(logCtx, map[string]any{
		"gateway_result": in.Result.String(),
		"result_code":    in.ResultCode,
		"changed":        outcome.Changed,
	})
	r.logg.Info(logCtx, "settlement.gateway_result_applied")
	return outcome, nil
}

// PendingFulfillments lists orders the retry sweep should pick up.
func (r *Reconciler) PendingFulfillments(ctx context.Context, olderThan time.Duration, limit int) ([]repo.PendingFulfillment, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	cutoff := r.now().Add(-olderThan)
	pending, err := r.orders.PendingFulfillments(ctx, cutoff, r.maxAttempts, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending fulfillments")
	}
	return pending, nil
}

func (r *Reconciler) markPaid(ctx context.Context, orders *repo.Orders, order *models.Order, now time.Time) error {
	if err := orders.UpdateOrder(ctx, order.ID, map[string]any{
		"payment_status": enums.PaymentStatusSucceeded,
		"paid_at":        now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
	}
	order.PaymentStatus = enums.PaymentStatusSucceeded
	order.PaidAt = &now
	return nil
}

func (r *Reconciler) emitPayment(ctx context.Context, tx *gorm.DB, order *models.Order, eventType enums.OutboxEventType, state enums.WalletState, source string) error {
	err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{TenantID: order.TenantID, CustomerID: order.CustomerID},
		Data: payloads.PaymentEvent{
			OrderID:       order.ID,
			TenantID:      order.TenantID,
			PaymentStatus: order.PaymentStatus,
			WalletState:   state,
			Amount:        order.Total,
			Source:        source,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit payment event")
	}
	return nil
}

func paymentStatusFor(result enums.GatewayResult) enums.PaymentStatus {
	switch result {
	case enums.GatewayResultSuccess:
		return enums.PaymentStatusSucceeded
	case enums.GatewayResultFailed:
		return enums.PaymentStatusFailed
	default:
		return enums.PaymentStatusPending
	}
}

// needsFulfillment reports whether a paid order still owes digital goods.
func needsFulfillment(order *models.Order) bool {
	if !order.HasInstantProducts || order.Status.IsTerminal() || order.Status == enums.OrderStatusDelivered {
		return false
	}
	return order.Delivery == nil || !order.Delivery.HasCodes()
}

func walletState(order *models.Order) enums.WalletState {
	if order.Settlement == nil {
		return enums.WalletStateUncharged
	}
	return order.Settlement.WalletState
}
