package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/square"
)

type paymentCreator interface {
	CreatePayment(ctx context.Context, charge square.Charge) (*square.Payment, error)
}

// ChargeRequest is a card charge for one order.
type ChargeRequest struct {
	TenantID    uuid.UUID
	OrderID     uuid.UUID
	CustomerID  *uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	SourceToken string
}

// ChargeResult carries the gateway outcome in the same shape as a webhook.
type ChargeResult struct {
	Reference  string
	Result     enums.GatewayResult
	ResultCode string
	Amount     decimal.Decimal
}

// SquareCharger charges card tokens through Square.
type SquareCharger struct {
	client paymentCreator
	logg   *logger.Logger
}

func NewSquareCharger(client paymentCreator, logg *logger.Logger) (*SquareCharger, error) {
	if client == nil {
		return nil, fmt.Errorf("square client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &SquareCharger{client: client, logg: logg}, nil
}

// Charge creates the payment keyed by the order id, so a resubmitted charge
// for the same order is deduplicated by Square.
func (c *SquareCharger) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if strings.TrimSpace(req.SourceToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card source token is required")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge amount must be positive")
	}

	payment, err := c.client.CreatePayment(ctx, square.Charge{
		AmountMinor:    square.ToMinorUnits(req.Amount),
		Currency:       req.Currency,
		SourceID:       req.SourceToken,
		IdempotencyKey: "order-" + req.OrderID.String(),
		ReferenceID:    req.OrderID.String(),
		Note:           "order " + req.OrderID.String(),
	})
	var decline *square.DeclineError
	switch {
	case errors.As(err, &decline):
		// a decline settles the order as failed rather than erroring checkout
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
			"order_id":     req.OrderID.String(),
			"decline_code": decline.Code,
		}), "payments.square_declined")
		return &ChargeResult{Result: enums.GatewayResultFailed, ResultCode: decline.Code, Amount: req.Amount}, nil
	case err != nil:
		return nil, err
	case payment == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment")
	}

	result := &ChargeResult{
		Reference:  payment.ID,
		Result:     MapSquareStatus(payment.Status),
		ResultCode: payment.Status,
		Amount:     req.Amount,
	}
	if payment.AmountMinor > 0 {
		result.Amount = square.FromMinorUnits(payment.AmountMinor)
	}

	ctx = c.logg.WithFields(ctx, map[string]any{
		"order_id":   req.OrderID.String(),
		"payment_id": result.Reference,
		"status":     payment.Status,
	})
	c.logg.Info(ctx, "payments.square_charge")
	return result, nil
}

// MapSquareStatus folds Square payment statuses into the gateway tri-state.
func MapSquareStatus(status string) enums.GatewayResult {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED":
		return enums.GatewayResultSuccess
	case "APPROVED", "PENDING":
		return enums.GatewayResultPending
	default:
		return enums.GatewayResultFailed
	}
}
