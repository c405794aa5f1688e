package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/fulfillment"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type createOrderRequest struct {
	PaymentMethod   string         `json:"payment_method" validate:"max=64"`
	UseWallet       bool           `json:"use_wallet"`
	SourceToken     string         `json:"source_token,omitempty" validate:"omitempty,max=255"`
	GuestName       string         `json:"guest_name,omitempty" validate:"omitempty,max=120"`
	GuestEmail      string         `json:"guest_email,omitempty" validate:"omitempty,email"`
	GuestPhone      string         `json:"guest_phone,omitempty" validate:"omitempty,max=32"`
	ShippingAddress *types.Address `json:"shipping_address,omitempty"`
	BillingAddress  *types.Address `json:"billing_address,omitempty"`
	DeliveryFormats []string       `json:"delivery_formats,omitempty" validate:"omitempty,dive,oneof=text csv pdf"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type itemResponse struct {
	ID           uuid.UUID       `json:"id"`
	ProductID    uuid.UUID       `json:"product_id"`
	VariantID    *uuid.UUID      `json:"variant_id,omitempty"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku,omitempty"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineTotal    decimal.Decimal `json:"line_total"`
	IsInstant    bool            `json:"is_instant"`
	SupplierCode *string         `json:"supplier_code,omitempty"`
}

type orderResponse struct {
	ID                 uuid.UUID            `json:"id"`
	OrderNumber        string               `json:"order_number"`
	Status             enums.OrderStatus    `json:"status"`
	PaymentStatus      enums.PaymentStatus  `json:"payment_status"`
	Currency           string               `json:"currency"`
	Subtotal           decimal.Decimal      `json:"subtotal"`
	Discount           decimal.Decimal      `json:"discount"`
	Tax                decimal.Decimal      `json:"tax"`
	Shipping           decimal.Decimal      `json:"shipping"`
	Total              decimal.Decimal      `json:"total"`
	HasInstantProducts bool                 `json:"has_instant_products"`
	ShippingAddress    *types.Address       `json:"shipping_address,omitempty"`
	BillingAddress     *types.Address       `json:"billing_address,omitempty"`
	RejectionReason    *string              `json:"rejection_reason,omitempty"`
	CancelReason       *string              `json:"cancel_reason,omitempty"`
	RefundReason       *string              `json:"refund_reason,omitempty"`
	PaidAt             *time.Time           `json:"paid_at,omitempty"`
	DeliveredAt        *time.Time           `json:"delivered_at,omitempty"`
	CancelledAt        *time.Time           `json:"cancelled_at,omitempty"`
	RefundedAt         *time.Time           `json:"refunded_at,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	Items              []itemResponse       `json:"items,omitempty"`
	Codes              []types.DeliveryCode `json:"codes,omitempty"`
}

type createOrderResponse struct {
	Order            orderResponse `json:"order"`
	Delivered        bool          `json:"delivered"`
	RequiresReveal   bool          `json:"requires_reveal"`
	FulfillmentError string        `json:"fulfillment_error,omitempty"`
	ChargeResult     string        `json:"charge_result,omitempty"`
}

type retryResponse struct {
	Order          orderResponse `json:"order"`
	Delivered      bool          `json:"delivered"`
	RequiresReveal bool          `json:"requires_reveal"`
}

func toOrderResponse(order *models.Order, codes []types.DeliveryCode) orderResponse {
	if order == nil {
		return orderResponse{}
	}
	out := orderResponse{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		Status:             order.Status,
		PaymentStatus:      order.PaymentStatus,
		Currency:           order.Currency,
		Subtotal:           order.Subtotal,
		Discount:           order.Discount,
		Tax:                order.Tax,
		Shipping:           order.Shipping,
		Total:              order.Total,
		HasInstantProducts: order.HasInstantProducts,
		ShippingAddress:    order.ShippingAddress,
		BillingAddress:     order.BillingAddress,
		RejectionReason:    order.RejectionReason,
		CancelReason:       order.CancelReason,
		RefundReason:       order.RefundReason,
		PaidAt:             order.PaidAt,
		DeliveredAt:        order.DeliveredAt,
		CancelledAt:        order.CancelledAt,
		RefundedAt:         order.RefundedAt,
		CreatedAt:          order.CreatedAt,
		Codes:              codes,
	}
	for _, item := range order.Items {
		out.Items = append(out.Items, itemResponse{
			ID:           item.ID,
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
			Name:         item.Name,
			SKU:          item.SKU,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			LineTotal:    item.LineTotal,
			IsInstant:    item.IsInstant,
			SupplierCode: item.SupplierCode,
		})
	}
	return out
}

func toCreateOrderResponse(result *checkout.OrderResult) createOrderResponse {
	out := createOrderResponse{Order: toOrderResponse(result.Order, nil)}
	if result.Fulfillment != nil {
		out.Order = toOrderResponse(result.Fulfillment.Order, nil)
		out.Delivered = result.Fulfillment.Delivered
		out.RequiresReveal = result.Fulfillment.RequiresReveal
	}
	// the order is saved even when codes could not be obtained yet
	if result.FulfillmentErr != nil {
		out.FulfillmentError = result.FulfillmentErr.Error()
	}
	if result.Charge != nil {
		out.ChargeResult = string(result.Charge.Result)
	}
	return out
}

func toRetryResponse(outcome *fulfillment.Outcome) retryResponse {
	return retryResponse{
		Order:          toOrderResponse(outcome.Order, nil),
		Delivered:      outcome.Delivered,
		RequiresReveal: outcome.RequiresReveal,
	}
}
