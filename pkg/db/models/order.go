package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is the durable record of a placement attempt.
type Order struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TenantID           uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;index"`
	OrderNumber        string              `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerID         *uuid.UUID          `gorm:"column:customer_id;type:uuid;index"`
	GuestName          *string             `gorm:"column:guest_name"`
	GuestEmail         *string             `gorm:"column:guest_email"`
	GuestPhone         *string             `gorm:"column:guest_phone"`
	ShippingAddress    *types.Address      `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	BillingAddress     *types.Address      `gorm:"column:billing_address;type:jsonb;serializer:json"`
	Subtotal           decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Discount           decimal.Decimal     `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	Tax                decimal.Decimal     `gorm:"column:tax;type:numeric(12,2);not null;default:0"`
	Shipping           decimal.Decimal     `gorm:"column:shipping;type:numeric(12,2);not null;default:0"`
	Total              decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	Currency           string              `gorm:"column:currency;not null"`
	Status             enums.OrderStatus   `gorm:"column:status;not null"`
	PaymentStatus      enums.PaymentStatus `gorm:"column:payment_status;not null"`
	PaidAt             *time.Time          `gorm:"column:paid_at"`
	HasInstantProducts bool                `gorm:"column:has_instant_products;not null;default:false"`
	RejectionReason    *string             `gorm:"column:rejection_reason"`
	CancelReason       *string             `gorm:"column:cancel_reason"`
	RefundReason       *string             `gorm:"column:refund_reason"`
	CancelledAt        *time.Time          `gorm:"column:cancelled_at"`
	RefundedAt         *time.Time          `gorm:"column:refunded_at"`
	DeliveredAt        *time.Time          `gorm:"column:delivered_at"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Items      []OrderItem      `gorm:"foreignKey:OrderID"`
	Settlement *OrderSettlement `gorm:"foreignKey:OrderID"`
	Delivery   *OrderDelivery   `gorm:"foreignKey:OrderID"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// InstantItems returns the lines fulfilled by the supplier.
func (o Order) InstantItems() []OrderItem {
	out := make([]OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		if item.IsInstant {
			out = append(out, item)
		}
	}
	return out
}

// OrderItem is an immutable snapshot of a purchased line.
type OrderItem struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID     uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	VariantID     *uuid.UUID      `gorm:"column:variant_id;type:uuid"`
	Name          string          `gorm:"column:name;not null"`
	SKU           string          `gorm:"column:sku"`
	SupplierCode  *string         `gorm:"column:supplier_code"`
	Quantity      int             `gorm:"column:quantity;not null"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	LineTotal     decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
	IsInstant     bool            `gorm:"column:is_instant;not null;default:false"`
	StockReserved bool            `gorm:"column:stock_reserved;not null;default:false"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}
