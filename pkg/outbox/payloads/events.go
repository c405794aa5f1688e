package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderCreatedEvent announces a committed order.
type OrderCreatedEvent struct {
	OrderID            uuid.UUID           `json:"order_id"`
	TenantID           uuid.UUID           `json:"tenant_id"`
	OrderNumber        string              `json:"order_number"`
	CustomerID         *uuid.UUID          `json:"customer_id,omitempty"`
	Total              decimal.Decimal     `json:"total"`
	Currency           string              `json:"currency"`
	Status             enums.OrderStatus   `json:"status"`
	PaymentStatus      enums.PaymentStatus `json:"payment_status"`
	PaymentMethod      string              `json:"payment_method"`
	WalletState        enums.WalletState   `json:"wallet_state"`
	HasInstantProducts bool                `json:"has_instant_products"`
}

// OrderStatusChangedEvent covers approve, reject, cancel, deliver and refund.
type OrderStatusChangedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	TenantID      uuid.UUID           `json:"tenant_id"`
	From          enums.OrderStatus   `json:"from"`
	To            enums.OrderStatus   `json:"to"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Reason        string              `json:"reason,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// PaymentEvent reports a settlement outcome.
type PaymentEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	TenantID      uuid.UUID           `json:"tenant_id"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	WalletState   enums.WalletState   `json:"wallet_state"`
	Amount        decimal.Decimal     `json:"amount"`
	Source        string              `json:"source"`
}

// FulfillmentFailedEvent reports a supplier failure that left the order retryable.
type FulfillmentFailedEvent struct {
	OrderID  uuid.UUID `json:"order_id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error"`
}

// WalletToppedUpEvent reports a merchant credit to a customer wallet.
type WalletToppedUpEvent struct {
	WalletID     uuid.UUID       `json:"wallet_id"`
	CustomerID   uuid.UUID       `json:"customer_id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
}

// Keyed payloads name the aggregate they describe so the publisher can check
// it against the outbox row.
type Keyed interface {
	AggregateKey() uuid.UUID
	Tenant() uuid.UUID
}

func (e *OrderCreatedEvent) AggregateKey() uuid.UUID       { return e.OrderID }
func (e *OrderCreatedEvent) Tenant() uuid.UUID             { return e.TenantID }
func (e *OrderStatusChangedEvent) AggregateKey() uuid.UUID { return e.OrderID }
func (e *OrderStatusChangedEvent) Tenant() uuid.UUID       { return e.TenantID }
func (e *PaymentEvent) AggregateKey() uuid.UUID            { return e.OrderID }
func (e *PaymentEvent) Tenant() uuid.UUID                  { return e.TenantID }
func (e *FulfillmentFailedEvent) AggregateKey() uuid.UUID  { return e.OrderID }
func (e *FulfillmentFailedEvent) Tenant() uuid.UUID        { return e.TenantID }
func (e *WalletToppedUpEvent) AggregateKey() uuid.UUID     { return e.WalletID }
func (e *WalletToppedUpEvent) Tenant() uuid.UUID           { return e.TenantID }
