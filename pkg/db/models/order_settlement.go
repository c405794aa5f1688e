package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderSettlement holds the internal payment markers of an order. It is kept
// apart from the customer-facing addresses.
type OrderSettlement struct {
	OrderID          uuid.UUID            `gorm:"column:order_id;type:uuid;primaryKey"`
	TenantID         uuid.UUID            `gorm:"column:tenant_id;type:uuid;not null"`
	PaymentMethod    string               `gorm:"column:payment_method;not null"`
	PayerID          *uuid.UUID           `gorm:"column:payer_id;type:uuid"`
	WalletState      enums.WalletState    `gorm:"column:wallet_state;not null;default:'uncharged'"`
	WalletAmount     decimal.Decimal      `gorm:"column:wallet_amount;type:numeric(12,2);not null;default:0"`
	GatewayReference *string              `gorm:"column:gateway_reference"`
	GatewayResult    *enums.GatewayResult `gorm:"column:gateway_result"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (OrderSettlement) TableName() string {
	return "order_settlements"
}

// IsDeferred reports whether a wallet debit is still owed for the order.
func (s OrderSettlement) IsDeferred() bool {
	return s.WalletState == enums.WalletStateReserved
}

// UsesWallet reports whether the wallet is (or was) the funding source.
func (s OrderSettlement) UsesWallet() bool {
	return s.WalletState != enums.WalletStateUncharged
}
