package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Wallet is the single stored-value balance of a customer.
type Wallet struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TenantID   uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null"`
	CustomerID uuid.UUID       `gorm:"column:customer_id;type:uuid;not null;uniqueIndex"`
	Balance    decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null;default:0"`
	Currency   string          `gorm:"column:currency;not null;default:'USD'"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Wallet) BeforeCreate(*gorm.DB) error {
	assignID(&w.ID)
	return nil
}

// WalletTransaction is an append-only ledger entry. BalanceAfter always equals
// BalanceBefore + Amount and matches the wallet balance written alongside it.
type WalletTransaction struct {
	ID            uuid.UUID                     `gorm:"column:id;type:uuid;primaryKey"`
	WalletID      uuid.UUID                     `gorm:"column:wallet_id;type:uuid;not null;index"`
	CustomerID    uuid.UUID                     `gorm:"column:customer_id;type:uuid;not null;index"`
	TenantID      uuid.UUID                     `gorm:"column:tenant_id;type:uuid;not null"`
	Type          enums.WalletTransactionType   `gorm:"column:type;not null;uniqueIndex:ux_wallet_tx_reference_type,priority:2"`
	Amount        decimal.Decimal               `gorm:"column:amount;type:numeric(12,2);not null"`
	BalanceBefore decimal.Decimal               `gorm:"column:balance_before;type:numeric(12,2);not null"`
	BalanceAfter  decimal.Decimal               `gorm:"column:balance_after;type:numeric(12,2);not null"`
	Reference     string                        `gorm:"column:reference;not null;uniqueIndex:ux_wallet_tx_reference_type,priority:1"`
	Status        enums.WalletTransactionStatus `gorm:"column:status;not null;default:'completed'"`
	Description   types.LocalizedText           `gorm:"column:description;type:jsonb;serializer:json"`
	CreatedAt     time.Time                     `gorm:"column:created_at;autoCreateTime"`
}

func (t *WalletTransaction) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}
