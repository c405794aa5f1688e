package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Tenant is one storefront on the platform. All other rows are partitioned by it.
type Tenant struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Slug             string          `gorm:"column:slug;not null;uniqueIndex"`
	Name             string          `gorm:"column:name;not null"`
	Currency         string          `gorm:"column:currency;not null;default:'USD'"`
	AutoAcceptOrders bool            `gorm:"column:auto_accept_orders;not null;default:false"`
	PrivateStore     bool            `gorm:"column:private_store;not null;default:false"`
	TaxRate          decimal.Decimal `gorm:"column:tax_rate;type:numeric(6,4);not null;default:0"`
	ShippingFee      decimal.Decimal `gorm:"column:shipping_fee;type:numeric(12,2);not null;default:0"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *Tenant) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}
