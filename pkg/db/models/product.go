package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a sellable catalog entry. Digital products or products carrying a
// supplier code are fulfilled externally and never consume local stock.
type Product struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TenantID     uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null;index"`
	SKU          string          `gorm:"column:sku;not null"`
	Name         string          `gorm:"column:name;not null"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Cost         decimal.Decimal `gorm:"column:cost;type:numeric(12,2);not null;default:0"`
	Stock        int             `gorm:"column:stock;not null;default:0"`
	IsDigital    bool            `gorm:"column:is_digital;not null;default:false"`
	SupplierCode *string         `gorm:"column:supplier_code"`
	NeedsRestock bool            `gorm:"column:needs_restock;not null;default:false"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// IsInstant reports whether the product is delivered as a code.
func (p Product) IsInstant() bool {
	return p.IsDigital || p.HasSupplierCode()
}

func (p Product) HasSupplierCode() bool {
	return p.SupplierCode != nil && strings.TrimSpace(*p.SupplierCode) != ""
}

// ProductVariant overrides price and tracks its own stock counter.
type ProductVariant struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID        `gorm:"column:product_id;type:uuid;not null;index"`
	Name      string           `gorm:"column:name;not null"`
	SKU       string           `gorm:"column:sku"`
	Price     *decimal.Decimal `gorm:"column:price;type:numeric(12,2)"`
	Stock     int              `gorm:"column:stock;not null;default:0"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	assignID(&v.ID)
	return nil
}
