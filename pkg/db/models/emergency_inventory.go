package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// EmergencyInventoryEntry flags a product for manual replenishment or review.
type EmergencyInventoryEntry struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	TenantID    uuid.UUID             `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:ux_emergency_inventory_key,priority:1"`
	ProductID   uuid.UUID             `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_emergency_inventory_key,priority:2"`
	Reason      enums.EmergencyReason `gorm:"column:reason;not null;uniqueIndex:ux_emergency_inventory_key,priority:3"`
	Notes       string                `gorm:"column:notes;type:text"`
	Occurrences int                   `gorm:"column:occurrences;not null;default:1"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (EmergencyInventoryEntry) TableName() string {
	return "emergency_inventory"
}

func (e *EmergencyInventoryEntry) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}
