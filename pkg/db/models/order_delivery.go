package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// OrderDelivery stores the outcome of digital fulfillment. Codes are sealed at
// rest and only opened for the customer when RequiresReveal is false.
type OrderDelivery struct {
	OrderID          uuid.UUID              `gorm:"column:order_id;type:uuid;primaryKey"`
	TenantID         uuid.UUID              `gorm:"column:tenant_id;type:uuid;not null"`
	SealedCodes      []byte                 `gorm:"column:sealed_codes;type:bytea"`
	CodeCount        int                    `gorm:"column:code_count;not null;default:0"`
	SerialsByProduct map[string]int         `gorm:"column:serials_by_product;type:jsonb;serializer:json"`
	ExportArtifacts  []types.ExportArtifact `gorm:"column:export_artifacts;type:jsonb;serializer:json"`
	DeliveryFormats  []string               `gorm:"column:delivery_formats;type:jsonb;serializer:json"`
	ErrorMessage     *types.LocalizedText   `gorm:"column:error_message;type:jsonb;serializer:json"`
	RequiresReveal   bool                   `gorm:"column:requires_reveal;not null;default:false"`
	Attempts         int                    `gorm:"column:attempts;not null;default:0"`
	LastAttemptAt    *time.Time             `gorm:"column:last_attempt_at"`
	DeliveredAt      *time.Time             `gorm:"column:delivered_at"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (OrderDelivery) TableName() string {
	return "order_deliveries"
}

// HasCodes reports whether the supplier already issued codes for the order.
func (d OrderDelivery) HasCodes() bool {
	return d.CodeCount > 0 && len(d.SealedCodes) > 0
}
