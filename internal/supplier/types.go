package supplier

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// InventoryItem is one cart line sent for pre-order validation.
type InventoryItem struct {
	ProductID    uuid.UUID `json:"product_id"`
	SKU          string    `json:"sku"`
	Name         string    `json:"name"`
	SupplierCode string    `json:"supplier_code,omitempty"`
	Quantity     int       `json:"quantity"`
}

// DeliveryItem is one digital line to be issued by the Supplier Hub.
type DeliveryItem struct {
	ProductID    uuid.UUID `json:"product_id"`
	SupplierCode string    `json:"supplier_code,omitempty"`
	Name         string    `json:"name"`
	Quantity     int       `json:"quantity"`
}

// Contact carries the recipient details used for supplier side delivery.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type DeliveryRequest struct {
	TenantID uuid.UUID      `json:"tenant_id"`
	OrderID  uuid.UUID      `json:"order_id"`
	PayerID  *uuid.UUID     `json:"payer_id,omitempty"`
	Items    []DeliveryItem `json:"items"`
	Formats  []string       `json:"delivery_formats,omitempty"`
	Contact  Contact        `json:"contact"`
}

// DeliveryResult is the supplier answer. Error is set when the hub accepted the
// request but could not issue codes.
type DeliveryResult struct {
	Codes            []types.DeliveryCode   `json:"serial_numbers"`
	SerialsByProduct map[string]int         `json:"serial_numbers_by_product"`
	Artifacts        []types.ExportArtifact `json:"export_artifacts"`
	Error            *types.LocalizedText   `json:"error,omitempty"`
}

// HasCodes reports whether at least one code was issued.
func (r *DeliveryResult) HasCodes() bool {
	return r != nil && len(r.Codes) > 0
}
