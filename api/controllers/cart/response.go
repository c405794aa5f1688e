package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

type cartItemResponse struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	VariantID *uuid.UUID      `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type cartResponse struct {
	ID       uuid.UUID          `json:"id"`
	Currency string             `json:"currency"`
	Items    []cartItemResponse `json:"items"`
	Totals   cartsvc.Totals     `json:"totals"`
}

func toCartResponse(record *models.Cart, currency string, totals cartsvc.Totals) cartResponse {
	out := cartResponse{
		ID:       record.ID,
		Currency: currency,
		Items:    make([]cartItemResponse, 0, len(record.Items)),
		Totals:   totals,
	}
	for _, item := range record.Items {
		out.Items = append(out.Items, cartItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2),
		})
	}
	return out
}
