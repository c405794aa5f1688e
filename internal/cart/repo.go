package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository stores carts, their lines and the product reads pricing needs.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

// FindByOwner loads the owner's cart with its items.
func (r *Repository) FindByOwner(ctx context.Context, tenantID uuid.UUID, owner Owner) (*models.Cart, error) {
	q := r.Tenant(ctx, tenantID).Preload("Items")
	if owner.CustomerID != nil {
		q = q.Where("customer_id = ?", *owner.CustomerID)
	} else {
		q = q.Where("session_id = ? AND customer_id IS NULL", owner.SessionID)
	}
	var cart models.Cart
	if err := q.Order("created_at DESC").First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *Repository) Create(ctx context.Context, cart *models.Cart) error {
	return r.DB(ctx).Create(cart).Error
}

// Items returns the current cart lines.
func (r *Repository) Items(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := r.DB(ctx).
		Where("cart_id = ?", cartID).
		Order("created_at ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpsertItem adds quantity to an existing line for the same product/variant
// or inserts a new one.
func (r *Repository) UpsertItem(ctx context.Context, item *models.CartItem) error {
	db := r.DB(ctx)
	var existing models.CartItem
	q := db.Where("cart_id = ? AND product_id = ?", item.CartID, item.ProductID)
	if item.VariantID != nil {
		q = q.Where("variant_id = ?", *item.VariantID)
	} else {
		q = q.Where("variant_id IS NULL")
	}
	err := q.First(&existing).Error
	switch {
	case err == nil:
		existing.Quantity += item.Quantity
		existing.UnitPrice = item.UnitPrice
		if err := db.Save(&existing).Error; err != nil {
			return err
		}
		*item = existing
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return db.Create(item).Error
	default:
		return err
	}
}

// DeleteItems removes every line of the cart.
func (r *Repository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	return r.DB(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error
}

// Products loads the tenant's products by id.
func (r *Repository) Products(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.Tenant(ctx, tenantID).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *Repository) Variant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.DB(ctx).First(&variant, "id = ? AND product_id = ?", variantID, productID).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}
