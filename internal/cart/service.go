package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Owner identifies whose cart is addressed: a signed-in customer or an
// anonymous session.
type Owner struct {
	CustomerID *uuid.UUID
	SessionID  string
}

func (o Owner) validate() error {
	if o.CustomerID == nil && strings.TrimSpace(o.SessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer or session is required")
	}
	return nil
}

// Totals is the priced cart. Each component is rounded to 2dp and Total is
// recomputed from the rounded parts.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// AddItemInput adds a product (and optional variant) to the owner's cart.
type AddItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// Service is the cart collaborator used by order placement and the API.
type Service struct {
	repo *Repository
}

func NewService(repo *Repository) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	return &Service{repo: repo}, nil
}

// FindCart loads the owner's cart or returns NOT_FOUND.
func (s *Service) FindCart(ctx context.Context, tenantID uuid.UUID, owner Owner) (*models.Cart, error) {
	if err := owner.validate(); err != nil {
		return nil, err
	}
	cart, err := s.repo.FindByOwner(ctx, tenantID, owner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return cart, nil
}

func (s *Service) GetOrCreateCart(ctx context.Context, tenantID uuid.UUID, owner Owner) (*models.Cart, error) {
	cart, err := s.FindCart(ctx, tenantID, owner)
	if err == nil {
		return cart, nil
	}
	if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	cart = &models.Cart{TenantID: tenantID, CustomerID: owner.CustomerID}
	if owner.CustomerID == nil {
		session := strings.TrimSpace(owner.SessionID)
		cart.SessionID = &session
	}
	if err := s.repo.Create(ctx, cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create cart")
	}
	return cart, nil
}

// AddItem snapshots the current product (or variant) price onto a cart line.
func (s *Service) AddItem(ctx context.Context, tenantID uuid.UUID, owner Owner, input AddItemInput) (*models.Cart, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	cart, err := s.GetOrCreateCart(ctx, tenantID, owner)
	if err != nil {
		return nil, err
	}

	products, err := s.repo.Products(ctx, tenantID, []uuid.UUID{input.ProductID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	product, ok := products[input.ProductID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	price := product.Price
	if input.VariantID != nil {
		variant, err := s.repo.Variant(ctx, product.ID, *input.VariantID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variant")
		}
		if variant.Price != nil {
			price = *variant.Price
		}
	}

	item := &models.CartItem{
		CartID:    cart.ID,
		ProductID: product.ID,
		VariantID: input.VariantID,
		Quantity:  input.Quantity,
		UnitPrice: price.Round(2),
	}
	if err := s.repo.UpsertItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add cart item")
	}
	return s.FindCart(ctx, tenantID, owner)
}

// CalculateCartTotal prices the cart for the tenant. Shipping is a flat tenant
// fee, waived when every line is delivered digitally.
func (s *Service) CalculateCartTotal(ctx context.Context, tenant *models.Tenant, cart *models.Cart, _ types.Address) (Totals, error) {
	if tenant == nil || cart == nil {
		return Totals{}, fmt.Errorf("tenant and cart are required")
	}

	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.Products(ctx, tenant.ID, ids)
	if err != nil {
		return Totals{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart products")
	}

	subtotal := decimal.Zero
	physical := false
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return Totals{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		if !product.IsInstant() {
			physical = true
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	totals := Totals{
		Subtotal: subtotal.Round(2),
		Discount: decimal.Zero,
		Tax:      subtotal.Mul(tenant.TaxRate).Round(2),
		Shipping: decimal.Zero,
	}
	if physical {
		totals.Shipping = tenant.ShippingFee.Round(2)
	}
	totals.Total = totals.Subtotal.Sub(totals.Discount).Add(totals.Tax).Add(totals.Shipping)
	return totals, nil
}

// Items reloads the cart lines, inside tx when one is given.
func (s *Service) Items(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) ([]models.CartItem, error) {
	items, err := s.repo.WithTx(tx).Items(ctx, cartID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart items")
	}
	return items, nil
}

// ClearCart removes every item of the cart inside tx.
func (s *Service) ClearCart(ctx context.Context, tx *gorm.DB, tenantID, cartID uuid.UUID) error {
	if err := s.repo.WithTx(tx).DeleteItems(ctx, cartID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
	}
	return nil
}

// Products loads the catalog rows referenced by items.
func (s *Service) Products(ctx context.Context, tenantID uuid.UUID, items []models.CartItem) (map[uuid.UUID]models.Product, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.Products(ctx, tenantID, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart products")
	}
	return products, nil
}
