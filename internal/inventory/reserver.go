package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Line is one requested product (or variant) quantity. External marks a
// line the supplier catalog already claimed; see MatchExternal.
type Line struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
	External  bool
}

// Reservation is the outcome for a Line. External lines are fulfilled by the
// supplier and never touch local stock; Reserved lines decremented a counter
// and must be released on cancel.
type Reservation struct {
	Line
	Product  models.Product
	Variant  *models.ProductVariant
	External bool
	Reserved bool
}

// CatalogMatcher reports whether a product without a supplier code is still
// carried by the supplier catalog.
type CatalogMatcher interface {
	MatchCatalog(ctx context.Context, tenantID uuid.UUID, product models.Product) (bool, error)
}

type ReserverParams struct {
	Logger  *logger.Logger
	Matcher CatalogMatcher
	Policy  ReplenishPolicy
}

// Reserver decrements stock counters inside the caller's transaction.
type Reserver struct {
	logg    *logger.Logger
	matcher CatalogMatcher
	policy  ReplenishPolicy
}

func NewReserver(params ReserverParams) (*Reserver, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	policy := params.Policy
	if policy == nil {
		policy = NoReplenish{}
	}
	return &Reserver{logg: params.Logger, matcher: params.Matcher, policy: policy}, nil
}

type stockKey struct {
	productID uuid.UUID
	variantID uuid.UUID
}

func keyOf(l Line) stockKey {
	k := stockKey{productID: l.ProductID}
	if l.VariantID != nil {
		k.variantID = *l.VariantID
	}
	return k
}

// Reserve locks the referenced products, checks availability and decrements
// stock. Instant products and lines flagged External are skipped. A shortage
// aborts with CONFLICT; the caller rolls back whatever was already
// decremented. Reserve does no network I/O.
func (r *Reserver) Reserve(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, lines []Line) ([]Reservation, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no lines to reserve")
	}

	productIDs := make([]uuid.UUID, 0, len(lines))
	variantIDs := []uuid.UUID{}
	requested := map[stockKey]int{}
	order := []stockKey{}
	claimed := map[uuid.UUID]bool{}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		k := keyOf(line)
		if _, seen := requested[k]; !seen {
			order = append(order, k)
			productIDs = append(productIDs, line.ProductID)
			if line.VariantID != nil {
				variantIDs = append(variantIDs, *line.VariantID)
			}
		}
		requested[k] += line.Quantity
		if line.External {
			claimed[line.ProductID] = true
		}
	}

	products, err := lockProductsTx(tx.WithContext(ctx), tenantID, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock products")
	}
	variants, err := lockVariantsTx(tx.WithContext(ctx), variantIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock variants")
	}

	external := map[uuid.UUID]bool{}
	for _, k := range order {
		product, ok := products[k.productID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": k.productID})
		}
		if k.variantID != uuid.Nil {
			if v, ok := variants[k.variantID]; !ok || v.ProductID != product.ID {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").
					WithDetails(map[string]any{"product_id": k.productID, "variant_id": k.variantID})
			}
		}
		external[product.ID] = product.IsInstant() || claimed[product.ID]
		if external[product.ID] {
			continue
		}
		if err := r.take(ctx, tx, tenantID, product, variants, k, requested[k]); err != nil {
			return nil, err
		}
	}

	out := make([]Reservation, 0, len(lines))
	for _, line := range lines {
		res := Reservation{Line: line, Product: products[line.ProductID], External: external[line.ProductID]}
		if line.VariantID != nil {
			v := variants[*line.VariantID]
			res.Variant = &v
		}
		res.Reserved = !res.External
		out = append(out, res)
	}
	return out, nil
}

// MatchExternal asks the supplier catalog about every stocked product and
// returns the IDs it will fulfill. It calls out over the network, so run it
// before opening the order transaction. A failed lookup falls back to local
// stock.
func (r *Reserver) MatchExternal(ctx context.Context, tenantID uuid.UUID, products []models.Product) map[uuid.UUID]bool {
	out := map[uuid.UUID]bool{}
	if r.matcher == nil {
		return out
	}
	for _, product := range products {
		if product.IsInstant() || out[product.ID] {
			continue
		}
		matched, err := r.matcher.MatchCatalog(ctx, tenantID, product)
		if err != nil {
			logCtx := r.logg.WithFields(ctx, map[string]any{"product_id": product.ID.String(), "error": err.Error()})
			r.logg.Warn(logCtx, "inventory.catalog_match_failed")
			continue
		}
		if matched {
			out[product.ID] = true
		}
	}
	return out
}

func (r *Reserver) take(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, product models.Product, variants map[uuid.UUID]models.ProductVariant, k stockKey, qty int) error {
	var (
		model     any = &models.Product{}
		id            = product.ID
		available     = product.Stock
	)
	if k.variantID != uuid.Nil {
		model, id, available = &models.ProductVariant{}, k.variantID, variants[k.variantID].Stock
	}

	if available < qty {
		topUp := r.policy.Replenish(tenantID, product, qty, available)
		if topUp <= 0 {
			return insufficient(product.ID, qty, available)
		}
		if err := incrementTx(tx.WithContext(ctx), model, id, topUp); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replenish stock")
		}
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"tenant_id":  tenantID.String(),
			"product_id": product.ID.String(),
			"added":      topUp,
		})
		r.logg.Warn(logCtx, "inventory.auto_replenished")
		available += topUp
	}

	ok, err := decrementTx(tx.WithContext(ctx), model, id, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrement stock")
	}
	if !ok {
		return insufficient(product.ID, qty, available)
	}
	return nil
}

// Release returns stock for reserved lines.
func (r *Reserver) Release(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		var (
			model any = &models.Product{}
			id        = line.ProductID
		)
		if line.VariantID != nil {
			model, id = &models.ProductVariant{}, *line.VariantID
		}
		if err := incrementTx(tx.WithContext(ctx), model, id, line.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release stock")
		}
	}
	return nil
}

func insufficient(productID uuid.UUID, requested, available int) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "insufficient inventory").
		WithDetails(map[string]any{
			"product_id": productID,
			"requested":  requested,
			"available":  available,
		})
}
