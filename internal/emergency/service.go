package emergency

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultAuditLimit = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Item flags one product for manual attention.
type Item struct {
	ProductID uuid.UUID
	Reason    enums.EmergencyReason
	Notes     string
}

type ServiceParams struct {
	Repository *Repository
	Tx         txRunner
	Logger     *logger.Logger
	AuditLimit int
}

type Service struct {
	repo       *Repository
	tx         txRunner
	logg       *logger.Logger
	auditLimit int
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("emergency repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	limit := params.AuditLimit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	return &Service{
		repo:       params.Repository,
		tx:         params.Tx,
		logg:       params.Logger,
		auditLimit: limit,
	}, nil
}

// UpsertEmergencyItems records items inside the caller's transaction.
func (s *Service) UpsertEmergencyItems(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, items []Item) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if tenantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if !item.Reason.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid emergency reason").
				WithDetails(map[string]any{"reason": item.Reason})
		}
		entry := &models.EmergencyInventoryEntry{
			TenantID:    tenantID,
			ProductID:   item.ProductID,
			Reason:      item.Reason,
			Notes:       strings.TrimSpace(item.Notes),
			Occurrences: 1,
		}
		if err := s.repo.UpsertTx(tx.WithContext(ctx), entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert emergency inventory")
		}
	}
	if len(items) > 0 {
		logCtx := s.logg.WithTenantID(ctx, tenantID.String())
		logCtx = s.logg.WithField(logCtx, "items", len(items))
		s.logg.Info(logCtx, "emergency_inventory.upserted")
	}
	return nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]models.EmergencyInventoryEntry, error) {
	entries, err := s.repo.List(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list emergency inventory")
	}
	return entries, nil
}

// Audit flags products priced below cost or marked for restock. It returns the
// number of items recorded.
func (s *Service) Audit(ctx context.Context) (int, error) {
	products, err := s.repo.FlaggedProducts(ctx, s.auditLimit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load flagged products")
	}
	if len(products) == 0 {
		return 0, nil
	}

	byTenant := map[uuid.UUID][]Item{}
	order := []uuid.UUID{}
	for _, product := range products {
		items := auditItems(product)
		if len(items) == 0 {
			continue
		}
		if _, seen := byTenant[product.TenantID]; !seen {
			order = append(order, product.TenantID)
		}
		byTenant[product.TenantID] = append(byTenant[product.TenantID], items...)
	}

	recorded := 0
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, tenantID := range order {
			if err := s.UpsertEmergencyItems(ctx, tx, tenantID, byTenant[tenantID]); err != nil {
				return err
			}
			recorded += len(byTenant[tenantID])
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return recorded, nil
}

func auditItems(product models.Product) []Item {
	var items []Item
	if product.Cost.GreaterThan(product.Price) {
		items = append(items, Item{
			ProductID: product.ID,
			Reason:    enums.EmergencyReasonCostExceedsPrice,
			Notes:     fmt.Sprintf("sku %s: cost %s exceeds price %s", product.SKU, product.Cost.StringFixed(2), product.Price.StringFixed(2)),
		})
	}
	if product.NeedsRestock {
		items = append(items, Item{
			ProductID: product.ID,
			Reason:    enums.EmergencyReasonMarkedNeeded,
			Notes:     fmt.Sprintf("sku %s marked for restock", product.SKU),
		})
	}
	return items
}
