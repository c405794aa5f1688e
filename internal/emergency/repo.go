package emergency

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertTx inserts the entry or, when the (tenant, product, reason) key exists,
// bumps its occurrence count and appends the notes.
func (r *Repository) UpsertTx(tx *gorm.DB, entry *models.EmergencyInventoryEntry) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "product_id"}, {Name: "reason"}},
		DoUpdates: clause.Assignments(map[string]any{
			"occurrences": gorm.Expr("emergency_inventory.occurrences + 1"),
			"notes":       gorm.Expr("emergency_inventory.notes || ? || excluded.notes", "\n"),
			"updated_at":  time.Now().UTC(),
		}),
	}).Create(entry).Error
}

func (r *Repository) List(ctx context.Context, tenantID uuid.UUID) ([]models.EmergencyInventoryEntry, error) {
	var entries []models.EmergencyInventoryEntry
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("updated_at DESC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// FlaggedProducts returns products whose cost exceeds their price or that were
// marked for restock.
func (r *Repository) FlaggedProducts(ctx context.Context, limit int) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).
		Where("cost > price OR needs_restock = ?", true).
		Order("tenant_id, id").
		Limit(limit).
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}
