package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Base is the handle every storefront repository embeds. It is bound either
// to the pool or to the caller's transaction.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// WithTx rebinds to tx. A nil tx keeps the current handle so callers can pass
// an optional transaction straight through.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Tenant scopes every statement to one tenant's rows.
func (b Base) Tenant(ctx context.Context, tenantID uuid.UUID) *gorm.DB {
	return b.DB(ctx).Scopes(TenantScope(tenantID))
}

// ForUpdate locks the selected rows until the transaction ends. sqlite has
// no row locks and drops the clause.
func (b Base) ForUpdate(ctx context.Context) *gorm.DB {
	return b.DB(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

// TenantScope is a gorm scope for tables carrying tenant_id.
func TenantScope(tenantID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}
