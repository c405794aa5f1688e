package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

type contextKey string

const (
	ctxSubjectID   contextKey = "subject_id"
	ctxRole        contextKey = "actor_role"
	ctxTokenTenant contextKey = "token_tenant_id"
	ctxTenantRef   contextKey = "tenant_ref"
	ctxTenant      contextKey = "tenant"
)

// SubjectIDFromContext returns the authenticated customer or merchant id.
// Guests have none.
func SubjectIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxSubjectID)
}

func RoleFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxRole)
}

// TokenTenantFromContext returns the tenant the bearer token was minted for.
func TokenTenantFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxTokenTenant)
}

// TenantRefFromContext returns the raw X-Tenant-ID value (uuid or slug).
func TenantRefFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxTenantRef)
}

// WithSubject injects an authenticated identity.
func WithSubject(ctx context.Context, subjectID, role, tenantID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxSubjectID, subjectID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return context.WithValue(ctx, ctxTokenTenant, tenantID)
}

// WithTenantRef injects the tenant reference for downstream handlers.
func WithTenantRef(ctx context.Context, ref string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxTenantRef, ref)
}

// TenantFromContext returns the tenant resolved from X-Tenant-ID.
func TenantFromContext(ctx context.Context) (*models.Tenant, bool) {
	if ctx == nil {
		return nil, false
	}
	tenant, ok := ctx.Value(ctxTenant).(*models.Tenant)
	return tenant, ok && tenant != nil
}

func TenantIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	tenant, ok := TenantFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return tenant.ID, true
}

func WithTenant(ctx context.Context, tenant *models.Tenant) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxTenant, tenant)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
