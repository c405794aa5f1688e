package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const TenantHeader = "X-Tenant-ID"

type TenantResolver interface {
	Resolve(ctx context.Context, ref string) (*models.Tenant, error)
}

// TenantContext requires the tenant header on storefront routes and resolves
// it. A bearer token minted for another tenant is refused.
func TenantContext(resolver TenantResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ref := strings.TrimSpace(r.Header.Get(TenantHeader))
			if ref == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "X-Tenant-ID header required"))
				return
			}
			ctx := WithTenantRef(r.Context(), ref)

			if resolver != nil {
				tenant, err := resolver.Resolve(ctx, ref)
				if err != nil {
					responses.WriteError(ctx, logg, w, err)
					return
				}
				if tokenTenant := TokenTenantFromContext(ctx); tokenTenant != "" && tokenTenant != tenant.ID.String() {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "token does not belong to tenant"))
					return
				}
				ctx = WithTenant(ctx, tenant)
				if logg != nil {
					ctx = logg.WithTenantID(ctx, tenant.ID.String())
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
