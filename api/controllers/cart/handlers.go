package cart

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type Service interface {
	GetOrCreateCart(ctx context.Context, tenantID uuid.UUID, owner cartsvc.Owner) (*models.Cart, error)
	AddItem(ctx context.Context, tenantID uuid.UUID, owner cartsvc.Owner, input cartsvc.AddItemInput) (*models.Cart, error)
	CalculateCartTotal(ctx context.Context, tenant *models.Tenant, cart *models.Cart, shipping types.Address) (cartsvc.Totals, error)
}

// CartFetch returns the caller's cart, creating an empty one on first use.
func CartFetch(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, owner, err := cartScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		record, err := svc.GetOrCreateCart(r.Context(), tenant.ID, owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(r.Context(), svc, tenant, record, logg, w)
	}
}

func CartAddItem(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, owner, err := cartScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		record, err := svc.AddItem(r.Context(), tenant.ID, owner, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(r.Context(), svc, tenant, record, logg, w)
	}
}

func writeCart(ctx context.Context, svc Service, tenant *models.Tenant, record *models.Cart, logg *logger.Logger, w http.ResponseWriter) {
	totals := cartsvc.Totals{}
	if len(record.Items) > 0 {
		var err error
		totals, err = svc.CalculateCartTotal(ctx, tenant, record, types.Address{})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
	}
	responses.WriteSuccess(w, toCartResponse(record, tenant.Currency, totals))
}

// cartScope identifies the cart owner: the signed-in customer, otherwise the
// anonymous session.
func cartScope(r *http.Request) (*models.Tenant, cartsvc.Owner, error) {
	tenant, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		return nil, cartsvc.Owner{}, pkgerrors.New(pkgerrors.CodeValidation, "tenant context missing")
	}
	owner := cartsvc.Owner{SessionID: strings.TrimSpace(r.Header.Get(middleware.SessionHeader))}
	if middleware.RoleFromContext(r.Context()) == enums.ActorRoleCustomer.String() {
		id, err := uuid.Parse(middleware.SubjectIDFromContext(r.Context()))
		if err != nil {
			return nil, cartsvc.Owner{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid subject")
		}
		owner.CustomerID = &id
	}
	if owner.CustomerID == nil && owner.SessionID == "" {
		return nil, cartsvc.Owner{}, pkgerrors.New(pkgerrors.CodeValidation, "X-Session-ID header required for guests")
	}
	return tenant, owner, nil
}
