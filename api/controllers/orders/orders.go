package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/fulfillment"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxReasonLength  = 500
)

type OrderPlacer interface {
	CreateOrder(ctx context.Context, in checkout.CreateOrderInput) (*checkout.OrderResult, error)
}

// OrderService reads orders and applies the merchant and customer
// transitions.
type OrderService interface {
	Get(ctx context.Context, in internalorders.GetInput) (*internalorders.OrderDetail, error)
	List(ctx context.Context, in internalorders.ListInput) ([]models.Order, error)
	Approve(ctx context.Context, in internalorders.TransitionInput) (*models.Order, error)
	Reject(ctx context.Context, in internalorders.TransitionInput) (*models.Order, error)
	Cancel(ctx context.Context, in internalorders.TransitionInput) (*models.Order, error)
	Refund(ctx context.Context, in internalorders.TransitionInput) (*models.Order, error)
}

type FulfillmentRetrier interface {
	Retry(ctx context.Context, in fulfillment.RetryInput) (*fulfillment.Outcome, error)
}

// Create turns the caller's cart into an order. Guests are identified by the
// session header and must leave a contact email.
func Create(svc OrderPlacer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		customerID, err := optionalCustomer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkout.CreateOrderInput{
			TenantRef:  middleware.TenantRefFromContext(r.Context()),
			CustomerID: customerID,
			SessionID:  strings.TrimSpace(r.Header.Get(middleware.SessionHeader)),
			Contact: checkout.Contact{
				Name:  validators.SanitizeString(payload.GuestName, 120),
				Email: validators.SanitizeString(payload.GuestEmail, 254),
				Phone: validators.SanitizeString(payload.GuestPhone, 32),
			},
			ShippingAddress: payload.ShippingAddress,
			BillingAddress:  payload.BillingAddress,
			PaymentMethod:   strings.TrimSpace(payload.PaymentMethod),
			UseWallet:       payload.UseWallet,
			SourceToken:     strings.TrimSpace(payload.SourceToken),
			DeliveryFormats: payload.DeliveryFormats,
		}

		result, err := svc.CreateOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toCreateOrderResponse(result))
	}
}

// List returns the signed-in customer's orders, newest first.
func List(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		customerID, err := requireCustomer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := validators.ParsePage(r, defaultListLimit, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), internalorders.ListInput{
			TenantID:   tenantID,
			CustomerID: customerID,
			Limit:      page.Limit,
			Offset:     page.Offset,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]orderResponse, 0, len(list))
		for i := range list {
			out = append(out, toOrderResponse(&list[i], nil))
		}
		responses.WriteSuccess(w, map[string]any{"orders": out, "limit": page.Limit, "offset": page.Offset})
	}
}

// Detail returns one order. Customers only see their own; codes stay masked
// until the order is paid for.
func Detail(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		owner, err := ownerScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), internalorders.GetInput{
			TenantID:   tenantID,
			OrderID:    orderID,
			CustomerID: owner,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(detail.Order, detail.Codes))
	}
}

// Retry re-runs digital fulfillment for an order whose delivery failed or is
// still owed.
func Retry(svc FulfillmentRetrier, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		owner, err := ownerScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		outcome, err := svc.Retry(ctx, fulfillment.RetryInput{
			TenantID:   tenantID,
			OrderID:    orderID,
			CustomerID: owner,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toRetryResponse(outcome))
	}
}

// CustomerCancel lets a customer cancel an order they own while it is still
// pending or approved.
func CustomerCancel(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := requireCustomer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor := internalorders.Actor{Role: enums.ActorRoleCustomer, CustomerID: &customerID}
		transition(svc.Cancel, actor, logg)(w, r)
	}
}

type transitionFunc func(context.Context, internalorders.TransitionInput) (*models.Order, error)

func transition(fn transitionFunc, actor internalorders.Actor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason, err := decodeReason(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := fn(r.Context(), internalorders.TransitionInput{
			TenantID: tenantID,
			OrderID:  orderID,
			Actor:    actor,
			Reason:   reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(order, nil))
	}
}

func decodeReason(r *http.Request) (string, error) {
	var payload reasonRequest
	if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
		return "", err
	}
	return validators.SanitizeString(payload.Reason, maxReasonLength), nil
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	return validators.ParseURLUUID(r, "orderId", "order id")
}

func tenantFromRequest(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.TenantIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant context missing")
	}
	return id, nil
}

// optionalCustomer returns the signed-in customer, or nil for guests and
// non-customer callers.
func optionalCustomer(r *http.Request) (*uuid.UUID, error) {
	subject := middleware.SubjectIDFromContext(r.Context())
	if subject == "" || middleware.RoleFromContext(r.Context()) != enums.ActorRoleCustomer.String() {
		return nil, nil
	}
	id, err := uuid.Parse(subject)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid subject")
	}
	return &id, nil
}

func requireCustomer(r *http.Request) (uuid.UUID, error) {
	id, err := optionalCustomer(r)
	if err != nil {
		return uuid.Nil, err
	}
	if id == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer sign-in required")
	}
	return *id, nil
}

// ownerScope limits customers to their own orders. Merchants see every order
// of the tenant; guests see none.
func ownerScope(r *http.Request) (*uuid.UUID, error) {
	switch middleware.RoleFromContext(r.Context()) {
	case enums.ActorRoleMerchant.String():
		return nil, nil
	case enums.ActorRoleCustomer.String():
		id, err := requireCustomer(r)
		if err != nil {
			return nil, err
		}
		return &id, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign-in required")
	}
}
