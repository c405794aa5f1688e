package orders

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"

	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var merchantActor = internalorders.Actor{Role: enums.ActorRoleMerchant}

func Approve(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg)
	}
	return transition(svc.Approve, merchantActor, logg)
}

// Reject closes a pending order. A reason is required.
func Reject(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg)
	}
	return transition(svc.Reject, merchantActor, logg)
}

func MerchantCancel(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg)
	}
	return transition(svc.Cancel, merchantActor, logg)
}

// Refund returns the wallet debit, releases reserved funds and hands any
// issued codes back to emergency inventory.
func Refund(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg)
	}
	return transition(svc.Refund, merchantActor, logg)
}

func unavailable(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
	}
}
