package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Actor is the caller of a state change. Customers may only touch their own
// orders.
type Actor struct {
	Role       enums.ActorRole
	CustomerID *uuid.UUID
}

// TransitionInput addresses one order and carries an optional reason.
type TransitionInput struct {
	TenantID uuid.UUID
	OrderID  uuid.UUID
	Actor    Actor
	Reason   string
}

// GetInput reads one order. CustomerID, when set, must own it.
type GetInput struct {
	TenantID   uuid.UUID
	OrderID    uuid.UUID
	CustomerID *uuid.UUID
}

type ListInput struct {
	TenantID   uuid.UUID
	CustomerID uuid.UUID
	Limit      int
	Offset     int
}

// OrderDetail is an order with its delivery codes, masked unless settled.
type OrderDetail struct {
	Order *models.Order
	Codes []types.DeliveryCode
}
