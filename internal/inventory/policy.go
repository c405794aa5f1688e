package inventory

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// ReplenishPolicy decides whether a short stock counter may be topped up
// instead of failing the reservation. It returns the units to add.
type ReplenishPolicy interface {
	Replenish(tenantID uuid.UUID, product models.Product, requested, available int) int
}

// NoReplenish never tops stock up.
type NoReplenish struct{}

func (NoReplenish) Replenish(uuid.UUID, models.Product, int, int) int { return 0 }

// SandboxReplenish tops up exactly the shortfall for sandbox tenants.
type SandboxReplenish struct {
	tenants map[uuid.UUID]struct{}
}

func (p SandboxReplenish) Replenish(tenantID uuid.UUID, _ models.Product, requested, available int) int {
	if _, ok := p.tenants[tenantID]; !ok {
		return 0
	}
	if requested <= available {
		return 0
	}
	return requested - available
}

// NewReplenishPolicy builds the policy from feature flags. Auto-replenish only
// applies when the flag is on and the tenant is listed as a sandbox.
func NewReplenishPolicy(flags config.FeatureFlagsConfig) ReplenishPolicy {
	if !flags.InventoryAutoReplenish {
		return NoReplenish{}
	}
	tenants := map[uuid.UUID]struct{}{}
	for _, raw := range flags.SandboxTenantIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		tenants[id] = struct{}{}
	}
	if len(tenants) == 0 {
		return NoReplenish{}
	}
	return SandboxReplenish{tenants: tenants}
}
