package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/storetest"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubMatcher struct {
	matched bool
	err     error
	calls   int
}

func (s *stubMatcher) MatchCatalog(context.Context, uuid.UUID, models.Product) (bool, error) {
	s.calls++
	return s.matched, s.err
}

func newReserver(t *testing.T, params ReserverParams) *Reserver {
	t.Helper()
	params.Logger = storetest.Logger()
	r, err := NewReserver(params)
	require.NoError(t, err)
	return r
}

func stockOf(t *testing.T, conn *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var p models.Product
	require.NoError(t, conn.First(&p, "id = ?", id).Error)
	return p.Stock
}

func TestReserveDecrementsAggregatedLines(t *testing.T) {
	conn := storetest.NewDB(t, "inventory")
	tenant := storetest.Tenant(t, conn)
	product := storetest.Product(t, conn, tenant.ID, func(p *models.Product) { p.Stock = 5 })
	r := newReserver(t, ReserverParams{})

	var out []Reservation
	err := conn.Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = r.Reserve(context.Background(), tx, tenant.ID, []Line{
			{ProductID: product.ID, Quantity: 2},
			{ProductID: product.ID, Quantity: 3},
		})
		return err
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.True(t, out[0].Reserved)
	require.False(t, out[0].External)
	require.Equal(t, 0, stockOf(t, conn, product.ID))
}

func TestReserveShortageIsConflictWithDetails(t *testing.T) {
	conn := storetest.NewDB(t, "inventory")
	tenant := storetest.Tenant(t, conn)
	ok := storetest.Product(t, conn, tenant.ID, func(p *models.Product) { p.Stock = 5 })
	short := storetest.Product(t, conn, tenant.ID, func(p *models.Product) { p.Stock = 1 })
	r := newReserver(t, ReserverParams{})

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := r.Reserve(context.Background(), tx, tenant.ID, []Line{
			{ProductID: ok.ID, Quantity: 2},
			{ProductID: short.ID, Quantity: 2},
		})
		return err
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeConflict, typed.Code())
	details := typed.Details().(map[string]any)
	require.Equal(t, short.ID, details["product_id"])
	require.Equal(t, 2, details["requested"])
	require.Equal(t, 1, details["available"])

	// rollback restored the first decrement
	require.Equal(t, 5, stockOf(t, conn, ok.ID))
	require.Equal(t, 1, stockOf(t, conn, short.ID))
}

func TestReserveSkipsExternallyFulfilledProducts(t *testing.T) {
	conn := storetest.NewDB(t, "inventory")
	tenant := storetest.Tenant(t, conn)
	digital := storetest.DigitalProduct(t, conn, tenant.ID, "25.00")
	matched := storetest.Product(t, conn, tenant.ID, func(p *models.Product) { p.Stock = 0 })
	matcher := &stubMatcher{matched: true}
	r := newReserver(t, ReserverParams{Matcher: matcher})

	external := r.MatchExternal(context.Background(), tenant.ID, []models.Product{*digital, *matched})
	require.Equal(t, map[uuid.UUID]bool{matched.ID: true}, external)
	require.Equal(t, 1, matcher.calls, "instant products never consult the matcher")

	var out []Reservation
	err := conn.Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = r.Reserve(context.Background(), tx, tenant.ID, []Line{
			{ProductID: digital.ID, Quantity: 4},
			{ProductID: matched.ID, Quantity: 1, External: external[matched.ID]},
		})
		return err
	})
	require.NoError(t, err)
	require.True(t, out[0].External)
	require.False(t, out[0].Reserved)
	require.True(t, out[1].External)
	require.Equal(t, 1, matcher.calls, "reserving never calls the catalog")
}

func TestReserveMatcherErrorFallsBackToStock(t *testing.T) {
	conn := storetest.NewDB(t, "inventory")
	tenant := storetest.Tenant(t, conn)
	product := storetest.Product(t, conn, tenant.ID, func(p *models.Product) { p.Stock = 0 })
	r := newReserver(t, ReserverParams{Matcher: &stubMatcher{err: errors.New("hub down")}})

	external := r.MatchExternal(context.Background(), tenant.ID, []models.Product{*product})
	require.Empty(t, external)

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := r.Reserve(context.Background(), tx, tenant.ID, []Line{{ProductID: product.ID, Quantity: 1, External: external[product.ID]}})
		return err
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))
}

func TestReserveVariantStock(t *testing.T) {
	conn := storetest.NewDB(t, "inventory")
	tenant := storetest.Tenant(t, conn)
	product := storetest.Product(t, conn, tenant.ID, func(p *models.Product) { p.Stock = 0 })
	variant := models.ProductVariant{ProductID: product.ID, Name: "Blue", Stock: 2}
	require.NoError(t, conn.Create(&variant).Error)
	r := newReserver(t, ReserverParams{})

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := r.Reserve(context.Background(), tx, tenant.ID, []Line{{ProductID: product.ID, VariantID: &variant.ID, Quantity: 2}})
		return err
	})
	require.NoError(t, err)

	var reloaded models.ProductVariant
	require.NoError(t, conn.First(&reloaded, "id = ?", variant.ID).Error)
	require.Equal(t, 0, reloaded.Stock)
}

func TestReserveSandboxTenantIsReplenished(t *testing.T) {
	conn := storetest.NewDB(t, "inventory")
	sandbox := storetest.Tenant(t, conn)
	regular := storetest.Tenant(t, conn)
	sandboxProduct := storetest.Product(t, conn, sandbox.ID, func(p *models.Product) { p.Stock = 1 })
	regularProduct := storetest.Product(t, conn, regular.ID, func(p *models.Product) { p.Stock = 1 })

	policy := NewReplenishPolicy(config.FeatureFlagsConfig{
		InventoryAutoReplenish: true,
		SandboxTenantIDs:       []string{sandbox.ID.String(), "not-a-uuid"},
	})
	r := newReserver(t, ReserverParams{Policy: policy})

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := r.Reserve(context.Background(), tx, sandbox.ID, []Line{{ProductID: sandboxProduct.ID, Quantity: 3}})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 0, stockOf(t, conn, sandboxProduct.ID))

	err = conn.Transaction(func(tx *gorm.DB) error {
		_, err := r.Reserve(context.Background(), tx, regular.ID, []Line{{ProductID: regularProduct.ID, Quantity: 3}})
		return err
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))
}

func TestNewReplenishPolicyDefaultsToNever(t *testing.T) {
	require.IsType(t, NoReplenish{}, NewReplenishPolicy(config.FeatureFlagsConfig{SandboxTenantIDs: []string{uuid.NewString()}}))
	require.IsType(t, NoReplenish{}, NewReplenishPolicy(config.FeatureFlagsConfig{InventoryAutoReplenish: true}))
}

func TestReleaseRestoresStock(t *testing.T) {
	conn := storetest.NewDB(t, "inventory")
	tenant := storetest.Tenant(t, conn)
	product := storetest.Product(t, conn, tenant.ID, func(p *models.Product) { p.Stock = 2 })
	r := newReserver(t, ReserverParams{})

	err := conn.Transaction(func(tx *gorm.DB) error {
		return r.Release(context.Background(), tx, []Line{{ProductID: product.ID, Quantity: 3}})
	})
	require.NoError(t, err)
	require.Equal(t, 5, stockOf(t, conn, product.ID))
}

func TestReserveUnknownProductIsNotFound(t *testing.T) {
	conn := storetest.NewDB(t, "inventory")
	tenant := storetest.Tenant(t, conn)
	r := newReserver(t, ReserverParams{})

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := r.Reserve(context.Background(), tx, tenant.ID, []Line{{ProductID: uuid.New(), Quantity: 1}})
		return err
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}
