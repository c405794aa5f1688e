package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/storetest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := storetest.NewDB(t, "cart")
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	return svc, conn
}

func TestFindCartMissingIsNotFound(t *testing.T) {
	svc, _ := newService(t)
	customer := uuid.New()

	_, err := svc.FindCart(context.Background(), uuid.New(), Owner{CustomerID: &customer})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = svc.FindCart(context.Background(), uuid.New(), Owner{})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestAddItemMergesLinesAndSnapshotsPrice(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	tenant := storetest.Tenant(t, conn)
	product := storetest.Product(t, conn, tenant.ID)
	owner := Owner{SessionID: "sess-1"}

	_, err := svc.AddItem(ctx, tenant.ID, owner, AddItemInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, tenant.ID, owner, AddItemInput{ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	require.Equal(t, 3, cart.Items[0].Quantity)
	require.True(t, cart.Items[0].UnitPrice.Equal(storetest.Money("10.00")))

	_, err = svc.AddItem(ctx, tenant.ID, owner, AddItemInput{ProductID: uuid.New(), Quantity: 1})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestAddItemUsesVariantPrice(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	tenant := storetest.Tenant(t, conn)
	product := storetest.Product(t, conn, tenant.ID)
	price := storetest.Money("14.99")
	variant := models.ProductVariant{ProductID: product.ID, Name: "Large", Price: &price, Stock: 3}
	require.NoError(t, conn.Create(&variant).Error)
	customer := uuid.New()

	cart, err := svc.AddItem(ctx, tenant.ID, Owner{CustomerID: &customer}, AddItemInput{
		ProductID: product.ID,
		VariantID: &variant.ID,
		Quantity:  1,
	})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	require.True(t, cart.Items[0].UnitPrice.Equal(price))
}

func TestCalculateCartTotal(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	tenant := storetest.Tenant(t, conn, func(tn *models.Tenant) {
		tn.TaxRate = storetest.Money("0.15")
		tn.ShippingFee = storetest.Money("4.50")
	})
	physical := storetest.Product(t, conn, tenant.ID, func(p *models.Product) { p.Price = storetest.Money("19.99") })
	digital := storetest.DigitalProduct(t, conn, tenant.ID, "5.00")

	mixed := storetest.Cart(t, conn, tenant.ID, nil, "s1",
		storetest.CartLine{Product: physical, Quantity: 1},
		storetest.CartLine{Product: digital, Quantity: 2},
	)
	totals, err := svc.CalculateCartTotal(ctx, tenant, mixed, types.Address{})
	require.NoError(t, err)
	require.True(t, totals.Subtotal.Equal(storetest.Money("29.99")), totals.Subtotal.String())
	require.True(t, totals.Tax.Equal(storetest.Money("4.50")), totals.Tax.String())
	require.True(t, totals.Shipping.Equal(storetest.Money("4.50")))
	require.True(t, totals.Total.Equal(storetest.Money("38.99")), totals.Total.String())

	digitalOnly := storetest.Cart(t, conn, tenant.ID, nil, "s2", storetest.CartLine{Product: digital, Quantity: 1})
	totals, err = svc.CalculateCartTotal(ctx, tenant, digitalOnly, types.Address{})
	require.NoError(t, err)
	require.True(t, totals.Shipping.IsZero())
	require.True(t, totals.Total.Equal(storetest.Money("5.75")), totals.Total.String())
}

func TestClearCartRemovesItemsInTx(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	tenant := storetest.Tenant(t, conn)
	product := storetest.Product(t, conn, tenant.ID)
	cart := storetest.Cart(t, conn, tenant.ID, nil, "s1", storetest.CartLine{Product: product, Quantity: 2})

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return svc.ClearCart(ctx, tx, tenant.ID, cart.ID)
	}))

	items, err := svc.Items(ctx, nil, cart.ID)
	require.NoError(t, err)
	require.Empty(t, items)
}
