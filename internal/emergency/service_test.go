package emergency

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/storetest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func newTestService(t *testing.T, conn *gorm.DB) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repository: NewRepository(conn),
		Tx:         storetest.Client(conn),
		Logger:     storetest.Logger(),
	})
	require.NoError(t, err)
	return svc
}

func TestUpsertMergesRepeatedItems(t *testing.T) {
	conn := storetest.NewDB(t, "emergency")
	tenant := storetest.Tenant(t, conn)
	product := storetest.DigitalProduct(t, conn, tenant.ID, "25.00")
	svc := newTestService(t, conn)
	ctx := context.Background()

	for _, serial := range []string{"AAA-1", "BBB-2"} {
		err := conn.Transaction(func(tx *gorm.DB) error {
			return svc.UpsertEmergencyItems(ctx, tx, tenant.ID, []Item{{
				ProductID: product.ID,
				Reason:    enums.EmergencyReasonRefundReturned,
				Notes:     "serial " + serial,
			}})
		})
		require.NoError(t, err)
	}

	entries, err := svc.List(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 2, entries[0].Occurrences)
	require.Contains(t, entries[0].Notes, "AAA-1")
	require.Contains(t, entries[0].Notes, "BBB-2")
}

func TestUpsertRejectsInvalidItems(t *testing.T) {
	conn := storetest.NewDB(t, "emergency")
	svc := newTestService(t, conn)
	ctx := context.Background()

	err := svc.UpsertEmergencyItems(ctx, conn, uuid.New(), []Item{{ProductID: uuid.New(), Reason: "bogus"}})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	err = svc.UpsertEmergencyItems(ctx, conn, uuid.Nil, nil)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	err = svc.UpsertEmergencyItems(ctx, nil, uuid.New(), nil)
	require.ErrorIs(t, err, gorm.ErrInvalidTransaction)
}

func TestAuditFlagsLossAndRestock(t *testing.T) {
	conn := storetest.NewDB(t, "emergency")
	tenant := storetest.Tenant(t, conn)
	loss := storetest.Product(t, conn, tenant.ID, func(p *models.Product) {
		p.Price = storetest.Money("4.00")
		p.Cost = storetest.Money("6.00")
	})
	restock := storetest.Product(t, conn, tenant.ID, func(p *models.Product) { p.NeedsRestock = true })
	storetest.Product(t, conn, tenant.ID)
	svc := newTestService(t, conn)
	ctx := context.Background()

	recorded, err := svc.Audit(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, recorded)

	entries, err := svc.List(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	reasons := map[uuid.UUID]enums.EmergencyReason{}
	for _, entry := range entries {
		reasons[entry.ProductID] = entry.Reason
	}
	require.Equal(t, enums.EmergencyReasonCostExceedsPrice, reasons[loss.ID])
	require.Equal(t, enums.EmergencyReasonMarkedNeeded, reasons[restock.ID])
}

func TestAuditWithNothingFlagged(t *testing.T) {
	conn := storetest.NewDB(t, "emergency")
	tenant := storetest.Tenant(t, conn)
	storetest.Product(t, conn, tenant.ID)

	recorded, err := newTestService(t, conn).Audit(context.Background())
	require.NoError(t, err)
	require.Zero(t, recorded)
}
