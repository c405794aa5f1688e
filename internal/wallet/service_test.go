package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/storetest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

func newTestService(t *testing.T, conn *gorm.DB) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repository: NewRepository(conn),
		Tx:         storetest.Client(conn),
		Logger:     storetest.Logger(),
		Outbox:     outbox.NewService(outbox.NewRepository(conn), storetest.Logger()),
	})
	require.NoError(t, err)
	return svc
}

func purchase(tenantID, customerID uuid.UUID, amount, ref string) Entry {
	return Entry{
		TenantID:   tenantID,
		CustomerID: customerID,
		Amount:     storetest.Money(amount),
		Reference:  ref,
	}
}

func TestDebitWritesLedgerEntry(t *testing.T) {
	conn := storetest.NewDB(t, "wallet")
	tenant := storetest.Tenant(t, conn)
	customerID := uuid.New()
	storetest.Wallet(t, conn, tenant.ID, customerID, "100.00")
	svc := newTestService(t, conn)

	var record *models.WalletTransaction
	err := conn.Transaction(func(tx *gorm.DB) error {
		var err error
		record, err = svc.Debit(context.Background(), tx, purchase(tenant.ID, customerID, "30.00", "order-1"))
		return err
	})
	require.NoError(t, err)
	require.Equal(t, enums.WalletTransactionPurchase, record.Type)
	require.True(t, record.Amount.Equal(storetest.Money("-30")))
	require.True(t, record.BalanceBefore.Equal(storetest.Money("100")))
	require.True(t, record.BalanceAfter.Equal(storetest.Money("70")))
	require.True(t, storetest.WalletBalance(t, conn, customerID).Equal(storetest.Money("70")))
}

func TestDebitInsufficientBalanceIsConflict(t *testing.T) {
	conn := storetest.NewDB(t, "wallet")
	tenant := storetest.Tenant(t, conn)
	customerID := uuid.New()
	storetest.Wallet(t, conn, tenant.ID, customerID, "10.00")
	svc := newTestService(t, conn)

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Debit(context.Background(), tx, purchase(tenant.ID, customerID, "25.00", "order-2"))
		return err
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInsufficientBalance))
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))
	details := pkgerrors.As(err).Details().(map[string]any)
	require.Equal(t, "10.00", details["balance"])
	require.Equal(t, "25.00", details["required"])
	require.True(t, storetest.WalletBalance(t, conn, customerID).Equal(storetest.Money("10")))
}

func TestDebitWithoutWalletCreatesEmptyWalletAndFails(t *testing.T) {
	conn := storetest.NewDB(t, "wallet")
	tenant := storetest.Tenant(t, conn)
	customerID := uuid.New()
	svc := newTestService(t, conn)

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Debit(context.Background(), tx, purchase(tenant.ID, customerID, "1.00", "order-3"))
		return err
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestDebitSameReferenceTwiceIsRefused(t *testing.T) {
	conn := storetest.NewDB(t, "wallet")
	tenant := storetest.Tenant(t, conn)
	customerID := uuid.New()
	storetest.Wallet(t, conn, tenant.ID, customerID, "100.00")
	svc := newTestService(t, conn)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := conn.Transaction(func(tx *gorm.DB) error {
			_, err := svc.Debit(ctx, tx, purchase(tenant.ID, customerID, "40.00", "order-4"))
			return err
		})
		if i == 0 {
			require.NoError(t, err)
			continue
		}
		require.ErrorIs(t, err, ErrAlreadyApplied)
		require.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))
	}
	require.True(t, storetest.WalletBalance(t, conn, customerID).Equal(storetest.Money("60")))
}

func TestCreditRefundOncePerReference(t *testing.T) {
	conn := storetest.NewDB(t, "wallet")
	tenant := storetest.Tenant(t, conn)
	customerID := uuid.New()
	storetest.Wallet(t, conn, tenant.ID, customerID, "5.00")
	svc := newTestService(t, conn)
	ctx := context.Background()

	refund := purchase(tenant.ID, customerID, "20.00", "order-5")
	refund.Type = enums.WalletTransactionRefund

	err := conn.Transaction(func(tx *gorm.DB) error {
		record, err := svc.Credit(ctx, tx, refund)
		if err != nil {
			return err
		}
		require.True(t, record.Amount.Equal(storetest.Money("20")))
		require.True(t, record.BalanceAfter.Equal(storetest.Money("25")))
		return nil
	})
	require.NoError(t, err)

	err = conn.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Credit(ctx, tx, refund)
		return err
	})
	require.ErrorIs(t, err, ErrAlreadyApplied)
	require.True(t, storetest.WalletBalance(t, conn, customerID).Equal(storetest.Money("25")))
}

func TestCreditRejectsPurchaseType(t *testing.T) {
	conn := storetest.NewDB(t, "wallet")
	svc := newTestService(t, conn)

	entry := purchase(uuid.New(), uuid.New(), "1.00", "x")
	entry.Type = enums.WalletTransactionPurchase
	_, err := svc.Credit(context.Background(), conn, entry)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestEntryValidation(t *testing.T) {
	conn := storetest.NewDB(t, "wallet")
	svc := newTestService(t, conn)
	ctx := context.Background()

	cases := map[string]Entry{
		"missing customer": {Amount: storetest.Money("1"), Reference: "r"},
		"zero amount":      {CustomerID: uuid.New(), Reference: "r"},
		"blank reference":  {CustomerID: uuid.New(), Amount: storetest.Money("1"), Reference: "  "},
	}
	for name, entry := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Debit(ctx, conn, entry)
			require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
		})
	}

	_, err := svc.Debit(ctx, nil, purchase(uuid.New(), uuid.New(), "1", "r"))
	require.ErrorIs(t, err, gorm.ErrInvalidTransaction)
}

func TestFindDebit(t *testing.T) {
	conn := storetest.NewDB(t, "wallet")
	tenant := storetest.Tenant(t, conn)
	customerID := uuid.New()
	storetest.Wallet(t, conn, tenant.ID, customerID, "50.00")
	svc := newTestService(t, conn)
	ctx := context.Background()

	_, err := svc.FindDebit(ctx, conn, "order-6")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Debit(ctx, tx, purchase(tenant.ID, customerID, "12.50", "order-6"))
		return err
	}))
	record, err := svc.FindDebit(ctx, conn, "order-6")
	require.NoError(t, err)
	require.True(t, record.Amount.Equal(storetest.Money("-12.50")))
}

func TestHasSufficientBalance(t *testing.T) {
	conn := storetest.NewDB(t, "wallet")
	tenant := storetest.Tenant(t, conn)
	customerID := uuid.New()
	storetest.Wallet(t, conn, tenant.ID, customerID, "20.00")
	svc := newTestService(t, conn)
	ctx := context.Background()

	ok, err := svc.HasSufficientBalance(ctx, customerID, storetest.Money("20.00"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.HasSufficientBalance(ctx, customerID, storetest.Money("20.01"))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.HasSufficientBalance(ctx, uuid.New(), storetest.Money("1"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTopUpCreditsAndEmitsEvent(t *testing.T) {
	conn := storetest.NewDB(t, "wallet")
	tenant := storetest.Tenant(t, conn)
	customerID := uuid.New()
	svc := newTestService(t, conn)
	ctx := context.Background()

	first, err := svc.TopUp(ctx, TopUpInput{TenantID: tenant.ID, CustomerID: customerID, Amount: storetest.Money("15")})
	require.NoError(t, err)
	second, err := svc.TopUp(ctx, TopUpInput{TenantID: tenant.ID, CustomerID: customerID, Amount: storetest.Money("5")})
	require.NoError(t, err)
	require.NotEqual(t, first.Reference, second.Reference)
	require.True(t, second.BalanceAfter.Equal(storetest.Money("20")))

	wallet, err := svc.Balance(ctx, customerID)
	require.NoError(t, err)
	require.True(t, wallet.Balance.Equal(storetest.Money("20")))

	var events []models.OutboxEvent
	require.NoError(t, conn.Where("event_type = ?", enums.EventWalletToppedUp).Find(&events).Error)
	require.Len(t, events, 2)
	require.Equal(t, enums.AggregateWallet, events[0].AggregateType)
	require.Equal(t, first.WalletID, events[0].AggregateID)

	entries, err := svc.Transactions(ctx, customerID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		require.True(t, entry.BalanceAfter.Equal(entry.BalanceBefore.Add(entry.Amount)))
	}
}

func TestTopUpRequiresTenant(t *testing.T) {
	conn := storetest.NewDB(t, "wallet")
	svc := newTestService(t, conn)
	_, err := svc.TopUp(context.Background(), TopUpInput{CustomerID: uuid.New(), Amount: storetest.Money("1")})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestBalanceWithoutWalletIsZero(t *testing.T) {
	conn := storetest.NewDB(t, "wallet")
	svc := newTestService(t, conn)
	customerID := uuid.New()

	wallet, err := svc.Balance(context.Background(), customerID)
	require.NoError(t, err)
	require.True(t, wallet.Balance.IsZero())
	require.Equal(t, customerID, wallet.CustomerID)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.EqualError(t, err, "wallet repository required")
}
