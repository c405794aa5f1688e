package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	walletTxIndex    = "ux_wallet_tx_reference_type"
)

var (
	// ErrInsufficientBalance is wrapped in the CONFLICT returned by Debit.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	// ErrAlreadyApplied marks a second purchase or refund for one reference.
	ErrAlreadyApplied = errors.New("wallet entry already recorded for reference")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Entry is one wallet movement. Amount is always positive; the direction is
// given by the operation (Debit or Credit).
type Entry struct {
	TenantID    uuid.UUID
	CustomerID  uuid.UUID
	Amount      decimal.Decimal
	Reference   string
	Type        enums.WalletTransactionType
	Currency    string
	Description types.LocalizedText
}

func (e Entry) validate() error {
	if e.CustomerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if !e.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if strings.TrimSpace(e.Reference) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	return nil
}

// TopUpInput credits a customer wallet outside of any order.
type TopUpInput struct {
	TenantID    uuid.UUID
	CustomerID  uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Description types.LocalizedText
}

type ServiceParams struct {
	Repository *Repository
	Tx         txRunner
	Logger     *logger.Logger
	Outbox     outbox.Emitter
}

// Service is the wallet ledger. Every balance change is paired with a ledger
// entry in the same transaction.
type Service struct {
	repo   *Repository
	tx     txRunner
	logg   *logger.Logger
	outbox outbox.Emitter
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:   params.Repository,
		tx:     params.Tx,
		logg:   params.Logger,
		outbox: params.Outbox,
	}, nil
}

// HasSufficientBalance is an advisory read; the authoritative check happens
// under lock in Debit.
func (s *Service) HasSufficientBalance(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) (bool, error) {
	if !amount.IsPositive() {
		return true, nil
	}
	wallet, err := s.repo.FindByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}
	return wallet.Balance.GreaterThanOrEqual(amount), nil
}

// Debit removes entry.Amount from the wallet as a purchase. A reference can be
// debited at most once.
func (s *Service) Debit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.WalletTransaction, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	if err := entry.validate(); err != nil {
		return nil, err
	}
	entry.Type = enums.WalletTransactionPurchase
	tx = tx.WithContext(ctx)

	if err := s.ensureNotApplied(tx, entry); err != nil {
		return nil, err
	}

	wallet, err := s.lockOrCreate(tx, entry)
	if err != nil {
		return nil, err
	}
	if wallet.Balance.LessThan(entry.Amount) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, ErrInsufficientBalance, "insufficient wallet balance").
			WithDetails(map[string]any{
				"balance":  wallet.Balance.StringFixed(2),
				"required": entry.Amount.StringFixed(2),
			})
	}

	record, err := s.apply(ctx, tx, wallet, entry, entry.Amount.Neg())
	if err != nil {
		return nil, err
	}
	s.logMovement(ctx, "wallet.debited", record)
	return record, nil
}

// Credit adds entry.Amount to the wallet. Type must be refund or top_up;
// refunds are recorded at most once per reference.
func (s *Service) Credit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.WalletTransaction, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	if err := entry.validate(); err != nil {
		return nil, err
	}
	if entry.Type != enums.WalletTransactionRefund && entry.Type != enums.WalletTransactionTopUp {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit type must be refund or top_up")
	}
	tx = tx.WithContext(ctx)

	if err := s.ensureNotApplied(tx, entry); err != nil {
		return nil, err
	}
	wallet, err := s.lockOrCreate(tx, entry)
	if err != nil {
		return nil, err
	}

	record, err := s.apply(ctx, tx, wallet, entry, entry.Amount)
	if err != nil {
		return nil, err
	}
	s.logMovement(ctx, "wallet.credited", record)
	return record, nil
}

// FindDebit returns the purchase entry recorded for reference.
func (s *Service) FindDebit(ctx context.Context, tx *gorm.DB, reference string) (*models.WalletTransaction, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	record, err := s.repo.FindTransactionTx(tx.WithContext(ctx), reference, enums.WalletTransactionPurchase)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet debit not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet debit")
	}
	return record, nil
}

// TopUp credits the wallet in its own transaction and emits wallet_topped_up.
func (s *Service) TopUp(ctx context.Context, input TopUpInput) (*models.WalletTransaction, error) {
	if input.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	description := input.Description
	if description.IsEmpty() {
		description = types.NewLocalizedText("Wallet top-up", "شحن المحفظة")
	}
	entry := Entry{
		TenantID:    input.TenantID,
		CustomerID:  input.CustomerID,
		Amount:      input.Amount.Round(2),
		Reference:   "topup:" + uuid.NewString(),
		Type:        enums.WalletTransactionTopUp,
		Currency:    input.Currency,
		Description: description,
	}

	var record *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		record, err = s.Credit(ctx, tx, entry)
		if err != nil {
			return err
		}
		if s.outbox == nil {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletToppedUp,
			AggregateType: enums.AggregateWallet,
			AggregateID:   record.WalletID,
			Actor:         &outbox.ActorRef{TenantID: input.TenantID, Role: enums.ActorRoleMerchant.String()},
			Data: payloads.WalletToppedUpEvent{
				WalletID:     record.WalletID,
				CustomerID:   record.CustomerID,
				TenantID:     record.TenantID,
				Amount:       record.Amount,
				BalanceAfter: record.BalanceAfter,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Balance returns the wallet, or an unsaved zero wallet when none exists yet.
func (s *Service) Balance(ctx context.Context, customerID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.FindByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.Wallet{CustomerID: customerID, Balance: decimal.Zero}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}
	return wallet, nil
}

func (s *Service) Transactions(ctx context.Context, customerID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	entries, err := s.repo.ListTransactions(ctx, customerID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list wallet transactions")
	}
	return entries, nil
}

func (s *Service) ensureNotApplied(tx *gorm.DB, entry Entry) error {
	if entry.Type == enums.WalletTransactionTopUp {
		return nil
	}
	_, err := s.repo.FindTransactionTx(tx, entry.Reference, entry.Type)
	switch {
	case err == nil:
		return alreadyApplied(entry)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check wallet ledger")
	}
}

// lockOrCreate returns the locked wallet row, creating it lazily.
func (s *Service) lockOrCreate(tx *gorm.DB, entry Entry) (*models.Wallet, error) {
	wallet, err := s.repo.LockByCustomerTx(tx, entry.CustomerID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock wallet")
	}

	currency := strings.ToUpper(strings.TrimSpace(entry.Currency))
	if currency == "" {
		currency = "USD"
	}
	wallet = &models.Wallet{
		TenantID:   entry.TenantID,
		CustomerID: entry.CustomerID,
		Balance:    decimal.Zero,
		Currency:   currency,
	}
	if err := s.repo.CreateTx(tx, wallet); err != nil {
		if db.IsUniqueViolation(err, "") {
			return s.repo.LockByCustomerTx(tx, entry.CustomerID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create wallet")
	}
	return wallet, nil
}

// apply writes the balance and the ledger entry, then verifies the stored
// balance matches before + delta.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, wallet *models.Wallet, entry Entry, delta decimal.Decimal) (*models.WalletTransaction, error) {
	before := wallet.Balance
	after := before.Add(delta)
	if after.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeIntegrity, "wallet balance would become negative")
	}

	if err := s.repo.SetBalanceTx(tx, wallet.ID, after); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update wallet balance")
	}

	tenantID := entry.TenantID
	if tenantID == uuid.Nil {
		tenantID = wallet.TenantID
	}
	record := &models.WalletTransaction{
		WalletID:      wallet.ID,
		CustomerID:    wallet.CustomerID,
		TenantID:      tenantID,
		Type:          entry.Type,
		Amount:        delta,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     entry.Reference,
		Status:        enums.WalletTransactionCompleted,
		Description:   entry.Description,
	}
	if err := s.repo.InsertTransactionTx(tx, record); err != nil {
		if db.IsUniqueViolation(err, walletTxIndex) {
			return nil, alreadyApplied(entry)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert wallet transaction")
	}

	stored, err := s.repo.BalanceTx(tx, wallet.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload wallet balance")
	}
	if !stored.Equal(after) || !record.BalanceAfter.Equal(record.BalanceBefore.Add(record.Amount)) {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"wallet_id": wallet.ID.String(),
			"expected":  after.String(),
			"stored":    stored.String(),
		})
		s.logg.Error(logCtx, "wallet.integrity_violation", errors.New("balance mismatch"))
		return nil, pkgerrors.New(pkgerrors.CodeIntegrity, "wallet balance mismatch")
	}

	wallet.Balance = after
	return record, nil
}

func (s *Service) logMovement(ctx context.Context, msg string, record *models.WalletTransaction) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"wallet_id":   record.WalletID.String(),
		"customer_id": record.CustomerID.String(),
		"tenant_id":   record.TenantID.String(),
		"reference":   record.Reference,
		"amount":      record.Amount.StringFixed(2),
		"balance":     record.BalanceAfter.StringFixed(2),
	})
	s.logg.Info(logCtx, msg)
}

func alreadyApplied(entry Entry) error {
	return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrAlreadyApplied, "wallet entry already recorded").
		WithDetails(map[string]any{"reference": entry.Reference, "type": entry.Type})
}
