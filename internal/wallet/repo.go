package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Repository persists wallets and their ledger entries.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByCustomer(ctx context.Context, customerID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "customer_id = ?", customerID).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// LockByCustomerTx reads the wallet row FOR UPDATE.
func (r *Repository) LockByCustomerTx(tx *gorm.DB, customerID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&wallet, "customer_id = ?", customerID).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *Repository) CreateTx(tx *gorm.DB, wallet *models.Wallet) error {
	return tx.Create(wallet).Error
}

func (r *Repository) SetBalanceTx(tx *gorm.DB, walletID uuid.UUID, balance decimal.Decimal) error {
	return tx.Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Update("balance", balance).Error
}

func (r *Repository) BalanceTx(tx *gorm.DB, walletID uuid.UUID) (decimal.Decimal, error) {
	var wallet models.Wallet
	if err := tx.Select("balance").First(&wallet, "id = ?", walletID).Error; err != nil {
		return decimal.Zero, err
	}
	return wallet.Balance, nil
}

func (r *Repository) InsertTransactionTx(tx *gorm.DB, entry *models.WalletTransaction) error {
	return tx.Create(entry).Error
}

func (r *Repository) FindTransactionTx(tx *gorm.DB, reference string, txType enums.WalletTransactionType) (*models.WalletTransaction, error) {
	var entry models.WalletTransaction
	if err := tx.First(&entry, "reference = ? AND type = ?", reference, txType).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *Repository) ListTransactions(ctx context.Context, customerID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	var entries []models.WalletTransaction
	if err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
