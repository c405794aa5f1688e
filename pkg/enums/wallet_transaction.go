package enums

import "fmt"

// WalletTransactionType classifies wallet ledger entries.
type WalletTransactionType string

const (
	WalletTransactionPurchase WalletTransactionType = "purchase"
	WalletTransactionRefund   WalletTransactionType = "refund"
	WalletTransactionTopUp    WalletTransactionType = "top_up"
)

var validWalletTransactionTypes = []WalletTransactionType{
	WalletTransactionPurchase,
	WalletTransactionRefund,
	WalletTransactionTopUp,
}

// String implements fmt.Stringer.
func (t WalletTransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known WalletTransactionType.
func (t WalletTransactionType) IsValid() bool {
	for _, candidate := range validWalletTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsDebit reports whether entries of this type decrease the balance.
func (t WalletTransactionType) IsDebit() bool {
	return t == WalletTransactionPurchase
}

// ParseWalletTransactionType converts raw input into a WalletTransactionType.
func ParseWalletTransactionType(value string) (WalletTransactionType, error) {
	for _, candidate := range validWalletTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction type %q", value)
}

// WalletTransactionStatus is recorded on each ledger entry.
type WalletTransactionStatus string

const (
	WalletTransactionCompleted WalletTransactionStatus = "completed"
	WalletTransactionReversed  WalletTransactionStatus = "reversed"
)
