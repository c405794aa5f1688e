package square

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
)

// Charge is a single card payment. IdempotencyKey is required; callers derive
// it from the order so a resubmitted charge collapses into the first one.
type Charge struct {
	AmountMinor    int64
	Currency       string
	SourceID       string
	IdempotencyKey string
	ReferenceID    string
	CustomerID     string
	Note           string
}

// Payment is the part of a Square payment the storefront acts on.
type Payment struct {
	ID          string
	Status      string
	AmountMinor int64
	Currency    string
	ReceiptURL  string
}

// DeclineError reports a card the issuer refused. It is a payment outcome,
// not a transport failure.
type DeclineError struct {
	Code   string
	Detail string
}

func (e *DeclineError) Error() string {
	if e.Detail == "" {
		return "card declined: " + e.Code
	}
	return fmt.Sprintf("card declined: %s (%s)", e.Code, e.Detail)
}

// ToMinorUnits converts a 2dp amount into cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

func (c Charge) validate() error {
	switch {
	case c.AmountMinor <= 0:
		return fmt.Errorf("charge amount must be positive")
	case strings.TrimSpace(c.SourceID) == "":
		return fmt.Errorf("charge source id is required")
	case strings.TrimSpace(c.IdempotencyKey) == "":
		return fmt.Errorf("charge idempotency key is required")
	}
	return nil
}

func (c Charge) request(locationID string) *sq.CreatePaymentRequest {
	currency := sq.Currency(normalizeCurrency(c.Currency))
	amount := c.AmountMinor
	autocomplete := true
	return &sq.CreatePaymentRequest{
		IdempotencyKey: c.IdempotencyKey,
		SourceID:       c.SourceID,
		AmountMoney:    &sq.Money{Amount: &amount, Currency: &currency},
		LocationID:     optional(locationID),
		CustomerID:     optional(c.CustomerID),
		ReferenceID:    optional(c.ReferenceID),
		Note:           optional(c.Note),
		Autocomplete:   &autocomplete,
	}
}

func paymentFromSquare(p *sq.Payment) *Payment {
	if p == nil {
		return nil
	}
	out := &Payment{
		ID:         deref(p.GetID()),
		Status:     strings.ToUpper(deref(p.GetStatus())),
		ReceiptURL: deref(p.GetReceiptURL()),
	}
	if money := p.GetAmountMoney(); money != nil {
		if money.GetAmount() != nil {
			out.AmountMinor = *money.GetAmount()
		}
		if money.GetCurrency() != nil {
			out.Currency = string(*money.GetCurrency())
		}
	}
	return out
}

func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "USD"
	}
	return code
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
