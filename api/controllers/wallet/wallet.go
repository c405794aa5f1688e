package wallet

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalwallet "github.com/angelmondragon/storefront-backend/internal/wallet"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 200
)

type Service interface {
	Balance(ctx context.Context, customerID uuid.UUID) (*models.Wallet, error)
	Transactions(ctx context.Context, customerID uuid.UUID, limit int) ([]models.WalletTransaction, error)
	TopUp(ctx context.Context, input internalwallet.TopUpInput) (*models.WalletTransaction, error)
}

type balanceResponse struct {
	CustomerID uuid.UUID       `json:"customer_id"`
	Balance    decimal.Decimal `json:"balance"`
	Currency   string          `json:"currency"`
}

type transactionResponse struct {
	ID            uuid.UUID                     `json:"id"`
	Type          enums.WalletTransactionType   `json:"type"`
	Status        enums.WalletTransactionStatus `json:"status"`
	Amount        decimal.Decimal               `json:"amount"`
	BalanceBefore decimal.Decimal               `json:"balance_before"`
	BalanceAfter  decimal.Decimal               `json:"balance_after"`
	Reference     string                        `json:"reference"`
	Description   types.LocalizedText           `json:"description"`
	CreatedAt     time.Time                     `json:"created_at"`
}

type topUpRequest struct {
	Amount        decimal.Decimal `json:"amount" validate:"money_positive"`
	Currency      string          `json:"currency" validate:"omitempty,len=3"`
	DescriptionEN string          `json:"description_en" validate:"max=200"`
	DescriptionAR string          `json:"description_ar" validate:"max=200"`
}

// Balance returns the signed-in customer's wallet. Customers without a wallet
// see a zero balance.
func Balance(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := requireCustomer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		wallet, err := svc.Balance(r.Context(), customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		currency := wallet.Currency
		if currency == "" {
			if tenant, ok := middleware.TenantFromContext(r.Context()); ok {
				currency = tenant.Currency
			}
		}
		responses.WriteSuccess(w, balanceResponse{
			CustomerID: customerID,
			Balance:    wallet.Balance,
			Currency:   currency,
		})
	}
}

func Transactions(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := requireCustomer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultTransactionLimit, 1, maxTransactionLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svc.Transactions(r.Context(), customerID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]transactionResponse, 0, len(entries))
		for _, entry := range entries {
			out = append(out, transactionResponse{
				ID:            entry.ID,
				Type:          entry.Type,
				Status:        entry.Status,
				Amount:        entry.Amount,
				BalanceBefore: entry.BalanceBefore,
				BalanceAfter:  entry.BalanceAfter,
				Reference:     entry.Reference,
				Description:   entry.Description,
				CreatedAt:     entry.CreatedAt,
			})
		}
		responses.WriteSuccess(w, map[string]any{"transactions": out})
	}
}

// TopUp credits a customer's wallet on behalf of the merchant.
func TopUp(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := middleware.TenantFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tenant context missing"))
			return
		}
		customerID, err := validators.ParseURLUUID(r, "customerId", "customer id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload topUpRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		currency := strings.ToUpper(strings.TrimSpace(payload.Currency))
		if currency == "" {
			currency = tenant.Currency
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithCustomerID(ctx, customerID.String())
		}
		description := types.LocalizedText{}
		if en := validators.SanitizeString(payload.DescriptionEN, 200); en != "" {
			description = types.NewLocalizedText(en, validators.SanitizeString(payload.DescriptionAR, 200))
		}
		record, err := svc.TopUp(ctx, internalwallet.TopUpInput{
			TenantID:    tenant.ID,
			CustomerID:  customerID,
			Amount:      payload.Amount,
			Currency:    currency,
			Description: description,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, transactionResponse{
			ID:            record.ID,
			Type:          record.Type,
			Status:        record.Status,
			Amount:        record.Amount,
			BalanceBefore: record.BalanceBefore,
			BalanceAfter:  record.BalanceAfter,
			Reference:     record.Reference,
			Description:   record.Description,
			CreatedAt:     record.CreatedAt,
		})
	}
}

func requireCustomer(r *http.Request) (uuid.UUID, error) {
	subject := middleware.SubjectIDFromContext(r.Context())
	if subject == "" || middleware.RoleFromContext(r.Context()) != enums.ActorRoleCustomer.String() {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer sign-in required")
	}
	id, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid subject")
	}
	return id, nil
}
