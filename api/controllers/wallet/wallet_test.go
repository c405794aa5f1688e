package wallet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	internalwallet "github.com/angelmondragon/storefront-backend/internal/wallet"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type stubWallet struct {
	balance   decimal.Decimal
	topUp     internalwallet.TopUpInput
	lastLimit int
}

func (s *stubWallet) Balance(_ context.Context, customerID uuid.UUID) (*models.Wallet, error) {
	return &models.Wallet{CustomerID: customerID, Balance: s.balance}, nil
}

func (s *stubWallet) Transactions(_ context.Context, customerID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	s.lastLimit = limit
	return []models.WalletTransaction{{CustomerID: customerID, Type: enums.WalletTransactionTopUp, Amount: decimal.NewFromInt(5)}}, nil
}

func (s *stubWallet) TopUp(_ context.Context, input internalwallet.TopUpInput) (*models.WalletTransaction, error) {
	s.topUp = input
	return &models.WalletTransaction{
		ID:           uuid.New(),
		CustomerID:   input.CustomerID,
		Type:         enums.WalletTransactionTopUp,
		Amount:       input.Amount,
		BalanceAfter: input.Amount,
	}, nil
}

var tenant = &models.Tenant{ID: uuid.New(), Slug: "acme", Currency: "SAR"}

func request(method, path, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	return req.WithContext(middleware.WithTenant(req.Context(), tenant))
}

func withCustomer(req *http.Request, id uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithSubject(req.Context(), id.String(), enums.ActorRoleCustomer.String(), tenant.ID.String()))
}

func TestBalance(t *testing.T) {
	svc := &stubWallet{balance: decimal.RequireFromString("42.50")}

	rec := httptest.NewRecorder()
	Balance(svc, nil).ServeHTTP(rec, request(http.MethodGet, "/api/v1/wallet", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	Balance(svc, nil).ServeHTTP(rec, withCustomer(request(http.MethodGet, "/api/v1/wallet", ""), uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance":"42.5"`)
	assert.Contains(t, rec.Body.String(), `"currency":"SAR"`)
}

func TestTransactionsLimit(t *testing.T) {
	svc := &stubWallet{}
	customerID := uuid.New()

	rec := httptest.NewRecorder()
	Transactions(svc, nil).ServeHTTP(rec, withCustomer(request(http.MethodGet, "/api/v1/wallet/transactions?limit=3", ""), customerID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, svc.lastLimit)
	assert.Contains(t, rec.Body.String(), `"type":"top_up"`)

	rec = httptest.NewRecorder()
	Transactions(svc, nil).ServeHTTP(rec, withCustomer(request(http.MethodGet, "/api/v1/wallet/transactions?limit=0", ""), customerID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func topUpRequestFor(customerID, body string) *http.Request {
	req := request(http.MethodPost, "/api/v1/merchant/wallets/"+customerID+"/top-up", body)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("customerId", customerID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestTopUp(t *testing.T) {
	svc := &stubWallet{}
	customerID := uuid.New()

	rec := httptest.NewRecorder()
	TopUp(svc, nil).ServeHTTP(rec, topUpRequestFor(customerID.String(), `{"amount":"150","description_en":"gift"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, tenant.ID, svc.topUp.TenantID)
	assert.Equal(t, customerID, svc.topUp.CustomerID)
	assert.True(t, svc.topUp.Amount.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, "SAR", svc.topUp.Currency)
	assert.Equal(t, "gift", svc.topUp.Description.EN)
	assert.Equal(t, "gift", svc.topUp.Description.AR)
}

func TestTopUpValidation(t *testing.T) {
	cases := map[string]struct {
		customer string
		body     string
	}{
		"bad customer":    {customer: "nope", body: `{"amount":"1"}`},
		"zero amount":     {customer: uuid.NewString(), body: `{"amount":"0"}`},
		"negative amount": {customer: uuid.NewString(), body: `{"amount":"-5"}`},
		"bad currency":    {customer: uuid.NewString(), body: `{"amount":"5","currency":"dollars"}`},
	}
	for name, tc := range cases {
		rec := httptest.NewRecorder()
		TopUp(&stubWallet{}, nil).ServeHTTP(rec, topUpRequestFor(tc.customer, tc.body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}
