package validators

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

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type topUp struct {
	Amount   decimal.Decimal `json:"amount" validate:"money_positive"`
	Currency string          `json:"currency" validate:"omitempty,len=3"`
}

type reason struct {
	Reason string `json:"reason" validate:"max=16"`
}

func jsonRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	var dest topUp
	require.NoError(t, DecodeJSONBody(jsonRequest(`{"amount":"12.50","currency":"USD"}`), &dest))
	assert.True(t, dest.Amount.Equal(decimal.RequireFromString("12.5")))

	err := DecodeJSONBody(jsonRequest(`{"amount":"0"}`), &topUp{})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, map[string]string{"amount": "must be a positive amount"}, typed.Details())

	err = DecodeJSONBody(jsonRequest(`{"amount":"5","currency":"DOLLARS"}`), &topUp{})
	require.Error(t, err)
	assert.Equal(t, map[string]string{"currency": "must have length 3"}, pkgerrors.As(err).Details())
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":    ``,
		"unknown":  `{"amount":"5","tip":"1"}`,
		"trailing": `{"amount":"5"}{"amount":"6"}`,
		"syntax":   `{"amount":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			err := DecodeJSONBody(jsonRequest(body), &topUp{})
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
		})
	}
}

func TestDecodeOptionalJSONBodyAllowsEmptyBody(t *testing.T) {
	var dest reason
	require.NoError(t, DecodeOptionalJSONBody(jsonRequest(""), &dest))
	assert.Empty(t, dest.Reason)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, DecodeOptionalJSONBody(req, &dest))

	require.NoError(t, DecodeOptionalJSONBody(jsonRequest(`{"reason":"changed mind"}`), &dest))
	assert.Equal(t, "changed mind", dest.Reason)

	err := DecodeOptionalJSONBody(jsonRequest(`{"reason":"this reason is far too long"}`), &dest)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyEnforcesSizeLimit(t *testing.T) {
	body := `{"reason":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	err := DecodeJSONBody(jsonRequest(body), &reason{})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, "request body too large", typed.Message())
}

func withURLParam(key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestParseURLUUID(t *testing.T) {
	id := uuid.New()
	got, err := ParseURLUUID(withURLParam("orderId", " "+id.String()+" "), "orderId", "order id")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseURLUUID(withURLParam("orderId", "nope"), "orderId", "order id")
	require.Error(t, err)
	assert.Equal(t, "invalid order id", pkgerrors.As(err).Message())

	_, err = ParseURLUUID(withURLParam("orderId", ""), "orderId", "order id")
	require.Error(t, err)
	assert.Equal(t, "order id is required", pkgerrors.As(err).Message())
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=30", nil)
	got, err := ParseQueryInt(req, "limit", 10, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 30, got)

	got, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 10, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 10, got)

	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=500", nil), "limit", 10, 1, 50)
	assert.Error(t, err)
}

func TestParsePage(t *testing.T) {
	page, err := ParsePage(httptest.NewRequest(http.MethodGet, "/?limit=5&offset=40", nil), 20, 100)
	require.NoError(t, err)
	assert.Equal(t, Page{Limit: 5, Offset: 40}, page)

	page, err = ParsePage(httptest.NewRequest(http.MethodGet, "/", nil), 20, 100)
	require.NoError(t, err)
	assert.Equal(t, Page{Limit: 20}, page)

	_, err = ParsePage(httptest.NewRequest(http.MethodGet, "/?offset=-1", nil), 20, 100)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = ParsePage(httptest.NewRequest(http.MethodGet, "/?limit=0", nil), 20, 100)
	assert.Error(t, err)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "leave at door", SanitizeString("  leave\x00 at door\n", 0))
	assert.Equal(t, "caf", SanitizeString("café", 4))
	assert.Equal(t, "café", SanitizeString("café", 5))
}
