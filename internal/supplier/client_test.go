package supplier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/storetest"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.SupplierConfig{
		BaseURL:        server.URL,
		APIKey:         "secret",
		Timeout:        time.Second,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
	}, storetest.Logger())
	require.NoError(t, err)
	return client
}

func TestDeliveryRetriesTransientFailures(t *testing.T) {
	var calls int32
	orderID := uuid.New()
	productID := uuid.New()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/deliveries", r.URL.Path)
		assert.Equal(t, orderID.String(), r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"serial_numbers": []map[string]string{
				{"product_id": productID.String(), "serial": "AAA-111", "pin": "1234"},
				{"product_id": productID.String(), "serial": "BBB-222"},
			},
		})
	})

	result, err := client.ProcessDigitalCardsDelivery(context.Background(), DeliveryRequest{
		TenantID: uuid.New(),
		OrderID:  orderID,
		Items:    []DeliveryItem{{ProductID: productID, Quantity: 2}},
	})
	require.NoError(t, err)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
	require.True(t, result.HasCodes())
	require.Len(t, result.Codes, 2)
	require.Equal(t, 2, result.SerialsByProduct[productID.String()])
}

func TestDeliveryGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.ProcessDigitalCardsDelivery(context.Background(), DeliveryRequest{
		OrderID: uuid.New(),
		Items:   []DeliveryItem{{ProductID: uuid.New(), Quantity: 1}},
	})
	require.Error(t, err)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unknown sku", http.StatusUnprocessableEntity)
	})

	_, err := client.ValidateInventoryBeforeOrder(context.Background(), uuid.New(), []InventoryItem{{ProductID: uuid.New(), Quantity: 1}})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency))
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDeliveryErrorPayloadIsReturned(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"serial_numbers": []any{},
			"error":          map[string]string{"en": "out of stock", "ar": "نفد المخزون"},
		})
	})

	result, err := client.ProcessDigitalCardsDelivery(context.Background(), DeliveryRequest{
		OrderID: uuid.New(),
		Items:   []DeliveryItem{{ProductID: uuid.New(), Quantity: 1}},
	})
	require.NoError(t, err)
	require.False(t, result.HasCodes())
	require.NotNil(t, result.Error)
	require.Equal(t, "out of stock", result.Error.EN)
}

func TestValidateInventory(t *testing.T) {
	tenantID := uuid.New()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inventory/validate", r.URL.Path)
		assert.Equal(t, tenantID.String(), r.Header.Get("X-Tenant-ID"))
		var body struct {
			Items []InventoryItem `json:"items"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]bool{"valid": body.Items[0].Quantity <= 5})
	})
	ctx := context.Background()

	ok, err := client.ValidateInventoryBeforeOrder(ctx, tenantID, []InventoryItem{{ProductID: uuid.New(), Quantity: 2}})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.ValidateInventoryBeforeOrder(ctx, tenantID, []InventoryItem{{ProductID: uuid.New(), Quantity: 9}})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = client.ValidateInventoryBeforeOrder(ctx, tenantID, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMatchCatalog(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/catalog/match", r.URL.Path)
		var body struct {
			SKU string `json:"sku"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]any{"matched": body.SKU == "PSN-50"})
	})

	matched, err := client.MatchCatalog(context.Background(), uuid.New(), models.Product{SKU: "PSN-50", Name: "PSN 50"})
	require.NoError(t, err)
	require.True(t, matched)

	matched, err = client.MatchCatalog(context.Background(), uuid.New(), models.Product{SKU: "MUG-1"})
	require.NoError(t, err)
	require.False(t, matched)
}

func TestDeliveryValidatesRequest(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("unexpected supplier call")
	})
	_, err := client.ProcessDigitalCardsDelivery(context.Background(), DeliveryRequest{})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(config.SupplierConfig{}, storetest.Logger())
	require.ErrorIs(t, err, errBaseURLRequired)
}
