package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultTimeout         = 20 * time.Second
	defaultRetryBaseDelay  = 250 * time.Millisecond
	defaultRetryMaxDelay   = 4 * time.Second
	responseBodyReadLimit  = 1024
	operationValidate      = "validate_inventory"
	operationDeliver       = "deliver"
	operationMatchCatalog  = "match_catalog"
	pathInventoryValidate  = "inventory/validate"
	pathDeliveries         = "deliveries"
	pathCatalogMatch       = "catalog/match"
	headerTenantID         = "X-Tenant-ID"
	headerIdempotencyKey   = "Idempotency-Key"
	headerAuthorization    = "Authorization"
	contentTypeApplication = "application/json"
)

var errBaseURLRequired = errors.New("supplier base url is required")

// Client talks to the Supplier Hub. Transient failures (network errors, 429
// and 5xx) are retried with capped exponential backoff.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxRetries uint64
	baseDelay  time.Duration
	maxDelay   time.Duration
	logg       *logger.Logger
	metrics    *metrics.FulfillmentMetrics
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithMetrics records supplier call latency.
func WithMetrics(m *metrics.FulfillmentMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(cfg config.SupplierConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		maxDelay:   cfg.RetryMaxDelay,
		logg:       logg,
	}
	if client.baseDelay <= 0 {
		client.baseDelay = defaultRetryBaseDelay
	}
	if client.maxDelay <= 0 {
		client.maxDelay = defaultRetryMaxDelay
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ValidateInventoryBeforeOrder asks the hub whether every item can be sourced.
// The hub may resync product metadata as a side effect.
func (c *Client) ValidateInventoryBeforeOrder(ctx context.Context, tenantID uuid.UUID, items []InventoryItem) (bool, error) {
	if len(items) == 0 {
		return true, nil
	}
	body := struct {
		TenantID uuid.UUID       `json:"tenant_id"`
		Items    []InventoryItem `json:"items"`
	}{TenantID: tenantID, Items: items}

	var resp struct {
		Valid bool `json:"valid"`
	}
	headers := map[string]string{headerTenantID: tenantID.String()}
	if err := c.post(ctx, operationValidate, pathInventoryValidate, body, &resp, headers); err != nil {
		return false, err
	}
	return resp.Valid, nil
}

// ProcessDigitalCardsDelivery requests codes for the order. The order id is sent
// as the idempotency key so a retried request never issues twice.
func (c *Client) ProcessDigitalCardsDelivery(ctx context.Context, req DeliveryRequest) (*DeliveryResult, error) {
	if req.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if len(req.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery items are required")
	}

	var result DeliveryResult
	headers := map[string]string{
		headerTenantID:       req.TenantID.String(),
		headerIdempotencyKey: req.OrderID.String(),
	}
	if err := c.post(ctx, operationDeliver, pathDeliveries, req, &result, headers); err != nil {
		return nil, err
	}
	if result.SerialsByProduct == nil {
		result.SerialsByProduct = map[string]int{}
		for _, code := range result.Codes {
			result.SerialsByProduct[code.ProductID]++
		}
	}
	return &result, nil
}

// MatchCatalog reports whether the product maps onto a supplier catalog entry.
func (c *Client) MatchCatalog(ctx context.Context, tenantID uuid.UUID, product models.Product) (bool, error) {
	body := struct {
		TenantID  uuid.UUID `json:"tenant_id"`
		ProductID uuid.UUID `json:"product_id"`
		SKU       string    `json:"sku"`
		Name      string    `json:"name"`
	}{TenantID: tenantID, ProductID: product.ID, SKU: product.SKU, Name: product.Name}

	var resp struct {
		Matched      bool   `json:"matched"`
		SupplierCode string `json:"supplier_code,omitempty"`
	}
	headers := map[string]string{headerTenantID: tenantID.String()}
	if err := c.post(ctx, operationMatchCatalog, pathCatalogMatch, body, &resp, headers); err != nil {
		return false, err
	}
	return resp.Matched, nil
}

func (c *Client) post(ctx context.Context, operation, path string, body, out any, headers map[string]string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "supplier client not configured")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal supplier request")
	}

	start := time.Now()
	attempt := 0
	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempt++
		return c.send(ctx, path, payload, out, headers)
	})
	c.metrics.ObserveSupplier(operation, time.Since(start), err)
	if err != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"operation": operation,
			"attempts":  attempt,
		})
		c.logg.Warn(logCtx, "supplier request failed")
		if typed := pkgerrors.As(err); typed != nil {
			return typed
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "supplier request failed")
	}
	return nil
}

func (c *Client) send(ctx context.Context, path string, payload []byte, out any, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build supplier request")
	}
	req.Header.Set("Content-Type", contentTypeApplication)
	req.Header.Set("Accept", contentTypeApplication)
	if c.apiKey != "" {
		req.Header.Set(headerAuthorization, "Bearer "+c.apiKey)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "supplier request cancelled")
		}
		return retry.RetryableError(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute supplier request"))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		statusErr := pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"supplier request failed")
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.RetryableError(statusErr)
		}
		return statusErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode supplier response")
	}
	return nil
}

func (c *Client) backoff() retry.Backoff {
	b := retry.NewExponential(c.baseDelay)
	b = retry.WithCappedDuration(c.maxDelay, b)
	b = retry.WithJitterPercent(10, b)
	return retry.WithMaxRetries(c.maxRetries, b)
}
