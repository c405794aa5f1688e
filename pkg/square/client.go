package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"

	categoryPaymentMethod = "PAYMENT_METHOD_ERROR"
	categoryAuth          = "AUTHENTICATION_ERROR"
	categoryRateLimit     = "RATE_LIMIT_ERROR"
	codeIdempotencyReused = "IDEMPOTENCY_KEY_REUSED"
)

var (
	errAccessTokenRequired = errors.New("square access token is required")
	errLocationRequired    = errors.New("square location id is required")
	errInvalidSquareEnv    = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired      = errors.New("square logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

type paymentsAPI interface {
	Create(ctx context.Context, request *sq.CreatePaymentRequest, opts ...sqoption.RequestOption) (*sq.CreatePaymentResponse, error)
}

// Client charges card tokens at one Square location.
type Client struct {
	payments    paymentsAPI
	environment string
	locationID  string
	maxRetries  uint64
	retryDelay  time.Duration
	logg        *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env := cfg.Environment()
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, errInvalidSquareEnv
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errAccessTokenRequired
	}
	location := strings.TrimSpace(cfg.LocationID)
	if location == "" {
		return nil, errLocationRequired
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURL),
		sqoption.WithToken(token),
	)
	logg.Info(logg.WithFields(ctx, map[string]any{"square_env": env, "location_id": location}), "square client initialized")
	return &Client{
		payments:    sdk.Payments,
		environment: env,
		locationID:  location,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		logg:        logg,
	}, nil
}

// Environment reports sandbox or production.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreatePayment charges the card and autocompletes the payment. Transient
// failures are retried under the same idempotency key. A declined card comes
// back as a state conflict wrapping *DeclineError.
func (c *Client) CreatePayment(ctx context.Context, charge Charge) (*Payment, error) {
	if err := charge.validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid square charge")
	}
	req := charge.request(c.locationID)
	ctx = c.withFields(ctx, map[string]any{
		"square_op":    "create_payment",
		"reference_id": charge.ReferenceID,
		"amount_minor": charge.AmountMinor,
		"currency":     normalizeCurrency(charge.Currency),
	})

	var resp *sq.CreatePaymentResponse
	attempts := 0
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempts++
		var callErr error
		resp, callErr = c.payments.Create(ctx, req)
		if callErr == nil {
			return nil
		}
		mapped := mapSquareError(callErr)
		if transient(callErr) {
			return retry.RetryableError(mapped)
		}
		return mapped
	})
	if err != nil {
		c.logFailure(c.withFields(ctx, map[string]any{"attempts": attempts}), err)
		return nil, err
	}

	payment := paymentFromSquare(resp.GetPayment())
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment")
	}
	if c.logg != nil {
		c.logg.Info(c.withFields(ctx, map[string]any{
			"payment_id": payment.ID,
			"status":     payment.Status,
			"attempts":   attempts,
		}), "square.payment_created")
	}
	return payment, nil
}

func (c *Client) backoff() retry.Backoff {
	delay := c.retryDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	b := retry.NewExponential(delay)
	b = retry.WithJitterPercent(20, b)
	return retry.WithMaxRetries(c.maxRetries, b)
}

func (c *Client) withFields(ctx context.Context, fields map[string]any) context.Context {
	if c.logg == nil {
		return ctx
	}
	return c.logg.WithFields(ctx, fields)
}

func (c *Client) logFailure(ctx context.Context, err error) {
	if c.logg == nil {
		return
	}
	var decline *DeclineError
	if errors.As(err, &decline) {
		c.logg.Warn(c.logg.WithField(ctx, "decline_code", decline.Code), "square.card_declined")
		return
	}
	c.logg.Error(ctx, "square.payment_failed", err)
}

// transient reports failures worth another attempt with the same key.
func transient(err error) bool {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
}

func mapSquareError(err error) error {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "square request failed")
	}
	code := codeForStatus(apiErr.StatusCode)
	for _, e := range squareErrors(apiErr) {
		switch {
		case string(e.Category) == categoryPaymentMethod:
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, &DeclineError{Code: string(e.Code), Detail: deref(e.Detail)}, "card declined").
				WithDetails(map[string]any{"decline_code": string(e.Code)})
		case string(e.Code) == codeIdempotencyReused:
			code = pkgerrors.CodeIdempotency
		case string(e.Category) == categoryAuth, string(e.Category) == categoryRateLimit:
			code = pkgerrors.CodeDependency
		}
	}
	return pkgerrors.Wrap(code, err, "square request failed")
}

// squareErrors decodes the {"errors":[...]} body carried by an APIError.
func squareErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &body); err != nil {
		return nil
	}
	out := body.Errors[:0]
	for _, e := range body.Errors {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// codeForStatus maps Square's HTTP status onto storefront codes. Square's own
// credentials failing is our dependency problem, never the caller's.
func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusConflict:
		return pkgerrors.CodeConflict
	case status == http.StatusPaymentRequired, status == http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	case status == http.StatusBadRequest:
		return pkgerrors.CodeValidation
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return pkgerrors.CodeDependency
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return pkgerrors.CodeDependency
	case status >= 400:
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}
