package gatewaywebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/settlement"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Gateway-Signature"

// Event is the payment notification posted by the gateway.
type Event struct {
	EventID          string           `json:"event_id"`
	Result           string           `json:"result"`
	ResultCode       string           `json:"result_code"`
	CustomParameters CustomParameters `json:"custom_parameters"`
	Reference        string           `json:"reference"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
}

// CustomParameters echo the identifiers attached when the checkout was opened.
type CustomParameters struct {
	TenantID string `json:"tenant_id"`
	OrderID  string `json:"order_id"`
}

// ParseEvent decodes a raw webhook body.
func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode gateway event")
	}
	event.EventID = strings.TrimSpace(event.EventID)
	if event.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event_id is required")
	}
	return &event, nil
}

// GatewayResult normalizes the event into the settlement input.
func (e *Event) GatewayResult() (settlement.GatewayResult, error) {
	result, err := enums.ParseGatewayResult(e.Result)
	if err != nil {
		return settlement.GatewayResult{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid result")
	}
	tenantID, err := uuid.Parse(strings.TrimSpace(e.CustomParameters.TenantID))
	if err != nil {
		return settlement.GatewayResult{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tenant_id")
	}
	orderID, err := uuid.Parse(strings.TrimSpace(e.CustomParameters.OrderID))
	if err != nil {
		return settlement.GatewayResult{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order_id")
	}
	return settlement.GatewayResult{
		TenantID:   tenantID,
		OrderID:    orderID,
		Result:     result,
		ResultCode: strings.TrimSpace(e.ResultCode),
		Reference:  strings.TrimSpace(e.Reference),
		Amount:     e.Amount,
	}, nil
}

// ValidSignature checks header against the HMAC of payload. A "sha256="
// prefix on the header is accepted.
func ValidSignature(payload []byte, secret, header string) bool {
	header = strings.TrimPrefix(strings.TrimSpace(header), "sha256=")
	if header == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(strings.ToLower(header)))
}

// Sign returns the hex signature for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
