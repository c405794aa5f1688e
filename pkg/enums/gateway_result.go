package enums

import (
	"fmt"
	"strings"
)

// GatewayResult is the tri-state outcome reported by the payment gateway.
type GatewayResult string

const (
	GatewayResultSuccess GatewayResult = "success"
	GatewayResultPending GatewayResult = "pending"
	GatewayResultFailed  GatewayResult = "failed"
)

var validGatewayResults = []GatewayResult{
	GatewayResultSuccess,
	GatewayResultPending,
	GatewayResultFailed,
}

// String implements fmt.Stringer.
func (g GatewayResult) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GatewayResult.
func (g GatewayResult) IsValid() bool {
	for _, candidate := range validGatewayResults {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGatewayResult converts raw input into a GatewayResult. Matching is
// case-insensitive since gateways are inconsistent about casing.
func ParseGatewayResult(value string) (GatewayResult, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validGatewayResults {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gateway result %q", value)
}
