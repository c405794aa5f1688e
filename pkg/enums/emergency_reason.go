package enums

import "fmt"

// EmergencyReason explains why a product landed on the emergency watch-list.
type EmergencyReason string

const (
	EmergencyReasonCostExceedsPrice EmergencyReason = "cost_exceeds_price"
	EmergencyReasonMarkedNeeded     EmergencyReason = "marked_needed"
	EmergencyReasonRefundReturned   EmergencyReason = "refund_returned"
)

var validEmergencyReasons = []EmergencyReason{
	EmergencyReasonCostExceedsPrice,
	EmergencyReasonMarkedNeeded,
	EmergencyReasonRefundReturned,
}

// String implements fmt.Stringer.
func (r EmergencyReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known EmergencyReason.
func (r EmergencyReason) IsValid() bool {
	for _, candidate := range validEmergencyReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseEmergencyReason converts raw input into an EmergencyReason.
func ParseEmergencyReason(value string) (EmergencyReason, error) {
	for _, candidate := range validEmergencyReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid emergency reason %q", value)
}
