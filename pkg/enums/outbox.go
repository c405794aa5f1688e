package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder  OutboxAggregateType = "order"
	AggregateWallet OutboxAggregateType = "wallet"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateWallet,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event recorded in the outbox.
type OutboxEventType string

const (
	EventOrderCreated      OutboxEventType = "order_created"
	EventOrderApproved     OutboxEventType = "order_approved"
	EventOrderDelivered    OutboxEventType = "order_delivered"
	EventOrderCancelled    OutboxEventType = "order_cancelled"
	EventOrderRejected     OutboxEventType = "order_rejected"
	EventOrderRefunded     OutboxEventType = "order_refunded"
	EventPaymentSettled    OutboxEventType = "payment_settled"
	EventPaymentFailed     OutboxEventType = "payment_failed"
	EventFulfillmentFailed OutboxEventType = "fulfillment_failed"
	EventWalletToppedUp    OutboxEventType = "wallet_topped_up"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderApproved,
	EventOrderDelivered,
	EventOrderCancelled,
	EventOrderRejected,
	EventOrderRefunded,
	EventPaymentSettled,
	EventPaymentFailed,
	EventFulfillmentFailed,
	EventWalletToppedUp,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason records why the publisher dead-lettered a row.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
