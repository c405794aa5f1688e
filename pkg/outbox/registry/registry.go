// Package registry maps outbox event types to their topic and payload schema
// and decodes rows for publishing.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// EventDescriptor routes one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() payloads.Keyed
}

// ResolvedEvent is a decoded outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    payloads.Keyed
}

// NonRetryableError marks a row that can never publish as stored. The
// publisher dead-letters it instead of retrying.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func schema[T any, P interface {
	*T
	payloads.Keyed
}]() func() payloads.Keyed {
	return func() payloads.Keyed { return P(new(T)) }
}

// NewEventRegistry routes every order and wallet event to the orders topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	statusChanged := schema[payloads.OrderStatusChangedEvent]()
	payment := schema[payloads.PaymentEvent]()

	table := []struct {
		event     enums.OutboxEventType
		aggregate enums.OutboxAggregateType
		payload   func() payloads.Keyed
	}{
		{enums.EventOrderCreated, enums.AggregateOrder, schema[payloads.OrderCreatedEvent]()},
		{enums.EventOrderApproved, enums.AggregateOrder, statusChanged},
		{enums.EventOrderDelivered, enums.AggregateOrder, statusChanged},
		{enums.EventOrderCancelled, enums.AggregateOrder, statusChanged},
		{enums.EventOrderRejected, enums.AggregateOrder, statusChanged},
		{enums.EventOrderRefunded, enums.AggregateOrder, statusChanged},
		{enums.EventPaymentSettled, enums.AggregateOrder, payment},
		{enums.EventPaymentFailed, enums.AggregateOrder, payment},
		{enums.EventFulfillmentFailed, enums.AggregateOrder, schema[payloads.FulfillmentFailedEvent]()},
		{enums.EventWalletToppedUp, enums.AggregateWallet, schema[payloads.WalletToppedUpEvent]()},
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(table))}
	for _, row := range table {
		reg.entries[row.event] = EventDescriptor{
			EventType:     row.event,
			AggregateType: row.aggregate,
			Topic:         cfg.OrdersTopic,
			newPayload:    row.payload,
		}
	}
	return reg, nil
}

// Resolve decodes the row's envelope and typed payload. Every failure is
// non-retryable: the stored bytes will not change between attempts.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, nonRetryable("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, nonRetryable("missing aggregate_id")
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, nonRetryable("%s: %w", event.EventType, err)
	}

	payload := desc.newPayload()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	if key := payload.AggregateKey(); key != event.AggregateID {
		return nil, nonRetryable("%s payload describes %s, row is %s", event.EventType, key, event.AggregateID)
	}
	if envelope.Actor != nil && envelope.Actor.TenantID != uuid.Nil && envelope.Actor.TenantID != payload.Tenant() {
		return nil, nonRetryable("%s actor tenant %s does not match payload tenant %s", event.EventType, envelope.Actor.TenantID, payload.Tenant())
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
