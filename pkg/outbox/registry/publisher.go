package registry

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
	"github.com/angelmondragon/settlement-engine/pkg/outbox/payloads"
)

// EventDescriptor is what the relay needs to know about one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

// ResolvedEvent is an outbox row after its envelope and body were decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a failure that will not go away on retry; the
// relay dead-letters the row immediately.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func permanent(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

type topicKind int

const (
	ordersTopic topicKind = iota
	paymentsTopic
	notificationTopic
)

type eventDef struct {
	event     enums.OutboxEventType
	aggregate enums.OutboxAggregateType
	topic     topicKind
	body      func() any
}

func payload[T any]() func() any {
	return func() any { return new(T) }
}

// catalog lists every event the relay will publish.
var catalog = []eventDef{
	{enums.EventOrderCreated, enums.AggregateOrder, ordersTopic, payload[payloads.OrderCreatedEvent]()},
	{enums.EventOrderStatusChanged, enums.AggregateOrder, ordersTopic, payload[payloads.OrderStatusChangedEvent]()},
	{enums.EventOrderCanceled, enums.AggregateOrder, ordersTopic, payload[payloads.OrderCanceledEvent]()},
	{enums.EventOrderExpired, enums.AggregateOrder, ordersTopic, payload[payloads.OrderExpiredEvent]()},
	{enums.EventPaymentInitiated, enums.AggregatePayment, paymentsTopic, payload[payloads.PaymentInitiatedEvent]()},
	{enums.EventPaymentSettled, enums.AggregatePayment, paymentsTopic, payload[payloads.PaymentSettledEvent]()},
	{enums.EventPaymentFailed, enums.AggregatePayment, paymentsTopic, payload[payloads.PaymentFailedEvent]()},
	{enums.EventNotificationRequested, enums.AggregateNotification, notificationTopic, payload[payloads.NotificationRequestedEvent]()},
}

// EventRegistry resolves outbox rows against the catalog.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry binds the catalog to the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topics := map[topicKind]string{
		ordersTopic:       cfg.OrdersTopic,
		paymentsTopic:     cfg.PaymentsTopic,
		notificationTopic: cfg.NotificationTopic,
	}
	names := map[topicKind]string{
		ordersTopic:       "orders",
		paymentsTopic:     "payments",
		notificationTopic: "notification",
	}
	for kind, topic := range topics {
		if topic == "" {
			return nil, fmt.Errorf("%s topic is required", names[kind])
		}
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(catalog))}
	for _, def := range catalog {
		reg.entries[def.event] = EventDescriptor{
			EventType:     def.event,
			AggregateType: def.aggregate,
			Topic:         topics[def.topic],
			newPayload:    def.body,
		}
	}
	return reg, nil
}

// Descriptor looks up the registered descriptor for eventType.
func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve checks the row against its descriptor and decodes the body. Every
// error it returns is a NonRetryableError.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[row.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", row.EventType)
	case desc.AggregateType != row.AggregateType:
		return nil, permanent("event %s belongs to %s, row says %s", row.EventType, desc.AggregateType, row.AggregateType)
	case row.AggregateID == uuid.Nil:
		return nil, permanent("event %s has no aggregate id", row.EventType)
	}

	env, err := outbox.DecodeEnvelope(row.Payload)
	if err != nil {
		return nil, NonRetryableError{Err: fmt.Errorf("event %s: %w", row.EventType, err)}
	}
	if env.EventType == "" {
		env.EventType = string(row.EventType)
	}
	body := desc.newPayload()
	if err := env.DecodeData(body); err != nil {
		return nil, NonRetryableError{Err: err}
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: body}, nil
}

// IsNonRetryable reports whether err carries a NonRetryableError.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}
