package enums

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregatePayment      OutboxAggregateType = "payment"
	AggregateNotification OutboxAggregateType = "notification"
)

var aggregateTypes = newValueSet("aggregate type",
	AggregateOrder,
	AggregatePayment,
	AggregateNotification,
)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.contains(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value)
}

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderStatusChanged    OutboxEventType = "order_status_changed"
	EventOrderCanceled         OutboxEventType = "order_canceled"
	EventOrderExpired          OutboxEventType = "order_expired"
	EventPaymentInitiated      OutboxEventType = "payment_initiated"
	EventPaymentSettled        OutboxEventType = "payment_settled"
	EventPaymentFailed         OutboxEventType = "payment_failed"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var eventTypes = newValueSet("event type",
	EventOrderCreated,
	EventOrderStatusChanged,
	EventOrderCanceled,
	EventOrderExpired,
	EventPaymentInitiated,
	EventPaymentSettled,
	EventPaymentFailed,
	EventNotificationRequested,
)

func (e OutboxEventType) IsValid() bool { return eventTypes.contains(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse(value)
}

// OutboxDLQErrorReason records why a row left the relay for the dead-letter table.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = newValueSet("dlq reason", OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable)

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.contains(r) }
