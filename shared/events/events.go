package events

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/draftea/order-saga/shared/models"
	"github.com/pkg/errors"
)

var (
	ErrInvalidTopic    = errors.New("invalid topic")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrInvalidReceiver = errors.New("receiver should be a pointer")
)

// Topic represents a saga channel with pattern matching support
type Topic string

// Saga channels
const (
	OrderCreated      Topic = "ORDER_CREATED"
	InventoryReserved Topic = "INVENTORY_RESERVED"
	PaymentSuccess    Topic = "PAYMENT_SUCCESS"
	PaymentFailed     Topic = "PAYMENT_FAILED"
	// InventoryRefunded is advisory; nothing consumes it
	InventoryRefunded Topic = "INVENTORY_REFUNDED"
)

// Consumer groups, one per participant reading a channel
const (
	GroupOrder     = "order"
	GroupInventory = "inventory"
	GroupPayment   = "payment"
)

// AllTopics lists every channel that has to exist on the broker
var AllTopics = []Topic{OrderCreated, InventoryReserved, PaymentSuccess, PaymentFailed, InventoryRefunded}

// Binding is a durable queue owned by one consumer group for one channel
type Binding struct {
	Topic Topic
	Group string
}

// QueueName returns the broker-side queue name, e.g. PAYMENT_FAILED-inventory
func (b Binding) QueueName() string {
	return b.Topic.String() + "-" + b.Group
}

// Bindings enumerates the fan-out: PAYMENT_FAILED is bound twice, so the order and
// inventory participants each get their own copy instead of competing for one.
var Bindings = []Binding{
	{Topic: OrderCreated, Group: GroupInventory},
	{Topic: InventoryReserved, Group: GroupPayment},
	{Topic: PaymentSuccess, Group: GroupOrder},
	{Topic: PaymentFailed, Group: GroupOrder},
	{Topic: PaymentFailed, Group: GroupInventory},
}

// DeadLetterQueueName receives messages that exhausted their retries or could not be decoded
const DeadLetterQueueName = "SAGA_DEAD_LETTER"

func (t Topic) Matches(pattern Topic) bool {
	topicStr := t.String()
	patternStr := pattern.String()

	if strings.HasPrefix(patternStr, "#") && strings.HasSuffix(patternStr, "#") && len(patternStr) > 1 {
		return strings.Contains(
			topicStr,
			strings.TrimSuffix(strings.TrimPrefix(patternStr, "#"), "#"),
		)
	}

	if strings.HasPrefix(patternStr, "#") {
		return strings.HasSuffix(
			topicStr,
			strings.TrimPrefix(patternStr, "#"),
		)
	}

	if strings.HasSuffix(patternStr, "#") {
		return strings.HasPrefix(
			topicStr,
			strings.TrimSuffix(patternStr, "#"),
		)
	}

	return topicStr == patternStr
}

func (t Topic) String() string {
	return string(t)
}

// Metadata represents event metadata
type Metadata map[string]string

func (m Metadata) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m Metadata) Set(key string, value string) {
	m[key] = value
}

func (m Metadata) Clone() Metadata {
	clone := Metadata{}
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// Metadata keys carried as broker message attributes
const (
	MetadataEventID       = "event_id"
	MetadataTopic         = "topic"
	MetadataCorrelationID = "correlation_id"
	MetadataAttempt       = "attempt"
)

// Event is a saga message. The broker body is the encoded Data; the remaining
// fields travel as message attributes.
type Event struct {
	ID            models.ID   `json:"id"`
	AggregateID   models.ID   `json:"aggregate_id"`
	Topic         Topic       `json:"topic"`
	Data          interface{} `json:"data"`
	Metadata      Metadata    `json:"metadata"`
	Timestamp     time.Time   `json:"timestamp"`
	CorrelationID models.ID   `json:"correlation_id"`
}

// Publisher publishes events
type Publisher interface {
	Publish(ctx context.Context, events ...*Event) error
}

// Subscriber consumes one channel on behalf of the consumer group it was built for.
// A nil handler result acknowledges the message; any other result leaves it for redelivery,
// except errors wrapping ErrInvalidPayload which are dead-lettered and acknowledged.
type Subscriber interface {
	Subscribe(ctx context.Context, topic Topic, handler EventHandler) error
}

// EventHandler handles saga messages
type EventHandler interface {
	Handle(ctx context.Context, event *Event) error
}

// EventHandlerFunc adapts a function to EventHandler
type EventHandlerFunc func(ctx context.Context, event *Event) error

func (f EventHandlerFunc) Handle(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// DeadLetter is a message taken out of circulation
type DeadLetter struct {
	Queue     string    `json:"queue"`
	Topic     Topic     `json:"topic"`
	Body      []byte    `json:"body"`
	Reason    string    `json:"reason"`
	Metadata  Metadata  `json:"metadata"`
	Timestamp time.Time `json:"timestamp"`
}

// DeadLetterSink stores poison messages for later inspection
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, letter *DeadLetter) error
}

// DeadLetterSinks records every dead letter in each non-nil sink, in order
func DeadLetterSinks(sinks ...DeadLetterSink) DeadLetterSink {
	var active multiSink
	for _, sink := range sinks {
		if sink != nil {
			active = append(active, sink)
		}
	}
	return active
}

type multiSink []DeadLetterSink

func (m multiSink) DeadLetter(ctx context.Context, letter *DeadLetter) error {
	for _, sink := range m {
		if err := sink.DeadLetter(ctx, letter); err != nil {
			return err
		}
	}
	return nil
}

// IsPoison reports whether a handler error means the message can never succeed
func IsPoison(err error) bool {
	return errors.Is(err, ErrInvalidPayload)
}

// NewEventWithTopic creates a new saga event on the given channel
func NewEventWithTopic(aggregateID models.ID, topic Topic, data interface{}) *Event {
	return &Event{
		ID:          models.GenerateUUID(),
		AggregateID: aggregateID,
		Topic:       topic,
		Data:        data,
		Metadata:    make(Metadata),
		Timestamp:   time.Now(),
	}
}

// NewOrderEvent wraps an order snapshot for the given channel, correlated by order id
func NewOrderEvent(topic Topic, order models.OrderSnapshot) *Event {
	return NewEventWithTopic(order.ID, topic, order).WithCorrelationID(order.ID)
}

// WithCorrelationID sets correlation ID
func (e *Event) WithCorrelationID(correlationID models.ID) *Event {
	e.CorrelationID = correlationID
	return e
}

// Attributes returns the envelope fields that travel next to the body
func (e *Event) Attributes() Metadata {
	attrs := e.Metadata.Clone()
	attrs.Set(MetadataEventID, e.ID.String())
	attrs.Set(MetadataTopic, e.Topic.String())
	if e.CorrelationID != "" {
		attrs.Set(MetadataCorrelationID, e.CorrelationID.String())
	}
	return attrs
}

// FromDelivery rebuilds an event from a broker body and its attributes
func FromDelivery(topic Topic, body []byte, attrs Metadata) *Event {
	if attrs == nil {
		attrs = make(Metadata)
	}
	event := &Event{
		Topic:     topic,
		Data:      json.RawMessage(body),
		Metadata:  attrs,
		Timestamp: time.Now(),
	}
	if id, ok := attrs.Get(MetadataEventID); ok {
		event.ID = models.ID(id)
	}
	if id, ok := attrs.Get(MetadataCorrelationID); ok {
		event.CorrelationID = models.ID(id)
		event.AggregateID = models.ID(id)
	}
	return event
}

// MarshalPayload marshals the event payload
func (e *Event) MarshalPayload() (json.RawMessage, error) {
	if b, ok := e.Data.([]byte); ok {
		return b, nil
	}

	if b, ok := e.Data.(json.RawMessage); ok {
		return b, nil
	}

	return json.Marshal(e.Data)
}

// UnmarshalPayload unmarshals the event payload into the given interface
func (e *Event) UnmarshalPayload(v interface{}) error {
	vValue := reflect.ValueOf(v)
	if vValue.Kind() != reflect.Ptr {
		return ErrInvalidReceiver
	}

	vValue = vValue.Elem()
	payloadValue := reflect.ValueOf(e.Data)
	if payloadValue.IsValid() && vValue.Type() == payloadValue.Type() {
		vValue.Set(payloadValue)
		return nil
	}

	if b, ok := e.Data.([]byte); ok {
		return json.Unmarshal(b, v)
	}

	if b, ok := e.Data.(json.RawMessage); ok {
		return json.Unmarshal([]byte(b), v)
	}

	raw, err := e.MarshalPayload()
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, v)
}

// DecodeOrder extracts and validates the order snapshot. Failures wrap ErrInvalidPayload.
func (e *Event) DecodeOrder() (models.OrderSnapshot, error) {
	var order models.OrderSnapshot
	if err := e.UnmarshalPayload(&order); err != nil {
		return models.OrderSnapshot{}, errors.Wrapf(ErrInvalidPayload, "decode %s body: %v", e.Topic, err)
	}
	if err := order.Validate(); err != nil {
		return models.OrderSnapshot{}, errors.Wrapf(ErrInvalidPayload, "%s body: %v", e.Topic, err)
	}
	return order, nil
}

// Clone creates a copy of the event
func (e *Event) Clone() *Event {
	return &Event{
		ID:            e.ID,
		AggregateID:   e.AggregateID,
		Topic:         e.Topic,
		Data:          e.Data,
		Metadata:      e.Metadata.Clone(),
		Timestamp:     e.Timestamp,
		CorrelationID: e.CorrelationID,
	}
}
