package infrastructure

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/draftea/order-saga/shared/events"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultMemoryMaxDeliveries = 5

type memoryDelivery struct {
	topic    events.Topic
	body     []byte
	attrs    events.Metadata
	attempts int
}

type memoryQueue struct {
	name     string
	topic    events.Topic
	messages chan *memoryDelivery
}

// MemoryBroker is an in-process Message Channel with the same fan-out, acknowledgment and
// dead-letter behaviour as the broker-backed drivers. Queues live for the process lifetime.
type MemoryBroker struct {
	mu            sync.RWMutex
	queues        map[string]*memoryQueue
	bindings      map[events.Topic][]*memoryQueue
	deadLetters   []*events.DeadLetter
	maxDeliveries int
	logger        *zap.Logger
}

var (
	sharedMemoryBroker     *MemoryBroker
	sharedMemoryBrokerOnce sync.Once
)

// SharedMemoryBroker returns the process-wide broker used by the memory driver
func SharedMemoryBroker() *MemoryBroker {
	sharedMemoryBrokerOnce.Do(func() {
		sharedMemoryBroker = NewMemoryBroker(zap.NewNop(), defaultMemoryMaxDeliveries)
	})
	return sharedMemoryBroker
}

// NewMemoryBroker creates an empty broker; messages failing maxDeliveries times are dead-lettered
func NewMemoryBroker(logger *zap.Logger, maxDeliveries int) *MemoryBroker {
	if maxDeliveries <= 0 {
		maxDeliveries = defaultMemoryMaxDeliveries
	}
	return &MemoryBroker{
		queues:        make(map[string]*memoryQueue),
		bindings:      make(map[events.Topic][]*memoryQueue),
		maxDeliveries: maxDeliveries,
		logger:        logger,
	}
}

// Bind declares a durable queue for the consumer group on the topic. Repeated calls are no-ops.
func (b *MemoryBroker) Bind(binding events.Binding) {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := binding.QueueName()
	if _, exists := b.queues[name]; exists {
		return
	}

	queue := &memoryQueue{
		name:     name,
		topic:    binding.Topic,
		messages: make(chan *memoryDelivery, 1024),
	}
	b.queues[name] = queue
	b.bindings[binding.Topic] = append(b.bindings[binding.Topic], queue)
}

// DeclareTopology binds every saga queue
func (b *MemoryBroker) DeclareTopology(ctx context.Context) error {
	for _, binding := range events.Bindings {
		b.Bind(binding)
	}
	return nil
}

// Publish copies each event into every queue bound to its topic
func (b *MemoryBroker) Publish(ctx context.Context, evts ...*events.Event) error {
	for _, event := range evts {
		body, err := event.MarshalPayload()
		if err != nil {
			return errors.Wrap(err, "failed to marshal payload")
		}

		b.mu.RLock()
		queues := b.bindings[event.Topic]
		b.mu.RUnlock()

		for _, queue := range queues {
			delivery := &memoryDelivery{
				topic: event.Topic,
				body:  append([]byte(nil), body...),
				attrs: event.Attributes(),
			}
			select {
			case queue.messages <- delivery:
			case <-ctx.Done():
				return errors.Wrapf(ctx.Err(), "failed to enqueue on %s", queue.name)
			}
		}
	}
	return nil
}

// DeadLetter implements events.DeadLetterSink
func (b *MemoryBroker) DeadLetter(ctx context.Context, letter *events.DeadLetter) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deadLetters = append(b.deadLetters, letter)
	return nil
}

// DeadLetters returns a copy of the dead-lettered messages
func (b *MemoryBroker) DeadLetters() []*events.DeadLetter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*events.DeadLetter(nil), b.deadLetters...)
}

// Pending returns the number of messages waiting in a queue
func (b *MemoryBroker) Pending(binding events.Binding) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	queue, ok := b.queues[binding.QueueName()]
	if !ok {
		return 0
	}
	return len(queue.messages)
}

// ForGroup returns the view of the broker used by one participant. It starts with the
// broker's delivery limit and logger.
func (b *MemoryBroker) ForGroup(group string) *MemoryGroupBroker {
	return &MemoryGroupBroker{
		broker:        b,
		group:         group,
		workers:       4,
		maxDeliveries: b.maxDeliveries,
		logger:        b.logger,
	}
}

// MemoryGroupBroker publishes to the shared broker and consumes the group's queues
type MemoryGroupBroker struct {
	broker        *MemoryBroker
	group         string
	workers       int
	maxDeliveries int
	logger        *zap.Logger
	archive       events.DeadLetterSink

	mu     sync.Mutex
	cancel []context.CancelFunc
	wg     sync.WaitGroup
}

var _ Broker = (*MemoryGroupBroker)(nil)

// WithWorkers sets the number of concurrent handlers per subscription
func (g *MemoryGroupBroker) WithWorkers(workers int) *MemoryGroupBroker {
	if workers > 0 {
		g.workers = workers
	}
	return g
}

// WithMaxDeliveries dead-letters a message once the group's handler failed it n times
func (g *MemoryGroupBroker) WithMaxDeliveries(n int) *MemoryGroupBroker {
	if n > 0 {
		g.maxDeliveries = n
	}
	return g
}

// WithLogger sets the logger used for the group's redelivery and dead-letter records
func (g *MemoryGroupBroker) WithLogger(logger *zap.Logger) *MemoryGroupBroker {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// WithArchive records dead letters in sink as well as on the broker
func (g *MemoryGroupBroker) WithArchive(sink events.DeadLetterSink) *MemoryGroupBroker {
	g.archive = sink
	return g
}

func (g *MemoryGroupBroker) Publish(ctx context.Context, evts ...*events.Event) error {
	return g.broker.Publish(ctx, evts...)
}

func (g *MemoryGroupBroker) DeclareTopology(ctx context.Context) error {
	return g.broker.DeclareTopology(ctx)
}

// Subscribe starts workers on the group's queue for topic
func (g *MemoryGroupBroker) Subscribe(ctx context.Context, topic events.Topic, handler events.EventHandler) error {
	binding := events.Binding{Topic: topic, Group: g.group}

	g.broker.mu.RLock()
	queue, ok := g.broker.queues[binding.QueueName()]
	g.broker.mu.RUnlock()
	if !ok {
		return errors.Errorf("queue %s is not declared", binding.QueueName())
	}

	ctx, cancel := context.WithCancel(ctx)
	g.mu.Lock()
	g.cancel = append(g.cancel, cancel)
	g.mu.Unlock()

	for i := 0; i < g.workers; i++ {
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.consume(ctx, queue, handler)
		}()
	}
	return nil
}

func (g *MemoryGroupBroker) consume(ctx context.Context, queue *memoryQueue, handler events.EventHandler) {
	logger := g.logger.With(zap.String("queue", queue.name))
	for {
		select {
		case <-ctx.Done():
			return
		case delivery := <-queue.messages:
			delivery.attempts++
			attrs := delivery.attrs.Clone()
			attrs.Set(events.MetadataAttempt, strconv.Itoa(delivery.attempts))
			event := events.FromDelivery(delivery.topic, delivery.body, attrs)

			err := handler.Handle(ctx, event)
			switch {
			case err == nil:
				// acknowledged
			case events.IsPoison(err) || delivery.attempts >= g.maxDeliveries:
				logger.Error("dead-lettering message",
					zap.String("event_id", event.ID.String()),
					zap.Int("attempts", delivery.attempts),
					zap.Error(err))
				sink := events.DeadLetterSinks(g.broker, g.archive)
				if dlErr := sink.DeadLetter(ctx, &events.DeadLetter{
					Queue:     queue.name,
					Topic:     delivery.topic,
					Body:      delivery.body,
					Reason:    err.Error(),
					Metadata:  attrs,
					Timestamp: time.Now(),
				}); dlErr != nil {
					logger.Error("failed to archive dead letter", zap.Error(dlErr))
				}
			default:
				logger.Warn("handler failed, message will be redelivered",
					zap.String("event_id", event.ID.String()),
					zap.Int("attempts", delivery.attempts),
					zap.Error(err))
				g.requeue(ctx, queue, delivery)
			}
		}
	}
}

func (g *MemoryGroupBroker) requeue(ctx context.Context, queue *memoryQueue, delivery *memoryDelivery) {
	select {
	case queue.messages <- delivery:
	default:
		go func() {
			select {
			case queue.messages <- delivery:
			case <-ctx.Done():
			}
		}()
	}
}

// Close stops the group's workers; queued messages stay on the broker
func (g *MemoryGroupBroker) Close() error {
	g.mu.Lock()
	for _, cancel := range g.cancel {
		cancel()
	}
	g.cancel = nil
	g.mu.Unlock()

	g.wg.Wait()
	return nil
}
