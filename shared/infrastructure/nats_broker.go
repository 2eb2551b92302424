package infrastructure

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/draftea/order-saga/shared/events"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	natsStreamName        = "SAGA"
	natsSubjectPrefix     = "saga."
	natsDeadLetterSubject = natsSubjectPrefix + "DEAD_LETTER"
	natsFetchBatch        = 10
	natsFetchWait         = 5 * time.Second
	natsAckWait           = 30 * time.Second
)

func natsSubject(topic events.Topic) string {
	return natsSubjectPrefix + topic.String()
}

// NATSBroker is the JetStream Message Channel: one file-backed stream for every channel,
// one durable pull consumer per consumer group.
type NATSBroker struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	group  string
	logger *zap.Logger

	workers    int
	maxDeliver int
	archive    events.DeadLetterSink

	mu     sync.Mutex
	cancel []context.CancelFunc
	wg     sync.WaitGroup
}

var _ Broker = (*NATSBroker)(nil)

// NewNATSBroker connects to the NATS server at cfg.URL
func NewNATSBroker(cfg BrokerConfig, logger *zap.Logger) (*NATSBroker, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url,
		nats.Name("order-saga-"+cfg.Group),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected from NATS", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected to NATS", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to NATS")
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to open JetStream context")
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	maxDeliver := cfg.MaxReceiveCount
	if maxDeliver <= 0 {
		maxDeliver = defaultMaxReceiveCount
	}

	return &NATSBroker{
		conn:       conn,
		js:         js,
		group:      cfg.Group,
		logger:     logger,
		workers:    workers,
		maxDeliver: maxDeliver,
		archive:    cfg.Archive,
	}, nil
}

// DeclareTopology creates the stream and every durable consumer when missing
func (b *NATSBroker) DeclareTopology(ctx context.Context) error {
	subjects := []string{natsSubjectPrefix + ">"}

	if _, err := b.js.StreamInfo(natsStreamName, nats.Context(ctx)); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return errors.Wrap(err, "failed to look up stream")
		}
		_, err = b.js.AddStream(&nats.StreamConfig{
			Name:     natsStreamName,
			Subjects: subjects,
			Storage:  nats.FileStorage,
		}, nats.Context(ctx))
		if err != nil {
			return errors.Wrap(err, "failed to create stream")
		}
	}

	for _, binding := range events.Bindings {
		durable := binding.QueueName()
		if _, err := b.js.ConsumerInfo(natsStreamName, durable, nats.Context(ctx)); err == nil {
			continue
		} else if !errors.Is(err, nats.ErrConsumerNotFound) {
			return errors.Wrapf(err, "failed to look up consumer %s", durable)
		}

		_, err := b.js.AddConsumer(natsStreamName, &nats.ConsumerConfig{
			Durable:       durable,
			FilterSubject: natsSubject(binding.Topic),
			AckPolicy:     nats.AckExplicitPolicy,
			AckWait:       natsAckWait,
			MaxDeliver:    b.maxDeliver,
			DeliverPolicy: nats.DeliverAllPolicy,
		}, nats.Context(ctx))
		if err != nil {
			return errors.Wrapf(err, "failed to create consumer %s", durable)
		}
	}

	b.logger.Info("JetStream topology declared", zap.String("stream", natsStreamName))
	return nil
}

// Publish waits for the JetStream acknowledgment of every event. The event id is used as the
// message id so a retried publish is deduplicated by the server.
func (b *NATSBroker) Publish(ctx context.Context, evts ...*events.Event) error {
	for _, event := range evts {
		payload, err := event.MarshalPayload()
		if err != nil {
			return errors.Wrap(err, "failed to marshal payload")
		}

		msg := nats.NewMsg(natsSubject(event.Topic))
		msg.Data = payload
		for k, v := range event.Attributes() {
			msg.Header.Set(k, v)
		}

		if _, err := b.js.PublishMsg(msg, nats.MsgId(event.ID.String()), nats.Context(ctx)); err != nil {
			return errors.Wrapf(err, "failed to publish %s", event.Topic)
		}
	}
	return nil
}

// Subscribe starts pull workers on the group's durable consumer for topic
func (b *NATSBroker) Subscribe(ctx context.Context, topic events.Topic, handler events.EventHandler) error {
	binding := events.Binding{Topic: topic, Group: b.group}
	durable := binding.QueueName()

	sub, err := b.js.PullSubscribe(natsSubject(topic), durable, nats.Bind(natsStreamName, durable))
	if err != nil {
		return errors.Wrapf(err, "failed to bind consumer %s", durable)
	}

	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = append(b.cancel, cancel)
	b.mu.Unlock()

	logger := b.logger.With(zap.String("queue", durable))
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.consume(ctx, sub, binding, handler, logger)
		}()
	}
	return nil
}

func (b *NATSBroker) consume(ctx context.Context, sub *nats.Subscription, binding events.Binding, handler events.EventHandler, logger *zap.Logger) {
	for ctx.Err() == nil {
		fetchCtx, cancel := context.WithTimeout(ctx, natsFetchWait)
		msgs, err := sub.Fetch(natsFetchBatch, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, nats.ErrTimeout) {
				logger.Warn("failed to fetch messages", zap.Error(err))
				sleep(ctx, time.Second)
			}
			continue
		}

		for _, msg := range msgs {
			b.process(ctx, msg, binding, handler, logger)
		}
	}
}

func (b *NATSBroker) process(ctx context.Context, msg *nats.Msg, binding events.Binding, handler events.EventHandler, logger *zap.Logger) {
	attrs := make(events.Metadata)
	for k := range msg.Header {
		// server headers such as Nats-Msg-Id must not follow the body into the dead-letter subject
		if strings.HasPrefix(k, "Nats-") {
			continue
		}
		attrs.Set(k, msg.Header.Get(k))
	}
	delivered := 1
	if meta, err := msg.Metadata(); err == nil {
		delivered = int(meta.NumDelivered)
	}
	attrs.Set(events.MetadataAttempt, strconv.Itoa(delivered))

	event := events.FromDelivery(binding.Topic, msg.Data, attrs)
	err := handler.Handle(ctx, event)

	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			logger.Error("failed to ack message", zap.String("event_id", event.ID.String()), zap.Error(ackErr))
		}
	case events.IsPoison(err) || delivered >= b.maxDeliver:
		logger.Error("dead-lettering message",
			zap.String("event_id", event.ID.String()),
			zap.Int("attempts", delivered),
			zap.Error(err))
		sink := events.DeadLetterSinks(b, b.archive)
		if dlErr := sink.DeadLetter(ctx, &events.DeadLetter{
			Queue:     binding.QueueName(),
			Topic:     binding.Topic,
			Body:      msg.Data,
			Reason:    err.Error(),
			Metadata:  attrs,
			Timestamp: time.Now(),
		}); dlErr != nil {
			logger.Error("failed to dead-letter message", zap.Error(dlErr))
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	default:
		logger.Warn("handler failed, message will be redelivered",
			zap.String("event_id", event.ID.String()),
			zap.Int("attempts", delivered),
			zap.Error(err))
		_ = msg.Nak()
	}
}

// DeadLetter publishes the message to the dead-letter subject inside the saga stream
func (b *NATSBroker) DeadLetter(ctx context.Context, letter *events.DeadLetter) error {
	msg := nats.NewMsg(natsDeadLetterSubject)
	msg.Data = letter.Body
	for k, v := range letter.Metadata {
		msg.Header.Set(k, v)
	}
	msg.Header.Set("source_queue", letter.Queue)
	msg.Header.Set("reason", letter.Reason)

	if _, err := b.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return errors.Wrap(err, "failed to publish dead letter")
	}
	return nil
}

// Close stops the workers and drains the connection
func (b *NATSBroker) Close() error {
	b.mu.Lock()
	for _, cancel := range b.cancel {
		cancel()
	}
	b.cancel = nil
	b.mu.Unlock()

	b.wg.Wait()
	if err := b.conn.Drain(); err != nil {
		return errors.Wrap(err, "failed to drain NATS connection")
	}
	return nil
}
