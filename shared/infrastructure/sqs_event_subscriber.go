package infrastructure

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/draftea/order-saga/shared/events"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	SQSMessageIDKey     = "sqs_message_id"
	SQSReceiveCountKey  = "sqs_receive_count"
	approximateReceives = "ApproximateReceiveCount"
)

// sqsAPI is the subset of the SQS client used by the saga
type sqsAPI interface {
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	SetQueueAttributes(ctx context.Context, params *sqs.SetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.SetQueueAttributesOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type sqsMessage struct {
	Message types.Message
	Event   *events.Event
	Err     error
}

// SQSEventSubscriber consumes one consumer-group queue. Readers long-poll the queue, workers
// run the handler and cleaners acknowledge, dead-letter or back off each message.
type SQSEventSubscriber struct {
	mux              sync.Mutex
	inboundMessages  chan *sqsMessage
	outboundMessages chan *sqsMessage
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	options          *sqsSubscriberOptions

	client     sqsAPI
	binding    events.Binding
	queueURL   string
	handler    events.EventHandler
	deadLetter events.DeadLetterSink
	logger     *zap.Logger
}

type sqsSubscriberOptions struct {
	workers                        int
	readers                        int
	cleaners                       int
	maxNumberOfMessages            int32
	waitTimeSeconds                int32
	visibilityTimeout              int32
	sleepTimeAfterEmptyReceive     time.Duration
	sleepTimeAfterError            time.Duration
	extendVisibilityTimeoutOnError bool
	receiveCountRange              int32
	visibilityTimeoutOffset        int32
	maxVisibilityTimeout           int32
}

type SQSSubscriberOption func(*sqsSubscriberOptions)

func WithWorkers(workers int) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		if workers > 0 {
			o.workers = workers
		}
	}
}

// WithWaitTime sets the long-poll wait and the pause after an empty or failed receive
func WithWaitTime(waitTimeSeconds int32, sleepAfterEmpty, sleepAfterError time.Duration) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.waitTimeSeconds = waitTimeSeconds
		o.sleepTimeAfterEmptyReceive = sleepAfterEmpty
		o.sleepTimeAfterError = sleepAfterError
	}
}

// NewSQSEventSubscriber creates a subscriber for the binding's queue
func NewSQSEventSubscriber(
	client sqsAPI,
	binding events.Binding,
	queueURL string,
	handler events.EventHandler,
	deadLetter events.DeadLetterSink,
	logger *zap.Logger,
	opts ...SQSSubscriberOption,
) *SQSEventSubscriber {
	options := &sqsSubscriberOptions{
		workers:                        8,
		readers:                        1,
		cleaners:                       2,
		maxNumberOfMessages:            10,
		waitTimeSeconds:                15,
		visibilityTimeout:              30,
		sleepTimeAfterEmptyReceive:     time.Second,
		sleepTimeAfterError:            5 * time.Second,
		extendVisibilityTimeoutOnError: true,
		receiveCountRange:              3,
		visibilityTimeoutOffset:        30,
		maxVisibilityTimeout:           900, // 15 minutes
	}

	for _, opt := range opts {
		opt(options)
	}

	return &SQSEventSubscriber{
		client:     client,
		binding:    binding,
		queueURL:   queueURL,
		handler:    handler,
		deadLetter: deadLetter,
		logger:     logger.With(zap.String("queue", binding.QueueName())),
		options:    options,
	}
}

// Start launches the reader, worker and cleaner goroutines. It is a no-op when already running.
func (s *SQSEventSubscriber) Start(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.cancel != nil {
		return nil
	}
	if s.handler == nil {
		return errors.New("no handler configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.inboundMessages = make(chan *sqsMessage, s.options.workers)
	s.outboundMessages = make(chan *sqsMessage, s.options.workers)
	s.cancel = cancel

	s.spawn(s.options.workers, func() { s.startWorker(ctx) })
	s.spawn(s.options.readers, func() { s.startReader(ctx) })
	s.spawn(s.options.cleaners, func() { s.startCleaner(ctx) })

	return nil
}

func (s *SQSEventSubscriber) spawn(n int, fn func()) {
	for i := 0; i < n; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			fn()
		}()
	}
}

// Stop cancels the goroutines and waits for them. Messages in flight are not acknowledged
// and become visible again after the visibility timeout.
func (s *SQSEventSubscriber) Stop() error {
	s.mux.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mux.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	s.wg.Wait()
	return nil
}

func (s *SQSEventSubscriber) startWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-s.inboundMessages:
			s.handle(ctx, message)
		}
	}
}

func (s *SQSEventSubscriber) startReader(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := s.read(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("failed to receive messages", zap.Error(err))
				sleep(ctx, s.options.sleepTimeAfterError)
			}
		}
	}
}

func (s *SQSEventSubscriber) startCleaner(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-s.outboundMessages:
			if err := s.clean(ctx, message); err != nil {
				s.logger.Error("failed to settle message",
					zap.String("event_id", message.Event.ID.String()),
					zap.Error(err))
			}
		}
	}
}

func (s *SQSEventSubscriber) read(ctx context.Context) error {
	output, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: s.options.maxNumberOfMessages,
		WaitTimeSeconds:     s.options.waitTimeSeconds,
		VisibilityTimeout:   s.options.visibilityTimeout,
		AttributeNames: []types.QueueAttributeName{
			approximateReceives,
		},
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return errors.Wrap(err, "failed to receive message from SQS")
	}

	if len(output.Messages) == 0 {
		sleep(ctx, s.options.sleepTimeAfterEmptyReceive)
		return nil
	}

	for _, message := range output.Messages {
		select {
		case s.inboundMessages <- &sqsMessage{
			Message: message,
			Event:   s.toEvent(message),
		}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (s *SQSEventSubscriber) toEvent(message types.Message) *events.Event {
	attrs := make(events.Metadata)
	for k, v := range message.MessageAttributes {
		if v.StringValue != nil {
			attrs.Set(k, *v.StringValue)
		}
	}
	attrs.Set(SQSMessageIDKey, aws.ToString(message.MessageId))
	if count, ok := message.Attributes[approximateReceives]; ok {
		attrs.Set(SQSReceiveCountKey, count)
		attrs.Set(events.MetadataAttempt, count)
	}

	return events.FromDelivery(s.binding.Topic, []byte(aws.ToString(message.Body)), attrs)
}

func (s *SQSEventSubscriber) handle(ctx context.Context, message *sqsMessage) {
	message.Err = s.handler.Handle(ctx, message.Event)

	select {
	case s.outboundMessages <- message:
	case <-ctx.Done():
	}
}

func (s *SQSEventSubscriber) clean(ctx context.Context, message *sqsMessage) error {
	if message.Err == nil {
		return s.delete(ctx, message)
	}

	if events.IsPoison(message.Err) {
		s.logger.Error("dead-lettering poison message",
			zap.String("event_id", message.Event.ID.String()),
			zap.String("topic", s.binding.Topic.String()),
			zap.Error(message.Err))

		err := s.deadLetter.DeadLetter(ctx, &events.DeadLetter{
			Queue:     s.binding.QueueName(),
			Topic:     s.binding.Topic,
			Body:      []byte(aws.ToString(message.Message.Body)),
			Reason:    message.Err.Error(),
			Metadata:  message.Event.Metadata,
			Timestamp: time.Now(),
		})
		if err != nil {
			return errors.Wrap(err, "failed to dead-letter message")
		}
		return s.delete(ctx, message)
	}

	s.logger.Warn("handler failed, message will be redelivered",
		zap.String("event_id", message.Event.ID.String()),
		zap.Error(message.Err))

	if !s.options.extendVisibilityTimeoutOnError {
		return nil
	}

	_, err := s.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(s.queueURL),
		ReceiptHandle:     message.Message.ReceiptHandle,
		VisibilityTimeout: s.backoffVisibility(message.Message),
	})
	if err != nil {
		return errors.Wrap(err, "failed to extend visibility timeout")
	}
	return nil
}

// backoffVisibility grows the visibility timeout with the receive count, capped at the SQS maximum
func (s *SQSEventSubscriber) backoffVisibility(message types.Message) int32 {
	receiveCount, err := strconv.Atoi(message.Attributes[approximateReceives])
	if err != nil {
		receiveCount = 1
	}

	visibilityTimeout := s.options.visibilityTimeout
	visibilityTimeout += (int32(receiveCount) / s.options.receiveCountRange) * s.options.visibilityTimeoutOffset

	if visibilityTimeout > s.options.maxVisibilityTimeout {
		visibilityTimeout = s.options.maxVisibilityTimeout
	}
	return visibilityTimeout
}

func (s *SQSEventSubscriber) delete(ctx context.Context, message *sqsMessage) error {
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: message.Message.ReceiptHandle,
	})
	if err != nil {
		return errors.Wrap(err, "failed to delete message from SQS")
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
