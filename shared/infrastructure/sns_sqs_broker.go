package infrastructure

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/draftea/order-saga/shared/events"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultMaxReceiveCount = 5

// SNSSQSBroker is the AWS Message Channel: one SNS topic per channel, one SQS queue per
// consumer group subscribed with raw delivery, and a shared dead-letter queue.
type SNSSQSBroker struct {
	sns    snsAPI
	sqs    sqsAPI
	group  string
	logger *zap.Logger

	workers         int
	maxReceiveCount int
	archive         events.DeadLetterSink
	subscriberOpts  []SQSSubscriberOption

	mu          sync.Mutex
	topicArns   map[events.Topic]string
	queueURLs   map[string]string
	deadLetter  *SQSDeadLetterSink
	publisher   *SNSEventPublisher
	subscribers []*SQSEventSubscriber
}

var _ Broker = (*SNSSQSBroker)(nil)

// NewSNSSQSBroker loads the AWS configuration and builds SNS and SQS clients. Custom
// endpoints (LocalStack) are honoured per service.
func NewSNSSQSBroker(ctx context.Context, cfg BrokerConfig, logger *zap.Logger) (*SNSSQSBroker, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.AWS.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWS.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	snsClient := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.AWS.EndpointSNS != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointSNS)
		}
	})
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointSQS != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointSQS)
		}
	})

	return newSNSSQSBroker(snsClient, sqsClient, cfg, logger), nil
}

func newSNSSQSBroker(snsClient snsAPI, sqsClient sqsAPI, cfg BrokerConfig, logger *zap.Logger, opts ...SQSSubscriberOption) *SNSSQSBroker {
	maxReceiveCount := cfg.MaxReceiveCount
	if maxReceiveCount <= 0 {
		maxReceiveCount = defaultMaxReceiveCount
	}
	return &SNSSQSBroker{
		sns:             snsClient,
		sqs:             sqsClient,
		group:           cfg.Group,
		logger:          logger,
		workers:         cfg.Workers,
		maxReceiveCount: maxReceiveCount,
		archive:         cfg.Archive,
		subscriberOpts:  opts,
		topicArns:       make(map[events.Topic]string),
		queueURLs:       make(map[string]string),
	}
}

// DeclareTopology creates the dead-letter queue, every channel topic and every consumer-group
// queue with its subscription. All calls are idempotent on AWS.
func (b *SNSSQSBroker) DeclareTopology(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	dlqURL, dlqArn, err := b.declareQueue(ctx, events.DeadLetterQueueName, nil)
	if err != nil {
		return errors.Wrap(err, "failed to declare dead-letter queue")
	}
	b.deadLetter = NewSQSDeadLetterSink(b.sqs, dlqURL)

	for _, topic := range events.AllTopics {
		out, err := b.sns.CreateTopic(ctx, &sns.CreateTopicInput{Name: aws.String(topic.String())})
		if err != nil {
			return errors.Wrapf(err, "failed to create topic %s", topic)
		}
		b.topicArns[topic] = aws.ToString(out.TopicArn)
	}

	redrive, err := json.Marshal(map[string]string{
		"deadLetterTargetArn": dlqArn,
		"maxReceiveCount":     strconv.Itoa(b.maxReceiveCount),
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode redrive policy")
	}

	for _, binding := range events.Bindings {
		topicArn := b.topicArns[binding.Topic]
		queueURL, queueArn, err := b.declareQueue(ctx, binding.QueueName(), func(queueArn string) (map[string]string, error) {
			policy, err := snsDeliveryPolicy(queueArn, topicArn)
			if err != nil {
				return nil, err
			}
			return map[string]string{
				string(sqstypes.QueueAttributeNamePolicy):        policy,
				string(sqstypes.QueueAttributeNameRedrivePolicy): string(redrive),
			}, nil
		})
		if err != nil {
			return errors.Wrapf(err, "failed to declare queue %s", binding.QueueName())
		}

		_, err = b.sns.Subscribe(ctx, &sns.SubscribeInput{
			TopicArn:              aws.String(topicArn),
			Protocol:              aws.String("sqs"),
			Endpoint:              aws.String(queueArn),
			Attributes:            map[string]string{"RawMessageDelivery": "true"},
			ReturnSubscriptionArn: true,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to subscribe %s to %s", binding.QueueName(), binding.Topic)
		}
		b.queueURLs[binding.QueueName()] = queueURL
	}

	b.publisher = NewSNSEventPublisher(b.sns, b.topicArns)
	b.logger.Info("SNS/SQS topology declared",
		zap.Int("topics", len(b.topicArns)),
		zap.Int("queues", len(b.queueURLs)))
	return nil
}

// declareQueue creates the queue without attributes, so repeated calls never conflict, and
// then applies the attributes built from the queue ARN.
func (b *SNSSQSBroker) declareQueue(ctx context.Context, name string, attributes func(queueArn string) (map[string]string, error)) (string, string, error) {
	created, err := b.sqs.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: aws.String(name)})
	if err != nil {
		return "", "", err
	}
	queueURL := aws.ToString(created.QueueUrl)

	attrs, err := b.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(queueURL),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return "", "", err
	}
	queueArn := attrs.Attributes[string(sqstypes.QueueAttributeNameQueueArn)]

	if attributes != nil {
		values, err := attributes(queueArn)
		if err != nil {
			return "", "", err
		}
		if _, err := b.sqs.SetQueueAttributes(ctx, &sqs.SetQueueAttributesInput{
			QueueUrl:   aws.String(queueURL),
			Attributes: values,
		}); err != nil {
			return "", "", err
		}
	}

	return queueURL, queueArn, nil
}

// snsDeliveryPolicy allows the channel topic to send into the queue
func snsDeliveryPolicy(queueArn, topicArn string) (string, error) {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{{
			"Effect":    "Allow",
			"Principal": map[string]string{"Service": "sns.amazonaws.com"},
			"Action":    "sqs:SendMessage",
			"Resource":  queueArn,
			"Condition": map[string]interface{}{
				"ArnEquals": map[string]string{"aws:SourceArn": topicArn},
			},
		}},
	}
	raw, err := json.Marshal(policy)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode queue policy")
	}
	return string(raw), nil
}

func (b *SNSSQSBroker) Publish(ctx context.Context, evts ...*events.Event) error {
	b.mu.Lock()
	publisher := b.publisher
	b.mu.Unlock()

	if publisher == nil {
		return errors.New("topology not declared")
	}
	return publisher.Publish(ctx, evts...)
}

// Subscribe consumes the group's queue for topic
func (b *SNSSQSBroker) Subscribe(ctx context.Context, topic events.Topic, handler events.EventHandler) error {
	binding := events.Binding{Topic: topic, Group: b.group}

	b.mu.Lock()
	defer b.mu.Unlock()

	queueURL, ok := b.queueURLs[binding.QueueName()]
	if !ok {
		return errors.Errorf("queue %s is not declared", binding.QueueName())
	}

	opts := append([]SQSSubscriberOption{WithWorkers(b.workers)}, b.subscriberOpts...)
	sink := events.DeadLetterSinks(b.deadLetter, b.archive)
	subscriber := NewSQSEventSubscriber(b.sqs, binding, queueURL, handler, sink, b.logger, opts...)
	if err := subscriber.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start SQS subscriber")
	}
	b.subscribers = append(b.subscribers, subscriber)
	return nil
}

// Close stops every subscriber
func (b *SNSSQSBroker) Close() error {
	b.mu.Lock()
	subscribers := b.subscribers
	b.subscribers = nil
	b.mu.Unlock()

	for _, subscriber := range subscribers {
		if err := subscriber.Stop(); err != nil {
			return errors.Wrap(err, "failed to stop SQS subscriber")
		}
	}
	return nil
}

// SQSDeadLetterSink forwards poison messages to the dead-letter queue, keeping the original
// body and recording the reason as message attributes.
type SQSDeadLetterSink struct {
	client   sqsAPI
	queueURL string
}

var _ events.DeadLetterSink = (*SQSDeadLetterSink)(nil)

func NewSQSDeadLetterSink(client sqsAPI, queueURL string) *SQSDeadLetterSink {
	return &SQSDeadLetterSink{client: client, queueURL: queueURL}
}

func (s *SQSDeadLetterSink) DeadLetter(ctx context.Context, letter *events.DeadLetter) error {
	attrs := map[string]sqstypes.MessageAttributeValue{
		"source_queue": stringAttribute(letter.Queue),
		"topic":        stringAttribute(letter.Topic.String()),
		"reason":       stringAttribute(letter.Reason),
	}
	if id, ok := letter.Metadata.Get(events.MetadataEventID); ok {
		attrs[events.MetadataEventID] = stringAttribute(id)
	}

	body := string(letter.Body)
	if body == "" {
		// SQS rejects empty bodies
		body = "{}"
	}

	_, err := s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return errors.Wrap(err, "failed to send message to dead-letter queue")
	}
	return nil
}

func stringAttribute(value string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(value),
	}
}
