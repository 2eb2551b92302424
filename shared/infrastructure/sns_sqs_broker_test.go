package infrastructure

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/draftea/order-saga/shared/events"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSNS struct {
	mu            sync.Mutex
	topics        map[string]string
	subscriptions []*sns.SubscribeInput
	batches       []*sns.PublishBatchInput
	failIDs       map[string]bool
}

func newFakeSNS() *fakeSNS {
	return &fakeSNS{topics: make(map[string]string), failIDs: make(map[string]bool)}
}

func (f *fakeSNS) CreateTopic(ctx context.Context, params *sns.CreateTopicInput, optFns ...func(*sns.Options)) (*sns.CreateTopicOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	arn := "arn:aws:sns:us-east-1:000000000000:" + aws.ToString(params.Name)
	f.topics[aws.ToString(params.Name)] = arn
	return &sns.CreateTopicOutput{TopicArn: aws.String(arn)}, nil
}

func (f *fakeSNS) Subscribe(ctx context.Context, params *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions = append(f.subscriptions, params)
	return &sns.SubscribeOutput{SubscriptionArn: aws.String(aws.ToString(params.TopicArn) + ":sub")}, nil
}

func (f *fakeSNS) PublishBatch(ctx context.Context, params *sns.PublishBatchInput, optFns ...func(*sns.Options)) (*sns.PublishBatchOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, params)

	out := &sns.PublishBatchOutput{}
	for _, entry := range params.PublishBatchRequestEntries {
		if f.failIDs[aws.ToString(entry.Id)] {
			out.Failed = append(out.Failed, snstypes.BatchResultErrorEntry{
				Id:      entry.Id,
				Code:    aws.String("InternalError"),
				Message: aws.String("boom"),
			})
			continue
		}
		out.Successful = append(out.Successful, snstypes.PublishBatchResultEntry{Id: entry.Id})
	}
	return out, nil
}

type fakeSQS struct {
	mu         sync.Mutex
	queues     map[string][]sqstypes.Message
	attributes map[string]map[string]string
	sent       map[string][]*sqs.SendMessageInput
	deleted    []string
	changed    []*sqs.ChangeMessageVisibilityInput
}

func newFakeSQS() *fakeSQS {
	return &fakeSQS{
		queues:     make(map[string][]sqstypes.Message),
		attributes: make(map[string]map[string]string),
		sent:       make(map[string][]*sqs.SendMessageInput),
	}
}

func (f *fakeSQS) url(name string) string {
	return "http://sqs.local/000000000000/" + name
}

func (f *fakeSQS) CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url := f.url(aws.ToString(params.QueueName))
	if _, ok := f.attributes[url]; !ok {
		f.attributes[url] = map[string]string{
			"QueueArn": "arn:aws:sqs:us-east-1:000000000000:" + aws.ToString(params.QueueName),
		}
	}
	return &sqs.CreateQueueOutput{QueueUrl: aws.String(url)}, nil
}

func (f *fakeSQS) GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &sqs.GetQueueAttributesOutput{Attributes: f.attributes[aws.ToString(params.QueueUrl)]}, nil
}

func (f *fakeSQS) SetQueueAttributes(ctx context.Context, params *sqs.SetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.SetQueueAttributesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range params.Attributes {
		f.attributes[aws.ToString(params.QueueUrl)][k] = v
	}
	return &sqs.SetQueueAttributesOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url := aws.ToString(params.QueueUrl)
	messages := f.queues[url]
	f.queues[url] = nil
	return &sqs.ReceiveMessageOutput{Messages: messages}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changed = append(f.changed, params)
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url := aws.ToString(params.QueueUrl)
	f.sent[url] = append(f.sent[url], params)
	return &sqs.SendMessageOutput{MessageId: aws.String("dlq-1")}, nil
}

func (f *fakeSQS) enqueue(queue string, body string, receiveCount int, attrs map[string]string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	handle := queue + "-" + strconv.Itoa(len(f.queues[f.url(queue)])) + "-" + strconv.Itoa(receiveCount)
	messageAttrs := make(map[string]sqstypes.MessageAttributeValue)
	for k, v := range attrs {
		messageAttrs[k] = stringAttribute(v)
	}
	f.queues[f.url(queue)] = append(f.queues[f.url(queue)], sqstypes.Message{
		MessageId:         aws.String(handle),
		ReceiptHandle:     aws.String(handle),
		Body:              aws.String(body),
		Attributes:        map[string]string{"ApproximateReceiveCount": strconv.Itoa(receiveCount)},
		MessageAttributes: messageAttrs,
	})
	return handle
}

func (f *fakeSQS) snapshot() (deleted []string, changed int, sent map[string]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sent = make(map[string]int)
	for url, msgs := range f.sent {
		sent[url] = len(msgs)
	}
	return append([]string(nil), f.deleted...), len(f.changed), sent
}

func newTestSNSSQSBroker(t *testing.T, group string) (*SNSSQSBroker, *fakeSNS, *fakeSQS) {
	t.Helper()
	snsClient := newFakeSNS()
	sqsClient := newFakeSQS()
	broker := newSNSSQSBroker(snsClient, sqsClient, BrokerConfig{Group: group, Workers: 2, MaxReceiveCount: 3}, zap.NewNop(),
		WithWaitTime(0, 5*time.Millisecond, 5*time.Millisecond))
	require.NoError(t, broker.DeclareTopology(context.Background()))
	return broker, snsClient, sqsClient
}

func TestSNSSQSBroker_DeclareTopology(t *testing.T) {
	broker, snsClient, sqsClient := newTestSNSSQSBroker(t, events.GroupInventory)

	assert.Len(t, snsClient.topics, len(events.AllTopics))
	require.Len(t, snsClient.subscriptions, len(events.Bindings))
	for _, sub := range snsClient.subscriptions {
		assert.Equal(t, "sqs", aws.ToString(sub.Protocol))
		assert.Equal(t, "true", sub.Attributes["RawMessageDelivery"])
	}

	queueURL := sqsClient.url("PAYMENT_FAILED-inventory")
	attrs := sqsClient.attributes[queueURL]
	require.Contains(t, attrs, "RedrivePolicy")

	var redrive map[string]string
	require.NoError(t, json.Unmarshal([]byte(attrs["RedrivePolicy"]), &redrive))
	assert.Equal(t, "3", redrive["maxReceiveCount"])
	assert.Equal(t, "arn:aws:sqs:us-east-1:000000000000:"+events.DeadLetterQueueName, redrive["deadLetterTargetArn"])
	assert.Contains(t, attrs["Policy"], snsClient.topics["PAYMENT_FAILED"])

	// declaring again must not fail nor duplicate queues
	require.NoError(t, broker.DeclareTopology(context.Background()))
	assert.Len(t, broker.queueURLs, len(events.Bindings))
}

func TestSNSEventPublisher_Publish(t *testing.T) {
	broker, snsClient, _ := newTestSNSSQSBroker(t, events.GroupPayment)

	var batch []*events.Event
	for i := 0; i < 12; i++ {
		batch = append(batch, events.NewOrderEvent(events.PaymentSuccess, newTestOrder()))
	}
	failed := events.NewOrderEvent(events.PaymentFailed, newTestOrder())
	batch = append(batch, failed)

	require.NoError(t, broker.Publish(context.Background(), batch[:12]...))

	assert.Len(t, snsClient.batches, 2)
	first := snsClient.batches[0].PublishBatchRequestEntries[0]
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(first.Message)), &body))
	assert.ElementsMatch(t, []string{"id", "userId", "item", "price", "status"}, keys(body))
	assert.Equal(t, "PAYMENT_SUCCESS", aws.ToString(first.MessageAttributes[events.MetadataTopic].StringValue))

	snsClient.failIDs[failed.ID.String()] = true
	err := broker.Publish(context.Background(), failed)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "SNS rejected 1 of 1 events")
}

func TestSNSEventPublisher_UnknownTopic(t *testing.T) {
	publisher := NewSNSEventPublisher(newFakeSNS(), map[events.Topic]string{})
	err := publisher.Publish(context.Background(), events.NewOrderEvent(events.OrderCreated, newTestOrder()))
	assert.ErrorIs(t, err, events.ErrInvalidTopic)
}

func TestSQSEventSubscriber_Settlement(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		handlerErr    error
		expectDeleted bool
		expectChanged int
		expectDLQ     int
	}{
		{
			name:          "success deletes the message",
			body:          `{"id":"x"}`,
			expectDeleted: true,
		},
		{
			name:          "transient error extends visibility",
			body:          `{"id":"x"}`,
			handlerErr:    errors.New("gateway down"),
			expectChanged: 1,
		},
		{
			name:          "poison message goes to the dead-letter queue",
			body:          `not json`,
			handlerErr:    errors.Wrap(events.ErrInvalidPayload, "decode"),
			expectDeleted: true,
			expectDLQ:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker, _, sqsClient := newTestSNSSQSBroker(t, events.GroupPayment)
			defer broker.Close()

			received := make(chan *events.Event, 1)
			handle := sqsClient.enqueue("INVENTORY_RESERVED-payment", tt.body, 1, map[string]string{
				events.MetadataEventID: "evt-1",
			})

			require.NoError(t, broker.Subscribe(context.Background(), events.InventoryReserved,
				events.EventHandlerFunc(func(ctx context.Context, event *events.Event) error {
					received <- event
					return tt.handlerErr
				})))

			select {
			case event := <-received:
				assert.Equal(t, events.InventoryReserved, event.Topic)
				assert.Equal(t, "evt-1", event.ID.String())
				attempt, _ := event.Metadata.Get(events.MetadataAttempt)
				assert.Equal(t, "1", attempt)
			case <-time.After(time.Second):
				t.Fatal("handler was not called")
			}

			assert.Eventually(t, func() bool {
				deleted, changed, sent := sqsClient.snapshot()
				return (len(deleted) == 1) == tt.expectDeleted &&
					changed == tt.expectChanged &&
					sent[sqsClient.url(events.DeadLetterQueueName)] == tt.expectDLQ
			}, time.Second, 5*time.Millisecond)

			if tt.expectDeleted {
				deleted, _, _ := sqsClient.snapshot()
				assert.Equal(t, []string{handle}, deleted)
			}
		})
	}
}

func TestSQSEventSubscriber_BackoffVisibility(t *testing.T) {
	subscriber := NewSQSEventSubscriber(newFakeSQS(), events.Bindings[0], "url", nil, nil, zap.NewNop())

	visibility := func(count int) int32 {
		return subscriber.backoffVisibility(sqstypes.Message{
			Attributes: map[string]string{"ApproximateReceiveCount": strconv.Itoa(count)},
		})
	}

	assert.Equal(t, int32(30), visibility(1))
	assert.Equal(t, int32(60), visibility(3))
	assert.Equal(t, int32(900), visibility(1000))
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
