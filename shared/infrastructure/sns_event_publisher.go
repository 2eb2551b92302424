package infrastructure

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/draftea/order-saga/shared/events"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var _ events.Publisher = (*SNSEventPublisher)(nil)

const maxBatchSize = 10

// snsAPI is the subset of the SNS client used by the saga
type snsAPI interface {
	CreateTopic(ctx context.Context, params *sns.CreateTopicInput, optFns ...func(*sns.Options)) (*sns.CreateTopicOutput, error)
	Subscribe(ctx context.Context, params *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error)
	PublishBatch(ctx context.Context, params *sns.PublishBatchInput, optFns ...func(*sns.Options)) (*sns.PublishBatchOutput, error)
}

// SNSEventPublisher publishes saga events to one SNS topic per channel
type SNSEventPublisher struct {
	client    snsAPI
	topicArns map[events.Topic]string
}

// NewSNSEventPublisher creates a new SNSEventPublisher
func NewSNSEventPublisher(client snsAPI, topicArns map[events.Topic]string) *SNSEventPublisher {
	return &SNSEventPublisher{
		client:    client,
		topicArns: topicArns,
	}
}

// Publish publishes events to SNS. It returns nil only when every event was accepted.
func (p *SNSEventPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	byTopic := make(map[events.Topic][]*events.Event)
	for _, event := range evts {
		if _, ok := p.topicArns[event.Topic]; !ok {
			return errors.Wrapf(events.ErrInvalidTopic, "no SNS topic declared for %s", event.Topic)
		}
		byTopic[event.Topic] = append(byTopic[event.Topic], event)
	}

	gr, ctx := errgroup.WithContext(ctx)

	for topic, topicEvents := range byTopic {
		topicArn := p.topicArns[topic]
		for _, eventBatch := range splitToChunks(topicEvents, maxBatchSize) {
			gr.Go(func() error {
				return p.batchPublish(ctx, topicArn, eventBatch)
			})
		}
	}

	return gr.Wait()
}

func (p *SNSEventPublisher) batchPublish(ctx context.Context, topicArn string, evts []*events.Event) error {
	requests := make([]types.PublishBatchRequestEntry, len(evts))

	for i, event := range evts {
		payload, err := event.MarshalPayload()
		if err != nil {
			return errors.Wrap(err, "failed to marshal payload")
		}

		attrs := make(map[string]types.MessageAttributeValue)
		for k, v := range event.Attributes() {
			if v == "" {
				continue
			}
			attrs[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}

		requests[i] = types.PublishBatchRequestEntry{
			Id:                aws.String(event.ID.String()),
			Message:           aws.String(string(payload)),
			MessageAttributes: attrs,
		}
	}

	res, err := p.client.PublishBatch(
		ctx,
		&sns.PublishBatchInput{
			TopicArn:                   aws.String(topicArn),
			PublishBatchRequestEntries: requests,
		},
	)
	if err != nil {
		return errors.Wrap(err, "failed to publish batch to SNS")
	}

	if len(res.Failed) > 0 {
		failed := make([]string, 0, len(res.Failed))
		for _, entry := range res.Failed {
			failed = append(failed, aws.ToString(entry.Id)+": "+aws.ToString(entry.Message))
		}
		return errors.Errorf("SNS rejected %d of %d events: %s", len(res.Failed), len(evts), strings.Join(failed, "; "))
	}

	return nil
}

// splitToChunks splits slice into chunks of specified size
func splitToChunks[T any](slice []T, chunkSize int) [][]T {
	var chunks [][]T
	for i := 0; i < len(slice); i += chunkSize {
		end := i + chunkSize
		if end > len(slice) {
			end = len(slice)
		}
		chunks = append(chunks, slice[i:end])
	}
	return chunks
}
