package saga

import (
	"context"
	"sort"

	"github.com/draftea/order-saga/shared/events"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Router dispatches saga messages to the handlers registered for their topic
type Router struct {
	handlers map[events.Topic][]events.EventHandler
	logger   *zap.Logger
}

// NewRouter creates an empty router
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[events.Topic][]events.EventHandler),
		logger:   logger,
	}
}

// RegisterHandler registers an event handler for a topic pattern
func (r *Router) RegisterHandler(pattern events.Topic, handler events.EventHandler) {
	r.handlers[pattern] = append(r.handlers[pattern], handler)
}

// Topics returns the registered topic patterns
func (r *Router) Topics() []events.Topic {
	topics := make([]events.Topic, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i] < topics[j] })
	return topics
}

// SubscribeAll subscribes the router to every registered topic. Patterns must be plain
// channel names here since each one is bound to a broker queue.
func (r *Router) SubscribeAll(ctx context.Context, subscriber events.Subscriber, middleware func(events.EventHandler) events.EventHandler) error {
	var handler events.EventHandler = r
	if middleware != nil {
		handler = middleware(r)
	}

	for _, topic := range r.Topics() {
		if err := subscriber.Subscribe(ctx, topic, handler); err != nil {
			return errors.Wrapf(err, "failed to subscribe to %s", topic)
		}
		r.logger.Info("subscribed", zap.String("topic", topic.String()))
	}
	return nil
}

// Handle implements events.EventHandler. The first failing handler stops dispatch and its
// error is returned so the message stays unacknowledged.
func (r *Router) Handle(ctx context.Context, event *events.Event) error {
	matched := false
	for pattern, handlers := range r.handlers {
		if !event.Topic.Matches(pattern) {
			continue
		}
		matched = true
		for _, handler := range handlers {
			if err := handler.Handle(ctx, event); err != nil {
				r.logger.Warn("handler failed",
					zap.String("topic", event.Topic.String()),
					zap.String("event_id", event.ID.String()),
					zap.Error(err))
				return err
			}
		}
	}

	if !matched {
		r.logger.Debug("no handlers registered", zap.String("topic", event.Topic.String()))
	}
	return nil
}
