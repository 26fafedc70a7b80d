package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectPrefix is the root of every subject the service publishes on.
const SubjectPrefix = "onboarding"

// JetStreamPublisher is the slice of nats.JetStreamContext used for publishing.
type JetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

var _ JetStreamPublisher = (nats.JetStreamContext)(nil)

// NatsPublisher forwards domain events to JetStream under
// onboarding.<event_type>. The event id is used as the message id so the
// stream drops duplicates on redelivery.
type NatsPublisher struct {
	js     JetStreamPublisher
	logger *zap.Logger
}

// NewNatsPublisher builds a publisher on top of a JetStream context.
func NewNatsPublisher(js JetStreamPublisher, logger *zap.Logger) *NatsPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NatsPublisher{js: js, logger: logger}
}

// Subject returns the subject an event type is published on.
func Subject(eventType EventType) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, eventType)
}

// Forward publishes a single event.
func (p *NatsPublisher) Forward(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := Subject(event.Type)
	if _, err := p.js.Publish(subject, data, nats.MsgId(event.ID)); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", subject, err)
	}
	p.logger.Debug("event forwarded", zap.String("subject", subject), zap.String("event_id", event.ID))
	return nil
}

// Attach subscribes the publisher to every event type on the dispatcher.
func (p *NatsPublisher) Attach(d Dispatcher) {
	SubscribeAll(d, AllEventTypes, p.Forward)
}
