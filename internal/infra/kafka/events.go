package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
	"github.com/nnh2x/hemidi-authen/internal/core/port"
	"github.com/nnh2x/hemidi-authen/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher on top of Producer.
type EventPublisher struct {
	producer *Producer
	appCfg   config.AppSettings
	now      func() time.Time
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings) *EventPublisher {
	return &EventPublisher{
		producer: producer,
		appCfg:   appCfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = p.now()
	}

	metadata := map[string]string{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	body, err := json.Marshal(eventEnvelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(body),
	}

	select {
	case p.producer.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserRegistered publishes user.registered.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	return p.publish(ctx, domain.EventUserRegistered, event.UserID, event.RegisteredAt, event)
}

// PublishUserLoggedIn publishes user.logged_in.
func (p *EventPublisher) PublishUserLoggedIn(ctx context.Context, event domain.UserLoggedInEvent) error {
	return p.publish(ctx, domain.EventUserLoggedIn, event.UserID, event.LoggedInAt, event)
}

// PublishTokenRefreshed publishes token.refreshed.
func (p *EventPublisher) PublishTokenRefreshed(ctx context.Context, event domain.TokenRefreshedEvent) error {
	return p.publish(ctx, domain.EventTokenRefreshed, event.UserID, event.RefreshedAt, event)
}

// PublishUserLoggedOut publishes user.logged_out.
func (p *EventPublisher) PublishUserLoggedOut(ctx context.Context, event domain.UserLoggedOutEvent) error {
	return p.publish(ctx, domain.EventUserLoggedOut, event.UserID, event.LoggedOutAt, event)
}

// PublishUserProfileUpdated publishes user.profile_updated.
func (p *EventPublisher) PublishUserProfileUpdated(ctx context.Context, event domain.UserProfileUpdatedEvent) error {
	return p.publish(ctx, domain.EventUserProfileUpdated, event.UserID, event.UpdatedAt, event)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
