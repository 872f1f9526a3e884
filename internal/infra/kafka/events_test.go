package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
	"github.com/nnh2x/hemidi-authen/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer(buffer int) *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, buffer),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(map[string][]*sarama.PartitionOffsetMetadata, string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(*sarama.ConsumerMessage, string, *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T, buffer int) (*fakeAsyncProducer, *Producer, *EventPublisher) {
	t.Helper()
	async := newFakeAsyncProducer(buffer)
	producer := newProducer(async, "hemidi", zaptest.NewLogger(t))
	t.Cleanup(func() { _ = producer.Close() })

	publisher := NewEventPublisher(producer, config.AppSettings{Name: "hemidi-authen", Env: "test"})
	return async, producer, publisher
}

func TestPublishUserLoggedOutEnvelope(t *testing.T) {
	async, _, publisher := newTestPublisher(t, 1)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	loggedOut := time.Date(2025, 10, 31, 12, 0, 0, 0, time.UTC)
	event := domain.UserLoggedOutEvent{UserID: "user-1", RevokedTokens: 3, LoggedOutAt: loggedOut}
	if err := publisher.PublishUserLoggedOut(ctx, event); err != nil {
		t.Fatalf("PublishUserLoggedOut returned error: %v", err)
	}

	msg := <-async.input
	if msg.Topic != "hemidi.user.logged_out" {
		t.Fatalf("unexpected topic %q", msg.Topic)
	}
	key, _ := msg.Key.Encode()
	if string(key) != "user-1" {
		t.Fatalf("expected key user-1, got %q", key)
	}

	raw, err := msg.Value.Encode()
	if err != nil {
		t.Fatalf("encode value: %v", err)
	}
	var envelope struct {
		EventID   string                    `json:"event_id"`
		EventType string                    `json:"event_type"`
		Timestamp time.Time                 `json:"timestamp"`
		Version   string                    `json:"version"`
		Payload   domain.UserLoggedOutEvent `json:"payload"`
		Metadata  map[string]string         `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.EventID == "" || envelope.EventType != domain.EventUserLoggedOut || envelope.Version != schemaVersion {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
	if !envelope.Timestamp.Equal(loggedOut) {
		t.Fatalf("expected timestamp %v, got %v", loggedOut, envelope.Timestamp)
	}
	if envelope.Payload.RevokedTokens != 3 {
		t.Fatalf("unexpected payload %+v", envelope.Payload)
	}
	if envelope.Metadata["trace_id"] != traceID.String() || envelope.Metadata["service"] != "hemidi-authen" {
		t.Fatalf("unexpected metadata %v", envelope.Metadata)
	}
}

func TestPublishHonoursContextWhenInputBlocks(t *testing.T) {
	_, _, publisher := newTestPublisher(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.PublishUserLoggedIn(ctx, domain.UserLoggedInEvent{UserID: "user-1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestProducerTopicName(t *testing.T) {
	_, producer, _ := newTestPublisher(t, 1)

	if got := producer.TopicName(domain.EventUserRegistered); got != "hemidi.user.registered" {
		t.Fatalf("unexpected topic %q", got)
	}
	if got := producer.TopicName("hemidi.user.registered"); got != "hemidi.user.registered" {
		t.Fatalf("prefix applied twice: %q", got)
	}
}

func TestProducerSurfacesDeliveryErrors(t *testing.T) {
	async, producer, _ := newTestPublisher(t, 1)

	async.errors <- &sarama.ProducerError{Msg: &sarama.ProducerMessage{Topic: "hemidi.user.logged_in"}, Err: errors.New("broker down")}

	select {
	case err := <-producer.Errors():
		if err == nil || err.Error() != "broker down" {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("delivery error was not surfaced")
	}
}

func TestStubPublisherAcceptsEveryEvent(t *testing.T) {
	stub := NewStubPublisher(zaptest.NewLogger(t))
	ctx := context.Background()

	if err := stub.PublishUserRegistered(ctx, domain.UserRegisteredEvent{UserID: "u"}); err != nil {
		t.Fatalf("PublishUserRegistered: %v", err)
	}
	if err := stub.PublishTokenRefreshed(ctx, domain.TokenRefreshedEvent{UserID: "u"}); err != nil {
		t.Fatalf("PublishTokenRefreshed: %v", err)
	}
	if err := stub.PublishUserProfileUpdated(ctx, domain.UserProfileUpdatedEvent{UserID: "u"}); err != nil {
		t.Fatalf("PublishUserProfileUpdated: %v", err)
	}
}
