package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
	"github.com/nnh2x/hemidi-authen/internal/core/port"
	"github.com/nnh2x/hemidi-authen/internal/infra/logger"
)

// StubPublisher logs events instead of sending them. It is used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a logging event publisher.
func NewStubPublisher(log *zap.Logger) *StubPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &StubPublisher{logger: log}
}

func (p *StubPublisher) logEvent(ctx context.Context, eventType, userID string, payload any) {
	logger.WithContext(ctx, p.logger).Debug("event not published, kafka disabled",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Any("payload", payload),
	)
}

func (p *StubPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	p.logEvent(ctx, domain.EventUserRegistered, event.UserID, event)
	return nil
}

func (p *StubPublisher) PublishUserLoggedIn(ctx context.Context, event domain.UserLoggedInEvent) error {
	p.logEvent(ctx, domain.EventUserLoggedIn, event.UserID, event)
	return nil
}

func (p *StubPublisher) PublishTokenRefreshed(ctx context.Context, event domain.TokenRefreshedEvent) error {
	p.logEvent(ctx, domain.EventTokenRefreshed, event.UserID, event)
	return nil
}

func (p *StubPublisher) PublishUserLoggedOut(ctx context.Context, event domain.UserLoggedOutEvent) error {
	p.logEvent(ctx, domain.EventUserLoggedOut, event.UserID, event)
	return nil
}

func (p *StubPublisher) PublishUserProfileUpdated(ctx context.Context, event domain.UserProfileUpdatedEvent) error {
	p.logEvent(ctx, domain.EventUserProfileUpdated, event.UserID, event)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
