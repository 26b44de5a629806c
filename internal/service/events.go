package service

import (
	"context"

	"jazzcash-gateway/internal/domain"
)

// EventPublisher announces terminal payment transitions to the rest of the store.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.PaymentEvent) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.PaymentEvent) error { return nil }

// NoopPublisher is used when no events topic is configured.
func NoopPublisher() EventPublisher { return noopPublisher{} }
