package event

import (
	"context"

	"github.com/google/uuid"
)

type Event interface {
	Name() string
}

// RegistrationCompleted is published after a user registers and again on
// every accepted verification resend.
type RegistrationCompleted struct {
	UserID  uuid.UUID
	Email   string
	BaseURL string
}

func (RegistrationCompleted) Name() string { return "registration_completed" }

type PasswordResetRequested struct {
	UserID  uuid.UUID
	Email   string
	BaseURL string
}

func (PasswordResetRequested) Name() string { return "password_reset_requested" }

type Handler func(ctx context.Context, e Event) error

// Publisher hands an event off for asynchronous handling. Publish never
// reports handler failures to the caller.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// PublisherFunc runs handling inline on the caller's goroutine.
type PublisherFunc func(ctx context.Context, e Event)

func (f PublisherFunc) Publish(ctx context.Context, e Event) {
	f(ctx, e)
}
