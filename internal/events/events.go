// Package events publishes identity lifecycle notifications to a message broker.
// Publishing is best effort: a broker outage never fails the operation that
// produced the event.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types.
const (
	TypeUserCreated = "user.created"
	TypeUserUpdated = "user.updated"
	TypeUserDeleted = "user.deleted"
	TypeTokenIssued = "auth.token_issued"
)

// Event is the message body published for identity changes.
// It never carries passwords, hashes or token keys.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username,omitempty"`

	// Fields lists the changed attributes of a user.updated event.
	// "password" appears by name only.
	Fields []string `json:"fields,omitempty"`

	// Created reports whether auth.token_issued minted a new token.
	Created *bool `json:"created,omitempty"`
}

// New creates an event of the given type for a user.
func New(eventType string, userID int64, username string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		UserID:     userID,
		Username:   username,
	}
}

// Publisher sends events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Emit publishes ev and logs, rather than returns, any failure.
func Emit(ctx context.Context, p Publisher, logger zerolog.Logger, ev Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		logger.Warn().
			Err(err).
			Str("event_type", ev.Type).
			Str("event_id", ev.ID).
			Int64("user_id", ev.UserID).
			Msg("failed to publish event")
	}
}

// LogPublisher writes events to the logger at debug level instead of a broker.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a publisher used when no broker is configured.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(ctx context.Context, ev Event) error {
	p.logger.Debug().
		Str("event_type", ev.Type).
		Str("event_id", ev.ID).
		Int64("user_id", ev.UserID).
		Strs("fields", ev.Fields).
		Msg("event")
	return nil
}

// Close implements Publisher.
func (p *LogPublisher) Close() error { return nil }

// Ensure publishers implement Publisher
var (
	_ Publisher = (*LogPublisher)(nil)
	_ Publisher = (*AMQPPublisher)(nil)
)
