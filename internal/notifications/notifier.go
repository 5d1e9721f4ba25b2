// Package notifications delivers fire-and-forget messages to users.
package notifications

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	TypeSessionRequested = "session-requested"
	TypeSessionConfirmed = "session-confirmed"
	TypeSessionStarted   = "session-started"
	TypeSessionCompleted = "session-completed"
	TypeSessionCancelled = "session-cancelled"
	TypeCreditReceived   = "credit-received"
)

type Notification struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	SessionID uuid.UUID `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notifier never reports failure to the caller. Delivery problems are logged.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, n Notification)
}

// Channel is the pub/sub channel a user's clients subscribe to.
func Channel(userID uuid.UUID) string {
	return "notifications:" + userID.String()
}

type RedisNotifier struct {
	client  *redis.Client
	timeout time.Duration
	log     zerolog.Logger
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{
		client:  client,
		timeout: 2 * time.Second,
		log:     log.With().Str("component", "notifier").Logger(),
	}
}

func (r *RedisNotifier) Notify(ctx context.Context, userID uuid.UUID, n Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(n)
	if err != nil {
		r.log.Error().Err(err).Msg("encode notification")
		return
	}

	// Detached from the request so a finished handler does not cancel delivery.
	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		if err := r.client.Publish(pubCtx, Channel(userID), body).Err(); err != nil {
			r.log.Warn().
				Err(err).
				Str("user_id", userID.String()).
				Str("type", n.Type).
				Msg("publish notification failed")
		}
	}()
}

// LogNotifier is used when no redis address is configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

func (l *LogNotifier) Notify(_ context.Context, userID uuid.UUID, n Notification) {
	l.log.Info().
		Str("user_id", userID.String()).
		Str("type", n.Type).
		Str("session_id", n.SessionID.String()).
		Msg(n.Message)
}
