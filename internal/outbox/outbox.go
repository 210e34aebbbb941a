package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/deepwater-mud/economy/internal/store"
)

// Enqueue records a side effect inside the caller's unit of work. It is
// shipped only if that unit of work commits.
func Enqueue(ctx context.Context, tx store.Tx, topic, key string, payload any, now time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	msg := store.OutboxMessage{
		ID:            uuid.NewString(),
		Topic:         topic,
		Key:           key,
		Payload:       body,
		Status:        store.OutboxPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.InsertOutbox(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", topic, err)
	}
	return nil
}

// Handler delivers one message and returns an external reference on success.
type Handler func(ctx context.Context, msg store.OutboxMessage) (string, error)

// Config tunes delivery retries.
type Config struct {
	BatchSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Dispatcher ships committed outbox rows to their topic handlers. Failed
// deliveries are rescheduled with exponential backoff and marked failed
// after MaxAttempts.
type Dispatcher struct {
	store    store.Store
	handlers map[string]Handler
	cfg      Config
	logger   *slog.Logger
	Clock    func() time.Time
}

// NewDispatcher builds a dispatcher with no handlers registered.
func NewDispatcher(s store.Store, cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Hour
	}
	return &Dispatcher{store: s, handlers: make(map[string]Handler), cfg: cfg, logger: logger, Clock: time.Now}
}

// Register installs the handler for a topic.
func (d *Dispatcher) Register(topic string, h Handler) {
	d.handlers[topic] = h
}

// DispatchOnce delivers one batch of due messages and returns how many were
// attempted.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	now := d.Clock().UTC()
	messages, err := d.store.PendingOutbox(ctx, now, d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("load pending outbox: %w", err)
	}
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		d.deliver(ctx, msg, now)
	}
	return len(messages), nil
}

func (d *Dispatcher) deliver(ctx context.Context, msg store.OutboxMessage, now time.Time) {
	handler, ok := d.handlers[msg.Topic]
	msg.Attempts++
	msg.UpdatedAt = now
	if !ok {
		msg.Status = store.OutboxFailed
		msg.LastError = "no handler for topic"
		d.logger.WarnContext(ctx, "outbox topic has no handler", "outbox_id", msg.ID, "topic", msg.Topic)
		d.save(ctx, msg)
		return
	}

	ref, err := handler(ctx, msg)
	if err == nil {
		msg.Status = store.OutboxSent
		msg.Reference = ref
		msg.LastError = ""
		d.logger.InfoContext(ctx, "outbox message delivered", "outbox_id", msg.ID, "topic", msg.Topic, "reference", ref)
		d.save(ctx, msg)
		return
	}

	msg.LastError = err.Error()
	if msg.Attempts >= d.cfg.MaxAttempts {
		msg.Status = store.OutboxFailed
		d.logger.WarnContext(ctx, "outbox message failed permanently",
			"outbox_id", msg.ID, "topic", msg.Topic, "attempts", msg.Attempts, "error", err)
	} else {
		msg.NextAttemptAt = now.Add(d.backoff(msg.Attempts))
		d.logger.WarnContext(ctx, "outbox delivery failed, rescheduled",
			"outbox_id", msg.ID, "topic", msg.Topic, "attempts", msg.Attempts, "next_attempt_at", msg.NextAttemptAt, "error", err)
	}
	d.save(ctx, msg)
}

func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= d.cfg.MaxBackoff {
			return d.cfg.MaxBackoff
		}
	}
	return delay
}

func (d *Dispatcher) save(ctx context.Context, msg store.OutboxMessage) {
	if err := d.store.UpdateOutbox(ctx, msg); err != nil {
		d.logger.ErrorContext(ctx, "update outbox message", "outbox_id", msg.ID, "error", err)
	}
}
