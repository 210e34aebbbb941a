package notification

import (
	"context"
	"log/slog"
	"sync"
)

const (
	KindOfferReceived = "trade_offer_received"
	KindOfferAccepted = "trade_offer_accepted"
	KindOfferRejected = "trade_offer_rejected"
	KindOfferExpired  = "trade_offer_expired"
	KindOutbid        = "auction_outbid"
	KindAuctionSold   = "auction_sold"
	KindAuctionWon    = "auction_won"
	KindAuctionUnsold = "auction_unsold"
	KindEncounter     = "debt_encounter"
	KindJailed        = "debt_jailed"
	KindReleased      = "jail_released"
)

// Message describes a notification payload. Destination is a character id.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger until the game server
// consumes them directly.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "character_id", message.Destination, "body", message.Body)
	return nil
}

// Recorder keeps every message in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

// Messages returns the recorded messages of one kind, or all when kind is
// empty.
func (r *Recorder) Messages(kind string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if kind == "" || m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// Deliver sends messages best-effort, logging failures. Callers use it after
// their unit of work has committed.
func Deliver(ctx context.Context, n Notifier, logger *slog.Logger, messages ...Message) {
	if n == nil {
		return
	}
	for _, m := range messages {
		if m.Destination == "" {
			continue
		}
		if err := n.Send(ctx, m); err != nil {
			logger.WarnContext(ctx, "notification failed", "kind", m.Kind, "character_id", m.Destination, "error", err)
		}
	}
}
