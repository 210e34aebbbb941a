package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/deepwater-mud/economy/internal/logging"
)

type failing struct{}

func (failing) Send(context.Context, Message) error { return errors.New("offline") }

func TestDeliverSkipsEmptyDestinations(t *testing.T) {
	rec := &Recorder{}
	Deliver(context.Background(), rec, logging.Discard(),
		Message{Kind: KindOutbid, Destination: "alice"},
		Message{Kind: KindOutbid},
		Message{Kind: KindAuctionSold, Destination: "bob"},
	)
	if got := len(rec.Messages("")); got != 2 {
		t.Fatalf("expected 2 messages, got %d", got)
	}
	if got := rec.Messages(KindOutbid); len(got) != 1 || got[0].Destination != "alice" {
		t.Fatalf("unexpected outbid messages %+v", got)
	}
}

func TestDeliverToleratesFailures(t *testing.T) {
	Deliver(context.Background(), failing{}, logging.Discard(), Message{Kind: KindJailed, Destination: "alice"})
	Deliver(context.Background(), nil, logging.Discard(), Message{Kind: KindJailed, Destination: "alice"})
}
