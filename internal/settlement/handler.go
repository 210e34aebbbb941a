package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/outbox"
	"github.com/deepwater-mud/economy/internal/store"
)

// ErrDeclined is returned to the outbox when the rail refused a transfer, so
// the dispatcher retries it with backoff.
var ErrDeclined = errors.New("settlement declined")

// OutboxHandler delivers settlement.transfer outbox rows through adapter.
func OutboxHandler(adapter Adapter, secret string, logger *slog.Logger) outbox.Handler {
	return func(ctx context.Context, msg store.OutboxMessage) (string, error) {
		var req ledger.SettlementRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return "", fmt.Errorf("decode settlement request: %w", err)
		}
		res, err := adapter.AttemptTransfer(ctx, secret, req.Destination, req.Amount)
		if err != nil {
			return "", err
		}
		if !res.Success {
			logger.WarnContext(ctx, "settlement declined", "tx_id", req.TransactionID,
				"destination", req.Destination, "amount", req.Amount.String(), "reason", res.Error)
			return "", fmt.Errorf("%w: %s", ErrDeclined, res.Error)
		}
		logger.InfoContext(ctx, "transfer settled", "tx_id", req.TransactionID, "reference", res.Reference)
		return res.Reference, nil
	}
}
