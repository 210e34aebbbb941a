package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/logging"
	"github.com/deepwater-mud/economy/internal/store"
)

func settlementMessage(t *testing.T, amount string) store.OutboxMessage {
	t.Helper()
	payload, err := json.Marshal(ledger.SettlementRequest{
		TransactionID: "tx-1",
		FromWallet:    "npc:fishmonger",
		ToWallet:      "player:alice",
		Destination:   "chain:alice",
		Amount:        decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return store.OutboxMessage{ID: "msg-1", Topic: ledger.TopicSettlement, Key: "tx-1", Payload: payload}
}

func TestKafkaAdapterPublishesTransfer(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var m transferMessage
		if err := json.Unmarshal(val, &m); err != nil {
			return err
		}
		if m.Destination != "chain:alice" || !m.Amount.Equal(decimal.RequireFromString("0.005")) {
			return errors.New("unexpected transfer body")
		}
		return nil
	})
	adapter := NewKafkaAdapter(producer, "settlements")
	defer adapter.Close()

	ref, err := OutboxHandler(adapter, "s3cret", logging.Discard())(context.Background(), settlementMessage(t, "0.005"))
	require.NoError(t, err)
	require.Contains(t, ref, "settlements/0/")
}

func TestKafkaFailureIsRetried(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	adapter := NewKafkaAdapter(producer, "settlements")
	defer adapter.Close()

	_, err := OutboxHandler(adapter, "s3cret", logging.Discard())(context.Background(), settlementMessage(t, "0.005"))
	require.ErrorIs(t, err, ErrDeclined)
}

func TestDisabledAdapterDeclines(t *testing.T) {
	_, err := OutboxHandler(DisabledAdapter{}, "", logging.Discard())(context.Background(), settlementMessage(t, "1"))
	require.ErrorIs(t, err, ErrDeclined)
}

func TestStaticAdapterApproves(t *testing.T) {
	ref, err := OutboxHandler(StaticAdapter{}, "", logging.Discard())(context.Background(), settlementMessage(t, "1"))
	require.NoError(t, err)
	require.NotEmpty(t, ref)
}

func TestMalformedPayloadFails(t *testing.T) {
	_, err := OutboxHandler(StaticAdapter{}, "", logging.Discard())(context.Background(), store.OutboxMessage{Payload: []byte("{")})
	require.Error(t, err)
}

func TestSignIsKeyed(t *testing.T) {
	body := []byte(`{"amount":"1"}`)
	require.Equal(t, Sign("a", body), Sign("a", body))
	require.NotEqual(t, Sign("a", body), Sign("b", body))
	require.Len(t, Sign("a", body), 64)
}
