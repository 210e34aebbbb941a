package settlement

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/shopspring/decimal"
)

const signatureHeader = "X-Settlement-Signature"

// transferMessage is what the settlement bridge consumes from the topic.
type transferMessage struct {
	Destination string          `json:"destination"`
	Amount      decimal.Decimal `json:"amount"`
	RequestedAt time.Time       `json:"requestedAt"`
}

// KafkaAdapter hands transfers to the settlement bridge through a Kafka topic.
// Messages are signed with the shared secret; the secret itself never leaves
// the process.
type KafkaAdapter struct {
	producer sarama.SyncProducer
	topic    string
	clock    func() time.Time
}

// NewKafkaAdapter publishes to topic through producer.
func NewKafkaAdapter(producer sarama.SyncProducer, topic string) *KafkaAdapter {
	return &KafkaAdapter{producer: producer, topic: topic, clock: time.Now}
}

// AttemptTransfer publishes the transfer and returns its partition/offset as
// the reference.
func (k *KafkaAdapter) AttemptTransfer(_ context.Context, secret, destination string, amount decimal.Decimal) (Result, error) {
	body, err := json.Marshal(transferMessage{Destination: destination, Amount: amount, RequestedAt: k.clock().UTC()})
	if err != nil {
		return Result{}, fmt.Errorf("encode transfer: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(destination),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte(signatureHeader), Value: []byte(Sign(secret, body))},
		},
	}
	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	return Result{Success: true, Reference: fmt.Sprintf("%s/%d/%d", k.topic, partition, offset)}, nil
}

// Close releases the producer.
func (k *KafkaAdapter) Close() error {
	return k.producer.Close()
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
