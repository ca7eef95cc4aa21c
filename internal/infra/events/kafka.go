package events

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	kgo "github.com/segmentio/kafka-go"

	"github.com/clawchain/clawmarket/internal/domain"
	"github.com/clawchain/clawmarket/internal/infra/metrics"
)

// messageWriter is the subset of *kgo.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

// Signer signs outgoing event payloads. *security.Keypair satisfies it.
type Signer interface {
	Sign(message []byte) []byte
	PublicKeyHex() string
}

// Header names attached to signed messages.
const (
	HeaderSignature = "clawmarket-signature"
	HeaderSigner    = "clawmarket-signer"
)

// KafkaPublisher writes each committed event to a Kafka topic as JSON.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	signer  Signer
}

// NewKafkaPublisher creates a publisher for the given comma-separated
// broker list and topic.
func NewKafkaPublisher(brokersCSV, topic string) (*KafkaPublisher, error) {
	brokers := SplitCSV(brokersCSV)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}

	w := &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.Hash{},
		RequiredAcks: kgo.RequireOne,
	}
	return &KafkaPublisher{writer: w, timeout: 3 * time.Second}, nil
}

// SetSigner makes the publisher attach an ed25519 signature of each
// message value, plus the signer's public key, as headers.
func (p *KafkaPublisher) SetSigner(s Signer) { p.signer = s }

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// Publish implements Publisher. All events of one call go out in a single
// write so they land in order.
func (p *KafkaPublisher) Publish(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kgo.Message, 0, len(events))
	for _, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("kafka: encode %s: %w", e.Kind, err)
		}
		msg := kgo.Message{
			Key:   []byte(PartitionKey(e)),
			Value: b,
			Time:  e.At,
		}
		if p.signer != nil {
			msg.Headers = []kgo.Header{
				{Key: HeaderSignature, Value: []byte(hex.EncodeToString(p.signer.Sign(b)))},
				{Key: HeaderSigner, Value: []byte(p.signer.PublicKeyHex())},
			}
		}
		msgs = append(msgs, msg)
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(cctx, msgs...); err != nil {
		metrics.EventsPublished.WithLabelValues("kafka", "error").Add(float64(len(events)))
		return fmt.Errorf("kafka: publish: %w", err)
	}
	metrics.EventsPublished.WithLabelValues("kafka", "ok").Add(float64(len(events)))
	return nil
}

// PartitionKey keys task events by task so a task's lifecycle stays on one
// partition; reputation events are keyed by account.
func PartitionKey(e domain.Event) string {
	if id, ok := e.Payload["task_id"]; ok {
		return fmt.Sprintf("task:%v", id)
	}
	if acc, ok := e.Payload["account"]; ok {
		return fmt.Sprintf("account:%v", acc)
	}
	return string(e.Kind)
}

// SplitCSV splits a comma-separated list, dropping blanks.
func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
