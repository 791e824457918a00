package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"

	"github.com/vuhieu2402/restaurant-payments/internal/models"
)

// SettledSubject carries the one-shot customer notification for a completed
// payment. The notification worker subscribes to it.
const SettledSubject = "notify.payment.settled"

// Publisher fans committed settlements out to Kafka (state-change stream)
// and NATS (customer notification).
type Publisher struct {
	kafkaWriter *kafka.Writer
	nc          *nats.Conn
}

func NewPublisher(kafkaWriter *kafka.Writer, nc *nats.Conn) *Publisher {
	return &Publisher{kafkaWriter: kafkaWriter, nc: nc}
}

func (p *Publisher) PublishStateChanged(ctx context.Context, payment *models.Payment, previous models.PaymentStatus) error {
	event := map[string]interface{}{
		"payment_id":      payment.ID,
		"status":          payment.Status,
		"previous_status": previous,
		"owner_kind":      payment.Owner.Kind,
		"owner_id":        payment.Owner.ID,
		"amount":          payment.Amount,
		"currency":        payment.Currency,
		"timestamp":       time.Now().UTC(),
	}
	eventJSON, _ := json.Marshal(event)

	return p.kafkaWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(payment.ID),
		Value: eventJSON,
	})
}

func (p *Publisher) NotifySettled(ctx context.Context, payment *models.Payment) error {
	msg := map[string]interface{}{
		"payment_id": payment.ID,
		"owner_kind": payment.Owner.Kind,
		"owner_id":   payment.Owner.ID,
		"amount":     payment.Amount,
		"currency":   payment.Currency,
		"paid_at":    payment.PaidAt,
	}
	msgJSON, _ := json.Marshal(msg)

	return p.nc.Publish(SettledSubject, msgJSON)
}
