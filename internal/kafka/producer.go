package kafka

import (
	"context"
	"encoding/json"

	"ms-payments/internal/models"

	"github.com/segmentio/kafka-go"
)

// Producer streams payment status events. One writer serves both topics; the
// topic is picked per message from the event type.
type Producer struct {
	Writer         *kafka.Writer
	SucceededTopic string
	FailedTopic    string
}

func NewProducer(brokers []string, succeededTopic, failedTopic string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{
		Writer:         writer,
		SucceededTopic: succeededTopic,
		FailedTopic:    failedTopic,
	}
}

// PublishPaymentEvent streams a terminal payment classification to Kafka,
// keyed by the Stripe payment intent id.
func (p *Producer) PublishPaymentEvent(event models.PaymentEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	topic := p.FailedTopic
	if event.Type == models.EventPaymentSucceeded {
		topic = p.SucceededTopic
	}

	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(event.PaymentID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
