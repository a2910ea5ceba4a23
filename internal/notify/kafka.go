// Package notify emits the fire-and-forget vendor notification for newly
// created orders. Delivery is best effort: the checkout flow logs failures
// and never waits on or fails with this channel.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/tianguis/checkout/internal/domain/checkout"
)

var _ checkout.Notifier = (*KafkaNotifier)(nil)

// DefaultTopic is the order-created event topic.
const DefaultTopic = "orders.created"

// orderCreatedEvent is the wire format of the vendor notification.
type orderCreatedEvent struct {
	OrderID   string    `json:"orderId"`
	VendorID  string    `json:"vendorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// KafkaNotifier publishes order-created events, keyed by vendor so one
// vendor's notifications stay ordered.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafka creates a KafkaNotifier for the given brokers and topic.
func NewKafka(brokers []string, topic string) *KafkaNotifier {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			WriteTimeout:           5 * time.Second,
		},
	}
}

// OrderCreated publishes the event for one new order.
func (n *KafkaNotifier) OrderCreated(ctx context.Context, orderID, vendorID string) error {
	payload, err := json.Marshal(orderCreatedEvent{
		OrderID:   orderID,
		VendorID:  vendorID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(vendorID),
		Value: payload,
	})
	return errors.Wrap(err, "write message")
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
