// Package queue wires the per-channel RabbitMQ work queues.
//
// Each delivery channel (email, sms, in-app) gets its own durable queue
// bound to a direct exchange, so channels consume independently and
// concurrently. Permanently failed jobs are published to a shared DLQ for
// observability.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/adilzhm/notification-pipeline/internal/model"
)

const (
	ExchangeName  = "notifications-exchange"
	DLQName       = "notifications-dlq"
	DLQRoutingKey = "notifications.failed"
)

var queueNames = map[model.Channel]string{
	model.ChannelEmail: "email-notifications",
	model.ChannelSMS:   "sms-notifications",
	model.ChannelInApp: "in-app-notifications",
}

// DeliveryMessage is the job payload: just the notification id plus its
// channel for routing. Attempt counting lives on the notification record,
// not on the message.
type DeliveryMessage struct {
	NotificationID uuid.UUID     `json:"notification_id"`
	Channel        model.Channel `json:"channel"`
}

// Set holds the publisher and the per-channel consumers for the
// notification queues.
type Set struct {
	publisher *rabbitmq.Publisher
	consumers map[model.Channel]*rabbitmq.Consumer
}

// New declares the exchange, the per-channel queues and the DLQ on the
// given channel, and returns a ready queue set.
func New(ch *rabbitmq.Channel) (*Set, error) {
	exchange := rabbitmq.NewExchange(ExchangeName, "direct")
	if err := exchange.BindToChannel(ch); err != nil {
		return nil, fmt.Errorf("failed to bind to exchange: %w", err)
	}

	qm := rabbitmq.NewQueueManager(ch)

	dlq, err := qm.DeclareQueue(DLQName, rabbitmq.QueueConfig{Durable: true})
	if err != nil {
		return nil, fmt.Errorf("failed to declare DLQ: %w", err)
	}

	if err := ch.QueueBind(dlq.Name, DLQRoutingKey, exchange.Name(), false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind DLQ: %w", err)
	}

	consumers := make(map[model.Channel]*rabbitmq.Consumer, len(queueNames))

	for _, c := range model.Channels {
		name := queueNames[c]

		q, err := qm.DeclareQueue(name, rabbitmq.QueueConfig{Durable: true})
		if err != nil {
			return nil, fmt.Errorf("failed to declare queue %s: %w", name, err)
		}

		if err := ch.QueueBind(q.Name, name, exchange.Name(), false, nil); err != nil {
			return nil, fmt.Errorf("failed to bind queue %s: %w", name, err)
		}

		consumers[c] = rabbitmq.NewConsumer(ch, rabbitmq.NewConsumerConfig(q.Name))
	}

	return &Set{
		publisher: rabbitmq.NewPublisher(ch, exchange.Name()),
		consumers: consumers,
	}, nil
}

// Publish routes a delivery job to the queue of its channel.
func (s *Set) Publish(msg DeliveryMessage, strategy retry.Strategy) error {
	if !msg.Channel.Valid() {
		return fmt.Errorf("publish: %w: %q", model.ErrUnknownChannel, msg.Channel)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return s.publisher.PublishWithRetry(body, queueNames[msg.Channel], "application/json", strategy)
}

// PublishFailed emits a permanently failed job on the DLQ so operators can
// inspect exhausted notifications.
func (s *Set) PublishFailed(msg DeliveryMessage, strategy retry.Strategy) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return s.publisher.PublishWithRetry(body, DLQRoutingKey, "application/json", strategy)
}

// Consume delivers jobs from the queue of the given channel to out until
// the context is cancelled. Malformed payloads are logged and dropped.
func (s *Set) Consume(ctx context.Context, c model.Channel, out chan<- DeliveryMessage, strategy retry.Strategy) error {
	consumer, ok := s.consumers[c]
	if !ok {
		return fmt.Errorf("consume: %w: %q", model.ErrUnknownChannel, c)
	}

	msgChan := make(chan []byte)

	go forwardMessages(ctx, c, msgChan, out)

	return consumer.ConsumeWithRetry(msgChan, strategy)
}

// forwardMessages decodes raw queue payloads and hands them to out. After the
// context is cancelled it keeps draining msgChan, discarding messages, so the
// producer writing to msgChan is never blocked by a shutdown.
func forwardMessages(ctx context.Context, c model.Channel, msgChan <-chan []byte, out chan<- DeliveryMessage) {
	for m := range msgChan {
		if ctx.Err() != nil {
			continue
		}

		var msg DeliveryMessage
		if err := json.Unmarshal(m, &msg); err != nil {
			zlog.Logger.Error().Err(err).Str("channel", c.String()).Msg("failed to unmarshal message")
			continue
		}

		select {
		case out <- msg:
		case <-ctx.Done():
		}
	}
}
