package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"dm-service/internal/models"
)

// pushRoutingPrefix namespaces push channels on the shared exchange.
const pushRoutingPrefix = "push."

// Bus triggers push events through the exchange so every service instance
// can deliver them to its own subscribers.
type Bus struct {
	publisher Publisher
}

// NewBus constructs a Bus.
func NewBus(publisher Publisher) *Bus {
	return &Bus{publisher: publisher}
}

// Trigger publishes event on channel.
func (b *Bus) Trigger(ctx context.Context, channel, event string, payload any) error {
	push, err := models.NewPushEvent(channel, event, payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	if err := b.publisher.Publish(ctx, pushRoutingPrefix+channel, push); err != nil {
		return fmt.Errorf("publish %s on %s: %w", event, channel, err)
	}
	return nil
}

// Deliverer hands push events to local subscribers.
type Deliverer interface {
	Deliver(event models.PushEvent)
}

// Relay consumes push events from the exchange and delivers them locally.
type Relay struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	sink  Deliverer
}

// NewRelay dials its own connection and binds an exclusive queue to every
// push routing key.
func NewRelay(amqpURL, exchange string, sink Deliverer) (*Relay, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, pushRoutingPrefix+"#", exchange, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &Relay{conn: conn, ch: ch, queue: q.Name, sink: sink}, nil
}

// Run delivers events until ctx is canceled or the broker closes the channel.
// Deliveries are auto-acked: push is at-most-once.
func (r *Relay) Run(ctx context.Context) error {
	deliveries, err := r.ch.ConsumeWithContext(ctx, r.queue, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	zap.L().Info("push relay consuming", zap.String("queue", r.queue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("push relay channel closed")
			}
			r.handle(d.Body)
		}
	}
}

func (r *Relay) handle(body []byte) {
	var event models.PushEvent
	if err := json.Unmarshal(body, &event); err != nil {
		zap.L().Warn("drop malformed push event", zap.Error(err))
		return
	}
	if event.Channel == "" || event.Event == "" {
		zap.L().Warn("drop push event without channel or name")
		return
	}
	r.sink.Deliver(event)
}

// Close tears down the relay connection.
func (r *Relay) Close() error {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
