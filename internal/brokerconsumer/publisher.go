package brokerconsumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kilang-desa-murni/crm/pkg/config"
)

// Publisher is the producer side of the site-request queue, used by the
// email worker (component J). It declares the same topology the consumer
// does so either side can start first.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	cfg   *config.RabbitMQConfig
}

func NewPublisher(cfg *config.RabbitMQConfig) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("brokerconsumer: dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("brokerconsumer: channel failed: %w", err)
	}
	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("brokerconsumer: topology declare failed: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, queue: cfg.Queue, cfg: cfg}, nil
}

// Publish stamps a fresh UUID message_id, sets x-retry-count to 0, and
// publishes the message as persistent JSON, per §6's broker message shape.
func (p *Publisher) Publish(ctx context.Context, msg SiteRequestMessage) error {
	msg.MessageID = uuid.New().String()
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("brokerconsumer: marshal failed: %w", err)
	}

	return p.ch.PublishWithContext(ctx, p.cfg.Exchange, p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.MessageID,
		Headers:      amqp.Table{"x-retry-count": int32(0)},
		Body:         body,
	})
}

func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		return err
	}
	return p.conn.Close()
}
