package brokerconsumer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kilang-desa-murni/crm/pkg/config"
	"github.com/kilang-desa-murni/crm/pkg/logger"
)

// Consumer is component K: it reads site-request messages off the main
// queue and hands each to the ingest endpoint over HTTP, retrying through
// the delay queue on failure up to the configured retry budget.
type Consumer struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	cfg       *config.RabbitMQConfig
	client    *http.Client
	ingestURL string
	log       *logger.Logger
}

func NewConsumer(cfg *config.RabbitMQConfig, ingestURL string, log *logger.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("brokerconsumer: dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("brokerconsumer: channel failed: %w", err)
	}
	if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("brokerconsumer: qos failed: %w", err)
	}
	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("brokerconsumer: topology declare failed: %w", err)
	}

	return &Consumer{
		conn:      conn,
		ch:        ch,
		cfg:       cfg,
		client:    &http.Client{Timeout: 10 * time.Second},
		ingestURL: ingestURL,
		log:       log,
	}, nil
}

// Run consumes until ctx is cancelled or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("brokerconsumer: consume failed: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("brokerconsumer: delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg SiteRequestMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.log.Error().Err(err).Msg("brokerconsumer: malformed message, dropping")
		_ = d.Nack(false, false)
		return
	}

	retryCount := retryCountFromHeaders(d.Headers)

	if err := c.deliverToIngest(ctx, msg); err != nil {
		c.log.Warn().Err(err).Str("message_id", msg.MessageID).Int("retry_count", retryCount).
			Msg("brokerconsumer: ingest call failed")

		if retryCount < c.cfg.MaxRetries {
			if err := c.republishDelayed(ctx, d.Body, retryCount+1); err != nil {
				c.log.Error().Err(err).Msg("brokerconsumer: delay republish failed, requeuing original")
				_ = d.Nack(false, true)
				return
			}
			_ = d.Ack(false)
			return
		}

		c.log.Error().Str("message_id", msg.MessageID).Msg("brokerconsumer: retries exhausted, routing to DLQ")
		_ = d.Nack(false, false)
		return
	}

	_ = d.Ack(false)
}

func (c *Consumer) deliverToIngest(ctx context.Context, msg SiteRequestMessage) error {
	q := url.Values{}
	q.Set("phone", msg.Phone)
	q.Set("product_id", msg.ProductID)
	q.Set("product_name", msg.ProductName)
	q.Set("name", msg.Name)
	q.Set("comment", msg.Comment)
	q.Set("message_id", msg.MessageID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ingestURL+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ingest endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Consumer) republishDelayed(ctx context.Context, body []byte, nextRetryCount int) error {
	return c.ch.PublishWithContext(ctx, "", c.cfg.DelayQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{"x-retry-count": int32(nextRetryCount)},
		Body:         body,
	})
}

func retryCountFromHeaders(headers amqp.Table) int {
	v, ok := headers["x-retry-count"]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func (c *Consumer) Close() error {
	if err := c.ch.Close(); err != nil {
		return err
	}
	return c.conn.Close()
}
