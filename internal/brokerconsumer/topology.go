package brokerconsumer

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kilang-desa-murni/crm/pkg/config"
)

// declareTopology builds the queue graph §6 specifies: the main queue
// dead-letters into the fanout DLX, the delay queue's TTL expiry
// dead-letters back into the main queue for a delayed retry.
func declareTopology(ch *amqp.Channel, cfg *config.RabbitMQConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(cfg.DLXExchange, "fanout", true, false, false, false, nil); err != nil {
		return err
	}

	main, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": cfg.DLXExchange,
	})
	if err != nil {
		return err
	}
	if err := ch.QueueBind(main.Name, cfg.Queue, cfg.Exchange, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(cfg.DelayQueue, true, false, false, false, amqp.Table{
		"x-message-ttl":             int64(cfg.RetryDelay / time.Millisecond),
		"x-dead-letter-exchange":    cfg.Exchange,
		"x-dead-letter-routing-key": cfg.Queue,
	}); err != nil {
		return err
	}

	dead, err := ch.QueueDeclare(cfg.DeadLetterQueue, true, false, false, false, nil)
	if err != nil {
		return err
	}
	return ch.QueueBind(dead.Name, "", cfg.DLXExchange, false, nil)
}
