package rabbitmq

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	amqp "github.com/streadway/amqp"
)

// Client holds the RabbitMQ connection and channel.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	log     logrus.FieldLogger
	// mu serialises use of the shared channel.
	mu sync.Mutex
}

// Config holds RabbitMQ connection details.
type Config struct {
	URL string
	// Exchanges are declared as durable topic exchanges on connect.
	Exchanges []string
}

// QueueInfo describes the current state of a queue.
type QueueInfo struct {
	Name      string `json:"name"`
	Messages  int    `json:"messages"`
	Consumers int    `json:"consumers"`
}

// NewClient creates a new RabbitMQ client.
// It connects to RabbitMQ, opens a channel and declares the configured exchanges.
func NewClient(cfg Config, log logrus.FieldLogger) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to RabbitMQ")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to open channel")
	}

	for _, exchange := range cfg.Exchanges {
		err = ch.ExchangeDeclare(
			exchange, // name
			"topic",  // kind
			true,     // durable
			false,    // auto-deleted
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		)
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, errors.Wrapf(err, "failed to declare exchange %s", exchange)
		}
	}

	log.WithField("exchanges", cfg.Exchanges).Info("RabbitMQ client connected")

	return &Client{
		conn:    conn,
		channel: ch,
		log:     log,
	}, nil
}

// Close closes the RabbitMQ connection and channel.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to close channel"))
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to close connection"))
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("multiple errors occurred during RabbitMQ client close: %v", errs)
	}
	return nil
}

// IsClosed reports whether the broker connection is gone.
func (c *Client) IsClosed() bool {
	return c.conn == nil || c.conn.IsClosed()
}

// Publish sends a persistent JSON message to exchange with routingKey.
func (c *Client) Publish(exchange, routingKey string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil {
		return errors.New("RabbitMQ channel is not available")
	}

	err := c.channel.Publish(
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return errors.Wrapf(err, "failed to publish to %s/%s", exchange, routingKey)
	}
	return nil
}

// BindQueue declares a durable queue and binds it to exchange with routingKey.
func (c *Client) BindQueue(queue, exchange, routingKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.channel.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return errors.Wrapf(err, "failed to declare queue %s", queue)
	}
	if err := c.channel.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		return errors.Wrapf(err, "failed to bind queue %s to %s", queue, exchange)
	}

	c.log.WithFields(logrus.Fields{
		"queue":       queue,
		"exchange":    exchange,
		"routing_key": routingKey,
	}).Info("Queue bound")
	return nil
}

// QueueInfo inspects a queue without consuming from it.
func (c *Client) QueueInfo(queue string) (QueueInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, err := c.channel.QueueInspect(queue)
	if err != nil {
		return QueueInfo{}, errors.Wrapf(err, "failed to inspect queue %s", queue)
	}
	return QueueInfo{Name: q.Name, Messages: q.Messages, Consumers: q.Consumers}, nil
}

// Consume delivers messages from queue to handler until ctx is done or the
// delivery channel closes. A message is acked when handler returns nil and
// rejected without requeue otherwise, so a poison message cannot loop.
func (c *Client) Consume(ctx context.Context, queue string, handler func(msg amqp.Delivery) error) error {
	c.mu.Lock()
	msgs, err := c.channel.Consume(
		queue, // queue
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	c.mu.Unlock()
	if err != nil {
		return errors.Wrapf(err, "failed to register consumer on %s", queue)
	}

	c.log.WithField("queue", queue).Info("Waiting for messages")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.Errorf("delivery channel for %s closed", queue)
			}
			entry := c.log.WithField("delivery_tag", msg.DeliveryTag)
			if err := handler(msg); err != nil {
				entry.WithError(err).Warn("Error processing message")
				if nackErr := msg.Nack(false, false); nackErr != nil {
					entry.WithError(nackErr).Error("Error nacking message")
				}
				continue
			}
			if ackErr := msg.Ack(false); ackErr != nil {
				entry.WithError(ackErr).Error("Error acking message")
			}
		}
	}
}
