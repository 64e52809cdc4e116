package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Client publishes entry change events to a durable fanout exchange. Each
// consuming process reads from its own exclusive queue bound to that
// exchange, so every process sees every change. Events carry the publishing
// client's origin in AppId and a consumer skips its own.
type Client struct {
	mu           sync.Mutex
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queuePrefix  string
	origin       string
}

func NewClient(url, exchangeName, queuePrefix string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queuePrefix:  queuePrefix,
		origin:       uuid.NewString(),
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"fanout",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return nil
}

// Origin identifies this client on the events it publishes.
func (c *Client) Origin() string {
	return c.origin
}

func (c *Client) consumerQueue() string {
	return c.queuePrefix + "." + c.origin
}

func (c *Client) fromSelf(d amqp091.Delivery) bool {
	return d.AppId != "" && d.AppId == c.origin
}

// PublishEntryChanged publishes a persistent change event.
func (c *Client) PublishEntryChanged(ctx context.Context, msg *EntryChangedMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	// amqp091 channels are not safe for concurrent publishing.
	c.mu.Lock()
	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		"",             // routing key, ignored by fanout
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Transient,
			MessageId:    msg.ID,
			AppId:        c.origin,
			Timestamp:    msg.Timestamp,
			Type:         "entry." + msg.Op,
			Body:         body,
		},
	)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	slog.DebugContext(ctx, "Published entry change",
		"id", msg.ID,
		"op", msg.Op,
		"date", msg.Date,
		"name", msg.Name,
		"quantity", msg.Quantity)

	return nil
}

// ConsumeEntryChanges delivers change events published by other clients to
// handler until ctx ends. The queue is exclusive to this client and removed
// with it. Malformed messages are dropped; handler errors requeue the message.
func (c *Client) ConsumeEntryChanges(ctx context.Context, handler func(*EntryChangedMessage) error) error {
	queue := c.consumerQueue()

	c.mu.Lock()
	msgs, err := c.declareAndConsume(queue)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Started consuming entry changes", "queue", queue, "exchange", c.exchangeName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed: %w", amqp091.ErrClosed)
			}

			if c.fromSelf(delivery) {
				delivery.Ack(false)
				continue
			}

			msg, err := EntryChangedMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false)
				continue
			}

			if err := handler(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle message", "error", err, "id", msg.ID)
				delivery.Nack(false, true)
				continue
			}

			delivery.Ack(false)
		}
	}
}

func (c *Client) declareAndConsume(queue string) (<-chan amqp091.Delivery, error) {
	_, err := c.channel.QueueDeclare(
		queue, // name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := c.channel.QueueBind(queue, "", c.exchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	msgs, err := c.channel.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("start consuming: %w", err)
	}
	return msgs, nil
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnectionError reports whether err looks like a dropped broker connection.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection closed", "eof", "broken pipe", "use of closed network connection"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
