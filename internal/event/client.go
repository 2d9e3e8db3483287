// Package event is the glue between the ledger and its downstream
// consumers: a thin ordered event log over an AMQP broker with
// at-least-once delivery and per-topic FIFO queues.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// ErrPublish wraps transport failures on the publish path. Callers on the
// write path treat it as non-fatal: the ledger write is the source of truth.
var ErrPublish = errors.New("event: publish failed")

type Client struct {
	url          string
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	topics       []string

	// Serializes publishes so that, within one process, events for the
	// same key leave in the order emit was called. Also guards the
	// conn/channel swap on redial.
	publishMu sync.Mutex
}

// NewClient dials the broker and declares the exchange plus one durable
// queue per topic, each bound under its topic name.
func NewClient(url, exchangeName string, topics ...string) (*Client, error) {
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
		url:          url,
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		topics:       topics,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, topic := range c.topics {
		_, err = c.channel.QueueDeclare(
			topic, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", topic, err)
		}

		err = c.channel.QueueBind(
			topic,          // queue name
			topic,          // routing key
			c.exchangeName, // exchange
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("bind queue %s: %w", topic, err)
		}
	}

	return nil
}

// Publish emits a domain event to a topic. The ordering key is derived
// from the payload (id, falling back to client/customer/account id) and
// carried as the message id.
func (c *Client) Publish(ctx context.Context, topic, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal payload: %v", ErrPublish, err)
	}
	envelope, err := NewEnvelope(eventType, body).ToJSON()
	if err != nil {
		return fmt.Errorf("%w: marshal envelope: %v", ErrPublish, err)
	}
	key := keyFromPayload(body)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		topic,          // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    key,
			Timestamp:    time.Now(),
			Body:         envelope,
		},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}

	slog.InfoContext(ctx, "Published domain event",
		"topic", topic,
		"event_type", eventType,
		"event_key", key)
	return nil
}

// Handler processes one delivered envelope. A returned error requeues the
// message for redelivery (at-least-once); nil acknowledges it.
type Handler func(ctx context.Context, envelope *Envelope) error

// Consume subscribes to one topic queue and applies handler to each
// delivered message in order. Malformed envelopes are dropped with a
// warning rather than requeued, so a poison message can never block the
// queue. On connection loss it redials with capped exponential backoff
// until ctx is cancelled.
func (c *Client) Consume(ctx context.Context, topic string, handler Handler) error {
	for attempt := 0; ; attempt++ {
		err := c.consumeLoop(ctx, topic, handler)
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		if !isConnectionError(err) {
			return err
		}

		backoff := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "Consumer connection lost, redialing",
			"topic", topic,
			"error", err,
			"backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if err := c.redial(); err != nil {
			slog.ErrorContext(ctx, "Redial failed", "error", err)
			continue
		}
		attempt = -1 // fresh connection, reset the backoff ladder
	}
}

func (c *Client) consumeLoop(ctx context.Context, topic string, handler Handler) error {
	msgs, err := c.channel.Consume(
		topic, // queue
		"",    // consumer
		false, // auto-ack (we want manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming domain events", "topic", topic)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping event consumption", "topic", topic, "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			envelope, err := EnvelopeFromJSON(delivery.Body)
			if err != nil {
				slog.WarnContext(ctx, "Skipping malformed event", "topic", topic, "error", err)
				delivery.Nack(false, false) // drop, never requeue poison
				continue
			}

			if err := handler(ctx, envelope); err != nil {
				slog.ErrorContext(ctx, "Failed to handle event",
					"topic", topic,
					"event_type", envelope.Type,
					"error", err)
				delivery.Nack(false, true) // requeue for redelivery
				continue
			}

			delivery.Ack(false)
		}
	}
}

func (c *Client) redial() error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.closeConn()
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("redial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("reopen channel: %w", err)
	}
	c.conn = conn
	c.channel = channel
	return c.setup()
}

func (c *Client) Close() error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	return c.closeConn()
}

// closeConn tears down the channel and connection. Callers hold publishMu.
func (c *Client) closeConn() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// exponentialBackoff returns the redial delay for the given attempt,
// doubling from one second and capped at 30 seconds.
func exponentialBackoff(attempt int) time.Duration {
	const maxDelay = 30 * time.Second
	if attempt < 0 {
		attempt = 0
	}
	d := time.Second << uint(attempt)
	if d <= 0 || d > maxDelay {
		return maxDelay
	}
	return d
}

// isConnectionError reports whether err looks like a broken broker
// connection, as opposed to a protocol or application error.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var amqpErr *amqp091.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Code == amqp091.ConnectionForced || amqpErr.Code == amqp091.ChannelError
	}
	msg := err.Error()
	for _, fragment := range []string{
		"connection refused",
		"connection closed",
		"connection reset",
		"unexpected EOF",
		"broken pipe",
		"use of closed network connection",
		"message channel closed",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
