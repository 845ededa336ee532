// Package queue consumes encounter-complete events from the message broker.
// Each delivery carries a sink-connector envelope whose base64 key is the
// encounter id.
package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Event is one encounter-complete notification.
type Event struct {
	Topic       string
	EncounterID string
}

// envelope mirrors the sink-connector delivery body:
//
//	{"payload": {"topic": "...", "key": "<base64 encounter id>", ...}}
type envelope struct {
	Payload struct {
		Topic string `json:"topic"`
		Key   string `json:"key"`
	} `json:"payload"`
}

// Config holds the broker connection settings.
type Config struct {
	URL   string
	Queue string
}

// Consumer reads encounter-complete events from a durable queue.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  zerolog.Logger
}

// Connect dials the broker and declares the durable queue.
func Connect(cfg Config, logger zerolog.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dialing broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring queue %s: %w", cfg.Queue, err)
	}
	return &Consumer{conn: conn, channel: ch, queue: cfg.Queue, logger: logger}, nil
}

// Consume delivers decoded events to handler until the context ends or the
// broker closes the channel. Undecodable deliveries are logged and dropped.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, Event)) error {
	deliveries, err := c.channel.Consume(c.queue, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consuming queue %s: %w", c.queue, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("queue %s: delivery channel closed", c.queue)
			}
			event, err := DecodeEvent(delivery.Body)
			if err != nil {
				c.logger.Warn().Err(err).Msg("dropping undecodable delivery")
				continue
			}
			handler(ctx, event)
		}
	}
}

// Close tears down the channel and connection.
func (c *Consumer) Close() error {
	if err := c.channel.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}

// DecodeEvent unpacks a sink-connector delivery body into an Event.
func DecodeEvent(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("decoding delivery envelope: %w", err)
	}
	id, err := base64.StdEncoding.DecodeString(env.Payload.Key)
	if err != nil {
		return Event{}, fmt.Errorf("decoding event key: %w", err)
	}
	return Event{Topic: env.Payload.Topic, EncounterID: string(id)}, nil
}
