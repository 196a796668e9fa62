package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// channel is the subset of *amqp.Channel the forwarder uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPForwarder republishes domain events on a RabbitMQ topic exchange, using the
// event type as routing key.
type AMQPForwarder struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	log      *zap.Logger
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewAMQPForwarder dials the broker and declares a durable topic exchange.
func NewAMQPForwarder(amqpURL, exchange string, log *zap.Logger) (*AMQPForwarder, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	log.Info("connected to RabbitMQ", zap.String("exchange", exchange))
	return &AMQPForwarder{conn: conn, ch: ch, exchange: exchange, log: log}, nil
}

func newForwarder(ch channel, exchange string, log *zap.Logger) *AMQPForwarder {
	return &AMQPForwarder{ch: ch, exchange: exchange, log: log}
}

// Forward is an events.Handler.
func (f *AMQPForwarder) Forward(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	f.mu.Lock()
	defer f.mu.Unlock()

	err = f.ch.PublishWithContext(ctx, f.exchange, string(event.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.Timestamp,
		Type:         string(event.Type),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", event.Type, err)
	}

	f.log.Debug("event forwarded", zap.String("event", string(event.Type)))
	return nil
}

// Attach subscribes the forwarder to every event the manager emits.
func (f *AMQPForwarder) Attach(m *Manager) {
	m.SubscribeAll(f.Forward)
}

// CloseAfter shuts m down, waiting for in-flight hooks to publish, and then closes
// the channel and the connection.
func (f *AMQPForwarder) CloseAfter(m *Manager) {
	m.Shutdown()
	f.Close()
}

// Close closes the channel and the connection.
func (f *AMQPForwarder) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ch != nil {
		_ = f.ch.Close()
	}
	if f.conn != nil {
		_ = f.conn.Close()
	}
}
