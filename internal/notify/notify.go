// Package notify publishes request lifecycle events so other services can
// follow a customization while it runs.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"resumecrew/internal/config"
	"resumecrew/internal/errors"
)

// Request statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Event is one status update for a request.
type Event struct {
	RequestID string    `json:"request_id"`
	Status    string    `json:"status"`
	Stage     string    `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error { return nil }

// New returns an AMQP publisher when notifications are enabled and Nop otherwise.
func New(cfg config.NotifyConfig, logger *errors.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	return NewAMQPPublisher(cfg, dialAMQP, logger)
}

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpConnection interface {
	Channel() (amqpChannel, error)
	IsClosed() bool
	Close() error
}

// DialFunc opens a broker connection.
type DialFunc func(url string, timeout time.Duration) (amqpConnection, error)

type streadwayConn struct{ *amqp.Connection }

func (c streadwayConn) Channel() (amqpChannel, error) { return c.Connection.Channel() }

func dialAMQP(url string, timeout time.Duration) (amqpConnection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, err
	}
	return streadwayConn{conn}, nil
}

// AMQPPublisher sends events as JSON to a topic exchange, routed by
// "<prefix>.<request id>". The connection is reopened if the broker drops it.
type AMQPPublisher struct {
	cfg    config.NotifyConfig
	dial   DialFunc
	logger *errors.Logger

	mu   sync.Mutex
	conn amqpConnection
}

// NewAMQPPublisher connects and declares the exchange.
func NewAMQPPublisher(cfg config.NotifyConfig, dial DialFunc, logger *errors.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	p := &AMQPPublisher{cfg: cfg, dial: dial, logger: logger}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.connection(); err != nil {
		return nil, err
	}
	logger.Info("Status notifications enabled", "exchange", cfg.Exchange)
	return p, nil
}

// connection returns a live connection, dialing if needed. Caller holds mu.
func (p *AMQPPublisher) connection() (amqpConnection, error) {
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}
	conn, err := p.dial(p.cfg.URL, p.cfg.PublishTimeout)
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeNotifyFailed, "failed to connect to message broker", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.NewNetworkError(errors.ErrCodeNotifyFailed, "failed to open broker channel", err)
	}
	defer func() { _ = ch.Close() }()
	if err := ch.ExchangeDeclare(p.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.NewNetworkError(errors.ErrCodeNotifyFailed, "failed to declare exchange", err).
			WithContext("exchange", p.cfg.Exchange)
	}
	p.conn = conn
	return conn, nil
}

// RoutingKey returns the key an event for requestID is published under.
func (p *AMQPPublisher) RoutingKey(requestID string) string {
	return fmt.Sprintf("%s.%s", p.cfg.RoutingKeyPrefix, requestID)
}

// Publish sends one event on a short-lived channel.
func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := p.connection()
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		return errors.NewNetworkError(errors.ErrCodeNotifyFailed, "failed to open broker channel", err)
	}
	defer func() { _ = ch.Close() }()

	err = ch.Publish(p.cfg.Exchange, p.RoutingKey(event.RequestID), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    event.Timestamp,
		MessageId:    event.RequestID,
		Body:         body,
	})
	if err != nil {
		return errors.NewNetworkError(errors.ErrCodeNotifyFailed, "failed to publish status event", err).
			WithContext("request_id", event.RequestID)
	}
	p.logger.Debug("Status event published", "request_id", event.RequestID, "status", event.Status)
	return nil
}

// Close closes the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}
