// Package amqp publishes flag alerts and scan summaries to a RabbitMQ
// exchange.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"

	"cardwatch/internal/alerts"
	"cardwatch/internal/core"
	"cardwatch/internal/log"
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxRetries     = 3
	retryDelay     = time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
)

// ErrCircuitOpen is returned while the breaker rejects publishes.
var ErrCircuitOpen = gobreaker.ErrOpenState

type sendFunc func(ctx context.Context, msgType string, runID uuid.UUID, body []byte) error

// Client implements alerts.Publisher. It reconnects lazily after the broker
// drops the connection.
type Client struct {
	url          string
	exchangeName string
	routingKey   string
	logger       *log.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	cb         *gobreaker.CircuitBreaker
	retryDelay time.Duration
	send       sendFunc
}

// newBreaker opens after maxFailures consecutive failed publishes and lets a
// single trial through once timeout has passed.
func newBreaker(timeout time.Duration, logger *log.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "amqp-publisher",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})
}

func newClient(url, exchangeName, routingKey string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentAMQP)
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		routingKey:   routingKey,
		logger:       logger,
		cb:           newBreaker(openTimeout, logger),
		retryDelay:   retryDelay,
	}
	c.send = c.publishOnce
	return c
}

func NewClient(url, exchangeName, routingKey string, logger *log.Logger) (*Client, error) {
	client := newClient(url, exchangeName, routingKey, logger)

	client.mu.Lock()
	err := client.connect()
	client.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return client, nil
}

// connect dials and declares the topology. c.mu must be held.
func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.conn = conn
	c.channel = channel

	if err := c.setup(); err != nil {
		c.reset()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	return nil
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

	// A durable queue named after the routing key keeps alerts until a
	// consumer shows up.
	_, err = c.channel.QueueDeclare(
		c.routingKey, // name
		true,         // durable
		false,        // delete when unused
		false,        // exclusive
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.routingKey,   // queue name
		c.routingKey,   // routing key
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// reset drops the current connection. c.mu must be held.
func (c *Client) reset() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// PublishFlag implements alerts.Publisher
func (c *Client) PublishFlag(ctx context.Context, runID uuid.UUID, f core.Flag) error {
	body, err := NewFlagAlertMessage(runID.String(), f).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.publish(ctx, TypeFlagAlert, runID, body); err != nil {
		return err
	}

	c.logger.DebugContext(ctx, "Published flag alert", log.NewFields().
		WithFlag(f).
		WithOperation(log.OpPublish).
		ToSlice()...)
	return nil
}

// PublishSummary implements alerts.Publisher
func (c *Client) PublishSummary(ctx context.Context, s alerts.Summary) error {
	body, err := NewScanSummaryMessage(s).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.publish(ctx, TypeScanSummary, s.RunID, body); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "Published scan summary",
		log.FieldRunID, s.RunID.String(),
		log.FieldFlagged, len(s.Flagged),
		"exchange", c.exchangeName,
		"routing_key", c.routingKey)
	return nil
}

func (c *Client) publish(ctx context.Context, msgType string, runID uuid.UUID, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := c.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(maxRetries),
			retry.Delay(c.retryDelay),
			retry.MaxDelay(maxBackoff),
			retry.DelayType(retry.BackOffDelay),
			retry.RetryIf(isConnectionError),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) {
				c.logger.WarnContext(ctx, "Retrying publish",
					"attempt", n+1,
					log.FieldError, err)
			}),
		)

		return nil, r.Do(func() error {
			err := c.send(ctx, msgType, runID, body)
			if isConnectionError(err) {
				c.mu.Lock()
				c.reset()
				c.mu.Unlock()
			}
			return err
		})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("publish %s: %w", msgType, err)
	}
	return nil
}

func (c *Client) publishOnce(ctx context.Context, msgType string, runID uuid.UUID, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil || c.channel.IsClosed() {
		c.reset()
		if err := c.connect(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.routingKey,   // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			Timestamp:     time.Now(),
			Type:          msgType,
			CorrelationId: runID.String(),
			MessageId:     uuid.NewString(),
			Body:          body,
		},
	)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection closed",
		"connection reset",
		"EOF",
		"broken pipe",
		"use of closed network connection",
		"channel/connection is not open",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}
