// Package amqp carries expense change events between the API and the
// spreadsheet worker over RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// bindingKey subscribes the queue to every expense event type.
	bindingKey = "expense.#"

	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
	publishTimeout   = 5 * time.Second
	maxBackoff       = 30 * time.Second
	prefetchCount    = 10
)

// ErrCircuitOpen is returned by Publish while the broker is considered down.
var ErrCircuitOpen = errors.New("amqp: circuit open, broker unavailable")

// Handler processes one event. A returned error sends the delivery back to
// the queue once.
type Handler func(context.Context, *ExpenseEvent) error

// Client publishes and consumes expense events on a durable topic
// exchange. Each event is routed by its type.
type Client struct {
	url      string
	exchange string
	queue    string
	breaker  *breaker

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// NewClient dials the broker and declares the exchange, the queue and
// their binding.
func NewClient(url, exchange, queue string) (*Client, error) {
	c := &Client{
		url:      url,
		exchange: exchange,
		queue:    queue,
		breaker:  newBreaker(breakerThreshold, breakerCooldown),
	}
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialLocked()
}

func (c *Client) dialLocked() error {
	c.closeLocked()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch, c.exchange, c.queue); err != nil {
		ch.Close()
		conn.Close()
		return err
	}
	c.conn, c.channel = conn, ch
	return nil
}

func declareTopology(ch *amqp091.Channel, exchange, queue string) error {
	const (
		durable    = true
		autoDelete = false
		internal   = false
		exclusive  = false
		noWait     = false
	)
	if err := ch.ExchangeDeclare(exchange, amqp091.ExchangeTopic, durable, autoDelete, internal, noWait, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if _, err := ch.QueueDeclare(queue, durable, autoDelete, exclusive, noWait, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, bindingKey, exchange, noWait, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	return nil
}

// openChannel returns the live channel, dialling again when the broker
// closed the previous one.
func (c *Client) openChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	if err := c.dialLocked(); err != nil {
		return nil, err
	}
	return c.channel, nil
}

// Publish sends event with its type as routing key. It fails fast with
// ErrCircuitOpen after repeated broker failures.
func (c *Client) Publish(ctx context.Context, event *ExpenseEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.breaker.allow() {
		return ErrCircuitOpen
	}

	body, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	ch, err := c.openChannel()
	if err != nil {
		c.breaker.failure()
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    event.Timestamp,
		Type:         string(event.Type),
		MessageId:    event.ExpenseID,
		Headers:      amqp091.Table{"user_id": event.UserID},
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, c.exchange, string(event.Type), false, false, msg); err != nil {
		c.breaker.failure()
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	c.breaker.success()

	slog.DebugContext(ctx, "Published expense event",
		"event_type", event.Type,
		"expense_id", event.ExpenseID,
		"exchange", c.exchange)
	return nil
}

// Consume feeds events to handle until ctx is cancelled. A dropped broker
// link is re-established with capped exponential backoff; any other
// failure ends consumption.
func (c *Client) Consume(ctx context.Context, handle Handler) error {
	attempt := 0
	for {
		err := c.consume(ctx, handle, func() { attempt = 0 })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}

		delay := exponentialBackoff(attempt)
		attempt++
		slog.WarnContext(ctx, "AMQP connection lost, reconnecting",
			"error", err,
			"attempt", attempt,
			"delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if err := c.reconnect(); err != nil {
			slog.ErrorContext(ctx, "AMQP reconnect failed", "error", err)
		}
	}
}

func (c *Client) consume(ctx context.Context, handle Handler, subscribed func()) error {
	ch, err := c.openChannel()
	if err != nil {
		return err
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	const autoAck, exclusive, noLocal, noWait = false, false, false, false
	deliveries, err := ch.Consume(c.queue, "", autoAck, exclusive, noLocal, noWait, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	subscribed()
	slog.InfoContext(ctx, "Consuming expense events", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed: %w", amqp091.ErrClosed)
			}
			settle(ctx, d, handle)
		}
	}
}

// settle runs handle and acks, requeues or drops the delivery. A message
// gets one redelivery, so a poison event cannot stall the queue.
func settle(ctx context.Context, d amqp091.Delivery, handle Handler) {
	event, err := ExpenseEventFromJSON(d.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Dropping undecodable event", "error", err, "routing_key", d.RoutingKey)
		_ = d.Nack(false, false)
		return
	}

	if err := handle(ctx, event); err != nil {
		requeue := !d.Redelivered
		slog.ErrorContext(ctx, "Failed to handle expense event",
			"error", err,
			"event_type", event.Type,
			"expense_id", event.ExpenseID,
			"requeue", requeue)
		_ = d.Nack(false, requeue)
		return
	}

	_ = d.Ack(false)
	slog.DebugContext(ctx, "Processed expense event",
		"event_type", event.Type,
		"expense_id", event.ExpenseID)
}

// exponentialBackoff returns 1s, 2s, 4s ... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		return maxBackoff
	}
	return min(time.Second<<attempt, maxBackoff)
}

// isConnectionError reports whether err means the broker link is gone and
// a reconnect may help.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	var amqpErr *amqp091.Error
	if errors.As(err, &amqpErr) && amqpErr.Recover {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"closed network connection",
		"EOF",
		"broken pipe",
		"dial AMQP",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) closeLocked() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
			errs = append(errs, err)
		}
		c.channel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
			errs = append(errs, err)
		}
		c.conn = nil
	}
	return errors.Join(errs...)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}
