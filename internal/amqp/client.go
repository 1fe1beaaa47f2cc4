package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mohammedovez-84/Expense-management-sub001/internal/core"
)

const publishTimeout = 5 * time.Second

// Client wraps an AMQP connection used to publish and consume settlement
// notices. Publishing is fire-and-forget from the ledger's point of view:
// a failed publish is logged by the caller and never rolls back a settle.
type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
}

// NewClient connects to the broker and declares the durable exchange,
// queue and binding used for settlement notices.
func NewClient(url, exchange, queue string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	client := &Client{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		queue:    queue,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

func (c *Client) setup() error {
	if err := c.channel.ExchangeDeclare(
		c.exchange,
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := c.channel.QueueDeclare(
		c.queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := c.channel.QueueBind(c.queue, c.queue, c.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	return nil
}

// PublishSettlementNotice publishes a notice to the settlement exchange
// with persistent delivery.
func (c *Client) PublishSettlementNotice(ctx context.Context, notice *SettlementNotice) error {
	body, err := notice.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize settlement notice: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.channel.PublishWithContext(pubCtx,
		c.exchange,
		c.queue, // routing key matches the queue binding
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish settlement notice: %w", err)
	}

	slog.InfoContext(ctx, "settlement notice published",
		"reimbursement_id", notice.ReimbursementID,
		"user_id", notice.UserID,
		"amount_cents", notice.AmountCents,
	)
	return nil
}

// NotifySettlement satisfies the services.SettlementNotifier port.
func (c *Client) NotifySettlement(ctx context.Context, r core.Reimbursement) error {
	return c.PublishSettlementNotice(ctx, NewSettlementNotice(r))
}

// ConsumeSettlementNotices delivers notices to handler until ctx is
// cancelled. Messages are acked on success and nacked with requeue on
// handler error.
func (c *Client) ConsumeSettlementNotices(ctx context.Context, handler func(context.Context, *SettlementNotice) error) error {
	deliveries, err := c.channel.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack off, we ack manually
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	slog.InfoContext(ctx, "consuming settlement notices", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("AMQP delivery channel closed")
			}
			c.handleDelivery(ctx, delivery, handler)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, delivery amqp.Delivery, handler func(context.Context, *SettlementNotice) error) {
	notice, err := SettlementNoticeFromJSON(delivery.Body)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse settlement notice, dropping", "error", err)
		// Malformed payloads can never succeed, do not requeue.
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			slog.ErrorContext(ctx, "failed to nack message", "error", nackErr)
		}
		return
	}

	if err := handler(ctx, notice); err != nil {
		slog.ErrorContext(ctx, "settlement notice handler failed, requeueing",
			"reimbursement_id", notice.ReimbursementID,
			"error", err,
		)
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			slog.ErrorContext(ctx, "failed to nack message", "error", nackErr)
		}
		return
	}

	if err := delivery.Ack(false); err != nil {
		slog.ErrorContext(ctx, "failed to ack message", "error", err)
	}
}

// Close closes the channel and connection.
func (c *Client) Close() error {
	var firstErr error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
