package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/salemap/saled/internal/metrics"
	"github.com/salemap/saled/pkg/model"
)

// DefaultSaleCreatedQueue carries one message per newly created sale.
const DefaultSaleCreatedQueue = "sales.created"

const prefetch = 8

// SaleCreatedFunc handles one decoded creation notification. A returned error
// requeues the delivery.
type SaleCreatedFunc func(ctx context.Context, evt model.SaleCreated) error

type action string

const (
	actionAck     action = "ack"
	actionRequeue action = "requeue"
	actionDrop    action = "drop"
)

// Consumer feeds sale-created deliveries to a handler with manual acks.
type Consumer struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queue     string
	handle    SaleCreatedFunc
	logger    *zap.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// NewConsumer dials RabbitMQ and opens a channel.
func NewConsumer(url, queue string, handle SaleCreatedFunc, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if queue == "" {
		queue = DefaultSaleCreatedQueue
	}
	return &Consumer{
		conn:    conn,
		channel: channel,
		queue:   queue,
		handle:  handle,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Start declares the queue and consumes it in a background goroutine.
func (c *Consumer) Start(ctx context.Context) error {
	if _, err := c.channel.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", c.queue, err)
	}
	if err := c.channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", c.queue, err)
	}

	c.logger.Info("rabbitmq.consumer_started", zap.String("queue", c.queue))
	go c.consume(ctx, msgs)
	return nil
}

func (c *Consumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("rabbitmq.channel_closed", zap.String("queue", c.queue))
				return
			}
			c.handleDelivery(ctx, msg)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, msg amqp.Delivery) action {
	var evt model.SaleCreated
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		c.logger.Error("rabbitmq.decode_failed", zap.String("queue", c.queue), zap.Error(err))
		return c.settle(msg, actionDrop)
	}
	if evt.SaleID == "" && evt.Sale.ID == "" {
		c.logger.Error("rabbitmq.missing_sale_id", zap.String("queue", c.queue))
		return c.settle(msg, actionDrop)
	}

	if err := c.handle(ctx, evt); err != nil {
		c.logger.Error("rabbitmq.handler_failed",
			zap.String("sale_id", evt.SaleID),
			zap.Bool("redelivered", msg.Redelivered),
			zap.Error(err))
		return c.settle(msg, actionRequeue)
	}
	return c.settle(msg, actionAck)
}

func (c *Consumer) settle(msg amqp.Delivery, a action) action {
	var err error
	switch a {
	case actionAck:
		err = msg.Ack(false)
	case actionRequeue:
		err = msg.Nack(false, true)
	case actionDrop:
		err = msg.Nack(false, false)
	}
	if err != nil {
		c.logger.Warn("rabbitmq.settle_failed", zap.String("action", string(a)), zap.Error(err))
	}
	metrics.IncAMQPDelivery(c.queue, string(a))
	return a
}

// Close stops consuming and closes the channel and connection.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
