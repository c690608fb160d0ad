package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/salemap/saled/pkg/model"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Producer publishes sale-created notifications.
type Producer struct {
	conn    *amqp.Connection
	channel amqpChannel
	queue   string
	logger  *zap.Logger
}

// NewProducer dials RabbitMQ and declares the durable queue.
func NewProducer(url, queue string, logger *zap.Logger) (*Producer, error) {
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
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return &Producer{conn: conn, channel: channel, queue: queue, logger: logger}, nil
}

// PublishSaleCreated enqueues a persistent creation notification.
func (p *Producer) PublishSaleCreated(ctx context.Context, evt model.SaleCreated) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal sale.created: %w", err)
	}

	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	err = p.channel.PublishWithContext(
		ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    evt.SaleID,
			Type:         model.EventSaleCreated,
			Timestamp:    ts,
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Error("rabbitmq.publish_failed", zap.String("sale_id", evt.SaleID), zap.Error(err))
		return err
	}

	p.logger.Debug("rabbitmq.published", zap.String("queue", p.queue), zap.String("sale_id", evt.SaleID))
	return nil
}

// Close closes the channel and connection.
func (p *Producer) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
