package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/salemap/saled/internal/metrics"
	"github.com/salemap/saled/pkg/model"
)

const (
	envelopeVersion = "1.0.0"
	publishTimeout  = 5 * time.Second
)

// jetStream is the part of nats.JetStreamContext the publisher needs.
type jetStream interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher wraps a NATS connection and publishes canonical sale events.
type Publisher struct {
	nc      *nats.Conn
	js      jetStream
	jsm     nats.JetStreamManager
	service string
	logger  *zap.Logger
}

// New creates a Publisher backed by JetStream.
func New(nc *nats.Conn, service string, logger *zap.Logger) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, js: js, jsm: js, service: service, logger: logger}, nil
}

// EnsureStream creates the stream for subjects when it does not exist yet.
func (p *Publisher) EnsureStream(name string, subjects ...string) error {
	if p.jsm == nil {
		return errors.New("jetstream manager not initialized")
	}
	_, err := p.jsm.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", name, err)
	}
	if _, err := p.jsm.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: subjects,
		Storage:  nats.FileStorage,
	}); err != nil {
		return fmt.Errorf("add stream %s: %w", name, err)
	}
	p.logger.Info("publisher.stream_created", zap.String("stream", name), zap.Strings("subjects", subjects))
	return nil
}

// PublishEvent wraps payload in an envelope and publishes it to subject.
func (p *Publisher) PublishEvent(ctx context.Context, subject, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	env := &model.Envelope{
		ID:        uuid.New(),
		EventType: eventType,
		Version:   envelopeVersion,
		Source:    p.service,
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}
	return p.PublishEnvelope(ctx, subject, env)
}

// PublishEnvelope serializes and publishes a canonical event envelope.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("publisher.marshal_failed",
			zap.String("subject", subject),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			nats.MsgIdHdr:  []string{env.ID.String()},
			"event_type":   []string{env.EventType},
			"service":      []string{p.service},
			"content_type": []string{"application/json"},
		},
	}

	ctx, cancel := withPublishTimeout(ctx)
	defer cancel()

	start := time.Now()
	_, err = p.js.PublishMsg(msg, nats.Context(ctx))
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		p.logger.Error("publisher.publish_failed",
			zap.String("subject", subject),
			zap.String("event_type", env.EventType),
			zap.Error(err))
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	p.logger.Debug("publisher.publish_success",
		zap.String("subject", subject),
		zap.String("event_type", env.EventType))
	metrics.IncNATSMessage(subject, "ok")
	return nil
}

// Publish publishes a raw JSON payload without an envelope.
func (p *Publisher) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{"source": []string{p.service}},
	}

	ctx, cancel := withPublishTimeout(ctx)
	defer cancel()

	start := time.Now()
	_, err = p.js.PublishMsg(msg, nats.Context(ctx))
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		metrics.IncNATSMessage(subject, "error")
		return err
	}
	metrics.IncNATSMessage(subject, "ok")
	return nil
}

// withPublishTimeout bounds the ack wait when ctx carries no deadline.
func withPublishTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, publishTimeout)
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
