// Package queue implements the durable hand-off of page results across
// the outbound message channel, with at-least-once delivery.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/crawlfleet/crawlfleet/internal/crawl"
	"github.com/crawlfleet/crawlfleet/internal/metrics"
)

// ContentTypeAny disables the consumer's content-type check.
const ContentTypeAny = "*"

// Config carries broker connection parameters.
type Config struct {
	User          string
	Password      string
	Host          string
	Port          int
	Queue         string
	ConsumerLabel string
	// ContentType is what the consumer expects on deliveries;
	// ContentTypeAny accepts anything.
	ContentType string
}

// URL renders the AMQP connection string. Credentials stay out of logs.
func (c Config) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d", c.User, c.Password, c.Host, c.Port)
}

// Handler processes one decoded page result on the consume side.
type Handler func(ctx context.Context, page crawl.PageResult) error

// Rabbit is the broker client: a publisher of page results and the
// symmetric consumer. One instance owns one connection and one channel;
// concurrent Enqueue calls are serialized on that channel.
type Rabbit struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	consumerTag string
	contentType string
	metrics     *metrics.Set
	logger      *zap.Logger

	pubMu sync.Mutex
}

// Dial connects to the broker, opens a confirm-mode channel, and
// declares the durable named queue. Every failure here is a transport
// fault: nothing can run without the broker.
func Dial(cfg Config, m *metrics.Set, logger *zap.Logger) (*Rabbit, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, &crawl.TransportError{Op: "amqp dial", Err: err}
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, &crawl.TransportError{Op: "amqp channel", Err: err}
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, &crawl.TransportError{Op: "amqp confirm mode", Err: err}
	}

	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, &crawl.TransportError{Op: "queue declare", Err: err}
	}
	logger.Info("queue declared",
		zap.String("queue", cfg.Queue),
		zap.String("host", cfg.Host), zap.Int("port", cfg.Port))

	contentType := cfg.ContentType
	if contentType == "" {
		contentType = "application/json"
	}

	return &Rabbit{
		conn:        conn,
		ch:          ch,
		queue:       cfg.Queue,
		consumerTag: fmt.Sprintf("crawler-%s", cfg.ConsumerLabel),
		contentType: contentType,
		metrics:     m,
		logger:      logger,
	}, nil
}

// Enqueue serializes payload as JSON, publishes it to the durable
// queue, and waits for the broker's acknowledgment. A serialization
// failure is reported immediately and never retried; send and confirm
// failures are transport faults.
func (r *Rabbit) Enqueue(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	// Publishes on a single channel must not interleave.
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	confirm, err := r.ch.PublishWithDeferredConfirmWithContext(ctx, "", r.queue, false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        data,
		})
	if err != nil {
		return &crawl.TransportError{Op: "publish", Err: err}
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("publish confirm wait: %w", ctx.Err())
	case <-confirm.Done():
	}
	if !confirm.Acked() {
		return &crawl.TransportError{Op: "publish confirm", Err: errors.New("broker rejected message")}
	}
	r.logger.Debug("message published", zap.String("queue", r.queue), zap.Int("bytes", len(data)))
	return nil
}

// Consume subscribes to the queue and feeds decoded page results to
// handler until ctx finishes or the transport fails. Each delivery is
// settled exactly once: acked on handler success, rejected without
// requeue on decode or handler failure.
func (r *Rabbit) Consume(ctx context.Context, handler Handler) error {
	deliveries, err := r.ch.ConsumeWithContext(ctx, r.queue, r.consumerTag, false, false, false, false, nil)
	if err != nil {
		return &crawl.TransportError{Op: "consume", Err: err}
	}
	closed := r.conn.NotifyClose(make(chan *amqp.Error, 1))
	r.logger.Info("consumer started",
		zap.String("queue", r.queue), zap.String("consumer_tag", r.consumerTag))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			return &crawl.TransportError{Op: "connection closed", Err: amqpErr}
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return &crawl.TransportError{Op: "consume", Err: errors.New("delivery channel closed")}
			}
			if err := r.handleDelivery(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

// handleDelivery settles one delivery. Decode and handler failures are
// absorbed here; only a failed ack/reject is returned, since losing
// the ability to settle messages is a transport fault.
func (r *Rabbit) handleDelivery(ctx context.Context, d amqp.Delivery, handler Handler) error {
	r.metrics.MessageConsumed()

	if r.contentType != ContentTypeAny && d.ContentType != r.contentType {
		r.logger.Warn("unexpected content type; rejecting",
			zap.String("content_type", d.ContentType), zap.Uint64("delivery_tag", d.DeliveryTag))
		return r.reject(d)
	}

	var page crawl.PageResult
	if err := json.Unmarshal(d.Body, &page); err != nil {
		r.logger.Warn("undecodable message; rejecting",
			zap.Error(err), zap.Uint64("delivery_tag", d.DeliveryTag))
		return r.reject(d)
	}

	if err := handler(ctx, page); err != nil {
		r.logger.Warn("handler failed; rejecting without requeue",
			zap.String("url", page.URL), zap.Error(err), zap.Uint64("delivery_tag", d.DeliveryTag))
		return r.reject(d)
	}

	if err := d.Ack(false); err != nil {
		return &crawl.TransportError{Op: "ack", Err: err}
	}
	r.metrics.MessageAcked()
	return nil
}

func (r *Rabbit) reject(d amqp.Delivery) error {
	if err := d.Nack(false, false); err != nil {
		return &crawl.TransportError{Op: "nack", Err: err}
	}
	r.metrics.MessageRejected()
	return nil
}

// Close shuts the channel and connection down gracefully.
func (r *Rabbit) Close() error {
	if err := r.ch.Close(); err != nil {
		return fmt.Errorf("close channel: %w", err)
	}
	if err := r.conn.Close(); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}
