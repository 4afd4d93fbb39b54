package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rajyaabhishek/LawX-sub001/internal/logger"
	"github.com/rajyaabhishek/LawX-sub001/internal/observability"
	"github.com/rajyaabhishek/LawX-sub001/internal/telemetry"
)

// ErrConnectionLost is returned by publishes after the broker dropped the
// connection. The service keeps running; events are lost until restart.
var ErrConnectionLost = errors.New("rabbitmq connection lost")

// Publisher publishes domain and audit events to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error
	Close() error
}

// NewPublisher connects to amqpURL and declares exchange. Any failure,
// including an empty URL, yields a noop publisher that records why.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		logger.Warn().Str("exchange", exchange).Msg("rabbitmq disabled, using noop: empty amqp url")
		return noopPublisher{reason: "empty amqp url"}
	}

	p, err := dial(amqpURL, exchange)
	if err != nil {
		logger.Warn().Err(err).Str("exchange", exchange).Msg("rabbitmq disabled, using noop")
		return noopPublisher{reason: err.Error()}
	}

	logger.Info().Str("exchange", exchange).Msg("rabbitmq connected")
	return p
}

func dial(amqpURL, exchange string) (*amqpPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p := &amqpPublisher{conn: conn, ch: ch, exchange: exchange}
	go p.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))
	return p, nil
}

// amqpPublisher serializes publishes: an amqp.Channel must not be used
// from several goroutines at once.
type amqpPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	lost     bool
}

// watch marks the publisher lost when the broker closes the connection.
// A clean Close delivers nil and closes the channel.
func (p *amqpPublisher) watch(closed <-chan *amqp.Error) {
	amqpErr, ok := <-closed
	if !ok || amqpErr == nil {
		return
	}
	logger.Error().Str("exchange", p.exchange).Str("reason", amqpErr.Reason).Int("code", amqpErr.Code).
		Msg("rabbitmq connection lost")

	p.mu.Lock()
	p.lost = true
	p.mu.Unlock()
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	return p.PublishJSON(ctx, routingKey, event, nil)
}

func (p *amqpPublisher) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	msg, err := publishing(message, headers)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.lost {
		p.mu.Unlock()
		return ErrConnectionLost
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	p.mu.Unlock()
	if err != nil {
		logger.Warn().Err(err).Str("routing_key", routingKey).Msg("rabbitmq publish failed")
	}
	return err
}

// publishing builds a persistent JSON message. The request id header, when
// present, doubles as the message id so consumers can dedupe redeliveries.
func publishing(message interface{}, headers map[string]string) (amqp.Publishing, error) {
	body, err := json.Marshal(message)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}
	if len(headers) > 0 {
		msg.Headers = make(amqp.Table, len(headers))
		for k, v := range headers {
			msg.Headers[k] = v
		}
		msg.MessageId = headers["x-request-id"]
	}
	return msg, nil
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}

// noopPublisher logs at debug level instead of publishing.
type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	e := logger.Debug().Str("routing_key", routingKey)
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		e = e.Str("event_type", envelope.EventType).Str("request_id", envelope.RequestID)
	case observability.EventEnvelope:
		e = e.Str("event_type", envelope.EventType).Str("event_name", envelope.EventName)
	}
	e.Msg("rabbitmq noop publish")
	return nil
}

func (n noopPublisher) PublishJSON(ctx context.Context, routingKey string, message interface{}, _ map[string]string) error {
	return n.Publish(ctx, routingKey, message)
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode is "amqp" or "noop", for the startup log.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason is why a noop publisher was chosen, or "".
func PublisherNoopReason(p Publisher) string {
	if n, ok := p.(noopPublisher); ok {
		return n.reason
	}
	return ""
}
