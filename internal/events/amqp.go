package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the durable queue session events are routed to.
const DefaultQueue = "session.events"

const (
	bufferSize     = 256
	publishTimeout = 5 * time.Second
	drainTimeout   = 10 * time.Second
	minRedialDelay = time.Second
	maxRedialDelay = 30 * time.Second
)

var (
	// ErrPublisherClosed is returned by Publish after Close.
	ErrPublisherClosed = errors.New("amqp publisher closed")
	// ErrBufferFull is returned when events arrive faster than the broker
	// accepts them. The event is dropped.
	ErrBufferFull = errors.New("amqp publish buffer full")
)

// broker is the part of an AMQP connection the publisher uses.
type broker interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type dialFunc func(url, queue string) (broker, error)

type amqpSession struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func (s amqpSession) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return s.ch.PublishWithContext(ctx, exchange, key, mandatory, immediate, msg)
}

func (s amqpSession) IsClosed() bool { return s.conn.IsClosed() || s.ch.IsClosed() }

func (s amqpSession) Close() error { return errors.Join(s.ch.Close(), s.conn.Close()) }

func dialBroker(url, queue string) (broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return amqpSession{conn: conn, ch: ch}, nil
}

// AMQPPublisher queues events in memory and delivers them to a durable
// RabbitMQ queue from a single worker. A lost connection is redialed on the
// next delivery, with exponential backoff while the broker stays down.
type AMQPPublisher struct {
	url    string
	queue  string
	dial   dialFunc
	logger *slog.Logger
	now    func() time.Time

	buffer    chan Event
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// Owned by the worker.
	session broker
	retryAt time.Time
	delay   time.Duration
}

// DialAMQP connects to the broker at url, declares queue and starts the
// delivery worker. The first connection must succeed.
func DialAMQP(url, queue string, logger *slog.Logger) (*AMQPPublisher, error) {
	if url == "" {
		return nil, errors.New("amqp url must be provided")
	}
	if queue == "" {
		queue = DefaultQueue
	}

	session, err := dialBroker(url, queue)
	if err != nil {
		return nil, err
	}

	p := newAMQPPublisher(url, queue, dialBroker, logger)
	p.session = session
	p.start()
	return p, nil
}

func newAMQPPublisher(url, queue string, dial dialFunc, logger *slog.Logger) *AMQPPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{
		url:    url,
		queue:  queue,
		dial:   dial,
		logger: logger.With("component", "events.amqp", "queue", queue),
		now:    time.Now,
		buffer: make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}
}

func (p *AMQPPublisher) start() {
	p.stopped = make(chan struct{})
	go p.run()
}

// Publish enqueues event for delivery without waiting on the broker.
func (p *AMQPPublisher) Publish(_ context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	select {
	case <-p.done:
		return ErrPublisherClosed
	default:
	}

	select {
	case p.buffer <- event:
		return nil
	default:
		return fmt.Errorf("%s event: %w", event.Kind, ErrBufferFull)
	}
}

// Close stops the worker after it has tried to deliver what is already
// queued, then releases the connection.
func (p *AMQPPublisher) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	if p.stopped == nil {
		return p.release()
	}

	select {
	case <-p.stopped:
		return nil
	case <-time.After(drainTimeout):
		return fmt.Errorf("amqp publisher: %d events undelivered at shutdown", len(p.buffer))
	}
}

func (p *AMQPPublisher) run() {
	defer close(p.stopped)
	for {
		select {
		case event := <-p.buffer:
			p.deliver(event)
		case <-p.done:
			for {
				select {
				case event := <-p.buffer:
					p.deliver(event)
				default:
					if err := p.release(); err != nil {
						p.logger.Warn("close amqp connection", "error", err)
					}
					return
				}
			}
		}
	}
}

func (p *AMQPPublisher) deliver(event Event) {
	if err := p.connect(); err != nil {
		p.logger.Warn("session event dropped", "kind", event.Kind, "principalId", event.PrincipalID, "error", err)
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal session event", "kind", event.Kind, "error", err)
		return
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Type:         string(event.Kind),
		Body:         body,
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	err = p.session.PublishWithContext(ctx, "", p.queue, false, false, msg)
	cancel()
	if err != nil {
		p.logger.Warn("session event dropped", "kind", event.Kind, "principalId", event.PrincipalID, "error", err)
		if releaseErr := p.release(); releaseErr != nil {
			p.logger.Debug("close failed amqp connection", "error", releaseErr)
		}
	}
}

// connect makes sure a live session exists, redialing at most once per
// backoff window.
func (p *AMQPPublisher) connect() error {
	if p.session != nil && !p.session.IsClosed() {
		return nil
	}
	if p.session != nil {
		_ = p.session.Close()
		p.session = nil
	}

	now := p.now()
	if now.Before(p.retryAt) {
		return fmt.Errorf("broker unavailable, next redial in %s", p.retryAt.Sub(now).Round(time.Millisecond))
	}

	session, err := p.dial(p.url, p.queue)
	if err != nil {
		switch {
		case p.delay == 0:
			p.delay = minRedialDelay
		case p.delay < maxRedialDelay:
			p.delay = min(2*p.delay, maxRedialDelay)
		}
		p.retryAt = now.Add(p.delay)
		return err
	}

	p.logger.Info("amqp connection established")
	p.session = session
	p.delay = 0
	p.retryAt = time.Time{}
	return nil
}

func (p *AMQPPublisher) release() error {
	if p.session == nil {
		return nil
	}
	err := p.session.Close()
	p.session = nil
	return err
}
