package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/campus-auth/internal/metrics"
	"github.com/iliyamo/campus-auth/internal/queue"
)

// EventSink receives auth lifecycle events.  Publishing is best effort and
// must never block or fail the request that triggered it.
type EventSink interface {
	Publish(ctx context.Context, ev queue.AuthEvent)
}

// NopEvents discards every event.
type NopEvents struct{}

func (NopEvents) Publish(context.Context, queue.AuthEvent) {}

const (
	eventQueueSize = 256
	publishTimeout = 3 * time.Second
	redialBackoff  = 5 * time.Second
)

var errBrokerBackoff = errors.New("rabbitmq: waiting before redial")

// RabbitEvents publishes AuthEvents to the durable auth.events queue.  Events
// go through a bounded buffer drained by one worker; when the buffer is full
// the event is dropped and counted.  The connection is owned by the worker,
// opened lazily and re-opened after a failure.
type RabbitEvents struct {
	url     string
	log     *slog.Logger
	metrics *metrics.Metrics
	send    func(context.Context, queue.AuthEvent) error

	events  chan queue.AuthEvent
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64

	conn    *amqp.Connection
	ch      *amqp.Channel
	retryAt time.Time
}

func NewRabbitEvents(url string, m *metrics.Metrics, log *slog.Logger) *RabbitEvents {
	p := &RabbitEvents{url: url}
	p.send = p.publish
	return p.start(eventQueueSize, m, log)
}

func (p *RabbitEvents) start(size int, m *metrics.Metrics, log *slog.Logger) *RabbitEvents {
	if log == nil {
		log = slog.Default()
	}
	p.log, p.metrics = log, m
	p.events = make(chan queue.AuthEvent, size)
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run()
	return p
}

// Publish enqueues ev without blocking.
func (p *RabbitEvents) Publish(_ context.Context, ev queue.AuthEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	select {
	case <-p.stop:
		return
	default:
	}
	select {
	case p.events <- ev:
	default:
		p.dropped.Add(1)
		p.metrics.EventDropped()
		p.log.Warn("rabbitmq: auth event queue full, dropping event", "type", ev.Type)
	}
}

// Dropped is the number of events discarded because the buffer was full.
func (p *RabbitEvents) Dropped() int64 { return p.dropped.Load() }

func (p *RabbitEvents) run() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case ev := <-p.events:
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			err := p.send(ctx, ev)
			cancel()
			if err != nil && !errors.Is(err, errBrokerBackoff) {
				p.log.Warn("rabbitmq: publish auth event failed", "type", ev.Type, "err", err)
			}
		}
	}
}

func (p *RabbitEvents) publish(ctx context.Context, ev queue.AuthEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		"",                    // default exchange
		queue.AuthEventsQueue, // routing key = queue name
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.OccurredAt,
			Type:         string(ev.Type),
			Body:         body,
		})
	if err != nil {
		p.reset()
	}
	return err
}

// channel returns an open channel, dialing when needed.  After a failed
// dial it refuses to redial until redialBackoff has passed.  Worker only.
func (p *RabbitEvents) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	if time.Now().Before(p.retryAt) {
		return nil, errBrokerBackoff
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(publishTimeout),
	})
	if err != nil {
		p.retryAt = time.Now().Add(redialBackoff)
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue.AuthEventsQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *RabbitEvents) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close stops the worker and releases the broker connection.  Events still
// buffered are discarded; later Publish calls are no-ops.
func (p *RabbitEvents) Close() error {
	p.once.Do(func() { close(p.stop) })
	<-p.done
	p.reset()
	return nil
}
