// Package eventbus carries newly written records from the repositories to
// in-process subscribers. Delivery is asynchronous and best-effort: the write
// path enqueues and returns, a worker pool dispatches, and a failure for one
// record never affects its siblings or the caller.
package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is one broadcast unit delivered to every subscriber.
type Event struct {
	At     time.Time
	Record any
}

// Handler consumes a single event. Handlers run on bus workers; a panic is
// recovered and logged without affecting other deliveries.
type Handler func(Event)

// Supplier produces a record lazily on the worker. Returning ok=false
// publishes nothing.
type Supplier = func() (any, bool)

// Config tunes the broadcast worker pool.
type Config struct {
	Workers   int         `mapstructure:"workers"`
	QueueSize int         `mapstructure:"queue_size"`
	Kafka     KafkaConfig `mapstructure:"kafka"`
}

type envelope struct {
	record   any
	supplier Supplier
}

// Bus is the process-wide change broadcaster. The composing application owns
// its lifecycle; repositories only hold a reference and publish.
type Bus struct {
	queue   chan envelope
	workers int
	logger  zerolog.Logger

	mu       sync.RWMutex
	handlers map[uuid.UUID]Handler
	started  bool
	stopped  bool

	wg sync.WaitGroup
}

// New constructs a bus with the given worker pool size and queue capacity.
func New(cfg Config, logger zerolog.Logger) *Bus {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Bus{
		queue:    make(chan envelope, queueSize),
		workers:  workers,
		logger:   logger.With().Str("component", "eventbus").Logger(),
		handlers: make(map[uuid.UUID]Handler),
	}
}

// Start launches the worker pool. It must be called before any Publish.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.work()
	}
	b.logger.Debug().Int("workers", b.workers).Msg("broadcast workers started")
}

// Stop drains the queue and waits for in-flight deliveries to finish.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.started || b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	close(b.queue)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Debug().Msg("broadcast workers stopped")
}

// Subscribe registers a handler and returns a token for Unsubscribe.
func (b *Bus) Subscribe(h Handler) uuid.UUID {
	id := uuid.New()
	b.mu.Lock()
	b.handlers[id] = h
	b.mu.Unlock()
	return id
}

// Unsubscribe removes a previously registered handler.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	delete(b.handlers, id)
	b.mu.Unlock()
}

// Publish enqueues each record as an independent broadcast unit and returns
// immediately. Delivery order across a batch is not guaranteed. Publishing on
// a bus that was never started is a wiring bug and panics. When the queue is
// full the record is dropped with an error log; broadcast is best-effort and
// must never stall the write path.
func (b *Bus) Publish(records ...any) {
	for _, r := range records {
		b.enqueue(envelope{record: r})
	}
}

// PublishFunc defers producing the value until a worker runs, typically to
// re-read a freshly written row's full projection. A nil or absent value
// publishes nothing.
func (b *Bus) PublishFunc(supplier Supplier) {
	b.enqueue(envelope{supplier: supplier})
}

func (b *Bus) enqueue(env envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.started {
		panic("eventbus: publish before Start; no workers configured")
	}
	if b.stopped {
		b.logger.Warn().Msg("publish after stop; event dropped")
		return
	}

	select {
	case b.queue <- env:
	default:
		b.logger.Error().Msg("broadcast queue full; event dropped")
	}
}

func (b *Bus) work() {
	defer b.wg.Done()
	for env := range b.queue {
		b.dispatch(env)
	}
}

func (b *Bus) dispatch(env envelope) {
	record := env.record
	if env.supplier != nil {
		var ok bool
		record, ok = b.resolve(env.supplier)
		if !ok || record == nil {
			return
		}
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	evt := Event{At: time.Now().UTC(), Record: record}
	for _, h := range handlers {
		b.deliver(h, evt)
	}
}

func (b *Bus) resolve(supplier Supplier) (record any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("panic", fmt.Sprint(r)).
				Msg("broadcast supplier panicked")
			ok = false
		}
	}()
	return supplier()
}

func (b *Bus) deliver(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("record_type", typeName(evt.Record)).
				Str("record", fmt.Sprintf("%+v", evt.Record)).
				Str("panic", fmt.Sprint(r)).
				Msg("unexpected error in broadcast")
		}
	}()
	h(evt)
}

func typeName(r any) string {
	return fmt.Sprintf("%T", r)
}
