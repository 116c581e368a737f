package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newStartedBus(t *testing.T) *Bus {
	t.Helper()
	bus := New(Config{Workers: 2, QueueSize: 64}, zerolog.Nop())
	bus.Start()
	return bus
}

// collect subscribes and returns the received records after the bus stops.
type collector struct {
	mu      sync.Mutex
	records []any
}

func (c *collector) handle(evt Event) {
	c.mu.Lock()
	c.records = append(c.records, evt.Record)
	c.mu.Unlock()
}

func (c *collector) snapshot() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.records))
	copy(out, c.records)
	return out
}

func TestPublishDeliversEachRecord(t *testing.T) {
	bus := newStartedBus(t)
	col := &collector{}
	bus.Subscribe(col.handle)

	bus.Publish("a", "b", "c")
	bus.Stop()

	got := col.snapshot()
	if len(got) != 3 {
		t.Fatalf("delivered %d records, want 3", len(got))
	}
}

func TestPublishIsolatesHandlerPanics(t *testing.T) {
	bus := newStartedBus(t)
	col := &collector{}
	bus.Subscribe(func(evt Event) {
		if evt.Record == "bad" {
			panic("subscriber exploded")
		}
		col.handle(evt)
	})

	// The 2nd record panics; the 1st and 3rd must still be delivered and the
	// publisher must not observe any error.
	bus.Publish("first", "bad", "third")
	bus.Stop()

	got := col.snapshot()
	if len(got) != 2 {
		t.Fatalf("delivered %d records, want 2 (panicking record skipped)", len(got))
	}
	seen := map[any]bool{}
	for _, r := range got {
		seen[r] = true
	}
	if !seen["first"] || !seen["third"] {
		t.Errorf("surviving records = %v, want first and third", got)
	}
}

func TestPublishFuncDefersProduction(t *testing.T) {
	bus := newStartedBus(t)
	col := &collector{}
	bus.Subscribe(col.handle)

	produced := make(chan struct{})
	bus.PublishFunc(func() (any, bool) {
		close(produced)
		return "resolved", true
	})

	select {
	case <-produced:
	case <-time.After(2 * time.Second):
		t.Fatal("supplier was never invoked")
	}
	bus.Stop()

	got := col.snapshot()
	if len(got) != 1 || got[0] != "resolved" {
		t.Fatalf("delivered %v, want [resolved]", got)
	}
}

func TestPublishFuncAbsentValuePublishesNothing(t *testing.T) {
	bus := newStartedBus(t)
	col := &collector{}
	bus.Subscribe(col.handle)

	bus.PublishFunc(func() (any, bool) { return nil, false })
	bus.Stop()

	if got := col.snapshot(); len(got) != 0 {
		t.Fatalf("delivered %v, want nothing", got)
	}
}

func TestPublishBeforeStartPanics(t *testing.T) {
	bus := New(Config{}, zerolog.Nop())
	defer func() {
		if recover() == nil {
			t.Fatal("publish on an unstarted bus must panic")
		}
	}()
	bus.Publish("x")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := newStartedBus(t)
	col := &collector{}
	id := bus.Subscribe(col.handle)
	bus.Unsubscribe(id)

	bus.Publish("a")
	bus.Stop()

	if got := col.snapshot(); len(got) != 0 {
		t.Fatalf("delivered %v after unsubscribe, want nothing", got)
	}
}

func TestPublishAfterStopDropsQuietly(t *testing.T) {
	bus := newStartedBus(t)
	bus.Stop()
	// Must not panic or block.
	bus.Publish("late")
}
