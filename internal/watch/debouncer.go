package watch

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer folds a burst of events into one delivery. Saving a file often
// produces several writes, and a rename can arrive as a remove plus a create;
// the supervisor should react once per burst.
//
// The delivered event is the last one of the burst with Coalesced set to the
// burst size.
type Debouncer struct {
	interval time.Duration
	deliver  func(Event)

	// delivering serializes deliveries: a burst that ends while the previous
	// delivery still blocks waits for it, so events of one set stay ordered.
	delivering sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	pending Event
	count   int
	closed  bool
}

// NewDebouncer returns a debouncer that calls deliver after interval has
// passed without a further Trigger.
func NewDebouncer(interval time.Duration, deliver func(Event)) *Debouncer {
	return &Debouncer{interval: interval, deliver: deliver}
}

// Trigger adds ev to the current burst and restarts the quiet period.
// It is a no-op after Stop.
func (d *Debouncer) Trigger(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	d.pending = ev
	d.count++

	if d.timer == nil {
		d.timer = time.AfterFunc(d.interval, d.flush)
		return
	}

	d.timer.Reset(d.interval)
}

func (d *Debouncer) flush() {
	d.delivering.Lock()
	defer d.delivering.Unlock()

	d.mu.Lock()

	if d.closed || d.count == 0 {
		d.mu.Unlock()
		return
	}

	ev := d.pending
	ev.Coalesced = d.count
	d.pending, d.count = Event{}, 0

	d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("watch event delivery panicked", slog.String("set", ev.Set), slog.Any("panic", r))
		}
	}()

	d.deliver(ev)
}

// Stop drops the pending burst. Deliveries already in progress complete.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	d.count = 0

	if d.timer != nil {
		d.timer.Stop()
	}
}
