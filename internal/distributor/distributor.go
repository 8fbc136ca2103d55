// Package distributor fans out state snapshots to registered listeners.
// Delivery is synchronous and ordered; a failing listener never affects the
// others or the publisher.
package distributor

import (
	"log/slog"
	"sync"

	"github.com/vantagesec/sentinel-go/internal/observability"
	"github.com/vantagesec/sentinel-go/internal/state"
)

// Listener receives published snapshots. Snapshots are shared and immutable;
// listeners must not modify them.
type Listener func(*state.NormalizedState)

// Subscription identifies a registered listener for cancellation.
type Subscription struct {
	id uint64
}

// ID returns the subscription's identifier. IDs increase monotonically in
// registration order and are never reused.
func (s Subscription) ID() uint64 { return s.id }

type entry struct {
	id uint64
	fn Listener
}

// Distributor is a subscription registry with all-or-nothing fan-out: one
// Publish call offers the same snapshot to every listener registered at the
// start of the pass, in registration order.
type Distributor struct {
	mu      sync.Mutex
	nextID  uint64
	entries []entry
	logger  *slog.Logger
	metrics *observability.SyncMetrics
}

// New creates a Distributor. Logger and metrics may be nil.
func New(logger *slog.Logger, metrics *observability.SyncMetrics) *Distributor {
	return &Distributor{logger: logger, metrics: metrics}
}

// Register adds a listener and returns its Subscription.
func (d *Distributor) Register(fn Listener) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	sub := Subscription{id: d.nextID}
	d.entries = append(d.entries, entry{id: sub.id, fn: fn})

	if d.logger != nil {
		d.logger.Debug("listener registered",
			"subscription_id", sub.id,
			"total_listeners", len(d.entries))
	}
	return sub
}

// Unregister removes a listener. Safe to call during a delivery pass; removal
// takes effect starting with the next Publish. Unknown subscriptions are a
// no-op.
func (d *Distributor) Unregister(sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.entries {
		if d.entries[i].id == sub.id {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			if d.logger != nil {
				d.logger.Debug("listener removed",
					"subscription_id", sub.id,
					"remaining_listeners", len(d.entries))
			}
			return
		}
	}
}

// Publish delivers the snapshot to every registered listener in registration
// order, synchronously, within one pass. A panicking listener is recovered and
// logged; delivery continues with the remaining listeners.
func (d *Distributor) Publish(snapshot *state.NormalizedState) {
	d.mu.Lock()
	pass := make([]entry, len(d.entries))
	copy(pass, d.entries)
	d.mu.Unlock()

	for i := range pass {
		d.deliver(&pass[i], snapshot)
	}

	if d.metrics != nil {
		d.metrics.RecordPublish()
	}
}

func (d *Distributor) deliver(e *entry, snapshot *state.NormalizedState) {
	defer func() {
		if r := recover(); r != nil {
			if d.metrics != nil {
				d.metrics.ListenerFailures.Inc()
			}
			if d.logger != nil {
				d.logger.Error("listener panicked during delivery",
					"subscription_id", e.id,
					"panic", r)
			}
		}
	}()
	e.fn(snapshot)
}

// Len returns the number of registered listeners.
func (d *Distributor) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Clear removes all listeners. The synchronizer's teardown does not call this
// implicitly; clearing registrations remains the caller's decision.
func (d *Distributor) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = nil
}
