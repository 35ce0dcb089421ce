package venue

import (
	"sync"
	"time"

	"github.com/interbroker/bridge-api/internal/types"
)

// statusQueueDepth bounds the ordered delivery queue. The pump never
// blocks on a full queue; the oldest queued event is dropped instead,
// which is safe because the last-known cache already holds it.
const statusQueueDepth = 256

// StatusFeed decouples the asynchronous pump from synchronous callers.
// It keeps an ordered delivery queue of status events plus a last-known
// snapshot per venue order id. Events observed while a caller waits for
// a different order remain retrievable through the cache.
type StatusFeed struct {
	mu     sync.Mutex
	states map[int64]types.StatusEvent

	queue     chan types.StatusEvent
	closed    chan struct{}
	closeOnce sync.Once
}

// NewStatusFeed returns an empty feed.
func NewStatusFeed() *StatusFeed {
	return &StatusFeed{
		states: make(map[int64]types.StatusEvent),
		queue:  make(chan types.StatusEvent, statusQueueDepth),
		closed: make(chan struct{}),
	}
}

// Publish records an event as the latest snapshot for its order and
// appends it to the delivery queue. Never blocks the caller.
func (f *StatusFeed) Publish(event types.StatusEvent) {
	f.mu.Lock()
	f.states[event.VenueOrderID] = event
	f.mu.Unlock()

	for {
		select {
		case f.queue <- event:
			return
		case <-f.closed:
			return
		default:
		}
		// Queue full: shed the oldest event. Its snapshot survives in
		// the cache.
		select {
		case <-f.queue:
		default:
		}
	}
}

// LastKnown returns the latest snapshot for an order, if any. Pure cache
// lookup, never blocks.
func (f *StatusFeed) LastKnown(id int64) (types.StatusEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.states[id]
	return event, ok
}

// AwaitStatus blocks until a status event for the given order arrives or
// the timeout elapses. Returns immediately when a snapshot is already
// cached. Returns ErrConnectionLost when the feed is closed while
// waiting, so callers fail fast on disconnect instead of sitting out
// their timeout.
func (f *StatusFeed) AwaitStatus(id int64, timeout time.Duration) (types.StatusEvent, bool, error) {
	if event, ok := f.LastKnown(id); ok {
		return event, true, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case event := <-f.queue:
			if event.VenueOrderID == id {
				return event, true, nil
			}
			// Not ours; Publish already cached it, keep draining.
		case <-f.closed:
			return types.StatusEvent{}, false, ErrConnectionLost
		case <-timer.C:
			// One final cache check: the matching event may have been
			// consumed from the queue by a concurrent waiter.
			if event, ok := f.LastKnown(id); ok {
				return event, true, nil
			}
			return types.StatusEvent{}, false, nil
		}
	}
}

// AwaitNext blocks until a fresh status event for the given order comes
// off the delivery queue, ignoring the cached snapshot. Used by retry
// loops that already saw the current snapshot and want a newer one.
func (f *StatusFeed) AwaitNext(id int64, timeout time.Duration) (types.StatusEvent, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case event := <-f.queue:
			if event.VenueOrderID == id {
				return event, true, nil
			}
		case <-f.closed:
			return types.StatusEvent{}, false, ErrConnectionLost
		case <-timer.C:
			return types.StatusEvent{}, false, nil
		}
	}
}

// Close releases all waiters. Safe to call more than once.
func (f *StatusFeed) Close() {
	f.closeOnce.Do(func() {
		close(f.closed)
	})
}
