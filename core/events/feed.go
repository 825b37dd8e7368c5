package events

import (
	"sync"
	"sync/atomic"
)

const defaultFeedBuffer = 64

// Feed fans events out to live subscribers. Emit never blocks: a subscriber
// whose buffer is full misses the event and the drop is counted.
type Feed struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscription
	nextID  uint64
	buffer  int
	dropped atomic.Uint64
	onDrop  func(eventType string)
}

type subscription struct {
	ch     chan Event
	filter func(Event) bool
}

// NewFeed creates a feed whose subscriptions buffer up to buffer events.
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = defaultFeedBuffer
	}
	return &Feed{subs: make(map[uint64]*subscription), buffer: buffer}
}

// Emit implements the Emitter interface.
func (f *Feed) Emit(evt Event) {
	if f == nil || evt == nil {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		if sub.filter != nil && !sub.filter(evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			f.dropped.Add(1)
			if f.onDrop != nil {
				f.onDrop(evt.EventType())
			}
		}
	}
}

// OnDrop installs a callback run for every skipped delivery.
func (f *Feed) OnDrop(fn func(eventType string)) {
	f.mu.Lock()
	f.onDrop = fn
	f.mu.Unlock()
}

// Subscribe registers a subscriber. A nil filter receives every event. The
// returned cancel func closes the channel and is safe to call more than once.
func (f *Feed) Subscribe(filter func(Event) bool) (<-chan Event, func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	sub := &subscription{ch: make(chan Event, f.buffer), filter: filter}
	f.subs[id] = sub
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Subscribers reports the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Dropped reports how many deliveries were skipped because a subscriber was
// not keeping up.
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}
