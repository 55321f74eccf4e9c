package poold

import (
	"sync"
)

const defaultSubscriberBuffer = 256

// Hub fans envelopes out to live subscribers. A subscriber that falls a
// full buffer behind is dropped and its channel closed.
type Hub struct {
	mu     sync.Mutex
	next   uint64
	subs   map[uint64]*subscriber
	buffer int
}

type subscriber struct {
	ch     chan Envelope
	filter func(Envelope) bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{subs: make(map[uint64]*subscriber), buffer: buffer}
}

// Subscribe registers a listener. filter may be nil. The returned cancel
// function is idempotent.
func (h *Hub) Subscribe(filter func(Envelope) bool) (<-chan Envelope, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	sub := &subscriber{ch: make(chan Envelope, h.buffer), filter: filter}
	h.subs[id] = sub
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { h.drop(id) })
	}
}

func (h *Hub) drop(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// Subscribers reports how many listeners are attached.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish implements Sink.
func (h *Hub) Publish(env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		if sub.filter != nil && !sub.filter(env) {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			delete(h.subs, id)
			close(sub.ch)
		}
	}
}
