package app

import (
	"sync"

	"github.com/MrWong99/intervox/internal/interview"
)

// defaultHubBuffer is the per-subscriber queue length. Narration audio
// arrives in bursts, so it is sized for a few seconds of PCM frames.
const defaultHubBuffer = 256

// Message is one item delivered to session subscribers. Exactly one field
// is set.
type Message struct {
	Event   *interview.Event
	Partial string
	Audio   []byte
}

// Hub fans session messages out to any number of subscribers. Publish never
// blocks: a subscriber whose queue is full misses the message.
type Hub struct {
	buffer int

	mu      sync.Mutex
	subs    map[chan Message]struct{}
	closed  bool
	dropped int
}

// NewHub creates a Hub with the given per-subscriber buffer. A buffer <= 0
// selects the default.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultHubBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[chan Message]struct{})}
}

// Subscribe registers a new subscriber. The returned channel is closed when
// the hub closes or cancel is called. Subscribing to a closed hub yields a
// closed channel.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, h.buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Publish delivers m to every subscriber with room in its queue.
func (h *Hub) Publish(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for ch := range h.subs {
		select {
		case ch <- m:
		default:
			h.dropped++
		}
	}
}

// Emit adapts the hub to [interview.Emitter].
func (h *Hub) Emit(e interview.Event) {
	h.Publish(Message{Event: &e})
}

// Dropped reports how many deliveries were skipped because a subscriber
// queue was full.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close closes every subscriber channel. It is idempotent.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	clear(h.subs)
}
