package scheduler

import (
	"sync"
	"time"
)

// TickEvent is published once per fired tick.
type TickEvent struct {
	BeatIndex int       `json:"beat_index"`
	SoundID   int       `json:"sound_id"`
	Volume    float64   `json:"volume"`
	FiredAt   time.Time `json:"fired_at"`
}

// DefaultListenerBuffer is the number of ticks a listener can fall behind before ticks are dropped for it.
const DefaultListenerBuffer = 64

// Broadcaster fans out tick events to any number of listeners.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	buffer    int
}

// Listener receives tick events on C. C is closed on Unsubscribe.
type Listener struct {
	C <-chan TickEvent
	c chan TickEvent
}

// NewBroadcaster creates a broadcaster whose listeners buffer up to buffer events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultListenerBuffer
	}
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
		buffer:    buffer,
	}
}

// Subscribe registers a new listener.
func (b *Broadcaster) Subscribe() *Listener {
	c := make(chan TickEvent, b.buffer)
	l := &Listener{C: c, c: c}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and closes its channel. Unknown listeners are ignored.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.listeners[l]; !ok {
		return
	}
	delete(b.listeners, l)
	close(l.c)
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish delivers ev to every listener. Slow listeners have the event dropped rather than holding up the
// tick loop.
func (b *Broadcaster) Publish(ev TickEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.c <- ev:
		default:
		}
	}
}
