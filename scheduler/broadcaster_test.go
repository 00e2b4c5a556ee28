package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(0)
	require.Equal(t, 0, b.ListenerCount())

	l1 := b.Subscribe()
	l2 := b.Subscribe()
	require.Equal(t, 2, b.ListenerCount())

	b.Unsubscribe(l1)
	require.Equal(t, 1, b.ListenerCount())

	// the channel is closed once unsubscribed
	_, ok := <-l1.C
	assert.False(t, ok)

	// unsubscribing twice is harmless
	b.Unsubscribe(l1)
	b.Unsubscribe(l2)
	require.Equal(t, 0, b.ListenerCount())
}

func TestPublishReachesEveryListener(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(4)
	listeners := []*Listener{b.Subscribe(), b.Subscribe(), b.Subscribe()}

	ev := TickEvent{BeatIndex: 2, SoundID: 5, Volume: 0.5, FiredAt: time.Unix(10, 0)}
	b.Publish(ev)

	for _, l := range listeners {
		assert.Equal(t, ev, <-l.C)
	}
}

func TestSlowListenerDropsTicks(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster(2)
	slow := b.Subscribe()

	for i := 0; i < 5; i++ {
		b.Publish(TickEvent{BeatIndex: i})
	}

	// only the buffered ticks are kept, publishing never blocked
	assert.Equal(t, 0, (<-slow.C).BeatIndex)
	assert.Equal(t, 1, (<-slow.C).BeatIndex)
	select {
	case ev := <-slow.C:
		t.Fatalf("unexpected tick %+v", ev)
	default:
	}
}
