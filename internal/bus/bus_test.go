package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishSync(t *testing.T) {
	b := NewEventBus()

	var mu sync.Mutex
	var got []EventType
	record := func(e Event) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
	}
	b.Subscribe(EventTypeSafetyWarn, record)
	b.Subscribe(EventTypeSafetyBlock, record)

	b.PublishSync(Event{Type: EventTypeSafetyWarn})
	b.PublishSync(Event{Type: EventTypeTranscript})

	assert.Equal(t, []EventType{EventTypeSafetyWarn}, got)
}

func TestEventBus_PublishIsAsync(t *testing.T) {
	b := NewEventBus()
	var n atomic.Int32
	b.SubscribeMultiple([]EventType{EventTypePlaybackStarted, EventTypePlaybackFrozen}, func(Event) {
		n.Add(1)
	})

	b.Publish(Event{Type: EventTypePlaybackStarted})
	b.Publish(Event{Type: EventTypePlaybackFrozen})

	require.Eventually(t, func() bool { return n.Load() == 2 }, time.Second, time.Millisecond)
}

func TestEventBus_WildcardAndTimestamp(t *testing.T) {
	b := NewEventBus()
	var seen []Event
	var mu sync.Mutex
	b.Subscribe(EventTypeAll, func(e Event) {
		mu.Lock()
		seen = append(seen, e)
		mu.Unlock()
	})

	b.PublishSync(Event{Type: EventTypeSessionStarted, SessionID: "s1"})
	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.PublishSync(Event{Type: EventTypeTranscript, Timestamp: stamp, Data: map[string]any{"text": "hi"}})

	require.Len(t, seen, 2)
	assert.Equal(t, "s1", seen[0].SessionID)
	assert.False(t, seen[0].Timestamp.IsZero())
	assert.Equal(t, stamp, seen[1].Timestamp)
	assert.Equal(t, "hi", seen[1].Data["text"])
}

func TestEventBus_Clear(t *testing.T) {
	b := NewEventBus()
	called := false
	b.Subscribe(EventTypeSessionEnded, func(Event) { called = true })
	b.Clear()

	b.PublishSync(Event{Type: EventTypeSessionEnded})
	assert.False(t, called)
}
