package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishSync(t *testing.T) {
	b := NewEventBus()

	var got []EventType
	var mu sync.Mutex
	record := func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Type)
	}

	b.Subscribe(EventTypeRefineAccepted, record)
	b.SubscribeMultiple([]EventType{EventTypeUtteranceArmed, EventTypeUtteranceFinished}, record)

	b.PublishSync(Event{Type: EventTypeUtteranceArmed})
	b.PublishSync(Event{Type: EventTypeRefineAccepted, Data: map[string]any{"coverage": 0.9}})
	b.PublishSync(Event{Type: EventTypeRefineRejected})

	assert.ElementsMatch(t, []EventType{EventTypeUtteranceArmed, EventTypeRefineAccepted}, got)
}

func TestSubscribeAll(t *testing.T) {
	b := NewEventBus()
	var n atomic.Int32
	b.SubscribeAll(func(Event) { n.Add(1) })
	b.Subscribe(EventTypeUtterancePlaying, func(Event) { n.Add(10) })

	b.PublishSync(Event{Type: EventTypeUtterancePlaying})
	b.PublishSync(Event{Type: EventTypeConfigReloaded})
	assert.Equal(t, int32(12), n.Load())

	b.Clear()
	b.PublishSync(Event{Type: EventTypeUtterancePlaying})
	assert.Equal(t, int32(12), n.Load())
}

func TestPublishAsync(t *testing.T) {
	b := NewEventBus()
	done := make(chan Event, 1)
	b.Subscribe(EventTypeUtteranceStopped, func(e Event) { done <- e })

	b.Publish(Event{Type: EventTypeUtteranceStopped, Data: map[string]any{"id": "x"}})
	select {
	case e := <-done:
		assert.Equal(t, "x", e.Data["id"])
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}
