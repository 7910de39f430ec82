package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishFansOutInOrder(t *testing.T) {
	bus := NewBus()
	var order []int
	bus.Register(SubscriberFunc(func(Event) { order = append(order, 1) }))
	bus.Register(SubscriberFunc(func(Event) { order = append(order, 2) }))
	bus.Publish(New(TypeRunStart, "s1", "a1", nil))
	assert.Equal(t, []int{1, 2}, order)
}

func TestBus_SwallowsSubscriberPanic(t *testing.T) {
	bus := NewBus()
	called := false
	bus.Register(SubscriberFunc(func(Event) { panic("boom") }))
	bus.Register(SubscriberFunc(func(Event) { called = true }))
	assert.NotPanics(t, func() { bus.Publish(New(TypeRunStart, "s1", "", nil)) })
	assert.True(t, called)
}

func TestBus_CloseStopsDelivery(t *testing.T) {
	bus := NewBus()
	count := 0
	sub := bus.Register(SubscriberFunc(func(Event) { count++ }))
	bus.Publish(New(TypeRunStart, "s1", "", nil))
	sub.Close()
	bus.Publish(New(TypeRunStart, "s1", "", nil))
	assert.Equal(t, 1, count)
}

func TestTracker_AccumulatesToolMetrics(t *testing.T) {
	bus := NewBus()
	tr := NewTracker()
	tr.Attach(bus)

	bus.Publish(New(TypeToolStart, "s1", "", nil))
	bus.Publish(New(TypeToolEnd, "s1", "", map[string]any{"durationMs": int64(50), "cached": true}))
	bus.Publish(New(TypeToolError, "s1", "", nil))

	snap := tr.Snapshot("s1")
	assert.Equal(t, 1, snap.ToolCalls)
	assert.Equal(t, 1, snap.ToolErrors)
	assert.Equal(t, 1, snap.ToolCacheHits)
	assert.Equal(t, int64(50), snap.ToolDurationMs)
}
