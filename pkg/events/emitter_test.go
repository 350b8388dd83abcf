package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterSubscribeAndEmit(t *testing.T) {
	e := NewEmitter()

	var gotStart, gotEnd, calls int
	e.OnThresholdChanged(func(start, end int) {
		gotStart, gotEnd = start, end
		calls++
	})

	e.EmitThresholdChanged(70, 80)
	assert.Equal(t, 70, gotStart)
	assert.Equal(t, 80, gotEnd)
	assert.Equal(t, 1, calls)

	// Unrelated emits do not reach threshold listeners.
	e.EmitForceDischargeChanged(true)
	assert.Equal(t, 1, calls)
}

func TestEmitterUnsubscribe(t *testing.T) {
	e := NewEmitter()

	calls := 0
	id := e.OnForceDischargeChanged(func(bool) { calls++ })
	e.EmitForceDischargeChanged(true)
	e.Unsubscribe(id)
	e.EmitForceDischargeChanged(false)

	assert.Equal(t, 1, calls)
}

func TestEmitterClose(t *testing.T) {
	e := NewEmitter()

	calls := 0
	e.OnThresholdChanged(func(int, int) { calls++ })
	e.OnPartialFailure(func(string, string) { calls++ })
	e.Close()

	e.EmitThresholdChanged(70, 80)
	e.EmitPartialFailure("BAT0", "BAT1")
	assert.Zero(t, calls, "a closed emitter never notifies")

	// Subscriptions after close are inert.
	e.OnThresholdChanged(func(int, int) { calls++ })
	e.EmitThresholdChanged(70, 80)
	assert.Zero(t, calls)
}

func TestEmitterListenerMayUnsubscribeItself(t *testing.T) {
	e := NewEmitter()

	calls := 0
	var id int
	id = e.OnThresholdChanged(func(int, int) {
		calls++
		e.Unsubscribe(id)
	})

	e.EmitThresholdChanged(70, 80)
	e.EmitThresholdChanged(70, 80)
	assert.Equal(t, 1, calls)
}

func TestHubPublishAndDrop(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()

	h.Publish(ThresholdChanged, ThresholdChangedEvent{Start: 70, End: 80, Ts: 1})

	ev := <-ch
	assert.Equal(t, ThresholdChanged, ev.Name)

	payload, err := DecodeAs[ThresholdChangedEvent](ev)
	require.NoError(t, err)
	assert.Equal(t, 70, payload.Start)
	assert.Equal(t, 80, payload.End)

	h.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
}

func TestHubClose(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	h.Close()

	_, open := <-ch
	assert.False(t, open)

	// Unsubscribe after close must not panic on the already-closed channel.
	h.Unsubscribe(ch)

	ch2 := h.Subscribe()
	_, open = <-ch2
	assert.False(t, open, "subscriptions on a closed hub are closed immediately")
}
