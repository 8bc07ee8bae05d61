package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventManager(t *testing.T) {
	em := NewEventManager(2)

	require.NoError(t, em.PushEvent(Event{Type: EventConnected}))
	require.NoError(t, em.PushEvent(NewMessageEvent(MessagePayload{Text: "hi"})))
	assert.ErrorIs(t, em.PushEvent(StateEvent(EventDisconnected)), ErrEventQueueFull)
	assert.Equal(t, 1, em.Dropped())

	ev := <-em.Events()
	assert.Equal(t, EventConnected, ev.Type)
	assert.False(t, ev.Timestamp.IsZero(), "время события заполняется автоматически")

	ev = <-em.Events()
	assert.Equal(t, MessagePayload{Text: "hi"}, ev.Payload)

	em.Stop()
	em.Stop()
	assert.ErrorIs(t, em.PushEvent(StateEvent(EventConnected)), ErrEventsStopped)

	_, open := <-em.Events()
	assert.False(t, open)
}

func TestEventType_Classification(t *testing.T) {
	cases := []struct {
		ev       EventType
		link     bool
		terminal bool
	}{
		{EventConnected, true, false},
		{EventMessage, false, false},
		{EventConnectionProblem, true, false},
		{EventConnectionRecovering, true, false},
		{EventConnectionRecovered, true, false},
		{EventConnectionFailed, true, true},
		{EventDisconnected, true, true},
		{EventType("unknown"), false, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.link, tc.ev.IsLink(), string(tc.ev))
		assert.Equal(t, tc.terminal, tc.ev.IsTerminal(), string(tc.ev))
	}
}
