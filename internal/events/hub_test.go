package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubKeepsOrder(t *testing.T) {
	h := NewHub(10)
	h.Publish(Event{Type: MessageReceived, MessageID: "a"})
	h.Publish(Event{Type: CommandSucceeded, MessageID: "a", DurationMS: 12})

	got := h.Since(0)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, MessageReceived, got[0].Type)
	assert.Equal(t, int64(2), got[1].ID)
	assert.False(t, got[1].At.IsZero())

	got = h.Since(1)
	require.Len(t, got, 1)
	assert.Equal(t, CommandSucceeded, got[0].Type)
}

func TestHubOverwritesOldest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish(Event{Type: MessageReceived})
	}

	got := h.Since(0)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{got[0].ID, got[1].ID, got[2].ID})
}

func TestNilHub(t *testing.T) {
	var h *Hub
	h.Publish(Event{Type: CommandFailed})
	assert.Nil(t, h.Since(0))
}
