package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func register(h *Hub, userID string, rooms ...string) *Client {
	c := &Client{Hub: h, Send: make(chan []byte, 4), UserID: userID, Rooms: rooms}
	h.Register <- c
	return c
}

func waitConnected(t *testing.T, h *Hub, room string) {
	t.Helper()
	require.Eventually(t, func() bool { return h.IsConnected(room) }, time.Second, 5*time.Millisecond)
}

func TestHubRoutesToRooms(t *testing.T) {
	h := startHub(t)
	owner := register(h, "owner-1", UserRoom("owner-1"), LeaseRoom("lease-1"))
	tenant := register(h, "", LeaseRoom("lease-1"))
	waitConnected(t, h, UserRoom("owner-1"))
	waitConnected(t, h, LeaseRoom("lease-1"))

	assert.True(t, h.BroadcastToLease("lease-1", Event{Type: "message", Payload: "bonjour"}))

	for _, c := range []*Client{owner, tenant} {
		select {
		case raw := <-c.Send:
			var ev Event
			require.NoError(t, json.Unmarshal(raw, &ev))
			assert.Equal(t, "message", ev.Type)
			assert.Equal(t, "lease:lease-1", ev.Room)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	assert.True(t, h.SendToUser("owner-1", Event{Type: "notification"}))
	assert.Len(t, tenant.Send, 0)
	assert.False(t, h.SendToUser("nobody", Event{Type: "notification"}))
}

func TestHubUnregisterClosesSend(t *testing.T) {
	h := startHub(t)
	c := register(h, "u1", UserRoom("u1"))
	waitConnected(t, h, UserRoom("u1"))

	h.Unregister <- c
	require.Eventually(t, func() bool { return !h.IsConnected(UserRoom("u1")) }, time.Second, 5*time.Millisecond)

	_, open := <-c.Send
	assert.False(t, open)
}
