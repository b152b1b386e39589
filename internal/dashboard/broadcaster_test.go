package dashboard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borui/borui/internal/tunnel"
)

func TestBroadcast_DeliversToAll(t *testing.T) {
	b := NewBroadcaster(4)
	a := b.Subscribe()
	c := b.Subscribe()

	assert.Equal(t, 2, b.Broadcast(Pong()))
	assert.Equal(t, Pong(), <-a.C)
	assert.Equal(t, Pong(), <-c.C)
}

func TestBroadcast_PrunesClosedSubscriber(t *testing.T) {
	b := NewBroadcaster(4)
	live := b.Subscribe()
	dead := b.Subscribe()
	dead.Close()

	assert.Equal(t, 1, b.Broadcast(Pong()))
	assert.Equal(t, 1, b.Len())

	_, open := <-dead.C
	assert.False(t, open, "pruned subscriber's channel is closed")

	assert.Equal(t, 1, b.Broadcast(Pong()))
	assert.Len(t, live.C, 2)
}

func TestBroadcast_PrunesStalledSubscriber(t *testing.T) {
	b := NewBroadcaster(1)
	stalled := b.Subscribe()

	assert.Equal(t, 1, b.Broadcast(Pong()))
	assert.Equal(t, 0, b.Broadcast(Pong()))
	assert.Equal(t, 0, b.Len())

	// The queued message is still readable before the close.
	msg, ok := <-stalled.C
	require.True(t, ok)
	assert.Equal(t, TypePong, msg.Type)
	_, ok = <-stalled.C
	assert.False(t, ok)
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroadcaster(0)
	s := b.Subscribe()
	b.Unsubscribe(s.ID)
	b.Unsubscribe(s.ID)

	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, b.Broadcast(Pong()))
}

func TestMessageJSON(t *testing.T) {
	b, err := json.Marshal(Pong())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(b))

	b, err = json.Marshal(StatusOf(tunnel.KindServer, RecordStatus{ID: 3, Status: "error", ErrorMessage: "boom"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"server_status","data":{"id":3,"status":"error","error_message":"boom"}}`, string(b))

	b, err = json.Marshal(ConnectionEvent(tunnel.Event{Kind: tunnel.KindClient, ID: 1, Type: tunnel.EventConnected}))
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "connection_event", got["type"])
	assert.Equal(t, "connected", got["data"].(map[string]any)["event"])
}
