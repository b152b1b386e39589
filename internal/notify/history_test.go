package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borui/borui/internal/tunnel"
)

func TestHistory_RingPerEntity(t *testing.T) {
	h := NewHistory()
	for i := 0; i < maxEventsPerEntity+5; i++ {
		h.Record(tunnel.Event{Kind: tunnel.KindClient, ID: 1, Uptime: int64(i)})
	}
	h.Record(tunnel.Event{Kind: tunnel.KindServer, ID: 1})

	all := h.Recent(tunnel.KindClient, 1, 0)
	require.Len(t, all, maxEventsPerEntity)
	assert.Equal(t, int64(5), all[0].Uptime)
	assert.Equal(t, int64(maxEventsPerEntity+4), all[len(all)-1].Uptime)

	last := h.Recent(tunnel.KindClient, 1, 2)
	require.Len(t, last, 2)
	assert.Equal(t, int64(maxEventsPerEntity+4), last[1].Uptime)

	assert.Len(t, h.Recent(tunnel.KindServer, 1, 0), 1, "kinds do not share ids")

	h.Forget(tunnel.KindClient, 1)
	assert.Empty(t, h.Recent(tunnel.KindClient, 1, 0))
}
