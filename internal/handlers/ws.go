package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/borui/borui/internal/dashboard"
	"github.com/borui/borui/internal/tunnel"
)

// Dashboard upgrades to a websocket and streams broadcast messages until
// either side goes away. Any inbound text mentioning "ping" makes every
// subscriber receive a pong.
func (a *API) Dashboard(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[ws] failed to accept dashboard websocket: %v", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before sending current state so nothing broadcast in
	// between is lost.
	sub := a.Broadcaster.Subscribe()
	defer a.Broadcaster.Unsubscribe(sub.ID)

	// Current state first, so a fresh dashboard does not wait for the next
	// maintenance tick.
	for _, snap := range a.Servers.Running() {
		if err := wsjson.Write(ctx, conn, dashboard.StatusOf(tunnel.KindServer, snap)); err != nil {
			return
		}
	}
	for _, snap := range a.Clients.Running() {
		if err := wsjson.Write(ctx, conn, dashboard.StatusOf(tunnel.KindClient, snap)); err != nil {
			return
		}
	}

	go func() {
		defer cancel()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageText && strings.Contains(string(data), "ping") {
				a.Broadcaster.Broadcast(dashboard.Pong())
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				// Pruned by the broadcaster for falling behind.
				conn.Close(websocket.StatusPolicyViolation, "too slow")
				return
			}
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				sub.Close()
				return
			}
		}
	}
}
