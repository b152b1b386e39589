// Package handlers implements the REST and websocket API of the control
// plane.
package handlers

import (
	"time"

	"github.com/borui/borui/internal/auth"
	"github.com/borui/borui/internal/dashboard"
	"github.com/borui/borui/internal/notify"
	"github.com/borui/borui/internal/store"
	"github.com/borui/borui/internal/tunnel"
)

// Version and BuildDate are set from main at link time.
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// API carries the process-wide state every handler needs. It is built once
// in main and shared by all requests.
type API struct {
	Servers     *tunnel.ServerManager
	Clients     *tunnel.ClientManager
	Broadcaster *dashboard.Broadcaster
	Store       *store.Store
	Issuer      *auth.Issuer
	// Limiter throttles password attempts. Nil disables throttling.
	Limiter *auth.LoginLimiter
	// History backs the per-entity events endpoints. Nil serves empty lists.
	History *notify.History
	// StartTimeout bounds the handshake of a start request. Zero means the
	// request context alone applies.
	StartTimeout time.Duration
	// LogPath is the file served by the logs endpoint.
	LogPath string
}

func (a *API) publish(msg dashboard.Message) {
	if a.Broadcaster != nil {
		a.Broadcaster.Broadcast(msg)
	}
}
