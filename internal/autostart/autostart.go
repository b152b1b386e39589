// Package autostart brings up persisted tunnels flagged for automatic start
// when the process boots.
package autostart

import (
	"context"
	"log"
	"time"

	"github.com/borui/borui/internal/dashboard"
	"github.com/borui/borui/internal/database"
	"github.com/borui/borui/internal/logutil"
	"github.com/borui/borui/internal/tunnel"
)

// Store supplies the auto-start entities and records their outcome.
type Store interface {
	AutoStartServers() ([]tunnel.ServerConfig, error)
	AutoStartClients() ([]tunnel.ClientConfig, error)
	MarkServer(id int64, status, errMsg string) error
	MarkClient(id int64, status, errMsg string, assignedPort int) error
}

type ServerStarter interface {
	Start(ctx context.Context, cfg tunnel.ServerConfig) error
}

type ClientStarter interface {
	Start(ctx context.Context, cfg tunnel.ClientConfig) (int, error)
}

type Broadcaster interface {
	Broadcast(dashboard.Message) int
}

// Orchestrator starts entities one at a time, servers before clients, so
// that local clients pointing at local servers find them listening.
type Orchestrator struct {
	Store   Store
	Servers ServerStarter
	Clients ClientStarter
	// Broadcaster is optional.
	Broadcaster Broadcaster
	// StartTimeout bounds each individual start. Zero means no limit.
	StartTimeout time.Duration
}

// Run attempts every auto-start entity and returns how many were processed.
// Individual failures are persisted and logged, never returned; only a
// failure to list the entities is.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	servers, err := o.Store.AutoStartServers()
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, cfg := range servers {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		o.startServer(ctx, cfg)
		processed++
	}

	clients, err := o.Store.AutoStartClients()
	if err != nil {
		return processed, err
	}
	for _, cfg := range clients {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		o.startClient(ctx, cfg)
		processed++
	}
	return processed, nil
}

func (o *Orchestrator) startServer(ctx context.Context, cfg tunnel.ServerConfig) {
	name := logutil.SanitizeForLog(cfg.Name)
	o.Store.MarkServer(cfg.ID, database.StatusStarting, "")

	sctx, cancel := o.withTimeout(ctx)
	err := o.Servers.Start(sctx, cfg)
	cancel()
	if err != nil {
		log.Printf("[autostart] server %s (%d) failed: %v", name, cfg.ID, err)
		o.Store.MarkServer(cfg.ID, database.StatusError, err.Error())
		o.publish(dashboard.ServerStatus(dashboard.RecordStatus{ID: cfg.ID, Status: database.StatusError, ErrorMessage: err.Error()}))
		return
	}
	log.Printf("[autostart] server %s (%d) running", name, cfg.ID)
	o.Store.MarkServer(cfg.ID, database.StatusRunning, "")
	o.publish(dashboard.ServerStatus(dashboard.RecordStatus{ID: cfg.ID, Status: database.StatusRunning}))
}

func (o *Orchestrator) startClient(ctx context.Context, cfg tunnel.ClientConfig) {
	name := logutil.SanitizeForLog(cfg.Name)
	o.Store.MarkClient(cfg.ID, database.StatusStarting, "", 0)

	cctx, cancel := o.withTimeout(ctx)
	port, err := o.Clients.Start(cctx, cfg)
	cancel()
	if err != nil {
		log.Printf("[autostart] client %s (%d) failed: %v", name, cfg.ID, err)
		o.Store.MarkClient(cfg.ID, database.StatusError, err.Error(), 0)
		o.publish(dashboard.ClientStatus(dashboard.RecordStatus{ID: cfg.ID, Status: database.StatusError, ErrorMessage: err.Error()}))
		return
	}
	log.Printf("[autostart] client %s (%d) connected on remote port %d", name, cfg.ID, port)
	o.Store.MarkClient(cfg.ID, database.StatusConnected, "", port)
	o.publish(dashboard.ClientStatus(dashboard.RecordStatus{ID: cfg.ID, Status: database.StatusConnected, AssignedPort: &port}))
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.StartTimeout > 0 {
		return context.WithTimeout(ctx, o.StartTimeout)
	}
	return context.WithCancel(ctx)
}

func (o *Orchestrator) publish(msg dashboard.Message) {
	if o.Broadcaster != nil {
		o.Broadcaster.Broadcast(msg)
	}
}
