// Package store adapts persisted server and client records to the tunnel
// runtime: it decrypts secrets into tunnel configs and writes status
// transitions back.
package store

import (
	"errors"
	"fmt"
	"log"

	"github.com/borui/borui/internal/crypto"
	"github.com/borui/borui/internal/database"
	"github.com/borui/borui/internal/tunnel"
	"github.com/borui/borui/internal/webhook"
)

// Store reads and writes the package-level database. It holds no state of
// its own; the zero value is ready to use.
type Store struct{}

func New() *Store { return &Store{} }

// ServerConfig converts a record into a runnable config.
func ServerConfig(s *database.Server) (tunnel.ServerConfig, error) {
	secret, err := crypto.Decrypt(s.Secret)
	if err != nil {
		return tunnel.ServerConfig{}, fmt.Errorf("decrypt secret for server %d: %w", s.ID, err)
	}
	return tunnel.ServerConfig{
		ID:             s.ID,
		Name:           s.Name,
		BindAddr:       s.BindAddr,
		BindTunnels:    s.BindTunnels,
		ControlPort:    s.ControlPort,
		PortRangeStart: s.PortRangeStart,
		PortRangeEnd:   s.PortRangeEnd,
		Secret:         secret,
	}, nil
}

func ClientConfig(c *database.Client) (tunnel.ClientConfig, error) {
	secret, err := crypto.Decrypt(c.Secret)
	if err != nil {
		return tunnel.ClientConfig{}, fmt.Errorf("decrypt secret for client %d: %w", c.ID, err)
	}
	return tunnel.ClientConfig{
		ID:           c.ID,
		Name:         c.Name,
		LocalHost:    c.LocalHost,
		LocalPort:    c.LocalPort,
		RemoteServer: c.RemoteServer,
		RemotePort:   c.RemotePort,
		Secret:       secret,
	}, nil
}

// AutoStartServers returns configs for every server flagged for auto-start.
// A record whose secret cannot be decrypted is marked as errored and skipped.
func (st *Store) AutoStartServers() ([]tunnel.ServerConfig, error) {
	records, err := database.ListAutoStartServers()
	if err != nil {
		return nil, err
	}
	out := make([]tunnel.ServerConfig, 0, len(records))
	for i := range records {
		cfg, err := ServerConfig(&records[i])
		if err != nil {
			log.Printf("[store] %v", err)
			st.MarkServer(records[i].ID, database.StatusError, err.Error())
			continue
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (st *Store) AutoStartClients() ([]tunnel.ClientConfig, error) {
	records, err := database.ListAutoStartClients()
	if err != nil {
		return nil, err
	}
	out := make([]tunnel.ClientConfig, 0, len(records))
	for i := range records {
		cfg, err := ClientConfig(&records[i])
		if err != nil {
			log.Printf("[store] %v", err)
			st.MarkClient(records[i].ID, database.StatusError, err.Error(), 0)
			continue
		}
		out = append(out, cfg)
	}
	return out, nil
}

// MarkServer persists a status transition. Failures are logged and
// returned; callers on background paths may ignore them.
func (st *Store) MarkServer(id int64, status, errMsg string) error {
	if err := database.SetServerStatus(id, status, errMsg); err != nil {
		log.Printf("[store] failed to mark server %d %s: %v", id, status, err)
		return err
	}
	return nil
}

func (st *Store) MarkClient(id int64, status, errMsg string, assignedPort int) error {
	if err := database.SetClientStatus(id, status, errMsg, assignedPort); err != nil {
		log.Printf("[store] failed to mark client %d %s: %v", id, status, err)
		return err
	}
	return nil
}

// ClientWebhook returns the webhook target of a client together with the
// client fields a notification carries. ok is false when the client has no
// webhook configured or no longer exists.
func (st *Store) ClientWebhook(id int64) (webhook.Target, webhook.Notification, bool, error) {
	c, err := database.GetClient(id)
	if errors.Is(err, database.ErrNotFound) {
		return webhook.Target{}, webhook.Notification{}, false, nil
	}
	if err != nil {
		return webhook.Target{}, webhook.Notification{}, false, err
	}
	if c.WebhookURL == "" {
		return webhook.Target{}, webhook.Notification{}, false, nil
	}
	target := webhook.Target{
		URL:      c.WebhookURL,
		Format:   webhook.Format(c.WebhookFormat),
		Template: c.WebhookTemplate,
	}
	note := webhook.Notification{
		ClientID:     c.ID,
		ClientName:   c.Name,
		Description:  c.Description,
		LocalHost:    c.LocalHost,
		LocalPort:    c.LocalPort,
		RemoteServer: c.RemoteServer,
	}
	return target, note, true, nil
}
