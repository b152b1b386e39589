package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cbroglie/mustache"
)

// ErrMissingTemplate is returned when the custom format is selected without
// a template.
var ErrMissingTemplate = errors.New("no webhook template configured")

// Format selects how a notification body is encoded.
type Format string

const (
	FormatJSON   Format = "json"
	FormatCustom Format = "custom"
)

// Event is the lifecycle transition being announced.
type Event string

const (
	Connected    Event = "connected"
	Disconnected Event = "disconnected"
)

// Target is a client's webhook configuration.
type Target struct {
	URL      string
	Format   Format
	Template string
}

// Notification describes one tunnel client transition.
type Notification struct {
	Event        Event
	Time         time.Time
	ClientID     int64
	ClientName   string
	Description  string
	LocalHost    string
	LocalPort    int
	RemoteServer string
	// AssignedPort is zero when unknown.
	AssignedPort  int
	UptimeSeconds int64
}

// fields returns the values shared by the JSON envelope and the template
// context. Connected carries the endpoints, Disconnected the uptime.
func (n Notification) fields(event string) map[string]any {
	ts := n.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	m := map[string]any{
		"event":       event,
		"timestamp":   ts.UTC().Format(time.RFC3339),
		"client_id":   n.ClientID,
		"client_name": n.ClientName,
	}
	if n.Description != "" {
		m["description"] = n.Description
	}
	switch n.Event {
	case Connected:
		m["local_host"] = n.LocalHost
		m["local_port"] = n.LocalPort
		m["remote_server"] = n.RemoteServer
		if n.AssignedPort > 0 {
			m["assigned_port"] = n.AssignedPort
		}
	case Disconnected:
		m["uptime_seconds"] = n.UptimeSeconds
	}
	return m
}

// Body encodes n for target. JSON envelopes name the event "client.<event>";
// templates see the bare event name.
func Body(target Target, n Notification) ([]byte, string, error) {
	if target.Format == FormatCustom {
		if target.Template == "" {
			return nil, "", ErrMissingTemplate
		}
		out, err := mustache.Render(target.Template, n.fields(string(n.Event)))
		if err != nil {
			return nil, "", fmt.Errorf("render webhook template: %w", err)
		}
		return []byte(out), "text/plain", nil
	}

	b, err := json.Marshal(n.fields("client." + string(n.Event)))
	if err != nil {
		return nil, "", fmt.Errorf("encode webhook payload: %w", err)
	}
	return b, "application/json", nil
}
