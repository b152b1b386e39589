package tunnel

import "time"

// EventType is the kind of lifecycle transition an Event reports.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventError        EventType = "error"
)

// Event is a fire-and-forget lifecycle notification.
type Event struct {
	Kind   Kind      `json:"kind"`
	ID     int64     `json:"id"`
	Name   string    `json:"name,omitempty"`
	Type   EventType `json:"event"`
	Detail string    `json:"detail,omitempty"`
	// AssignedPort is set on client connected events.
	AssignedPort int       `json:"assigned_port,omitempty"`
	Uptime       int64     `json:"uptime_seconds,omitempty"`
	Time         time.Time `json:"timestamp"`
}

// EventSink receives lifecycle events. It is called synchronously from the
// manager and must not block.
type EventSink func(Event)
