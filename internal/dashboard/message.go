package dashboard

import "github.com/borui/borui/internal/tunnel"

// MessageType tags an outbound dashboard frame.
type MessageType string

const (
	TypeServerStatus    MessageType = "server_status"
	TypeClientStatus    MessageType = "client_status"
	TypeConnectionEvent MessageType = "connection_event"
	TypeError           MessageType = "error"
	TypePong            MessageType = "pong"
)

// Message is one outbound frame: {"type": ..., "data": ...}.
type Message struct {
	Type MessageType `json:"type"`
	Data any         `json:"data,omitempty"`
}

// RecordStatus is the persisted status of an entity after a transition.
type RecordStatus struct {
	ID           int64  `json:"id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	AssignedPort *int   `json:"assigned_port,omitempty"`
}

func ServerStatus(data any) Message { return Message{Type: TypeServerStatus, Data: data} }
func ClientStatus(data any) Message { return Message{Type: TypeClientStatus, Data: data} }

// StatusOf wraps data in the status message type matching kind.
func StatusOf(kind tunnel.Kind, data any) Message {
	if kind == tunnel.KindServer {
		return ServerStatus(data)
	}
	return ClientStatus(data)
}

func ConnectionEvent(ev tunnel.Event) Message {
	return Message{Type: TypeConnectionEvent, Data: ev}
}

func Error(detail string) Message {
	return Message{Type: TypeError, Data: map[string]string{"detail": detail}}
}

func Pong() Message { return Message{Type: TypePong} }
