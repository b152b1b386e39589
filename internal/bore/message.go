// Package bore speaks the bore tunnel protocol: a control connection on
// port 7835 carrying NUL-terminated JSON frames, with an optional
// HMAC-SHA256 challenge for shared-secret authentication.
//
// Server and Client are wire compatible with the upstream bore CLI, so a
// tunnel client started here can register with a stock bore server and the
// other way around.
package bore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// clientMessage is sent from a bore client to the control port. Exactly one
// field is set.
type clientMessage struct {
	Authenticate *string    `json:"Authenticate,omitempty"`
	Hello        *uint16    `json:"Hello,omitempty"`
	Accept       *uuid.UUID `json:"Accept,omitempty"`
}

func authenticateMsg(tag string) clientMessage { return clientMessage{Authenticate: &tag} }
func helloMsg(port uint16) clientMessage       { return clientMessage{Hello: &port} }
func acceptMsg(id uuid.UUID) clientMessage     { return clientMessage{Accept: &id} }

// serverMessage is sent from the control port to a bore client. Heartbeat
// travels as the bare JSON string "Heartbeat"; every other variant is a
// single-key object.
type serverMessage struct {
	Challenge  *uuid.UUID `json:"Challenge,omitempty"`
	Hello      *uint16    `json:"Hello,omitempty"`
	Heartbeat  bool       `json:"-"`
	Connection *uuid.UUID `json:"Connection,omitempty"`
	Error      *string    `json:"Error,omitempty"`
}

func challengeMsg(id uuid.UUID) serverMessage  { return serverMessage{Challenge: &id} }
func serverHelloMsg(port uint16) serverMessage { return serverMessage{Hello: &port} }
func connectionMsg(id uuid.UUID) serverMessage { return serverMessage{Connection: &id} }
func errorMsg(text string) serverMessage       { return serverMessage{Error: &text} }
func heartbeatMsg() serverMessage              { return serverMessage{Heartbeat: true} }

var heartbeatJSON = []byte(`"Heartbeat"`)

type serverMessageWire serverMessage

func (m serverMessage) MarshalJSON() ([]byte, error) {
	if m.Heartbeat {
		return heartbeatJSON, nil
	}
	return json.Marshal(serverMessageWire(m))
}

func (m *serverMessage) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return err
		}
		if tag != "Heartbeat" {
			return fmt.Errorf("unknown server message %q", tag)
		}
		*m = heartbeatMsg()
		return nil
	}
	var w serverMessageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = serverMessage(w)
	return nil
}
