package bore

import (
	"encoding/json"
	"net"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerMessage_WireFormat(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	tests := []struct {
		name string
		msg  serverMessage
		want string
	}{
		{"heartbeat", heartbeatMsg(), `"Heartbeat"`},
		{"hello", serverHelloMsg(40000), `{"Hello":40000}`},
		{"connection", connectionMsg(id), `{"Connection":"6ba7b810-9dad-11d1-80b4-00c04fd430c8"}`},
		{"error", errorMsg("port already in use"), `{"Error":"port already in use"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))

			var back serverMessage
			require.NoError(t, json.Unmarshal(b, &back))
			assert.Equal(t, tt.msg, back)
		})
	}
}

func TestServerMessage_UnknownTag(t *testing.T) {
	var msg serverMessage
	assert.Error(t, json.Unmarshal([]byte(`"Goodbye"`), &msg))
}

func TestClientMessage_HelloZero(t *testing.T) {
	b, err := json.Marshal(helloMsg(0))
	require.NoError(t, err)
	assert.Equal(t, `{"Hello":0}`, string(b))
}

func TestFrameConn_RoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go newFrameConn(a).send(serverHelloMsg(1234))

	var msg serverMessage
	require.NoError(t, newFrameConn(b).recvTimeout(&msg))
	require.NotNil(t, msg.Hello)
	assert.Equal(t, uint16(1234), *msg.Hello)
}

func TestFrameConn_RejectsOversizedFrame(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go a.Write([]byte(`{"Error":"` + strings.Repeat("x", 400) + `"}` + "\x00"))

	var msg serverMessage
	assert.ErrorIs(t, newFrameConn(b).recv(&msg), errFrameTooLarge)
}

func TestAuthenticator(t *testing.T) {
	challenge := uuid.New()
	auth := newAuthenticator("s3cret")

	tag := auth.answer(challenge)
	assert.Len(t, tag, 64)
	assert.True(t, auth.validate(challenge, tag))
	assert.False(t, auth.validate(uuid.New(), tag))
	assert.False(t, newAuthenticator("other").validate(challenge, tag))
	assert.False(t, auth.validate(challenge, "not hex"))
}
