package bore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// authenticator answers and verifies HMAC challenges. The key is the
// SHA-256 digest of the shared secret.
type authenticator struct {
	key []byte
}

func newAuthenticator(secret string) *authenticator {
	sum := sha256.Sum256([]byte(secret))
	return &authenticator{key: sum[:]}
}

func (a *authenticator) answer(challenge uuid.UUID) string {
	mac := hmac.New(sha256.New, a.key)
	mac.Write(challenge[:])
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *authenticator) validate(challenge uuid.UUID, tag string) bool {
	got, err := hex.DecodeString(tag)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, a.key)
	mac.Write(challenge[:])
	return hmac.Equal(mac.Sum(nil), got)
}

// serverHandshake issues a fresh challenge and checks the reply.
func (a *authenticator) serverHandshake(c *frameConn) error {
	challenge := uuid.New()
	if err := c.send(challengeMsg(challenge)); err != nil {
		return err
	}
	var msg clientMessage
	if err := c.recvTimeout(&msg); err != nil {
		return fmt.Errorf("read authentication: %w", err)
	}
	if msg.Authenticate == nil {
		return errors.New("server requires secret, but no secret was provided")
	}
	if !a.validate(challenge, *msg.Authenticate) {
		return errors.New("invalid secret")
	}
	return nil
}

// clientHandshake answers the server's challenge.
func (a *authenticator) clientHandshake(c *frameConn) error {
	var msg serverMessage
	if err := c.recvTimeout(&msg); err != nil {
		return fmt.Errorf("read challenge: %w", err)
	}
	if msg.Challenge == nil {
		return errors.New("expected authentication challenge, but no secret was required")
	}
	return c.send(authenticateMsg(a.answer(*msg.Challenge)))
}
