package crypto

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fernet/fernet-go"

	"github.com/borui/borui/internal/database"
)

const keySetting = "fernet_key"

var (
	keyMu  sync.Mutex
	cached *fernet.Key
)

func getKey() (*fernet.Key, error) {
	keyMu.Lock()
	defer keyMu.Unlock()
	if cached != nil {
		return cached, nil
	}

	keyStr, err := database.GetSetting(keySetting)
	if errors.Is(err, database.ErrNotFound) {
		var k fernet.Key
		if err := k.Generate(); err != nil {
			return nil, fmt.Errorf("generate fernet key: %w", err)
		}
		if err := database.SetSetting(keySetting, k.Encode()); err != nil {
			return nil, fmt.Errorf("save fernet key: %w", err)
		}
		cached = &k
		return cached, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load fernet key: %w", err)
	}

	key, err := fernet.DecodeKey(keyStr)
	if err != nil {
		return nil, fmt.Errorf("decode fernet key: %w", err)
	}
	cached = key
	return cached, nil
}

// ResetKeyCache forgets the cached key so the next call reloads it from the
// settings table. Tests swap databases underneath the package.
func ResetKeyCache() {
	keyMu.Lock()
	cached = nil
	keyMu.Unlock()
}

// Encrypt seals a tunnel secret for storage. The empty string stays empty
// so "no secret" survives a round trip.
func Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	key, err := getKey()
	if err != nil {
		return "", err
	}
	tok, err := fernet.EncryptAndSign([]byte(plaintext), key)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return string(tok), nil
}

func Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	key, err := getKey()
	if err != nil {
		return "", err
	}
	msg := fernet.VerifyAndDecrypt([]byte(ciphertext), 0, []*fernet.Key{key})
	if msg == nil {
		return "", errors.New("decrypt: invalid token")
	}
	return string(msg), nil
}
