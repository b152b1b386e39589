package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

// setupTestDB points DB at a fresh SQLite file for the duration of the test.
func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), logger.Silent)
	require.NoError(t, err)
	old := DB
	DB = db
	t.Cleanup(func() {
		Close()
		DB = old
	})
}

func TestServerDefaults(t *testing.T) {
	setupTestDB(t)

	s := Server{Name: "edge"}
	require.NoError(t, CreateServer(&s))

	loaded, err := GetServer(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", loaded.BindAddr)
	assert.Equal(t, "0.0.0.0", loaded.BindTunnels)
	assert.Equal(t, 7835, loaded.ControlPort)
	assert.Equal(t, 1024, loaded.PortRangeStart)
	assert.Equal(t, 65535, loaded.PortRangeEnd)
	assert.Equal(t, StatusStopped, loaded.Status)
	assert.False(t, loaded.AutoStart)
}

func TestClientDefaults(t *testing.T) {
	setupTestDB(t)

	c := Client{Name: "web", LocalPort: 8080, RemoteServer: "tunnel.example.com"}
	require.NoError(t, CreateClient(&c))

	loaded, err := GetClient(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "localhost", loaded.LocalHost)
	assert.Equal(t, WebhookFormatJSON, loaded.WebhookFormat)
	assert.Equal(t, StatusStopped, loaded.Status)
	assert.Nil(t, loaded.AssignedPort)
}

func TestDuplicateName(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, CreateServer(&Server{Name: "edge"}))
	assert.ErrorIs(t, CreateServer(&Server{Name: "edge"}), ErrDuplicate)
}

func TestNotFound(t *testing.T) {
	setupTestDB(t)

	_, err := GetServer(99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = GetClientByName("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, DeleteClient(99), ErrNotFound)
	_, err = GetSetting("fernet_key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetServerStatus(t *testing.T) {
	setupTestDB(t)

	s := Server{Name: "edge"}
	require.NoError(t, CreateServer(&s))

	require.NoError(t, SetServerStatus(s.ID, StatusStarting, ""))
	loaded, _ := GetServer(s.ID)
	assert.Equal(t, StatusStarting, loaded.Status)
	assert.NotNil(t, loaded.LastStartedAt)

	require.NoError(t, SetServerStatus(s.ID, StatusError, "invalid bind_addr"))
	loaded, _ = GetServer(s.ID)
	assert.Equal(t, StatusError, loaded.Status)
	assert.Equal(t, "invalid bind_addr", loaded.ErrorMessage)

	require.NoError(t, SetServerStatus(s.ID, StatusRunning, "ignored"))
	loaded, _ = GetServer(s.ID)
	assert.Equal(t, StatusRunning, loaded.Status)
	assert.Empty(t, loaded.ErrorMessage)
}

func TestSetClientStatus(t *testing.T) {
	setupTestDB(t)

	c := Client{Name: "web", LocalPort: 8080, RemoteServer: "tunnel.example.com"}
	require.NoError(t, CreateClient(&c))

	require.NoError(t, SetClientStatus(c.ID, StatusConnected, "", 40123))
	loaded, _ := GetClient(c.ID)
	assert.Equal(t, StatusConnected, loaded.Status)
	require.NotNil(t, loaded.AssignedPort)
	assert.Equal(t, 40123, *loaded.AssignedPort)
	assert.NotNil(t, loaded.LastConnectedAt)

	require.NoError(t, SetClientStatus(c.ID, StatusStopped, "", 0))
	loaded, _ = GetClient(c.ID)
	assert.Equal(t, StatusStopped, loaded.Status)
	assert.Nil(t, loaded.AssignedPort)
}

func TestResetStaleStatuses(t *testing.T) {
	setupTestDB(t)

	for i, status := range []string{StatusRunning, StatusStarting, StatusError, StatusStopped} {
		s := Server{Name: "s" + string(rune('a'+i))}
		require.NoError(t, CreateServer(&s))
		require.NoError(t, SetServerStatus(s.ID, status, "boom"))
	}
	c := Client{Name: "web", LocalPort: 80, RemoteServer: "example.com"}
	require.NoError(t, CreateClient(&c))
	require.NoError(t, SetClientStatus(c.ID, StatusConnected, "", 4000))

	n, err := ResetStaleStatuses()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	servers, err := ListServers()
	require.NoError(t, err)
	var got []string
	for _, s := range servers {
		got = append(got, s.Status)
	}
	assert.Equal(t, []string{StatusStopped, StatusStopped, StatusError, StatusStopped}, got)

	loaded, _ := GetClient(c.ID)
	assert.Equal(t, StatusStopped, loaded.Status)
	assert.Nil(t, loaded.AssignedPort)
}

func TestAutoStartQueries(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, CreateServer(&Server{Name: "a", AutoStart: true}))
	require.NoError(t, CreateServer(&Server{Name: "b"}))
	require.NoError(t, CreateClient(&Client{Name: "c", LocalPort: 1, RemoteServer: "x", AutoStart: true}))

	servers, err := ListAutoStartServers()
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "a", servers[0].Name)

	clients, err := ListAutoStartClients()
	require.NoError(t, err)
	assert.Len(t, clients, 1)
}

func TestUsers(t *testing.T) {
	setupTestDB(t)

	u := User{Username: "admin", PasswordHash: "hash"}
	require.NoError(t, CreateUser(&u))
	assert.ErrorIs(t, CreateUser(&User{Username: "admin", PasswordHash: "x"}), ErrDuplicate)

	require.NoError(t, UpdateDisplayName(u.ID, "Administrator"))
	require.NoError(t, UpdateUsername(u.ID, "root"))
	loaded, err := GetUserByUsername("root")
	require.NoError(t, err)
	assert.Equal(t, "Administrator", loaded.DisplayName)

	first, err := GetFirstUser()
	require.NoError(t, err)
	assert.Equal(t, u.ID, first.ID)

	n, err := UserCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSettings(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, SetSetting("fernet_key", "one"))
	require.NoError(t, SetSetting("fernet_key", "two"))
	v, err := GetSetting("fernet_key")
	require.NoError(t, err)
	assert.Equal(t, "two", v)
}
