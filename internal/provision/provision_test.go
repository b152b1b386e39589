package provision

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/borui/borui/internal/crypto"
	"github.com/borui/borui/internal/database"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), logger.Silent)
	require.NoError(t, err)
	old := database.DB
	database.DB = db
	crypto.ResetKeyCache()
	t.Cleanup(func() {
		database.Close()
		database.DB = old
		crypto.ResetKeyCache()
	})
}

const sample = `
servers:
  - name: edge
    bind_addr: 127.0.0.1
    secret: s3cret
    auto_start: true
clients:
  - name: web
    local_port: 8080
    remote_server: tunnel.example.com
    webhook_url: https://hooks.example.com/borui
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, f.Servers, 1)
	require.Len(t, f.Clients, 1)
	assert.Equal(t, "127.0.0.1", f.Servers[0].BindAddr)
	assert.True(t, f.Servers[0].AutoStart)
	assert.Equal(t, 8080, f.Clients[0].LocalPort)

	empty, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Servers)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "servers:\n  - name: a\n    colour: red\n", "colour"},
		{"missing name", "servers:\n  - bind_addr: 0.0.0.0\n", "name is required"},
		{"duplicate", "servers:\n  - name: a\n  - name: a\n", "duplicate"},
		{"bad local port", "clients:\n  - name: c\n    local_port: 0\n    remote_server: x\n", "local_port"},
		{"no remote", "clients:\n  - name: c\n    local_port: 80\n", "remote_server"},
		{"private webhook", "clients:\n  - name: c\n    local_port: 80\n    remote_server: x\n    webhook_url: http://10.0.0.5/hook\n", "webhook"},
		{"custom without template", "clients:\n  - name: c\n    local_port: 80\n    remote_server: x\n    webhook_format: custom\n", "template"},
		{"unknown format", "clients:\n  - name: c\n    local_port: 80\n    remote_server: x\n    webhook_format: xml\n", "webhook_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApply_CreatesThenUpdates(t *testing.T) {
	setupTestDB(t)

	path := filepath.Join(t.TempDir(), "borui.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	f, err := Load(path)
	require.NoError(t, err)

	res, err := Apply(f)
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 2}, res)

	srv, err := database.GetServerByName("edge")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", srv.BindAddr)
	assert.Equal(t, "0.0.0.0", srv.BindTunnels)
	assert.Equal(t, 7835, srv.ControlPort)
	assert.NotEqual(t, "s3cret", srv.Secret, "secret is stored encrypted")
	plain, err := crypto.Decrypt(srv.Secret)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", plain)

	require.NoError(t, database.SetServerStatus(srv.ID, database.StatusRunning, ""))
	f.Servers[0].PortRangeStart = 20000
	f.Servers[0].AutoStart = false
	res, err = Apply(f)
	require.NoError(t, err)
	assert.Equal(t, Result{Updated: 2}, res)

	srv, err = database.GetServerByName("edge")
	require.NoError(t, err)
	assert.Equal(t, 20000, srv.PortRangeStart)
	assert.False(t, srv.AutoStart)
	assert.Equal(t, database.StatusRunning, srv.Status, "status is left alone")

	cl, err := database.GetClientByName("web")
	require.NoError(t, err)
	assert.Equal(t, "localhost", cl.LocalHost)
	assert.Equal(t, database.WebhookFormatJSON, cl.WebhookFormat)
	assert.Empty(t, cl.Secret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
