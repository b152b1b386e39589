package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	old := Cfg
	t.Cleanup(func() { Cfg = old })
	Cfg = Settings{}

	t.Setenv("BORUI_JWT_SECRET", "")
	t.Setenv("BORUI_DATA_PATH", "/var/lib/borui")
	t.Setenv("BORUI_START_TIMEOUT", "3s")
	Load()

	assert.Equal(t, InsecureJWTSecret, Cfg.JWTSecret)
	assert.Equal(t, "0.0.0.0:3000", Cfg.ListenAddr)
	assert.Equal(t, 3*time.Second, Cfg.StartTimeout)
	assert.Equal(t, "@every 5s", Cfg.MaintenanceSchedule)
	assert.Empty(t, Cfg.AllowedIPs)
	assert.Equal(t, filepath.Join("/var/lib/borui", "borui.log"), Cfg.ResolvedLogPath())

	Cfg.LogPath = "/tmp/x.log"
	assert.Equal(t, "/tmp/x.log", Cfg.ResolvedLogPath())
}
