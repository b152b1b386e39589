package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/borui/borui/internal/auth"
	"github.com/borui/borui/internal/config"
	"github.com/borui/borui/internal/crypto"
	"github.com/borui/borui/internal/dashboard"
	"github.com/borui/borui/internal/database"
	"github.com/borui/borui/internal/handlers"
	"github.com/borui/borui/internal/middleware"
	"github.com/borui/borui/internal/store"
	"github.com/borui/borui/internal/tunnel"
)

func setupTestDBMain(t *testing.T) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), logger.Silent)
	require.NoError(t, err)
	old, oldCfg := database.DB, config.Cfg
	database.DB = db
	crypto.ResetKeyCache()
	t.Cleanup(func() {
		database.Close()
		database.DB = old
		config.Cfg = oldCfg
		crypto.ResetKeyCache()
	})
}

func newTestRouter(t *testing.T, allow ...*net.IPNet) (http.Handler, *auth.Issuer) {
	t.Helper()
	setupTestDBMain(t)
	issuer := auth.NewIssuer("router-test", time.Hour)
	api := &handlers.API{
		Servers:     tunnel.NewServerManager(tunnel.NewRegistry(), nil, tunnel.ManagerConfig{}),
		Clients:     tunnel.NewClientManager(tunnel.NewRegistry(), nil, tunnel.ManagerConfig{}),
		Broadcaster: dashboard.NewBroadcaster(0),
		Store:       store.New(),
		Issuer:      issuer,
		LogPath:     filepath.Join(t.TempDir(), "borui.log"),
	}
	return newRouter(api, issuer, allow), issuer
}

func TestEnsureAdmin(t *testing.T) {
	setupTestDBMain(t)
	config.Cfg.InitAdmin = "ops"
	config.Cfg.InitAdminPassword = "initial-pass"

	require.NoError(t, ensureAdmin())
	require.NoError(t, ensureAdmin())

	n, err := database.UserCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	u, err := database.GetUserByUsername("ops")
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword("initial-pass", u.PasswordHash))
}

func TestRouter_AuthBoundary(t *testing.T) {
	h, issuer := newTestRouter(t)
	config.Cfg.AuthDisabled = false

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/system/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	u := &database.User{Username: "admin", PasswordHash: "x"}
	require.NoError(t, database.CreateUser(u))
	token, err := issuer.Issue(u.ID, u.Username)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var servers []interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &servers))
	assert.Empty(t, servers)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/servers/1/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"stopped"`)
}

func TestRouter_ServesDashboard(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "<title>Borui</title>"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_AllowList(t *testing.T) {
	allow, err := middleware.ParseAllowList("10.0.0.0/8")
	require.NoError(t, err)
	h, _ := newTestRouter(t, allow...)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/system/health", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/health", nil)
	req.Header.Set("X-Real-IP", "10.20.30.40")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type orderLog struct{ steps []string }

type fakeHTTPServer struct{ log *orderLog }

func (s fakeHTTPServer) Shutdown(context.Context) error {
	s.log.steps = append(s.log.steps, "http")
	return nil
}

type fakeManager struct {
	name string
	log  *orderLog
	// persist simulates a start request that finished just before shutdown.
	persist func()
}

func (m fakeManager) StopAll() {
	m.log.steps = append(m.log.steps, m.name)
	if m.persist != nil {
		m.persist()
	}
}

func TestDrain_ClosesHTTPBeforeStoppingTunnels(t *testing.T) {
	setupTestDBMain(t)
	s := &database.Server{Name: "edge"}
	require.NoError(t, database.CreateServer(s))

	order := &orderLog{}
	servers := fakeManager{name: "servers", log: order, persist: func() {
		require.NoError(t, database.SetServerStatus(s.ID, database.StatusRunning, ""))
	}}
	clients := fakeManager{name: "clients", log: order}

	drain(context.Background(), fakeHTTPServer{log: order}, servers, clients)

	assert.Equal(t, []string{"http", "servers", "clients"}, order.steps)
	loaded, err := database.GetServer(s.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusStopped, loaded.Status)
}
