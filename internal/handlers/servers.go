package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/borui/borui/internal/crypto"
	"github.com/borui/borui/internal/dashboard"
	"github.com/borui/borui/internal/database"
	"github.com/borui/borui/internal/logutil"
	"github.com/borui/borui/internal/store"
	"github.com/borui/borui/internal/tunnel"
)

type serverResponse struct {
	database.Server
	HasSecret bool `json:"has_secret"`
}

func toServerResponse(s database.Server) serverResponse {
	return serverResponse{Server: s, HasSecret: s.Secret != ""}
}

// serverRequest is used for create and update. Nil fields are left as they
// are on update and defaulted on create.
type serverRequest struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	BindAddr       *string `json:"bind_addr"`
	BindTunnels    *string `json:"bind_tunnels"`
	ControlPort    *int    `json:"control_port"`
	PortRangeStart *int    `json:"port_range_start"`
	PortRangeEnd   *int    `json:"port_range_end"`
	Secret         *string `json:"secret"`
	AutoStart      *bool   `json:"auto_start"`
}

func (req serverRequest) apply(s *database.Server) error {
	if req.Name != nil {
		s.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		s.Description = *req.Description
	}
	if req.BindAddr != nil {
		s.BindAddr = strings.TrimSpace(*req.BindAddr)
	}
	if req.BindTunnels != nil {
		s.BindTunnels = strings.TrimSpace(*req.BindTunnels)
	}
	if req.ControlPort != nil {
		s.ControlPort = *req.ControlPort
	}
	if req.PortRangeStart != nil {
		s.PortRangeStart = *req.PortRangeStart
	}
	if req.PortRangeEnd != nil {
		s.PortRangeEnd = *req.PortRangeEnd
	}
	if req.AutoStart != nil {
		s.AutoStart = *req.AutoStart
	}
	if req.Secret != nil {
		enc, err := crypto.Encrypt(*req.Secret)
		if err != nil {
			return err
		}
		s.Secret = enc
	}
	return nil
}

// validateServer checks the network parameters the same way start will.
func validateServer(s *database.Server) error {
	_, err := tunnel.ServerConfig{
		BindAddr:       s.BindAddr,
		BindTunnels:    s.BindTunnels,
		ControlPort:    s.ControlPort,
		PortRangeStart: s.PortRangeStart,
		PortRangeEnd:   s.PortRangeEnd,
	}.Spec()
	return err
}

func (a *API) ListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := database.ListServers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list servers")
		return
	}
	out := make([]serverResponse, 0, len(servers))
	for _, s := range servers {
		out = append(out, toServerResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) CreateServer(w http.ResponseWriter, r *http.Request) {
	var body serverRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s := database.Server{
		BindAddr:       "0.0.0.0",
		BindTunnels:    "0.0.0.0",
		ControlPort:    tunnel.DefaultControlPort,
		PortRangeStart: 1024,
		PortRangeEnd:   65535,
		Status:         database.StatusStopped,
	}
	if err := body.apply(&s); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encrypt secret")
		return
	}
	if s.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if err := validateServer(&s); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := database.CreateServer(&s); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Server name already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create server")
		return
	}
	log.Printf("[api] server %s (%d) created", logutil.SanitizeForLog(s.Name), s.ID)
	writeJSON(w, http.StatusCreated, toServerResponse(s))
}

// loadServer resolves the {id} URL parameter, writing the error response
// itself when it fails.
func loadServer(w http.ResponseWriter, r *http.Request) (*database.Server, bool) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid server ID")
		return nil, false
	}
	s, err := database.GetServer(id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Server not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load server")
		return nil, false
	}
	return s, true
}

func (a *API) GetServer(w http.ResponseWriter, r *http.Request) {
	s, ok := loadServer(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toServerResponse(*s))
}

// UpdateServer edits the stored configuration. A running server keeps its
// current settings until it is restarted.
func (a *API) UpdateServer(w http.ResponseWriter, r *http.Request) {
	s, ok := loadServer(w, r)
	if !ok {
		return
	}
	var body serverRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := body.apply(s); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encrypt secret")
		return
	}
	if s.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if err := validateServer(s); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := database.SaveServer(s); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Server name already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update server")
		return
	}
	writeJSON(w, http.StatusOK, toServerResponse(*s))
}

func (a *API) DeleteServer(w http.ResponseWriter, r *http.Request) {
	s, ok := loadServer(w, r)
	if !ok {
		return
	}
	if _, live := a.Servers.Status(s.ID); live || s.Status == database.StatusRunning || s.Status == database.StatusStarting {
		writeError(w, http.StatusBadRequest, "Cannot delete running server. Stop it first.")
		return
	}
	if err := database.DeleteServer(s.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete server")
		return
	}
	a.forget(tunnel.KindServer, s.ID)
	log.Printf("[api] server %s (%d) deleted", logutil.SanitizeForLog(s.Name), s.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) StartServer(w http.ResponseWriter, r *http.Request) {
	s, ok := loadServer(w, r)
	if !ok {
		return
	}
	if _, live := a.Servers.Status(s.ID); live {
		writeError(w, http.StatusBadRequest, "Server is already running")
		return
	}
	cfg, err := store.ServerConfig(s)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to decrypt secret")
		return
	}

	a.markServer(s.ID, database.StatusStarting, "")

	ctx, cancel := a.startContext(r.Context())
	err = a.Servers.Start(ctx, cfg)
	cancel()
	if errors.Is(err, tunnel.ErrAlreadyRunning) {
		// Another start owns the entity. Leave the record as that start sets it.
		if _, live := a.Servers.Status(s.ID); live {
			a.markServer(s.ID, database.StatusRunning, "")
		} else {
			a.markServer(s.ID, s.Status, s.ErrorMessage)
		}
		writeTunnelError(w, err)
		return
	}
	if err != nil {
		a.markServer(s.ID, database.StatusError, err.Error())
		writeTunnelError(w, err)
		return
	}

	a.markServer(s.ID, database.StatusRunning, "")
	a.respondServer(w, s.ID)
}

// StopServer always leaves the record stopped, even when the manager had
// nothing running for it.
func (a *API) StopServer(w http.ResponseWriter, r *http.Request) {
	s, ok := loadServer(w, r)
	if !ok {
		return
	}
	if err := a.Servers.Stop(s.ID); err != nil {
		if !errors.Is(err, tunnel.ErrNotRunning) {
			writeTunnelError(w, err)
			return
		}
		log.Printf("[api] stop server %d: %v", s.ID, err)
	}
	a.markServer(s.ID, database.StatusStopped, "")
	a.respondServer(w, s.ID)
}

func (a *API) ServerStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid server ID")
		return
	}
	if snap, live := a.Servers.Status(id); live {
		writeJSON(w, http.StatusOK, snap)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":                 id,
		"status":             database.StatusStopped,
		"active_connections": 0,
		"uptime_seconds":     0,
	})
}

func (a *API) markServer(id int64, status, errMsg string) {
	a.Store.MarkServer(id, status, errMsg)
	a.publish(dashboard.ServerStatus(dashboard.RecordStatus{ID: id, Status: status, ErrorMessage: errMsg}))
}

func (a *API) respondServer(w http.ResponseWriter, id int64) {
	s, err := database.GetServer(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load server")
		return
	}
	writeJSON(w, http.StatusOK, toServerResponse(*s))
}

func (a *API) startContext(parent context.Context) (context.Context, context.CancelFunc) {
	if a.StartTimeout > 0 {
		return context.WithTimeout(parent, a.StartTimeout)
	}
	return context.WithCancel(parent)
}
