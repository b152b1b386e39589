package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/borui/borui/internal/crypto"
	"github.com/borui/borui/internal/dashboard"
	"github.com/borui/borui/internal/database"
	"github.com/borui/borui/internal/logutil"
	"github.com/borui/borui/internal/store"
	"github.com/borui/borui/internal/tunnel"
	"github.com/borui/borui/internal/webhook"
)

type clientResponse struct {
	database.Client
	HasSecret bool `json:"has_secret"`
}

func toClientResponse(c database.Client) clientResponse {
	return clientResponse{Client: c, HasSecret: c.Secret != ""}
}

type clientRequest struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	LocalHost       *string `json:"local_host"`
	LocalPort       *int    `json:"local_port"`
	RemoteServer    *string `json:"remote_server"`
	RemotePort      *int    `json:"remote_port"`
	Secret          *string `json:"secret"`
	AutoStart       *bool   `json:"auto_start"`
	WebhookURL      *string `json:"webhook_url"`
	WebhookFormat   *string `json:"webhook_format"`
	WebhookTemplate *string `json:"webhook_template"`
}

func (req clientRequest) apply(c *database.Client) error {
	if req.Name != nil {
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if req.LocalHost != nil {
		c.LocalHost = strings.TrimSpace(*req.LocalHost)
	}
	if req.LocalPort != nil {
		c.LocalPort = *req.LocalPort
	}
	if req.RemoteServer != nil {
		c.RemoteServer = strings.TrimSpace(*req.RemoteServer)
	}
	if req.RemotePort != nil {
		c.RemotePort = *req.RemotePort
	}
	if req.AutoStart != nil {
		c.AutoStart = *req.AutoStart
	}
	if req.WebhookURL != nil {
		c.WebhookURL = strings.TrimSpace(*req.WebhookURL)
	}
	if req.WebhookFormat != nil {
		c.WebhookFormat = *req.WebhookFormat
	}
	if req.WebhookTemplate != nil {
		c.WebhookTemplate = *req.WebhookTemplate
	}
	if req.Secret != nil {
		enc, err := crypto.Encrypt(*req.Secret)
		if err != nil {
			return err
		}
		c.Secret = enc
	}
	return nil
}

// validateClient returns a user-facing message, or "" when c is usable.
func validateClient(c *database.Client) string {
	if c.Name == "" {
		return "Name is required"
	}
	_, err := tunnel.ClientConfig{
		LocalHost:    c.LocalHost,
		LocalPort:    c.LocalPort,
		RemoteServer: c.RemoteServer,
		RemotePort:   c.RemotePort,
	}.Spec()
	if err != nil {
		return err.Error()
	}
	switch c.WebhookFormat {
	case database.WebhookFormatJSON:
	case database.WebhookFormatCustom:
		if c.WebhookTemplate == "" {
			return "Webhook template is required for the custom format"
		}
	default:
		return fmt.Sprintf("Unknown webhook format %q", c.WebhookFormat)
	}
	if c.WebhookURL != "" {
		if err := webhook.ValidateURL(c.WebhookURL); err != nil {
			return err.Error()
		}
	}
	return ""
}

func (a *API) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := database.ListClients()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clients")
		return
	}
	out := make([]clientResponse, 0, len(clients))
	for _, c := range clients {
		out = append(out, toClientResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) CreateClient(w http.ResponseWriter, r *http.Request) {
	var body clientRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	c := database.Client{
		LocalHost:     "localhost",
		WebhookFormat: database.WebhookFormatJSON,
		Status:        database.StatusStopped,
	}
	if err := body.apply(&c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encrypt secret")
		return
	}
	if msg := validateClient(&c); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := database.CreateClient(&c); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Client name already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create client")
		return
	}
	log.Printf("[api] client %s (%d) created", logutil.SanitizeForLog(c.Name), c.ID)
	writeJSON(w, http.StatusCreated, toClientResponse(c))
}

func loadClient(w http.ResponseWriter, r *http.Request) (*database.Client, bool) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid client ID")
		return nil, false
	}
	c, err := database.GetClient(id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Client not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load client")
		return nil, false
	}
	return c, true
}

func (a *API) GetClient(w http.ResponseWriter, r *http.Request) {
	c, ok := loadClient(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toClientResponse(*c))
}

func (a *API) UpdateClient(w http.ResponseWriter, r *http.Request) {
	c, ok := loadClient(w, r)
	if !ok {
		return
	}
	var body clientRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := body.apply(c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encrypt secret")
		return
	}
	if msg := validateClient(c); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if err := database.SaveClient(c); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Client name already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update client")
		return
	}
	writeJSON(w, http.StatusOK, toClientResponse(*c))
}

func (a *API) DeleteClient(w http.ResponseWriter, r *http.Request) {
	c, ok := loadClient(w, r)
	if !ok {
		return
	}
	if _, live := a.Clients.Status(c.ID); live || c.Status == database.StatusConnected || c.Status == database.StatusStarting {
		writeError(w, http.StatusBadRequest, "Cannot delete running client. Stop it first.")
		return
	}
	if err := database.DeleteClient(c.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete client")
		return
	}
	a.forget(tunnel.KindClient, c.ID)
	log.Printf("[api] client %s (%d) deleted", logutil.SanitizeForLog(c.Name), c.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) StartClient(w http.ResponseWriter, r *http.Request) {
	c, ok := loadClient(w, r)
	if !ok {
		return
	}
	if _, live := a.Clients.Status(c.ID); live {
		writeError(w, http.StatusBadRequest, "Client is already running")
		return
	}
	cfg, err := store.ClientConfig(c)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to decrypt secret")
		return
	}

	a.markClient(c.ID, database.StatusStarting, "", 0)

	ctx, cancel := a.startContext(r.Context())
	port, err := a.Clients.Start(ctx, cfg)
	cancel()
	if errors.Is(err, tunnel.ErrAlreadyRunning) {
		if snap, live := a.Clients.Status(c.ID); live {
			a.markClient(c.ID, database.StatusConnected, "", *snap.AssignedPort)
		} else {
			a.markClient(c.ID, c.Status, c.ErrorMessage, 0)
		}
		writeTunnelError(w, err)
		return
	}
	if err != nil {
		a.markClient(c.ID, database.StatusError, err.Error(), 0)
		writeTunnelError(w, err)
		return
	}

	a.markClient(c.ID, database.StatusConnected, "", port)
	a.respondClient(w, c.ID)
}

func (a *API) StopClient(w http.ResponseWriter, r *http.Request) {
	c, ok := loadClient(w, r)
	if !ok {
		return
	}
	if err := a.Clients.Stop(c.ID); err != nil {
		if !errors.Is(err, tunnel.ErrNotRunning) {
			writeTunnelError(w, err)
			return
		}
		log.Printf("[api] stop client %d: %v", c.ID, err)
	}
	a.markClient(c.ID, database.StatusStopped, "", 0)
	a.respondClient(w, c.ID)
}

func (a *API) ClientStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid client ID")
		return
	}
	if snap, live := a.Clients.Status(id); live {
		writeJSON(w, http.StatusOK, snap)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":             id,
		"status":         database.StatusStopped,
		"assigned_port":  nil,
		"uptime_seconds": 0,
	})
}

func (a *API) markClient(id int64, status, errMsg string, port int) {
	a.Store.MarkClient(id, status, errMsg, port)
	rec := dashboard.RecordStatus{ID: id, Status: status, ErrorMessage: errMsg}
	if status == database.StatusConnected {
		rec.AssignedPort = &port
	}
	a.publish(dashboard.ClientStatus(rec))
}

func (a *API) respondClient(w http.ResponseWriter, id int64) {
	c, err := database.GetClient(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load client")
		return
	}
	writeJSON(w, http.StatusOK, toClientResponse(*c))
}
