package handlers

import (
	"net/http"
	"strconv"

	"github.com/borui/borui/internal/database"
	"github.com/borui/borui/internal/logging"
)

const (
	defaultLogLines = 200
	maxLogLines     = 5000
)

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	if err := database.Ping(); err != nil {
		dbStatus = "error"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"database": dbStatus,
	})
}

func (a *API) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    Version,
		"build_date": BuildDate,
	})
}

// Stats reports live counts from the lifecycle managers and record totals
// from the store.
func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	totalServers, err := database.CountServers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count servers")
		return
	}
	totalClients, err := database.CountClients()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count clients")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"servers_running":   len(a.Servers.Running()),
		"clients_connected": len(a.Clients.Running()),
		"total_servers":     totalServers,
		"total_clients":     totalClients,
	})
}

func (a *API) Logs(w http.ResponseWriter, r *http.Request) {
	lines := defaultLogLines
	if q := r.URL.Query().Get("lines"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			lines = min(n, maxLogLines)
		}
	}

	content, err := logging.ReadTail(a.LogPath, lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": content})
}
