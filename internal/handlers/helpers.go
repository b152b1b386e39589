package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/borui/borui/internal/tunnel"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeTunnelError maps a lifecycle manager error onto an HTTP status.
func writeTunnelError(w http.ResponseWriter, err error) {
	var cfgErr *tunnel.ConfigError
	var startErr *tunnel.StartError
	switch {
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tunnel.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, tunnel.ErrNotRunning):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &startErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		log.Printf("[api] unexpected error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
