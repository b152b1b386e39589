package handlers

import (
	"net/http"
	"strconv"

	"github.com/borui/borui/internal/tunnel"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 100
)

func (a *API) ServerEvents(w http.ResponseWriter, r *http.Request) {
	a.entityEvents(w, r, tunnel.KindServer)
}

func (a *API) ClientEvents(w http.ResponseWriter, r *http.Request) {
	a.entityEvents(w, r, tunnel.KindClient)
}

func (a *API) entityEvents(w http.ResponseWriter, r *http.Request, kind tunnel.Kind) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return
	}
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxEventLimit)
	}

	events := []tunnel.Event{}
	if a.History != nil {
		events = a.History.Recent(kind, id, limit)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (a *API) forget(kind tunnel.Kind, id int64) {
	if a.History != nil {
		a.History.Forget(kind, id)
	}
}
