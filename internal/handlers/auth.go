package handlers

import (
	"errors"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/borui/borui/internal/auth"
	"github.com/borui/borui/internal/database"
	"github.com/borui/borui/internal/logutil"
	"github.com/borui/borui/internal/middleware"
)

const (
	minUsernameLen    = 3
	maxDisplayNameLen = 50
	minPasswordLen    = 6
)

func userInfo(u *database.User) map[string]interface{} {
	return map[string]interface{}{
		"id":           u.ID,
		"username":     u.Username,
		"display_name": u.DisplayName,
	}
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	key := body.Username + "|" + clientHost(r)
	if a.Limiter != nil {
		if err := a.Limiter.Allow(key); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
	}

	user, err := database.GetUserByUsername(body.Username)
	if err != nil || !auth.CheckPassword(body.Password, user.PasswordHash) {
		log.Printf("[auth] failed login for %s", logutil.SanitizeForLog(body.Username))
		if a.Limiter != nil {
			a.Limiter.RecordFailure(key)
		}
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if a.Limiter != nil {
		a.Limiter.RecordSuccess(key)
	}

	token, err := a.Issuer.Issue(user.ID, user.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  userInfo(user),
	})
}

// Logout is a no-op beyond acknowledging: tokens are stateless and the
// dashboard discards its copy.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, userInfo(user))
}

func (a *API) Refresh(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	token, err := a.Issuer.Issue(user.ID, user.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (a *API) UpdateUsername(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	var body struct {
		NewUsername string `json:"new_username"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	name := strings.TrimSpace(body.NewUsername)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Username cannot be empty")
		return
	}
	if len(name) < minUsernameLen {
		writeError(w, http.StatusBadRequest, "Username must be at least 3 characters")
		return
	}

	if err := database.UpdateUsername(user.ID, name); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Username already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update username")
		return
	}
	user.Username = name
	writeJSON(w, http.StatusOK, userInfo(user))
}

func (a *API) UpdateDisplayName(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	var body struct {
		DisplayName *string `json:"display_name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// A null display name clears it.
	name := ""
	if body.DisplayName != nil {
		name = strings.TrimSpace(*body.DisplayName)
		if name == "" {
			writeError(w, http.StatusBadRequest, "Display name cannot be blank")
			return
		}
		if len([]rune(name)) > maxDisplayNameLen {
			writeError(w, http.StatusBadRequest, "Display name must be at most 50 characters")
			return
		}
	}

	if err := database.UpdateDisplayName(user.ID, name); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update display name")
		return
	}
	user.DisplayName = name
	writeJSON(w, http.StatusOK, userInfo(user))
}

func (a *API) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	var body struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !auth.CheckPassword(body.CurrentPassword, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	}
	if len(body.NewPassword) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "New password must be at least 6 characters")
		return
	}

	hash, err := auth.HashPassword(body.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}
	if err := database.UpdateUserPassword(user.ID, hash); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update password")
		return
	}
	log.Printf("[auth] password changed for user %d", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// clientHost strips the port from RemoteAddr, which RealIP may already have
// replaced with a bare address.
func clientHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
