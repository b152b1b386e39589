package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	rejected := []string{
		"http://127.0.0.1/hook",
		"http://localhost/hook",
		"http://10.0.0.5/hook",
		"ftp://example.com/hook",
		"http://192.168.1.10:8080/hook",
		"http://172.16.0.1/hook",
		"http://169.254.169.254/latest/meta-data",
		"http://0.0.0.0/hook",
		"http://255.255.255.255/hook",
		"http://192.0.2.7/hook",
		"http://[::1]/hook",
		"http://[::]/hook",
		"http://[fd00::1]/hook",
		"http://[fe80::1]/hook",
		"http://[2001:db8::1]/hook",
		"http://[::ffff:127.0.0.1]/hook",
		"http://printer.local/hook",
		"http://metadata.google.internal/hook",
		"http://LOCALHOST/hook",
		"https:///hook",
		"javascript:alert(1)",
	}
	for _, raw := range rejected {
		t.Run(raw, func(t *testing.T) {
			assert.ErrorIs(t, ValidateURL(raw), ErrInvalidURL)
		})
	}

	accepted := []string{
		"https://example.com/hook",
		"http://hooks.example.org:8080/path?x=1",
		"https://93.184.216.34/hook",
		"https://[2606:2800:220:1::248]/hook",
	}
	for _, raw := range accepted {
		t.Run(raw, func(t *testing.T) {
			assert.NoError(t, ValidateURL(raw))
		})
	}
}

func connectedNote() Notification {
	return Notification{
		Event:        Connected,
		Time:         time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		ClientID:     1,
		ClientName:   "web",
		Description:  "dev box",
		LocalHost:    "127.0.0.1",
		LocalPort:    8080,
		RemoteServer: "tunnel.example.com",
		AssignedPort: 40123,
	}
}

func TestBody_JSON(t *testing.T) {
	body, ct, err := Body(Target{Format: FormatJSON}, connectedNote())
	require.NoError(t, err)
	assert.Equal(t, "application/json", ct)
	assert.JSONEq(t, `{
		"event": "client.connected",
		"timestamp": "2025-01-02T03:04:05Z",
		"client_id": 1,
		"client_name": "web",
		"description": "dev box",
		"local_host": "127.0.0.1",
		"local_port": 8080,
		"remote_server": "tunnel.example.com",
		"assigned_port": 40123
	}`, string(body))
}

func TestBody_JSONDisconnected(t *testing.T) {
	note := Notification{Event: Disconnected, ClientID: 2, ClientName: "db", UptimeSeconds: 90, LocalPort: 5432}
	body, _, err := Body(Target{}, note)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "client.disconnected", got["event"])
	assert.Equal(t, float64(90), got["uptime_seconds"])
	assert.NotContains(t, got, "local_port")
	assert.NotContains(t, got, "description")
}

func TestBody_Template(t *testing.T) {
	target := Target{Format: FormatCustom, Template: "{{client_name}} {{event}} on port {{assigned_port}}"}
	body, ct, err := Body(target, connectedNote())
	require.NoError(t, err)
	assert.Equal(t, "text/plain", ct)
	assert.Equal(t, "web connected on port 40123", string(body))
}

func TestBody_MissingTemplate(t *testing.T) {
	_, _, err := Body(Target{Format: FormatCustom}, connectedNote())
	assert.ErrorIs(t, err, ErrMissingTemplate)
}

type hookRecorder struct {
	mu    sync.Mutex
	times []time.Time
	types []string
	code  int
}

func (h *hookRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	io.Copy(io.Discard, r.Body)
	h.mu.Lock()
	h.times = append(h.times, time.Now())
	h.types = append(h.types, r.Header.Get("Content-Type"))
	code := h.code
	h.mu.Unlock()
	w.WriteHeader(code)
}

func (h *hookRecorder) attempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.times)
}

func (h *hookRecorder) snapshot() ([]time.Time, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Time(nil), h.times...), append([]string(nil), h.types...)
}

func allowAll(string) error { return nil }

func TestSend_RetriesServerErrors(t *testing.T) {
	hook := &hookRecorder{code: http.StatusInternalServerError}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	n := NewNotifier(time.Second, WithURLValidator(allowAll))
	err := n.Send(context.Background(), Target{URL: srv.URL}, connectedNote())

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.Code)
	times, _ := hook.snapshot()
	require.Len(t, times, 3)

	first := times[1].Sub(times[0])
	second := times[2].Sub(times[1])
	assert.GreaterOrEqual(t, first, 100*time.Millisecond)
	assert.GreaterOrEqual(t, second, 200*time.Millisecond)
	assert.Greater(t, second, first)
}

func TestSend_ClientErrorIsFinal(t *testing.T) {
	hook := &hookRecorder{code: http.StatusBadRequest}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	n := NewNotifier(time.Second, WithURLValidator(allowAll))
	err := n.Send(context.Background(), Target{URL: srv.URL}, connectedNote())

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.Code)
	assert.Equal(t, 1, hook.attempts())
}

func TestSend_Success(t *testing.T) {
	hook := &hookRecorder{code: http.StatusNoContent}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	n := NewNotifier(time.Second, WithURLValidator(allowAll))
	target := Target{URL: srv.URL, Format: FormatCustom, Template: "{{client_name}}"}
	require.NoError(t, n.Send(context.Background(), target, connectedNote()))
	_, types := hook.snapshot()
	assert.Equal(t, []string{"text/plain"}, types)
}

func TestSend_RejectsPrivateURLWithoutRequest(t *testing.T) {
	hook := &hookRecorder{code: http.StatusOK}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	err := NewNotifier(time.Second).Send(context.Background(), Target{URL: srv.URL}, connectedNote())
	assert.ErrorIs(t, err, ErrInvalidURL)
	assert.Equal(t, 0, hook.attempts())
}

func TestSend_TransportErrorsAreRetried(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	n := NewNotifier(time.Second, WithURLValidator(allowAll))
	start := time.Now()
	err := n.Send(context.Background(), Target{URL: url}, connectedNote())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestStatusError_Retryable(t *testing.T) {
	for code, want := range map[int]bool{
		http.StatusContinue:            true,
		http.StatusFound:               true,
		http.StatusNotModified:         true,
		http.StatusBadRequest:          false,
		http.StatusNotFound:            false,
		http.StatusTooManyRequests:     false,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
	} {
		assert.Equal(t, want, (&StatusError{Code: code}).Retryable(), "HTTP %d", code)
	}
}

func TestSend_UnfollowedRedirectIsRetried(t *testing.T) {
	// A 3xx without Location is returned to the caller as-is.
	hook := &hookRecorder{code: http.StatusFound}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	n := NewNotifier(time.Second, WithURLValidator(allowAll))
	err := n.Send(context.Background(), Target{URL: srv.URL}, connectedNote())

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusFound, se.Code)
	assert.Equal(t, 3, hook.attempts())
}

func redirectTo(target string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		http.Redirect(w, r, target, http.StatusTemporaryRedirect)
	})
}

func TestSend_RedirectToRejectedURLIsBlocked(t *testing.T) {
	internal := &hookRecorder{code: http.StatusOK}
	internalSrv := httptest.NewServer(internal)
	defer internalSrv.Close()

	public := &hookRecorder{code: http.StatusOK}
	publicSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		public.ServeHTTP(httptest.NewRecorder(), r)
		redirectTo(internalSrv.URL+"/latest/meta-data").ServeHTTP(w, r)
	}))
	defer publicSrv.Close()

	var mu sync.Mutex
	var validated []string
	onlyPublic := func(raw string) error {
		mu.Lock()
		validated = append(validated, raw)
		mu.Unlock()
		if raw == publicSrv.URL {
			return nil
		}
		return ErrInvalidURL
	}

	// The injected client must be covered too.
	n := NewNotifier(time.Second, WithURLValidator(onlyPublic), WithHTTPClient(&http.Client{}))
	err := n.Send(context.Background(), Target{URL: publicSrv.URL}, connectedNote())

	assert.ErrorIs(t, err, ErrInvalidURL)
	assert.Equal(t, 0, internal.attempts(), "redirect target must never be requested")
	assert.Equal(t, 1, public.attempts(), "a rejected redirect is not retried")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{publicSrv.URL, internalSrv.URL + "/latest/meta-data"}, validated)
}

func TestSend_FollowsAllowedRedirect(t *testing.T) {
	final := &hookRecorder{code: http.StatusOK}
	finalSrv := httptest.NewServer(final)
	defer finalSrv.Close()
	hopSrv := httptest.NewServer(redirectTo(finalSrv.URL))
	defer hopSrv.Close()

	n := NewNotifier(time.Second, WithURLValidator(allowAll))
	require.NoError(t, n.Send(context.Background(), Target{URL: hopSrv.URL}, connectedNote()))
	_, types := final.snapshot()
	assert.Equal(t, []string{"application/json"}, types, "307 keeps the POST body and content type")
}
