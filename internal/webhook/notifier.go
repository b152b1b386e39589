// Package webhook delivers tunnel client lifecycle notifications to
// user-configured HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/jpillora/backoff"

	"github.com/borui/borui/internal/logutil"
)

const (
	maxAttempts    = 3
	maxRedirects   = 5
	DefaultTimeout = 10 * time.Second
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned HTTP %d", e.Code)
}

// Retryable reports whether the failure is worth another attempt. Only a
// 4xx is final.
func (e *StatusError) Retryable() bool { return e.Code < 400 || e.Code >= 500 }

// Notifier posts notifications with bounded retries.
type Notifier struct {
	client   *http.Client
	validate func(string) error
	minDelay time.Duration
}

type Option func(*Notifier)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// WithURLValidator replaces ValidateURL.
func WithURLValidator(fn func(string) error) Option {
	return func(n *Notifier) { n.validate = fn }
}

// NewNotifier returns a Notifier whose requests time out after timeout.
func NewNotifier(timeout time.Duration, opts ...Option) *Notifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	n := &Notifier{
		client:   &http.Client{Timeout: timeout},
		validate: ValidateURL,
		minDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(n)
	}

	// Every redirect hop must pass the same validation as the original
	// destination. The client is copied so an injected one is not mutated.
	client := *n.client
	client.CheckRedirect = n.checkRedirect
	n.client = &client
	return n
}

func (n *Notifier) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("%w: stopped after %d redirects", ErrInvalidURL, maxRedirects)
	}
	if err := n.validate(req.URL.String()); err != nil {
		return fmt.Errorf("redirect rejected: %w", err)
	}
	return nil
}

// Send validates target, encodes n and posts it. Validation and encoding
// failures are returned without any request being made. Transport errors
// and non-2xx responses are retried with exponential backoff (100ms, then
// 200ms); a 4xx response or a redirect to a rejected URL ends delivery
// immediately.
func (n *Notifier) Send(ctx context.Context, target Target, note Notification) error {
	if err := n.validate(target.URL); err != nil {
		return err
	}
	body, contentType, err := Body(target, note)
	if err != nil {
		return err
	}

	dest := logutil.SanitizeForLog(target.URL)
	b := &backoff.Backoff{Min: n.minDelay, Max: 8 * n.minDelay, Factor: 2}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = n.post(ctx, target.URL, contentType, body)
		if lastErr == nil {
			log.Printf("[webhook] client %d %s delivered to %s (attempt %d)", note.ClientID, note.Event, dest, attempt)
			return nil
		}
		var se *StatusError
		if errors.Is(lastErr, ErrInvalidURL) || (errors.As(lastErr, &se) && !se.Retryable()) {
			log.Printf("[webhook] client %d %s to %s failed: %v, not retrying", note.ClientID, note.Event, dest, lastErr)
			return lastErr
		}
		log.Printf("[webhook] client %d %s to %s failed (attempt %d): %v", note.ClientID, note.Event, dest, attempt, lastErr)

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", maxAttempts, lastErr)
}

func (n *Notifier) post(ctx context.Context, url, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "borui-webhook")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}
