package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Errors the API surface maps status codes to.
var (
	// ErrConflict means the mutation lost a race, e.g. starting a timer
	// when one is already running.
	ErrConflict = errors.New("client: conflict")
	// ErrNotFound means the targeted resource does not exist.
	ErrNotFound = errors.New("client: not found")
	// ErrUnauthorized means the token was missing, expired, or invalid.
	ErrUnauthorized = errors.New("client: unauthorized")
	// ErrForbidden means the token was valid but the resource belongs to
	// someone else.
	ErrForbidden = errors.New("client: forbidden")
	// ErrUnknownOutcome means the request may or may not have reached the
	// server (timeout, connection drop mid-request). The mutation must not
	// be blindly retried; resync instead and let server state decide.
	ErrUnknownOutcome = errors.New("client: unknown outcome")
)

// API is the subset of server operations the reconciler drives. Satisfied by
// *APIClient; a test double stands in for it in unit tests.
type API interface {
	ActiveTimer(ctx context.Context) (*Timer, error)
	Shortcuts(ctx context.Context) ([]Shortcut, error)

	StartTimer(ctx context.Context, in TimerInput) (*Timer, error)
	StopTimer(ctx context.Context) (*TimeEntry, error)
	DiscardTimer(ctx context.Context) error
	UpdateTimer(ctx context.Context, in TimerInput) (*Timer, error)

	CreateShortcut(ctx context.Context, in ShortcutInput) (*Shortcut, error)
	UpdateShortcut(ctx context.Context, id string, in ShortcutInput) (*Shortcut, error)
	DeleteShortcut(ctx context.Context, id string) error
	ReorderShortcuts(ctx context.Context, ids []string) ([]Shortcut, error)
}

// TimerInput is the request body for starting or editing a timer.
type TimerInput struct {
	TaskID      string `json:"task_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// ShortcutInput is the request body for creating or editing a shortcut.
type ShortcutInput struct {
	TaskID string `json:"task_id,omitempty"`
	Label  string `json:"label"`
	Color  string `json:"color,omitempty"`
	Icon   string `json:"icon,omitempty"`
	Group  string `json:"group,omitempty"`
}

// APIClient talks to the server's REST surface.
type APIClient struct {
	baseURL string
	token   string
	hc      *http.Client
}

// NewAPIClient builds a client against the given http(s) base URL.
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		hc:      &http.Client{Timeout: 15 * time.Second},
	}
}

type activeTimerResponse struct {
	Timer *Timer `json:"timer"`
}

type shortcutListResponse struct {
	Shortcuts []Shortcut `json:"shortcuts"`
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

// ActiveTimer fetches the caller's running timer; nil means none is running.
func (c *APIClient) ActiveTimer(ctx context.Context) (*Timer, error) {
	var out activeTimerResponse
	if err := c.call(ctx, http.MethodGet, "/v1/timer/active", nil, &out); err != nil {
		return nil, err
	}
	return out.Timer, nil
}

// Shortcuts fetches the caller's shortcut list in server order.
func (c *APIClient) Shortcuts(ctx context.Context) ([]Shortcut, error) {
	var out shortcutListResponse
	if err := c.call(ctx, http.MethodGet, "/v1/shortcuts", nil, &out); err != nil {
		return nil, err
	}
	return out.Shortcuts, nil
}

func (c *APIClient) StartTimer(ctx context.Context, in TimerInput) (*Timer, error) {
	var out Timer
	if err := c.call(ctx, http.MethodPost, "/v1/timer/start", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) StopTimer(ctx context.Context) (*TimeEntry, error) {
	var out TimeEntry
	if err := c.call(ctx, http.MethodPost, "/v1/timer/stop", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) DiscardTimer(ctx context.Context) error {
	return c.call(ctx, http.MethodDelete, "/v1/timer/active", nil, nil)
}

func (c *APIClient) UpdateTimer(ctx context.Context, in TimerInput) (*Timer, error) {
	var out Timer
	if err := c.call(ctx, http.MethodPut, "/v1/timer/active", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) CreateShortcut(ctx context.Context, in ShortcutInput) (*Shortcut, error) {
	var out Shortcut
	if err := c.call(ctx, http.MethodPost, "/v1/shortcuts", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) UpdateShortcut(ctx context.Context, id string, in ShortcutInput) (*Shortcut, error) {
	var out Shortcut
	if err := c.call(ctx, http.MethodPut, "/v1/shortcuts/"+id, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) DeleteShortcut(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/v1/shortcuts/"+id, nil, nil)
}

func (c *APIClient) ReorderShortcuts(ctx context.Context, ids []string) ([]Shortcut, error) {
	var out shortcutListResponse
	if err := c.call(ctx, http.MethodPut, "/v1/shortcuts/reorder", reorderRequest{IDs: ids}, &out); err != nil {
		return nil, err
	}
	return out.Shortcuts, nil
}

// call performs one request, mapping transport failures to ErrUnknownOutcome
// and error statuses to the package sentinels.
func (c *APIClient) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if isIndeterminate(err) {
			return fmt.Errorf("%s %s: %w", method, path, ErrUnknownOutcome)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: %w", method, path, statusError(resp.StatusCode))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

// isIndeterminate reports whether the failure leaves the server-side outcome
// unknown. A refused connection never reached the server; a timeout or
// cancelled context may have.
func isIndeterminate(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func statusError(code int) error {
	switch code {
	case http.StatusConflict:
		return ErrConflict
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	default:
		return fmt.Errorf("client: unexpected status %d", code)
	}
}
