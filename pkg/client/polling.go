package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// PollTransport streams events over repeated long-poll requests, for network
// paths that cannot sustain WebSockets. The server holds each GET open until
// events arrive or its wait elapses; a 410 means the session is gone, so the
// transport opens a fresh one and reports a reconnect, which makes the
// reconciler resync exactly as it would after a WebSocket drop.
type PollTransport struct {
	baseURL string
	token   string
	hc      *http.Client
	backoff time.Duration
	maxTry  int

	events chan Envelope
	states chan ConnState
	done   chan struct{}
	once   sync.Once
}

// NewPollTransport builds a transport against the given http(s) base URL,
// e.g. "https://api.example.com".
func NewPollTransport(baseURL, token string) *PollTransport {
	return &PollTransport{
		baseURL: baseURL,
		token:   token,
		// Timeout must exceed the server's poll wait or every poll
		// would abort early.
		hc:      &http.Client{Timeout: 40 * time.Second},
		backoff: defaultReconnectBackoff,
		maxTry:  defaultMaxReconnects,
		events:  make(chan Envelope, 64),
		states:  make(chan ConnState, 8),
		done:    make(chan struct{}),
	}
}

func (t *PollTransport) Connect() error {
	go t.run()
	return nil
}

func (t *PollTransport) Events() <-chan Envelope { return t.events }

func (t *PollTransport) States() <-chan ConnState { return t.states }

func (t *PollTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

type createSessionResponse struct {
	SessionID    string `json:"session_id"`
	PollWaitSecs int    `json:"poll_wait_seconds"`
}

type pollResponse struct {
	Events []Envelope `json:"events"`
}

func (t *PollTransport) run() {
	defer close(t.events)
	defer close(t.states)

	failures := 0
	var sessionID string
	for {
		select {
		case <-t.done:
			t.closeSession(sessionID)
			return
		default:
		}

		if sessionID == "" {
			id, err := t.openSession()
			if err != nil {
				failures++
				if failures >= t.maxTry {
					t.emit(ConnState{Phase: PhaseDisconnected, Err: err, Terminal: true})
					return
				}
				t.emit(ConnState{Phase: PhaseDisconnected, Err: err})
				if !t.sleep(t.backoff) {
					return
				}
				continue
			}
			sessionID = id
			failures = 0
			t.emit(ConnState{Phase: PhaseConnected})
		}

		batch, err := t.poll(sessionID)
		switch {
		case err == errSessionGone:
			// Reopen on the next iteration and resync.
			sessionID = ""
			t.emit(ConnState{Phase: PhaseDisconnected, Err: err})
		case err != nil:
			failures++
			if failures >= t.maxTry {
				t.emit(ConnState{Phase: PhaseDisconnected, Err: err, Terminal: true})
				return
			}
			t.emit(ConnState{Phase: PhaseDisconnected, Err: err})
			sessionID = ""
			if !t.sleep(t.backoff) {
				return
			}
		default:
			failures = 0
			for _, env := range batch {
				select {
				case t.events <- env:
				case <-t.done:
					t.closeSession(sessionID)
					return
				}
			}
		}
	}
}

var errSessionGone = fmt.Errorf("poll session gone")

func (t *PollTransport) openSession() (string, error) {
	req, err := http.NewRequest(http.MethodPost, t.baseURL+"/v1/realtime/poll", bytes.NewReader(nil))
	if err != nil {
		return "", err
	}
	resp, err := t.do(req)
	if err != nil {
		return "", fmt.Errorf("open poll session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("open poll session: unexpected status %d", resp.StatusCode)
	}
	var out createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("open poll session: decode: %w", err)
	}
	return out.SessionID, nil
}

func (t *PollTransport) poll(sessionID string) ([]Envelope, error) {
	req, err := http.NewRequest(http.MethodGet, t.baseURL+"/v1/realtime/poll/"+sessionID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.do(req)
	if err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out pollResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("poll: decode: %w", err)
		}
		return out.Events, nil
	case http.StatusGone:
		return nil, errSessionGone
	default:
		return nil, fmt.Errorf("poll: unexpected status %d", resp.StatusCode)
	}
}

func (t *PollTransport) closeSession(sessionID string) {
	if sessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, t.baseURL+"/v1/realtime/poll/"+sessionID, nil)
	if err != nil {
		return
	}
	if resp, err := t.do(req); err == nil {
		resp.Body.Close()
	}
}

func (t *PollTransport) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.hc.Do(req)
}

func (t *PollTransport) emit(s ConnState) {
	select {
	case t.states <- s:
	case <-t.done:
	}
}

func (t *PollTransport) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-t.done:
		return false
	}
}
