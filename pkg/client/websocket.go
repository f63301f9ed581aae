package client

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultMaxReconnects    = 5
	defaultReconnectBackoff = 3 * time.Second
	dialTimeout             = 10 * time.Second
)

// WSTransport streams events over a WebSocket connection. On stream loss it
// reconnects with a fixed backoff, up to a bounded number of consecutive
// failures; a successful connect resets the budget. When the budget is spent
// it emits a terminal Disconnected state and stops, leaving recovery to the
// caller (typically by falling back to the polling transport).
type WSTransport struct {
	url     string
	dialer  *websocket.Dialer
	backoff time.Duration
	maxTry  int

	events chan Envelope
	states chan ConnState
	done   chan struct{}
	once   sync.Once
}

// NewWSTransport builds a transport for the given ws:// or wss:// endpoint.
// The token authenticates the handshake; it is sent as a query parameter
// because browser WebSocket APIs cannot set headers.
func NewWSTransport(endpoint, token string) (*WSTransport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("websocket transport: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return &WSTransport{
		url:     u.String(),
		dialer:  &websocket.Dialer{HandshakeTimeout: dialTimeout},
		backoff: defaultReconnectBackoff,
		maxTry:  defaultMaxReconnects,
		events:  make(chan Envelope, 64),
		states:  make(chan ConnState, 8),
		done:    make(chan struct{}),
	}, nil
}

func (t *WSTransport) Connect() error {
	go t.run()
	return nil
}

func (t *WSTransport) Events() <-chan Envelope { return t.events }

func (t *WSTransport) States() <-chan ConnState { return t.states }

func (t *WSTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

func (t *WSTransport) run() {
	defer close(t.events)
	defer close(t.states)

	failures := 0
	for {
		select {
		case <-t.done:
			return
		default:
		}

		conn, _, err := t.dialer.Dial(t.url, nil)
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

		failures = 0
		t.emit(ConnState{Phase: PhaseConnected})

		err = t.readLoop(conn)
		conn.Close()

		select {
		case <-t.done:
			return
		default:
		}
		t.emit(ConnState{Phase: PhaseDisconnected, Err: err})
		if !t.sleep(t.backoff) {
			return
		}
	}
}

// readLoop forwards envelopes until the connection breaks or Close is
// called. It returns the read error that ended the stream.
func (t *WSTransport) readLoop(conn *websocket.Conn) error {
	// Unblock the reader when Close fires.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-t.done:
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		select {
		case t.events <- env:
		case <-t.done:
			return nil
		}
	}
}

func (t *WSTransport) emit(s ConnState) {
	select {
	case t.states <- s:
	case <-t.done:
	}
}

// sleep waits for d, returning false if Close fired first.
func (t *WSTransport) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-t.done:
		return false
	}
}
