package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// pollServer is a minimal stand-in for the server's long-poll endpoints.
type pollServer struct {
	sessions atomic.Int64
	// batches are served one per poll in order; afterwards polls answer
	// 410, forcing the transport to reopen.
	batches [][]Envelope
	served  atomic.Int64
}

func (s *pollServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/realtime/poll", func(w http.ResponseWriter, r *http.Request) {
		s.sessions.Add(1)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(createSessionResponse{SessionID: "session-1", PollWaitSecs: 1})
	})
	mux.HandleFunc("GET /v1/realtime/poll/{id}", func(w http.ResponseWriter, r *http.Request) {
		n := int(s.served.Add(1)) - 1
		if n >= len(s.batches) {
			w.WriteHeader(http.StatusGone)
			return
		}
		json.NewEncoder(w).Encode(pollResponse{Events: s.batches[n]})
	})
	mux.HandleFunc("DELETE /v1/realtime/poll/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func collectStates(t *PollTransport, out *[]ConnState, done chan struct{}) {
	for s := range t.States() {
		*out = append(*out, s)
		if len(*out) >= cap(*out) {
			break
		}
	}
	close(done)
}

func TestPollTransport_DeliversBatchedEvents(t *testing.T) {
	server := &pollServer{batches: [][]Envelope{
		{
			{Topic: TopicTimerStarted, Payload: json.RawMessage(`{"id":"t1"}`)},
			{Topic: TopicTimerStopped},
		},
	}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	transport := NewPollTransport(ts.URL, "test-token")
	transport.backoff = 10 * time.Millisecond
	if err := transport.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer transport.Close()

	first := <-transport.Events()
	if first.Topic != TopicTimerStarted {
		t.Fatalf("expected timer-started first, got %q", first.Topic)
	}
	second := <-transport.Events()
	if second.Topic != TopicTimerStopped {
		t.Fatalf("expected timer-stopped second, got %q", second.Topic)
	}
}

func TestPollTransport_GoneSessionReopensAndReconnects(t *testing.T) {
	// No batches: the first poll answers 410 immediately.
	server := &pollServer{}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	transport := NewPollTransport(ts.URL, "test-token")
	transport.backoff = 10 * time.Millisecond
	if err := transport.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer transport.Close()

	states := make([]ConnState, 0, 3)
	done := make(chan struct{})
	go collectStates(transport, &states, done)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state transitions")
	}

	// connected → disconnected (410) → connected again on the new session.
	if states[0].Phase != PhaseConnected || states[1].Phase != PhaseDisconnected || states[2].Phase != PhaseConnected {
		t.Fatalf("unexpected transitions: %+v", states)
	}
	if server.sessions.Load() < 2 {
		t.Fatalf("expected a second session to be opened, got %d", server.sessions.Load())
	}
}

func TestPollTransport_GivesUpAfterRepeatedFailures(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	transport := NewPollTransport(ts.URL, "test-token")
	transport.backoff = time.Millisecond
	transport.maxTry = 3
	if err := transport.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-transport.States():
			if !ok {
				t.Fatal("states closed without a terminal disconnect")
			}
			if s.Terminal {
				return
			}
		case <-deadline:
			t.Fatal("transport never reached terminal state")
		}
	}
}
