package client

// ConnPhase names a transport lifecycle transition.
type ConnPhase string

const (
	// PhaseConnected means the transport (re)established its event stream.
	// Every Connected transition must be followed by a full resync, because
	// events may have been missed while disconnected.
	PhaseConnected ConnPhase = "connected"
	// PhaseDisconnected means the event stream was lost. The transport may
	// still be retrying; Terminal reports whether it gave up.
	PhaseDisconnected ConnPhase = "disconnected"
)

// ConnState is one transport lifecycle transition.
type ConnState struct {
	Phase ConnPhase
	// Err is the cause of a disconnect, nil on connect.
	Err error
	// Terminal is set on the final Disconnected state after the transport
	// has exhausted its reconnect budget and will make no further attempts.
	Terminal bool
}

// Transport delivers the server's event stream. Both implementations speak
// the same envelope contract, so the reconciler does not care which one it
// is given.
type Transport interface {
	// Connect starts the transport's connect/read loop in the background.
	// Lifecycle transitions are reported on States; Connect itself only
	// fails on unusable configuration.
	Connect() error
	// Events yields decoded envelopes in server order. The channel closes
	// when the transport stops permanently.
	Events() <-chan Envelope
	// States yields lifecycle transitions. The channel closes when the
	// transport stops permanently.
	States() <-chan ConnState
	// Close stops the transport and releases its connection, if any.
	Close() error
}
