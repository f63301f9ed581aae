package realtime

import "github.com/dtsoden/pmo-sub002/internal/core/domain"

// Envelope is the wire shape of every realtime message, identical on both
// transports. The transport never interprets the payload.
type Envelope struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload,omitempty"`
}

func envelopeFrom(ev domain.Event) Envelope {
	return Envelope{Topic: string(ev.Topic), Payload: ev.Payload}
}
