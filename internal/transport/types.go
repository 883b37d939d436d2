// Package transport defines the session with the external chat network.
//
// The dispatch core only sees this interface; concrete adapters live in
// subpackages. Session lifecycle is event-driven: Connect starts the
// session and everything that happens to it afterwards (pairing
// challenge, open, close, fatal error) arrives on Events().
package transport

import (
	"context"
	"errors"

	"groupcast/internal/model"
)

// EventKind classifies a session event.
type EventKind int

const (
	// EventPairing carries a pairing challenge (e.g. a QR payload) the
	// operator must scan/confirm before the session opens.
	EventPairing EventKind = iota
	// EventOpened signals the session is authenticated and usable.
	EventOpened
	// EventClosed signals the session ended; Reason tells why.
	EventClosed
	// EventFatal signals an unrecoverable session error.
	EventFatal
)

// ReasonLoggedOut marks an explicit logout by the remote side. It is the
// one close reason that must never trigger an automatic reconnect.
const ReasonLoggedOut = "logged_out"

// Event is one session state change emitted by a Transport.
type Event struct {
	Kind EventKind

	// PairingPayload is set for EventPairing: a renderable challenge.
	PairingPayload string

	// Reason is set for EventClosed.
	Reason string

	// Err is set for EventFatal.
	Err error
}

// Message is the content sent to one destination.
type Message struct {
	Text      string
	ImagePath string
}

// ErrNotConnected is returned by Send when no session is open.
var ErrNotConnected = errors.New("transport: not connected")

// Transport is the chat-network session consumed by the dispatch core.
//
// Connect is asynchronous: it starts session establishment and returns;
// progress arrives on the Events channel. The channel is closed by
// Close().
type Transport interface {
	Connect(ctx context.Context) error
	Events() <-chan Event

	Send(ctx context.Context, destinationID string, msg Message) error
	ListGroups(ctx context.Context) ([]model.Group, error)

	Logout(ctx context.Context) error
	Close() error
}
