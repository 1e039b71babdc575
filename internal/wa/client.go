// Package wa abstracts the external chat-protocol client consumed by the
// session registry. The protocol implementation itself (pairing, encryption,
// transport) lives behind the Client interface; the registry only consumes
// the event/operation contract defined here.
package wa

import (
	"context"

	"github.com/clevio/dashboard/internal/model"
)

// EventType classifies chat client lifecycle and message events.
type EventType int

const (
	// EventPairingCode is emitted when the client needs an out-of-band scan.
	EventPairingCode EventType = iota
	// EventAuthenticated is emitted once the pairing code has been scanned.
	EventAuthenticated
	// EventReady is emitted when the client is fully connected.
	EventReady
	// EventAuthFailed is emitted when authentication is rejected.
	EventAuthFailed
	// EventDisconnected is emitted when the connection is lost.
	EventDisconnected
	// EventMessage is emitted for every inbound chat message.
	EventMessage
)

// Event is the tagged union delivered on a client's event channel. Exactly
// the fields relevant to Type are set.
type Event struct {
	Type           EventType
	PairingPayload string
	Reason         string
	Message        *model.InboundMessage
}

// Client is one handle onto an external chat account. A handle is owned by
// exactly one session record and is never shared.
type Client interface {
	// Initialize starts the client. Pairing and readiness are reported
	// asynchronously on the Events channel; Initialize returns once the
	// client has begun connecting.
	Initialize(ctx context.Context) error

	// Logout invalidates the stored credentials so the next Initialize
	// for the same session name requires a fresh pairing.
	Logout() error

	// Destroy releases the handle. The Events channel is closed; no
	// further events are delivered.
	Destroy() error

	// SendMessage sends content to a chat target and returns the message id.
	SendMessage(ctx context.Context, target, content string) (string, error)

	// Events returns the channel carrying this handle's event stream.
	// The channel is closed when the handle is destroyed or the
	// underlying connection terminates.
	Events() <-chan Event
}

// Factory constructs clients. Handles created for the same session name share
// one credential identity, so a re-created handle resumes the stored
// authentication unless Logout was called first.
type Factory interface {
	New(sessionName string) (Client, error)
}
