package model

import (
	"time"
)

// Status represents the lifecycle state of a chat session.
type Status string

const (
	StatusStarting      Status = "starting"
	StatusAwaitingScan  Status = "awaiting_scan"
	StatusAuthenticated Status = "authenticated"
	StatusReady         Status = "ready"
	StatusFailed        Status = "failed"
	StatusDisconnected  Status = "disconnected"
	StatusRescanning    Status = "rescanning"
)

// Summary is the externally visible view of a session, used for both
// GET /api/sessions and every SSE broadcast frame.
type Summary struct {
	Name           string    `json:"name"`
	Status         Status    `json:"status"`
	Webhook        string    `json:"webhook,omitempty"`
	PairingPayload string    `json:"pairingPayload,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PersistedSession is the durable subset of a session. Status and pairing
// payload are runtime-only and reconstructed at "starting" on restart.
type PersistedSession struct {
	Name      string
	Webhook   string
	CreatedAt time.Time
}

// InboundMessage is one message received by a session's chat client.
type InboundMessage struct {
	ID          string    `json:"id"`
	From        string    `json:"from"`
	To          string    `json:"to,omitempty"`
	Timestamp   int64     `json:"timestamp"`
	Type        string    `json:"type"`
	IsGroup     bool      `json:"isGroupMessage"`
	Author      string    `json:"author,omitempty"`
	ContactName string    `json:"contactName,omitempty"`
	ChatName    string    `json:"chatName,omitempty"`
	Body        string    `json:"body,omitempty"`
	HasMedia    bool      `json:"hasMedia,omitempty"`
	Media       *Media    `json:"media,omitempty"`
	Location    *Location `json:"location,omitempty"`
}

// Media carries a base64-encoded attachment downloaded by the chat client.
type Media struct {
	Mimetype string `json:"mimetype"`
	Data     string `json:"data"`
	Filename string `json:"filename,omitempty"`
}

// Location carries a shared-location payload.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// CreateSessionRequest represents a request to create a new session.
type CreateSessionRequest struct {
	Name    string `json:"name"`
	Webhook string `json:"webhook"`
}

// Validate validates the create session request.
func (r *CreateSessionRequest) Validate() error {
	if r.Name == "" {
		return ErrNameRequired
	}
	return nil
}
