// Package webhook delivers inbound-message notifications to per-session
// configured endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/clevio/dashboard/internal/model"
)

// Payload is the JSON body POSTed to a session's webhook for each inbound
// message.
type Payload struct {
	Session     string          `json:"session"`
	From        string          `json:"from"`
	To          string          `json:"to,omitempty"`
	ID          string          `json:"id"`
	Timestamp   int64           `json:"timestamp"`
	Type        string          `json:"type"`
	IsGroupMsg  bool            `json:"isGroupMsg"`
	Author      string          `json:"author,omitempty"`
	ContactName string          `json:"contactName,omitempty"`
	ChatName    string          `json:"chatName,omitempty"`
	Body        string          `json:"body,omitempty"`
	Media       *model.Media    `json:"media,omitempty"`
	Location    *model.Location `json:"location,omitempty"`
}

// Forwarder issues fire-and-forget webhook deliveries. Failures are logged
// and discarded; there is no retry and no ordering guarantee between
// deliveries for the same session.
type Forwarder struct {
	client  *http.Client
	timeout time.Duration
	wg      sync.WaitGroup
}

// New creates a Forwarder. A zero timeout defaults to 30s per delivery.
func New(timeout time.Duration) *Forwarder {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Forwarder{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Forward delivers msg to url asynchronously. An empty url means the session
// has no webhook configured: no network call is made and no error is raised.
func (f *Forwarder) Forward(session, url string, msg model.InboundMessage) {
	if url == "" {
		return
	}

	payload := Payload{
		Session:     session,
		From:        msg.From,
		To:          msg.To,
		ID:          msg.ID,
		Timestamp:   msg.Timestamp,
		Type:        msg.Type,
		IsGroupMsg:  msg.IsGroup,
		Author:      msg.Author,
		ContactName: msg.ContactName,
		ChatName:    msg.ChatName,
		Body:        msg.Body,
		Media:       msg.Media,
		Location:    msg.Location,
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.deliver(session, url, payload)
	}()
}

func (f *Forwarder) deliver(session, url string, payload Payload) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("webhook: session %s: failed to encode payload: %v", session, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		log.Printf("webhook: session %s: invalid webhook %q: %v", session, url, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		log.Printf("webhook: session %s: delivery to %s failed: %v", session, url, err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("webhook: session %s: delivery to %s returned %d", session, url, resp.StatusCode)
	}
}

// Wait blocks until every in-flight delivery has finished. Used by shutdown
// and tests; new deliveries started while waiting are included.
func (f *Forwarder) Wait() {
	f.wg.Wait()
}
