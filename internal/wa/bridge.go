package wa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/clevio/dashboard/internal/model"
)

// BridgeFactory creates clients backed by the chat-protocol bridge sidecar.
// The bridge exposes per-session REST operations and a websocket event
// stream; this factory is the production Factory implementation.
type BridgeFactory struct {
	// BaseURL is the bridge's HTTP base, e.g. "http://localhost:3000".
	BaseURL string

	// HTTPClient is used for operation calls. Defaults to a 30s-timeout client.
	HTTPClient *http.Client

	// Dialer is used for the event stream. Defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// New constructs a handle for the named session. The bridge keys credential
// storage by session name, so handles for the same name resume the same
// authentication state.
func (f *BridgeFactory) New(sessionName string) (Client, error) {
	if f.BaseURL == "" {
		return nil, fmt.Errorf("bridge base URL is not configured")
	}
	httpClient := f.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &bridgeClient{
		name:       sessionName,
		instanceID: uuid.New().String(),
		baseURL:    strings.TrimRight(f.BaseURL, "/"),
		httpClient: httpClient,
		dialer:     dialer,
		events:     make(chan Event, 64),
	}, nil
}

// bridgeClient talks to one session slot on the bridge. Operations go over
// HTTP; events arrive as JSON frames on a websocket. The instance id lets the
// bridge tell a fresh handle from a stale one after a rescan.
type bridgeClient struct {
	name       string
	instanceID string
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer

	events chan Event

	mu        sync.Mutex
	conn      *websocket.Conn
	destroyed bool
	closeOnce sync.Once
}

// bridgeFrame is the wire format of one event frame from the bridge.
type bridgeFrame struct {
	Event   string                `json:"event"`
	Payload string                `json:"payload,omitempty"`
	Reason  string                `json:"reason,omitempty"`
	Message *model.InboundMessage `json:"message,omitempty"`
}

func (c *bridgeClient) Initialize(ctx context.Context) error {
	if err := c.post(ctx, "init", map[string]string{"instanceId": c.instanceID}, nil); err != nil {
		return fmt.Errorf("bridge init for %q: %w", c.name, err)
	}

	wsURL, err := c.eventsURL()
	if err != nil {
		return err
	}
	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("bridge event stream for %q: %w", c.name, err)
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("handle for %q already destroyed", c.name)
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

func (c *bridgeClient) readLoop(conn *websocket.Conn) {
	defer c.closeEvents()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			destroyed := c.destroyed
			c.mu.Unlock()
			if !destroyed {
				c.deliver(Event{Type: EventDisconnected, Reason: err.Error()})
			}
			return
		}

		var frame bridgeFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("wa: session %s: dropping malformed bridge frame: %v", c.name, err)
			continue
		}

		ev, ok := frame.toEvent()
		if !ok {
			log.Printf("wa: session %s: dropping unknown bridge event %q", c.name, frame.Event)
			continue
		}
		c.deliver(ev)
	}
}

func (f *bridgeFrame) toEvent() (Event, bool) {
	switch f.Event {
	case "pairing_code":
		return Event{Type: EventPairingCode, PairingPayload: f.Payload}, true
	case "authenticated":
		return Event{Type: EventAuthenticated}, true
	case "ready":
		return Event{Type: EventReady}, true
	case "auth_failure":
		return Event{Type: EventAuthFailed, Reason: f.Reason}, true
	case "disconnected":
		return Event{Type: EventDisconnected, Reason: f.Reason}, true
	case "message":
		if f.Message == nil {
			return Event{}, false
		}
		return Event{Type: EventMessage, Message: f.Message}, true
	default:
		return Event{}, false
	}
}

// deliver drops the event if the consumer has fallen 64 frames behind; the
// registry's per-session event loop is expected to keep up.
func (c *bridgeClient) deliver(ev Event) {
	select {
	case c.events <- ev:
	default:
		log.Printf("wa: session %s: event buffer full, dropping event", c.name)
	}
}

func (c *bridgeClient) closeEvents() {
	c.closeOnce.Do(func() { close(c.events) })
}

func (c *bridgeClient) Logout() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := c.post(ctx, "logout", nil, nil); err != nil {
		return fmt.Errorf("bridge logout for %q: %w", c.name, err)
	}
	return nil
}

func (c *bridgeClient) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	} else {
		c.closeEvents()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := c.post(ctx, "destroy", map[string]string{"instanceId": c.instanceID}, nil); err != nil {
		return fmt.Errorf("bridge destroy for %q: %w", c.name, err)
	}
	return nil
}

func (c *bridgeClient) SendMessage(ctx context.Context, target, content string) (string, error) {
	var resp struct {
		MessageID string `json:"messageId"`
	}
	body := map[string]string{"target": target, "content": content}
	if err := c.post(ctx, "send", body, &resp); err != nil {
		return "", fmt.Errorf("bridge send for %q: %w", c.name, err)
	}
	return resp.MessageID, nil
}

func (c *bridgeClient) Events() <-chan Event {
	return c.events
}

func (c *bridgeClient) post(ctx context.Context, op string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	endpoint := fmt.Sprintf("%s/sessions/%s/%s", c.baseURL, url.PathEscape(c.name), op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bridge returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *bridgeClient) eventsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid bridge URL %q: %w", c.baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/sessions/" + url.PathEscape(c.name) + "/events"
	u.RawQuery = url.Values{"instance": {c.instanceID}}.Encode()
	return u.String(), nil
}
