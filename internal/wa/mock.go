package wa

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockFactory builds in-process clients that never touch a real chat network.
// It backs the server's -mock demo mode and the registry tests: with AutoPair
// set, each client walks the normal pairing sequence on its own; otherwise
// tests drive events by hand through Emit.
type MockFactory struct {
	// AutoPair makes Initialize emit pairing_code, authenticated and ready
	// without external input.
	AutoPair bool

	// InitErr, when set, is returned by every client's Initialize.
	InitErr error

	// PairDelay spaces the AutoPair events. Zero means 10ms.
	PairDelay time.Duration

	mu      sync.Mutex
	clients map[string][]*MockClient
}

// New constructs a mock handle for the named session.
func (f *MockFactory) New(sessionName string) (Client, error) {
	c := &MockClient{
		name:    sessionName,
		factory: f,
		events:  make(chan Event, 64),
	}
	f.mu.Lock()
	if f.clients == nil {
		f.clients = make(map[string][]*MockClient)
	}
	f.clients[sessionName] = append(f.clients[sessionName], c)
	f.mu.Unlock()
	return c, nil
}

// Client returns the most recently created handle for name, or nil.
func (f *MockFactory) Client(name string) *MockClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	handles := f.clients[name]
	if len(handles) == 0 {
		return nil
	}
	return handles[len(handles)-1]
}

// Handles returns every handle ever created for name, oldest first.
func (f *MockFactory) Handles(name string) []*MockClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockClient(nil), f.clients[name]...)
}

// MockClient is a scripted chat client handle.
type MockClient struct {
	name    string
	factory *MockFactory
	events  chan Event

	mu          sync.Mutex
	initialized bool
	destroyed   bool
	logouts     int
	destroys    int
	sent        []SentMessage
	closeOnce   sync.Once
}

// SentMessage records one SendMessage call on a mock handle.
type SentMessage struct {
	Target  string
	Content string
}

func (c *MockClient) Initialize(ctx context.Context) error {
	if err := c.factory.InitErr; err != nil {
		return err
	}
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return fmt.Errorf("mock handle for %q already destroyed", c.name)
	}
	c.initialized = true
	c.mu.Unlock()

	if c.factory.AutoPair {
		go c.autoPair()
	}
	return nil
}

func (c *MockClient) autoPair() {
	delay := c.factory.PairDelay
	if delay == 0 {
		delay = 10 * time.Millisecond
	}
	c.Emit(Event{Type: EventPairingCode, PairingPayload: uuid.New().String()})
	time.Sleep(delay)
	c.Emit(Event{Type: EventAuthenticated})
	time.Sleep(delay)
	c.Emit(Event{Type: EventReady})
}

// Emit delivers an event to the handle's consumer. Events emitted after
// Destroy are silently dropped, mirroring a torn-down real handle. The lock
// is held across the send so an Emit racing a Destroy can never hit a closed
// channel; the consumer drains without taking the lock.
func (c *MockClient) Emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	select {
	case c.events <- ev:
	case <-time.After(time.Second):
	}
}

func (c *MockClient) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logouts++
	return nil
}

func (c *MockClient) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}
	c.destroyed = true
	c.destroys++
	c.closeOnce.Do(func() { close(c.events) })
	return nil
}

func (c *MockClient) SendMessage(ctx context.Context, target, content string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return "", fmt.Errorf("mock handle for %q already destroyed", c.name)
	}
	c.sent = append(c.sent, SentMessage{Target: target, Content: content})
	return uuid.New().String(), nil
}

func (c *MockClient) Events() <-chan Event {
	return c.events
}

// Initialized reports whether Initialize completed on this handle.
func (c *MockClient) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Destroyed reports whether the handle has been torn down.
func (c *MockClient) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// Logouts returns how many times Logout was called.
func (c *MockClient) Logouts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logouts
}

// Sent returns the messages sent through this handle.
func (c *MockClient) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentMessage(nil), c.sent...)
}
