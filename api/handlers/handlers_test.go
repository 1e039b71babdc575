package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clevio/dashboard/internal/auth"
	"github.com/clevio/dashboard/internal/broadcast"
	"github.com/clevio/dashboard/internal/db"
	"github.com/clevio/dashboard/internal/model"
	"github.com/clevio/dashboard/internal/n8n"
	"github.com/clevio/dashboard/internal/registry"
	"github.com/clevio/dashboard/internal/store"
	"github.com/clevio/dashboard/internal/wa"
	"github.com/clevio/dashboard/internal/webhook"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router      *gin.Engine
	registry    *registry.Registry
	broadcaster *broadcast.Broadcaster
	forwarder   *webhook.Forwarder
	factory     *wa.MockFactory
	auth        *AuthHandler
}

func newTestServer(t *testing.T, n8nClient *n8n.Client) *testServer {
	t.Helper()

	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ts := &testServer{
		broadcaster: broadcast.New(),
		forwarder:   webhook.New(5 * time.Second),
		factory:     &wa.MockFactory{},
	}
	ts.registry = registry.New(store.New(database), ts.broadcaster, ts.forwarder, ts.factory)
	t.Cleanup(func() {
		ts.registry.Close()
		ts.broadcaster.Close()
	})

	tokens, err := auth.NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create token manager: %v", err)
	}
	ts.auth = NewAuthHandler("admin", "hunter2", tokens)
	sessionHandler := NewSessionHandler(ts.registry, ts.broadcaster)
	workflowHandler := NewWorkflowHandler(n8nClient)

	r := gin.New()
	r.POST("/login", ts.auth.Login)
	r.POST("/logout", ts.auth.Logout)
	api := r.Group("/api")
	api.Use(ts.auth.RequireLogin())
	sessionHandler.RegisterRoutes(api)
	workflowHandler.RegisterRoutes(api)
	ts.router = r
	return ts
}

func (ts *testServer) login(t *testing.T) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	body := `{"username":"admin","password":"hunter2"}`
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	ts.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Login failed with status %d: %s", w.Code, w.Body.String())
	}
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == CookieName {
			return cookie
		}
	}
	t.Fatal("Login response carries no token cookie")
	return nil
}

func (ts *testServer) do(t *testing.T, cookie *http.Cookie, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", msg)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts := newTestServer(t, n8n.New("", ""))

	w := ts.do(t, nil, http.MethodPost, "/login", `{"username":"admin","password":"wrong"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp["error"] == "" {
		t.Errorf("Expected a flat error body, got %s", w.Body.String())
	}

	w = ts.do(t, nil, http.MethodPost, "/login", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", w.Code)
	}
}

func TestLoginWithNoConfiguredCredentialsAlwaysFails(t *testing.T) {
	ts := newTestServer(t, n8n.New("", ""))
	ts.auth.username = ""
	ts.auth.password = ""

	w := ts.do(t, nil, http.MethodPost, "/login", `{"username":"","password":""}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Unconfigured credentials must never authenticate, got %d", w.Code)
	}
}

func TestAPIRequiresLogin(t *testing.T) {
	ts := newTestServer(t, n8n.New("", ""))

	w := ts.do(t, nil, http.MethodGet, "/api/sessions", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a cookie, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("API 401 should be JSON, got %q", ct)
	}

	w = ts.do(t, &http.Cookie{Name: CookieName, Value: "forged"}, http.MethodGet, "/api/sessions", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with a forged cookie, got %d", w.Code)
	}

	cookie := ts.login(t)
	w = ts.do(t, cookie, http.MethodGet, "/api/sessions", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with a valid cookie, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	ts := newTestServer(t, n8n.New("", ""))

	w := ts.do(t, nil, http.MethodPost, "/logout", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Logout failed: %d", w.Code)
	}
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == CookieName && cookie.MaxAge >= 0 {
			t.Errorf("Logout should expire the cookie, got MaxAge=%d", cookie.MaxAge)
		}
	}
}

func TestCreateSessionValidation(t *testing.T) {
	ts := newTestServer(t, n8n.New("", ""))
	cookie := ts.login(t)

	w := ts.do(t, cookie, http.MethodPost, "/api/sessions", `{"webhook":"https://hook.example"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a missing name, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp["error"] == "" {
		t.Errorf("Expected a flat error body, got %s", w.Body.String())
	}

	w = ts.do(t, cookie, http.MethodPost, "/api/sessions", `{broken`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got %d", w.Code)
	}
}

func TestSessionCRUDOverHTTP(t *testing.T) {
	ts := newTestServer(t, n8n.New("", ""))
	cookie := ts.login(t)

	w := ts.do(t, cookie, http.MethodPost, "/api/sessions", `{"name":"sales","webhook":"https://hook.example"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Create failed: %d %s", w.Code, w.Body.String())
	}
	var created model.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Create response is not a summary: %v", err)
	}
	if created.Name != "sales" || created.Status != model.StatusStarting {
		t.Errorf("Unexpected create response: %+v", created)
	}

	// Duplicate name is an error response, not a second session.
	w = ts.do(t, cookie, http.MethodPost, "/api/sessions", `{"name":"sales"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 for a duplicate name, got %d", w.Code)
	}

	w = ts.do(t, cookie, http.MethodGet, "/api/sessions", "")
	var listed []model.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("List response is not a summary array: %v", err)
	}
	if len(listed) != 1 || listed[0].Name != "sales" {
		t.Errorf("Unexpected list: %+v", listed)
	}

	w = ts.do(t, cookie, http.MethodPut, "/api/sessions/sales/webhook", `{"webhook":"https://new.example"}`)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"success":true`)) {
		t.Errorf("Webhook update failed: %d %s", w.Code, w.Body.String())
	}

	w = ts.do(t, cookie, http.MethodPut, "/api/sessions/sales/webhook", `{"webhook":""}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty webhook, got %d", w.Code)
	}

	w = ts.do(t, cookie, http.MethodPut, "/api/sessions/ghost/webhook", `{"webhook":"https://x.example"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown session, got %d", w.Code)
	}

	w = ts.do(t, cookie, http.MethodPost, "/api/sessions/sales/rescan", "")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"success":true`)) {
		t.Errorf("Rescan failed: %d %s", w.Code, w.Body.String())
	}
	w = ts.do(t, cookie, http.MethodPost, "/api/sessions/ghost/rescan", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 rescanning an unknown session, got %d", w.Code)
	}

	w = ts.do(t, cookie, http.MethodDelete, "/api/sessions/sales", "")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"success":true`)) {
		t.Errorf("Delete failed: %d %s", w.Code, w.Body.String())
	}
	w = ts.do(t, cookie, http.MethodDelete, "/api/sessions/sales", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 deleting an unknown session, got %d", w.Code)
	}
}

func TestSendMessageOverHTTP(t *testing.T) {
	ts := newTestServer(t, n8n.New("", ""))
	cookie := ts.login(t)

	w := ts.do(t, cookie, http.MethodPost, "/api/sessions/ghost/send", `{"target":"1@c.us","content":"hi"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown session, got %d", w.Code)
	}

	ts.do(t, cookie, http.MethodPost, "/api/sessions", `{"name":"sales"}`)

	w = ts.do(t, cookie, http.MethodPost, "/api/sessions/sales/send", `{"target":"1@c.us"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing content, got %d", w.Code)
	}

	w = ts.do(t, cookie, http.MethodPost, "/api/sessions/sales/send", `{"target":"1@c.us","content":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Send failed: %d %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp["messageId"] == "" {
		t.Errorf("Expected a messageId, got %s", w.Body.String())
	}

	sent := ts.factory.Client("sales").Sent()
	if len(sent) != 1 || sent[0].Content != "hi" {
		t.Errorf("Message not sent through the handle: %+v", sent)
	}
}

func TestWorkflowPassThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/workflows":
			w.Write([]byte(`{"id": "wf-1"}`))
		case "/workflows/wf-1/activate":
			w.Write([]byte(`{}`))
		case "/executions":
			w.Write([]byte(`{"data": []}`))
		}
	}))
	defer upstream.Close()

	ts := newTestServer(t, n8n.New(upstream.URL, "key"))
	cookie := ts.login(t)

	w := ts.do(t, cookie, http.MethodPost, "/api/workflows", `{"name":"Flow","nodes":[]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Workflow create failed: %d %s", w.Code, w.Body.String())
	}
	var result n8n.WorkflowResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil || result.WorkflowID != "wf-1" {
		t.Errorf("Unexpected workflow response: %s", w.Body.String())
	}

	w = ts.do(t, cookie, http.MethodPost, "/api/workflows", `{broken`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid JSON, got %d", w.Code)
	}
}

func TestWorkflowUnconfigured(t *testing.T) {
	ts := newTestServer(t, n8n.New("", ""))
	cookie := ts.login(t)

	w := ts.do(t, cookie, http.MethodPost, "/api/workflows", `{}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without n8n configured, got %d", w.Code)
	}
}

// readSSEFrame reads lines until one complete "data: ..." frame arrives.
func readSSEFrame(t *testing.T, r *bufio.Reader) []byte {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("Event stream ended early: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimSuffix(strings.TrimPrefix(line, "data: "), "\n"))
		}
	}
}

func TestEventStream(t *testing.T) {
	ts := newTestServer(t, n8n.New("", ""))
	cookie := ts.login(t)

	server := httptest.NewServer(ts.router)
	defer server.Close()

	if _, err := ts.registry.Create(context.Background(), "sales", ""); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/events", nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.AddCookie(cookie)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to open event stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Expected an event stream, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)

	// The first frame is the full snapshot at connect time.
	var snapshot []model.Summary
	if err := json.Unmarshal(readSSEFrame(t, reader), &snapshot); err != nil {
		t.Fatalf("First frame is not a snapshot: %v", err)
	}
	if len(snapshot) != 1 || snapshot[0].Name != "sales" {
		t.Fatalf("Unexpected initial snapshot: %+v", snapshot)
	}

	// Each state change pushes a fresh frame.
	waitFor(t, "client initialization", func() bool {
		c := ts.factory.Client("sales")
		return c != nil && c.Initialized()
	})
	ts.factory.Client("sales").Emit(wa.Event{Type: wa.EventPairingCode, PairingPayload: "scan-me"})

	if err := json.Unmarshal(readSSEFrame(t, reader), &snapshot); err != nil {
		t.Fatalf("Update frame is not a snapshot: %v", err)
	}
	if snapshot[0].Status != model.StatusAwaitingScan || snapshot[0].PairingPayload != "scan-me" {
		t.Errorf("Unexpected update frame: %+v", snapshot)
	}
}

// The full operator flow: log in, create a session, watch it pair, then see
// an inbound message land on the configured webhook.
func TestEndToEndSessionFlow(t *testing.T) {
	hookBodies := make(chan []byte, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		hookBodies <- body
	}))
	defer hook.Close()

	ts := newTestServer(t, n8n.New("", ""))
	cookie := ts.login(t)

	w := ts.do(t, cookie, http.MethodPost, "/api/sessions",
		`{"name":"sales","webhook":"`+hook.URL+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Create failed: %d %s", w.Code, w.Body.String())
	}

	waitFor(t, "client initialization", func() bool {
		c := ts.factory.Client("sales")
		return c != nil && c.Initialized()
	})
	client := ts.factory.Client("sales")
	client.Emit(wa.Event{Type: wa.EventPairingCode, PairingPayload: "code-1"})
	client.Emit(wa.Event{Type: wa.EventAuthenticated})
	client.Emit(wa.Event{Type: wa.EventReady})

	waitFor(t, "session ready", func() bool {
		w := ts.do(t, cookie, http.MethodGet, "/api/sessions", "")
		var listed []model.Summary
		if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
			return false
		}
		return len(listed) == 1 && listed[0].Status == model.StatusReady
	})

	client.Emit(wa.Event{Type: wa.EventMessage, Message: &model.InboundMessage{
		ID:   "m1",
		From: "628123@c.us",
		Body: "hi",
	}})

	select {
	case body := <-hookBodies:
		if !bytes.Contains(body, []byte(`"session":"sales"`)) {
			t.Errorf("Webhook payload missing session name: %s", body)
		}
		if !bytes.Contains(body, []byte(`"body":"hi"`)) {
			t.Errorf("Webhook payload missing message body: %s", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for webhook delivery")
	}
}
