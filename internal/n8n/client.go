// Package n8n is a thin pass-through client for the workflow-automation
// REST API consumed by the dashboard.
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to one n8n instance. The zero value is unusable; use New.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client for the API at baseURL, authenticating every call
// with apiKey.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether the client has an API endpoint and key.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

// WorkflowResult is the outcome of CreateAndActivate.
type WorkflowResult struct {
	WorkflowID  string  `json:"workflowId"`
	ExecutionID *string `json:"executionId"`
}

// flexibleID tolerates both id encodings the API has shipped: opaque strings
// on current releases and bare numbers on older ones.
type flexibleID string

func (id *flexibleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither a string nor a number: %s", data)
	}
	*id = flexibleID(n.String())
	return nil
}

// CreateAndActivate creates a workflow from its raw JSON definition,
// activates it, and fetches the latest execution id. ExecutionID stays nil
// when the workflow has not executed yet; a failure while listing executions
// is tolerated the same way.
func (c *Client) CreateAndActivate(ctx context.Context, definition json.RawMessage) (WorkflowResult, error) {
	var created struct {
		ID flexibleID `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/workflows", definition, &created); err != nil {
		return WorkflowResult{}, fmt.Errorf("create workflow: %w", err)
	}
	workflowID := string(created.ID)

	activatePath := "/workflows/" + url.PathEscape(workflowID) + "/activate"
	if err := c.do(ctx, http.MethodPost, activatePath, nil, nil); err != nil {
		return WorkflowResult{}, fmt.Errorf("activate workflow %s: %w", workflowID, err)
	}

	result := WorkflowResult{WorkflowID: workflowID}
	if execID, err := c.latestExecution(ctx, workflowID); err == nil && execID != "" {
		result.ExecutionID = &execID
	}
	return result, nil
}

// latestExecution returns the most recent execution id for a workflow, or
// empty when none exists. The API returns either {data: [...]} or a bare
// array depending on version.
func (c *Client) latestExecution(ctx context.Context, workflowID string) (string, error) {
	path := "/executions?" + url.Values{
		"workflowId": {workflowID},
		"limit":      {"1"},
	}.Encode()

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return "", err
	}

	type execution struct {
		ID flexibleID `json:"id"`
	}
	var wrapped struct {
		Data []execution `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Data) > 0 {
		return string(wrapped.Data[0].ID), nil
	}
	var bare []execution
	if err := json.Unmarshal(raw, &bare); err == nil && len(bare) > 0 {
		return string(bare[0].ID), nil
	}
	return "", nil
}

func (c *Client) do(ctx context.Context, method, path string, body json.RawMessage, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-N8N-API-KEY", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("n8n returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
