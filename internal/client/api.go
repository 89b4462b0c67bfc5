package client

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

	"github.com/colonyops/hivesync/internal/core/draft"
	"github.com/colonyops/hivesync/internal/core/task"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// TaskInput carries the writable task fields. Empty fields are left unset
// on update.
type TaskInput struct {
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Status      task.Status `json:"status,omitempty"`
}

// Client is a REST client for the hivesync API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// BaseURL returns the server URL the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func esc(s string) string { return url.PathEscape(s) }

// Tasks lists the visible tasks of a project.
func (c *Client) Tasks(ctx context.Context, projectID string) ([]task.Task, error) {
	var out []task.Task
	err := c.do(ctx, http.MethodGet, "/api/projects/"+esc(projectID)+"/tasks", nil, &out)
	return out, err
}

// CreateTask creates a task in a project.
func (c *Client) CreateTask(ctx context.Context, projectID string, in TaskInput) (task.Task, error) {
	var out task.Task
	err := c.do(ctx, http.MethodPost, "/api/projects/"+esc(projectID)+"/tasks", in, &out)
	return out, err
}

// UpdateTask changes the non-empty fields of in.
func (c *Client) UpdateTask(ctx context.Context, id string, in TaskInput) (task.Task, error) {
	var out task.Task
	err := c.do(ctx, http.MethodPut, "/api/tasks/"+esc(id), in, &out)
	return out, err
}

// DeleteTask deletes a task and its attempts.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+esc(id), nil, nil)
}

// CreateAttempt starts an attempt for a task.
func (c *Client) CreateAttempt(ctx context.Context, taskID, executor, branch string) (task.Attempt, error) {
	var out task.Attempt
	in := map[string]string{"executor": executor, "branch": branch}
	err := c.do(ctx, http.MethodPost, "/api/tasks/"+esc(taskID)+"/attempts", in, &out)
	return out, err
}

// Attempt returns an attempt by id.
func (c *Client) Attempt(ctx context.Context, id string) (task.Attempt, error) {
	var out task.Attempt
	err := c.do(ctx, http.MethodGet, "/api/attempts/"+esc(id), nil, &out)
	return out, err
}

// Draft returns an attempt's draft and its state.
func (c *Client) Draft(ctx context.Context, attemptID string) (draft.Status, error) {
	var out draft.Status
	err := c.do(ctx, http.MethodGet, "/api/attempts/"+esc(attemptID)+"/draft", nil, &out)
	return out, err
}

// EditDraft replaces the draft content.
func (c *Client) EditDraft(ctx context.Context, attemptID string, content draft.Content) (draft.Status, error) {
	var out draft.Status
	err := c.do(ctx, http.MethodPut, "/api/attempts/"+esc(attemptID)+"/draft", content, &out)
	return out, err
}

// QueueDraft queues the draft behind the running agent turn.
func (c *Client) QueueDraft(ctx context.Context, attemptID string) (draft.Status, error) {
	return c.draftAction(ctx, attemptID, "queue")
}

// UnqueueDraft returns a queued draft to editing.
func (c *Client) UnqueueDraft(ctx context.Context, attemptID string) (draft.Status, error) {
	return c.draftAction(ctx, attemptID, "unqueue")
}

// SendDraft dispatches the draft now.
func (c *Client) SendDraft(ctx context.Context, attemptID string) (draft.Status, error) {
	return c.draftAction(ctx, attemptID, "send")
}

func (c *Client) draftAction(ctx context.Context, attemptID, action string) (draft.Status, error) {
	var out draft.Status
	err := c.do(ctx, http.MethodPost, "/api/attempts/"+esc(attemptID)+"/draft/"+action, nil, &out)
	return out, err
}
