// Package remote implements the engine's remote repository contracts
// against the weekfold backend's HTTP API.
//
// The wire protocol is plain JSON over REST: bulk upserts return the
// server-assigned representations, delta pulls filter on the
// server-authoritative updated_at, and uniqueness/conflict responses map to
// the engine's non-retryable constraint error class.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/weekfold/weekfold/internal/model"
	"github.com/weekfold/weekfold/internal/sync"
)

// Client talks to the backend. One client serves all collections.
type Client struct {
	base   *url.URL
	http   *http.Client
	token  string
	logger *log.Logger
}

// New creates a client for the given base URL ("https://api.example.com").
// If logger is nil, a default logger writing to stderr is used.
func New(baseURL, token string, logger *log.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{
		base:   u,
		http:   &http.Client{Timeout: 30 * time.Second},
		token:  token,
		logger: logger,
	}, nil
}

// Per-collection stores. Each satisfies sync.RemoteStore for its entity.

func (c *Client) Tasks() *Collection[model.Task] {
	return &Collection[model.Task]{c: c, path: "tasks"}
}

func (c *Client) Labels() *Collection[model.Label] {
	return &Collection[model.Label]{c: c, path: "labels"}
}

func (c *Client) TaskLabels() *Collection[model.TaskLabel] {
	return &Collection[model.TaskLabel]{c: c, path: "task_labels"}
}

func (c *Client) Templates() *Collection[model.Template] {
	return &Collection[model.Template]{c: c, path: "templates"}
}

func (c *Client) Series() *Collection[model.Series] {
	return &Collection[model.Series]{c: c, path: "series"}
}

func (c *Client) Recurrences() *Collection[model.Recurrence] {
	return &Collection[model.Recurrence]{c: c, path: "recurrences"}
}

func (c *Client) WorkingLog() *Collection[model.WorkingLogItem] {
	return &Collection[model.WorkingLogItem]{c: c, path: "working_log"}
}

// Link creates a task/label association server-side.
func (c *Client) Link(ctx context.Context, taskID, labelID string) error {
	body := map[string]string{"task_id": taskID, "label_id": labelID}
	return c.do(ctx, http.MethodPost, "/v1/task_labels/link", nil, body, nil)
}

// Unlink soft-deletes a task/label association server-side.
func (c *Client) Unlink(ctx context.Context, taskID, labelID string) error {
	body := map[string]string{"task_id": taskID, "label_id": labelID}
	return c.do(ctx, http.MethodPost, "/v1/task_labels/unlink", nil, body, nil)
}

// do runs one request and decodes the response into out (when non-nil).
// Remote failures are classified: 409/422 map to sync.ErrConstraint, 404 to
// sync.ErrNotFound, anything else non-2xx stays retryable.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s %s: %w", method, path, sync.ErrNotFound)
		case http.StatusConflict, http.StatusUnprocessableEntity:
			return fmt.Errorf("%s %s: %s: %w", method, path, msg, sync.ErrConstraint)
		default:
			return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
