// Package apiclient is a thin HTTP client for the task engine's REST API,
// used by taskenginectl. No HTTP client library appears anywhere in the
// retrieved examples, so this concern is implemented directly against
// net/http rather than grounded on a third-party client (see DESIGN.md).
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to one task engine server's REST API.
type Client struct {
	baseURL string
	hc      *http.Client
}

// New returns a Client bound to baseURL (e.g. "http://localhost:8080").
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, hc: &http.Client{Timeout: 30 * time.Second}}
}

// Task mirrors handlers.TaskResponse.
type Task struct {
	ID         uint            `json:"id"`
	Status     string          `json:"status"`
	DataSource string          `json:"data_source"`
	TaskType   string          `json:"task_type"`
	Params     json.RawMessage `json:"params,omitempty"`
}

// TaskList mirrors handlers.ListResponse.
type TaskList struct {
	Items      []Task `json:"items"`
	NextCursor *uint  `json:"next_cursor,omitempty"`
}

// Progress mirrors handlers.ProgressResponse.
type Progress struct {
	Success            int64  `json:"success"`
	Failure            int64  `json:"failure"`
	NoOutput           int64  `json:"no_output"`
	Remaining          int64  `json:"remaining"`
	CurrentSegmentSize int64  `json:"current_segment_size"`
	Status             string `json:"status"`
}

// QueueItem mirrors handlers.QueueItemResponse.
type QueueItem struct {
	ID        uint            `json:"id"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// QueueItemList mirrors handlers.QueueItemsResponse.
type QueueItemList struct {
	Items      []QueueItem `json:"items"`
	NextCursor *uint       `json:"next_cursor,omitempty"`
	Total      int64       `json:"total"`
}

// Problem mirrors handlers.Problem (RFC 7807), returned on a non-2xx
// response.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func (p *Problem) Error() string {
	if p.Detail != "" {
		return fmt.Sprintf("%s: %s", p.Title, p.Detail)
	}
	return p.Title
}

// CreateTask calls POST /api/v1/tasks.
func (c *Client) CreateTask(ctx context.Context, dataSource, taskType string, params json.RawMessage) (*Task, error) {
	body, _ := json.Marshal(map[string]any{
		"data_source": dataSource,
		"task_type":   taskType,
		"params":      params,
	})
	var task Task
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", bytes.NewReader(body), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks calls GET /api/v1/tasks.
func (c *Client) ListTasks(ctx context.Context, cursor *uint, limit int) (*TaskList, error) {
	q := url.Values{}
	if cursor != nil {
		q.Set("cursor", strconv.FormatUint(uint64(*cursor), 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var list TaskList
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetTask calls GET /api/v1/tasks/{id}.
func (c *Client) GetTask(ctx context.Context, id uint) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/tasks/%d", id), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Execute calls POST /api/v1/tasks/{id}/execute.
func (c *Client) Execute(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%d/execute", id), nil, nil)
}

// Pause calls POST /api/v1/tasks/{id}/pause.
func (c *Client) Pause(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%d/pause", id), nil, nil)
}

// GetProgress calls GET /api/v1/tasks/{id}/progress.
func (c *Client) GetProgress(ctx context.Context, id uint) (*Progress, error) {
	var prog Progress
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/tasks/%d/progress", id), nil, &prog); err != nil {
		return nil, err
	}
	return &prog, nil
}

// ListQueueItems calls GET /api/v1/tasks/{id}/queues/{queue}.
func (c *Client) ListQueueItems(ctx context.Context, id uint, queue string, cursor *uint, limit int) (*QueueItemList, error) {
	q := url.Values{}
	if cursor != nil {
		q.Set("cursor", strconv.FormatUint(uint64(*cursor), 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var list QueueItemList
	path := fmt.Sprintf("/api/v1/tasks/%d/queues/%s?%s", id, queue, q.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// DeleteQueueItems calls DELETE /api/v1/tasks/{id}/queues/{queue}.
func (c *Client) DeleteQueueItems(ctx context.Context, id uint, queue string, ids []uint) (int64, error) {
	body, _ := json.Marshal(map[string]any{"ids": ids})
	var out struct {
		Removed int64 `json:"removed"`
	}
	path := fmt.Sprintf("/api/v1/tasks/%d/queues/%s", id, queue)
	if err := c.doMethod(ctx, http.MethodDelete, path, bytes.NewReader(body), &out); err != nil {
		return 0, err
	}
	return out.Removed, nil
}

// AddInputs calls POST /api/v1/tasks/{id}/inputs.
func (c *Client) AddInputs(ctx context.Context, id uint, inputs []json.RawMessage) error {
	body, _ := json.Marshal(map[string]any{"inputs": inputs})
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%d/inputs", id), bytes.NewReader(body), nil)
}

// DownloadLogs calls GET /api/v1/tasks/{id}/logs and returns the raw body.
func (c *Client) DownloadLogs(ctx context.Context, id uint) ([]byte, error) {
	return c.downloadRaw(ctx, fmt.Sprintf("/api/v1/tasks/%d/logs", id))
}

// DownloadClientLogs calls GET /api/v1/data-sources/{data_source}/logs.
func (c *Client) DownloadClientLogs(ctx context.Context, dataSource string) ([]byte, error) {
	return c.downloadRaw(ctx, "/api/v1/data-sources/"+url.PathEscape(dataSource)+"/logs")
}

func (c *Client) downloadRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apiclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, problemFromBody(resp.StatusCode, body)
	}
	return body, nil
}

// do issues a request with an "application/json" body and decodes a JSON
// response into out, which may be nil for a 204 response.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	return c.doMethod(ctx, method, path, body, out)
}

func (c *Client) doMethod(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		return problemFromBody(resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func problemFromBody(status int, body []byte) error {
	var p Problem
	if err := json.Unmarshal(body, &p); err != nil || p.Title == "" {
		return fmt.Errorf("apiclient: request failed with status %d: %s", status, string(body))
	}
	return &p
}
