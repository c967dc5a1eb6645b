package taskdesksdk

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

// Client is a minimal Taskdesk HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Status         string   `json:"status"`
	Priority       string   `json:"priority"`
	AssignedTo     *string  `json:"assigned_to,omitempty"`
	AssignedBy     string   `json:"assigned_by"`
	ProjectID      *string  `json:"project_id,omitempty"`
	DueDate        *string  `json:"due_date,omitempty"`
	CompletionDate *string  `json:"completion_date,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	ActualHours    *float64 `json:"actual_hours,omitempty"`
	Progress       int      `json:"progress_percentage"`
}

// User represents an account.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Status      string `json:"status"`
}

// HistoryEntry is one audit record.
type HistoryEntry struct {
	ID       int64  `json:"id"`
	TaskID   string `json:"task_id"`
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
	ActorID  string `json:"actor_id"`
	TS       string `json:"ts"`
}

// Notification is an inbox entry.
type Notification struct {
	ID        string  `json:"id"`
	TaskID    *string `json:"task_id,omitempty"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	Priority  string  `json:"priority"`
	IsRead    bool    `json:"is_read"`
	CreatedAt string  `json:"created_at"`
}

// Dashboard holds the task counts.
type Dashboard struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Overdue    int `json:"overdue"`
	DueToday   int `json:"due_today"`
}

// TokenResponse is returned by Login and Register.
type TokenResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login signs in and stores the bearer token on the client.
func (c *Client) Login(ctx context.Context, username, password string) (TokenResponse, error) {
	var resp TokenResponse
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{
		"username": username,
		"password": password,
	}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// Register creates an employee account and stores the bearer token.
func (c *Client) Register(ctx context.Context, username, email, password string) (TokenResponse, error) {
	var resp TokenResponse
	err := c.do(ctx, http.MethodPost, "auth/register", map[string]any{
		"username": username,
		"email":    email,
		"password": password,
	}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// CreateTask creates a task. extra can carry optional fields such as
// assigned_to, priority, due_date.
func (c *Client) CreateTask(ctx context.Context, title string, extra map[string]any) (Task, error) {
	body := map[string]any{"title": title}
	for k, v := range extra {
		body[k] = v
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// ListTasks returns visible tasks in urgency order. Filters: status,
// priority, assigned_to, project_id, limit.
func (c *Client) ListTasks(ctx context.Context, filters map[string]string) ([]Task, error) {
	endpoint := "tasks"
	if len(filters) > 0 {
		q := url.Values{}
		for k, v := range filters {
			q.Set(k, v)
		}
		endpoint += "?" + q.Encode()
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetTask fetches one task.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// UpdateTask applies a field-level patch.
func (c *Client) UpdateTask(ctx context.Context, id string, patch map[string]any) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "tasks/"+url.PathEscape(id), patch, &resp)
	return resp, err
}

// UpdateStatus changes a task's status, optionally logging actual hours.
func (c *Client) UpdateStatus(ctx context.Context, id, status string, actualHours *float64) (Task, error) {
	body := map[string]any{"status": status}
	if actualHours != nil {
		body["actual_hours"] = *actualHours
	}
	var resp Task
	err := c.do(ctx, http.MethodPatch, "tasks/"+url.PathEscape(id)+"/status", body, &resp)
	return resp, err
}

// DeleteTask removes a task (admin only).
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
}

// TaskHistory returns the task's audit trail, oldest first.
func (c *Client) TaskHistory(ctx context.Context, id string) ([]HistoryEntry, error) {
	var resp []HistoryEntry
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id)+"/history", nil, &resp)
	return resp, err
}

// Notifications lists the caller's notifications.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	endpoint := "notifications"
	if unreadOnly {
		endpoint += "?unread=true"
	}
	var resp []Notification
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// MarkRead marks a notification read.
func (c *Client) MarkRead(ctx context.Context, id string) (Notification, error) {
	var resp Notification
	err := c.do(ctx, http.MethodPost, "notifications/"+url.PathEscape(id)+"/read", nil, &resp)
	return resp, err
}

// GetDashboard returns task counts scoped to the caller.
func (c *Client) GetDashboard(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, "dashboard", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
