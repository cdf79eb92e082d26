// Package client holds the client-side projection of tasks and
// notifications: baseline queries populate the caches, push events keep them
// current, and optimistic mutations stay visible until the server confirms
// or rejects them.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/taskstream/taskstream-api/internal/models"
	"github.com/taskstream/taskstream-api/internal/realtime"
)

// Options configures a Client.
type Options struct {
	// BaseURL of the API, e.g. "http://localhost:8080".
	BaseURL string
	// Credential is the session cookie presented on every request and on
	// the stream handshake.
	Credential string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// MaxAttempts and RetryDelay tune the stream's bounded reconnection.
	MaxAttempts int
	RetryDelay  time.Duration
}

// Client keeps a local view of tasks and notifications consistent with
// server state. Mutations go through the synchronous API; the push channel
// and baseline re-queries reconcile the caches.
type Client struct {
	baseURL    string
	credential string
	httpClient *http.Client

	Tasks         *TaskCache
	Notifications *NotificationCache

	stream *Stream
	subs   []SubscriptionHandle
}

// New creates a Client. Call Start to open the push channel.
func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	c := &Client{
		baseURL:       opts.BaseURL,
		credential:    opts.Credential,
		httpClient:    opts.HTTPClient,
		Tasks:         NewTaskCache(),
		Notifications: NewNotificationCache(),
	}

	header := http.Header{}
	if opts.Credential != "" {
		header.Set("Cookie", opts.Credential)
	}
	c.stream = NewStream(StreamConfig{
		URL:         opts.BaseURL + "/api/stream",
		Header:      header,
		MaxAttempts: opts.MaxAttempts,
		RetryDelay:  opts.RetryDelay,
		HTTPClient:  opts.HTTPClient,
		OnConnect: func() {
			// No event replay exists; reconcile through fresh baselines.
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.RefreshTasks(ctx); err != nil {
				log.WithError(err).Warn("task baseline refresh failed")
			}
			if err := c.RefreshNotifications(ctx); err != nil {
				log.WithError(err).Warn("notification baseline refresh failed")
			}
		},
	})

	c.subs = append(c.subs,
		c.stream.Subscribe(realtime.EventTaskCreated, c.onTaskUpsert),
		c.stream.Subscribe(realtime.EventTaskUpdated, c.onTaskUpsert),
		c.stream.Subscribe(realtime.EventTaskDeleted, c.onTaskDelete),
		c.stream.Subscribe(realtime.EventNotificationNew, c.onNotification),
	)

	return c
}

// Start opens the push channel.
func (c *Client) Start(ctx context.Context) {
	c.stream.Start(ctx)
}

// Connected reports whether the push channel is live.
func (c *Client) Connected() bool {
	return c.stream.Connected()
}

// Invalidate synchronously tears down the push channel and drops all cached
// entities, so no event can leak into a stale session.
func (c *Client) Invalidate() {
	for _, h := range c.subs {
		c.stream.Unsubscribe(h)
	}
	c.stream.Close()
	c.Tasks.Invalidate()
	c.Notifications.Invalidate()
}

func (c *Client) onTaskUpsert(data []byte) {
	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		log.WithError(err).Warn("dropping malformed task event")
		return
	}
	c.Tasks.ApplyUpsert(task)
}

func (c *Client) onTaskDelete(data []byte) {
	var payload realtime.TaskDeletedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.WithError(err).Warn("dropping malformed task:deleted event")
		return
	}
	c.Tasks.ApplyDelete(payload.ID)
}

func (c *Client) onNotification(data []byte) {
	var n models.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		log.WithError(err).Warn("dropping malformed notification event")
		return
	}
	c.Notifications.ApplyNew(n)
}

// RefreshTasks re-runs the task baseline query and applies the result.
func (c *Client) RefreshTasks(ctx context.Context) error {
	var tasks []models.Task
	if err := c.get(ctx, "/api/tasks", &tasks); err != nil {
		return err
	}
	c.Tasks.ApplyQueryResult(tasks)
	return nil
}

// RefreshNotifications re-runs the notification baseline query and applies
// the result.
func (c *Client) RefreshNotifications(ctx context.Context) error {
	var notifications []models.Notification
	if err := c.get(ctx, "/api/notifications", &notifications); err != nil {
		return err
	}
	c.Notifications.ApplyQueryResult(notifications)
	return nil
}

// UpdateTask applies the patch optimistically, sends it to the server, and
// resolves the optimistic entry from the authoritative response or rolls it
// back on failure. Failures are not retried.
func (c *Client) UpdateTask(ctx context.Context, id uint64, patch TaskPatch) (*models.Task, error) {
	handle, err := c.Tasks.BeginUpdate(id, patch)
	if err != nil {
		return nil, err
	}

	var task models.Task
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/tasks/%d", id), patch, &task); err != nil {
		if failErr := c.Tasks.Fail(handle); failErr != nil {
			log.WithError(failErr).Debug("optimistic rollback already superseded")
		}
		return nil, err
	}

	if err := c.Tasks.Resolve(handle, task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTaskInput mirrors the server's creation contract.
type CreateTaskInput struct {
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	DueDate      time.Time           `json:"due_date"`
	Priority     models.TaskPriority `json:"priority"`
	AssignedToID uint64              `json:"assigned_to_id"`
}

// CreateTask creates a task and caches the confirmed result. The push event
// for the same creation converges to the identical state.
func (c *Client) CreateTask(ctx context.Context, input CreateTaskInput) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", input, &task); err != nil {
		return nil, err
	}
	c.Tasks.ApplyUpsert(task)
	return &task, nil
}

// DeleteTask deletes a task and removes it from the cache.
func (c *Client) DeleteTask(ctx context.Context, id uint64) error {
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", id), nil, nil); err != nil {
		return err
	}
	c.Tasks.ApplyDelete(id)
	return nil
}

// MarkNotificationRead marks one notification read on the server and in the
// cache.
func (c *Client) MarkNotificationRead(ctx context.Context, id uint64) error {
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/notifications/%d/read", id), nil, nil); err != nil {
		return err
	}
	c.Notifications.MarkRead(id)
	return nil
}

// MarkAllNotificationsRead marks every notification read on the server and
// in the cache.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPatch, "/api/notifications/read-all", nil, nil); err != nil {
		return err
	}
	c.Notifications.MarkAllRead()
	return nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.credential != "" {
		req.Header.Set("Cookie", c.credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !envelope.Success {
		if envelope.Message != "" {
			return fmt.Errorf("request failed: %s", envelope.Message)
		}
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	if out != nil && envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
