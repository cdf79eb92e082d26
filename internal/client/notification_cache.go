package client

import (
	"sync"

	"github.com/taskstream/taskstream-api/internal/models"
)

// NotificationCache is the client-side projection of the user's
// notifications, ordered newest first. Push events prepend; duplicates are
// replaced in place so re-delivery converges on the same state.
type NotificationCache struct {
	mu    sync.Mutex
	order []uint64
	byID  map[uint64]models.Notification
}

// NewNotificationCache creates an empty NotificationCache.
func NewNotificationCache() *NotificationCache {
	return &NotificationCache{
		byID: make(map[uint64]models.Notification),
	}
}

// ApplyQueryResult replaces the cache with a query response, preserving the
// server's newest-first ordering.
func (c *NotificationCache) ApplyQueryResult(notifications []models.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order = make([]uint64, 0, len(notifications))
	c.byID = make(map[uint64]models.Notification, len(notifications))
	for _, n := range notifications {
		if _, ok := c.byID[n.ID]; ok {
			continue
		}
		c.order = append(c.order, n.ID)
		c.byID[n.ID] = n
	}
}

// ApplyNew merges one pushed notification. New ids are prepended; a known id
// is replaced in place, so duplicate delivery is idempotent.
func (c *NotificationCache) ApplyNew(n models.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byID[n.ID]; ok {
		c.byID[n.ID] = n
		return
	}
	c.order = append([]uint64{n.ID}, c.order...)
	c.byID[n.ID] = n
}

// MarkRead flips the read flag locally. Idempotent.
func (c *NotificationCache) MarkRead(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.byID[id]; ok {
		n.Read = true
		c.byID[id] = n
	}
}

// MarkAllRead flips the read flag on every cached notification. Idempotent.
func (c *NotificationCache) MarkAllRead() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, n := range c.byID {
		n.Read = true
		c.byID[id] = n
	}
}

// UnreadCount returns the number of unread notifications.
func (c *NotificationCache) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, n := range c.byID {
		if !n.Read {
			count++
		}
	}
	return count
}

// Snapshot returns the cached notifications, newest first.
func (c *NotificationCache) Snapshot() []models.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	notifications := make([]models.Notification, 0, len(c.order))
	for _, id := range c.order {
		notifications = append(notifications, c.byID[id])
	}
	return notifications
}

// Invalidate drops every cached notification.
func (c *NotificationCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.byID = make(map[uint64]models.Notification)
}
