// Package notify keeps the notifications shown to the user.
package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("notification not found")

// Action is a button on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Data is the opaque payload attached to a notification.
type Data struct {
	DateOfArrival int64 `json:"dateOfArrival"`
	PrimaryKey    int   `json:"primaryKey"`
}

// Notification is a displayed notification.
type Notification struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Icon    string    `json:"icon,omitempty"`
	Badge   string    `json:"badge,omitempty"`
	Vibrate []int     `json:"vibrate,omitempty"`
	Data    Data      `json:"data"`
	Actions []Action  `json:"actions,omitempty"`
	ShownAt time.Time `json:"shownAt"`
	Closed  bool      `json:"closed"`
}

// Center holds the most recent notifications.
type Center struct {
	mu    sync.RWMutex
	items []Notification
	max   int
}

// NewCenter keeps at most max notifications (0 = unlimited).
func NewCenter(max int) *Center {
	return &Center{max: max}
}

// Show assigns an id and displays n.
func (c *Center) Show(n Notification) Notification {
	n.ID = uuid.NewString()
	n.ShownAt = time.Now().UTC()
	n.Closed = false

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = append(c.items, n)
	if c.max > 0 && len(c.items) > c.max {
		over := len(c.items) - c.max
		c.items = c.items[over:]
	}
	return n
}

// Get returns the notification with id.
func (c *Center) Get(id string) (Notification, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, n := range c.items {
		if n.ID == id {
			return n, nil
		}
	}
	return Notification{}, ErrNotFound
}

// Close marks a notification closed. Closing twice is not an error.
func (c *Center) Close(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Closed = true
			return nil
		}
	}
	return ErrNotFound
}

// Open lists notifications still on screen, newest first.
func (c *Center) Open() []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Notification, 0, len(c.items))
	for i := len(c.items) - 1; i >= 0; i-- {
		if !c.items[i].Closed {
			out = append(out, c.items[i])
		}
	}
	return out
}
