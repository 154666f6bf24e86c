// Package clients tracks the open pages (windows) the cache controller serves.
package clients

import (
	"errors"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-shell/internal/installprompt"
)

var ErrNotFound = errors.New("client not found")

// Client is a snapshot of one open page. URL holds path and query only;
// Controller is the cache version controlling the page, empty until claimed.
type Client struct {
	ID           string              `json:"id"`
	URL          string              `json:"url"`
	Focused      bool                `json:"focused"`
	Controller   string              `json:"controller,omitempty"`
	InstallState installprompt.State `json:"installState"`
	OpenedAt     time.Time           `json:"openedAt"`
}

type entry struct {
	client Client
	prompt *installprompt.Machine
}

// Registry is the set of open clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*entry
	order   []string
	now     func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*entry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register opens a new page at rawURL. Every registration is a new session
// for the install prompt.
func (r *Registry) Register(rawURL string, standalone bool) Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(rawURL, standalone)
}

// Get returns the client with id.
func (r *Registry) Get(id string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.clients[id]
	if !ok {
		return Client{}, ErrNotFound
	}
	return r.snapshot(e), nil
}

// Remove closes the page with id.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[id]; !ok {
		return ErrNotFound
	}
	delete(r.clients, id)
	for i, cid := range r.order {
		if cid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// MatchAll lists clients in the order they were opened.
func (r *Registry) MatchAll() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Client, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.snapshot(r.clients[id]))
	}
	return out
}

// Claim makes version the controller of every open client and returns how
// many changed hands.
func (r *Registry) Claim(version string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.clients {
		if e.client.Controller != version {
			e.client.Controller = version
			n++
		}
	}
	return n
}

// OpenOrFocus focuses an existing client showing rawURL, or opens a new one
// when none is open. opened reports which happened.
func (r *Registry) OpenOrFocus(rawURL string) (c Client, opened bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target := normalize(rawURL)
	ids := append([]string(nil), r.order...)
	sort.SliceStable(ids, func(i, j int) bool {
		return r.clients[ids[i]].client.Focused && !r.clients[ids[j]].client.Focused
	})
	for _, id := range ids {
		e := r.clients[id]
		if normalize(e.client.URL) == target {
			r.focusLocked(id)
			return r.snapshot(e), false
		}
	}

	c = r.addLocked(rawURL, false)
	r.focusLocked(c.ID)
	return r.snapshot(r.clients[c.ID]), true
}

// Prompt returns the install prompt machine of a client.
func (r *Registry) Prompt(id string) (*installprompt.Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.prompt, nil
}

func (r *Registry) addLocked(rawURL string, standalone bool) Client {
	e := &entry{
		client: Client{
			ID:       uuid.NewString(),
			URL:      normalize(rawURL),
			OpenedAt: r.now(),
		},
		prompt: installprompt.New(standalone),
	}
	r.clients[e.client.ID] = e
	r.order = append(r.order, e.client.ID)
	return r.snapshot(e)
}

func (r *Registry) focusLocked(id string) {
	for cid, e := range r.clients {
		e.client.Focused = cid == id
	}
}

func (r *Registry) snapshot(e *entry) Client {
	c := e.client
	c.InstallState = e.prompt.State()
	return c
}

// normalize reduces a URL to path?query so absolute and relative forms compare equal.
func normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	out := u.EscapedPath()
	if out == "" {
		out = "/"
	}
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	return out
}
