// Package worker is the offline cache controller: it installs the application
// shell into a versioned cache, evicts stale versions on activation, answers
// same-origin requests cache-first, refreshes favorite locations in the
// background and displays push notifications.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/i474232898/weather-shell/internal/cachestore"
	"github.com/i474232898/weather-shell/internal/clients"
	"github.com/i474232898/weather-shell/internal/favorites"
	"github.com/i474232898/weather-shell/internal/fetch"
	"github.com/i474232898/weather-shell/internal/kv"
	"github.com/i474232898/weather-shell/internal/notify"
)

// CacheVersion names the current cache generation. Changing it is what
// evicts the previous generation on the next activation.
const CacheVersion = "neuron-weather-v2.1.1"

const (
	// SyncTag is the one-off background sync registration tag.
	SyncTag = "weather-sync"
	// PeriodicSyncTag is the periodic background sync registration tag.
	PeriodicSyncTag = "weather-update"

	defaultRefreshConcurrency = 4
)

// FontStylesheet is the only cross-origin asset written at install time.
const FontStylesheet = "https://fonts.googleapis.com/css2?family=Inter:wght@300;400;500;600;700&family=JetBrains+Mono:wght@400;500;600&display=swap"

// ShellManifest is the application shell cached at install time.
var ShellManifest = []string{
	"/",
	"/static/js/bundle.js",
	"/static/css/main.css",
	"/manifest.json",
	"/favicon.ico",
	FontStylesheet,
}

var (
	ErrNotInstalled = errors.New("worker is not installed")
	ErrNoOrigin     = errors.New("worker origin is required")
)

// State is the worker lifecycle state.
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
)

// WeatherSource fetches current conditions by free-text location.
type WeatherSource interface {
	Current(ctx context.Context, query string) (json.RawMessage, error)
}

// Options configures a Controller. Storage, Network and Origin are required.
type Options struct {
	Version  string
	Origin   *url.URL
	Manifest []string

	Storage cachestore.Storage
	Network fetch.Network

	// Background refresh and notifications; any of these may be nil, in which
	// case the related events are acknowledged and ignored.
	Weather       WeatherSource
	KV            kv.Store
	Clients       *clients.Registry
	Notifications *notify.Center

	RefreshConcurrency int
}

// Controller owns all worker state. Construct one per process with New.
type Controller struct {
	version  string
	origin   *url.URL
	manifest []string

	storage       cachestore.Storage
	network       fetch.Network
	weather       WeatherSource
	kv            kv.Store
	favorites     *favorites.Store
	clients       *clients.Registry
	notifications *notify.Center

	refreshConcurrency int

	mu          sync.Mutex
	state       State
	skipWaiting bool
	// controlling stays set once the worker has been activated, so a later
	// install does not stop interception.
	controlling bool

	handlers map[EventKind]handlerFunc

	// pending tracks lifetime extensions of every dispatched event.
	pending sync.WaitGroup
}

// New builds a Controller in the parsed state.
func New(opts Options) (*Controller, error) {
	if opts.Origin == nil || !opts.Origin.IsAbs() {
		return nil, ErrNoOrigin
	}
	if opts.Storage == nil {
		return nil, fmt.Errorf("cache storage is required")
	}
	if opts.Network == nil {
		return nil, fmt.Errorf("network is required")
	}
	if opts.Version == "" {
		opts.Version = CacheVersion
	}
	if opts.Manifest == nil {
		opts.Manifest = ShellManifest
	}
	if opts.RefreshConcurrency <= 0 {
		opts.RefreshConcurrency = defaultRefreshConcurrency
	}

	c := &Controller{
		version:            opts.Version,
		origin:             opts.Origin,
		manifest:           opts.Manifest,
		storage:            opts.Storage,
		network:            opts.Network,
		weather:            opts.Weather,
		kv:                 opts.KV,
		clients:            opts.Clients,
		notifications:      opts.Notifications,
		refreshConcurrency: opts.RefreshConcurrency,
		state:              StateParsed,
	}
	if opts.KV != nil {
		c.favorites = favorites.New(opts.KV)
	}

	c.handlers = map[EventKind]handlerFunc{
		EventInstall:           c.handleInstall,
		EventActivate:          c.handleActivate,
		EventFetch:             c.handleFetch,
		EventSync:              c.handleSync,
		EventPeriodicSync:      c.handlePeriodicSync,
		EventPush:              c.handlePush,
		EventNotificationClick: c.handleNotificationClick,
	}
	return c, nil
}

// Version returns the cache generation name this controller installs.
func (c *Controller) Version() string { return c.version }

// Origin returns the origin whose requests are intercepted.
func (c *Controller) Origin() *url.URL { return c.origin }

// Favorites returns the favorites store, or nil when no kv store was given.
func (c *Controller) Favorites() *favorites.Store { return c.favorites }

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ManifestOrigins lists the origins of absolute manifest entries other than
// the worker's own origin.
func (c *Controller) ManifestOrigins() []string {
	var out []string
	seen := map[string]bool{fetch.Origin(c.origin): true}
	for _, ref := range c.manifest {
		u, err := url.Parse(ref)
		if err != nil || !u.IsAbs() {
			continue
		}
		o := fetch.Origin(u)
		if !seen[o] {
			seen[o] = true
			out = append(out, o)
		}
	}
	return out
}

// Controlling reports whether the worker intercepts fetches. It turns true on
// the first activation and stays true across later installs.
func (c *Controller) Controlling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controlling
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		log.WithField("version", c.version).Infof("worker: %s -> %s", prev, s)
	}
}

// Wait blocks until every outstanding lifetime extension finishes or ctx ends.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
