package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-shell/internal/cachestore"
	"github.com/i474232898/weather-shell/internal/fetch"
)

// ErrAssetStatus marks a manifest asset that answered with a non-2xx status.
var ErrAssetStatus = errors.New("manifest asset returned a non-ok status")

// Install runs the install event: the shell manifest is written into the
// current generation. Asset failures are logged and returned, but the worker
// still becomes installed. Install always asks to skip waiting, so the worker
// is activated right after.
func (c *Controller) Install(ctx context.Context) error {
	err := c.install(ctx)

	c.mu.Lock()
	skip := c.skipWaiting
	c.mu.Unlock()
	if !skip {
		return err
	}
	if aerr := c.Activate(ctx); aerr != nil {
		return errors.Join(err, aerr)
	}
	return err
}

func (c *Controller) install(ctx context.Context) error {
	c.setState(StateInstalling)

	err := c.dispatchAndWait(ctx, NewEvent(EventInstall))
	if err != nil {
		log.WithField("version", c.version).Errorf("worker: failed to cache resources: %v", err)
	}

	c.mu.Lock()
	c.skipWaiting = true
	c.mu.Unlock()

	c.setState(StateInstalled)
	return err
}

// Activate runs the activate event: every generation other than the current
// one is deleted, then all open clients are claimed.
func (c *Controller) Activate(ctx context.Context) error {
	switch c.State() {
	case StateInstalled, StateActivated:
	default:
		return fmt.Errorf("%w: state is %s", ErrNotInstalled, c.State())
	}
	c.setState(StateActivating)

	// Clients are claimed only after cleanup settles, even if ctx ends first.
	ev := NewEvent(EventActivate)
	if _, err := c.Dispatch(ctx, ev); err != nil {
		log.WithField("version", c.version).Errorf("worker: activate: %v", err)
	}
	<-ev.Done()
	if err := ev.Err(); err != nil {
		log.WithField("version", c.version).Errorf("worker: activation cleanup failed: %v", err)
	}

	// Stale generations are gone; only now take over open pages.
	if c.clients != nil {
		n := c.clients.Claim(c.version)
		log.Infof("worker: claimed %d client(s)", n)
	}

	c.mu.Lock()
	c.controlling = true
	c.mu.Unlock()
	c.setState(StateActivated)
	return nil
}

// Start brings a fresh worker up. A partially cached shell is logged and
// tolerated.
func (c *Controller) Start(ctx context.Context) error {
	err := c.Install(ctx)
	if errors.Is(err, ErrNotInstalled) {
		return err
	}
	if err != nil {
		log.Warnf("worker: continuing with a partially cached shell")
	}
	return nil
}

func (c *Controller) handleInstall(_ context.Context, ev *Event) (*fetch.Response, error) {
	ev.WaitUntil(func(ctx context.Context) error {
		gen, err := c.storage.Open(ctx, c.version)
		if err != nil {
			return err
		}
		log.Infof("worker: opened cache %s", gen.Name())
		return c.addAll(ctx, gen, c.manifest)
	})
	return nil, nil
}

func (c *Controller) handleActivate(_ context.Context, ev *Event) (*fetch.Response, error) {
	ev.WaitUntil(func(ctx context.Context) error {
		names, err := c.storage.Names(ctx)
		if err != nil {
			return fmt.Errorf("list caches: %w", err)
		}

		var errs []error
		for _, name := range names {
			if name == c.version {
				continue
			}
			log.Infof("worker: deleting old cache %s", name)
			if _, err := c.storage.Delete(ctx, name); err != nil {
				errs = append(errs, fmt.Errorf("delete cache %s: %w", name, err))
			}
		}
		return errors.Join(errs...)
	})
	return nil, nil
}

// addAll fetches every asset concurrently and stores the successful ones.
// One failing asset never stops its siblings; all failures are joined.
func (c *Controller) addAll(ctx context.Context, gen cachestore.Generation, assets []string) error {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, asset := range assets {
		asset := asset
		g.Go(func() error {
			req, err := c.resolve(asset)
			if err != nil {
				fail(err)
				return nil
			}
			resp, err := c.network.Fetch(ctx, req)
			if err != nil {
				fail(fmt.Errorf("fetch %s: %w", asset, err))
				return nil
			}
			if !resp.OK() {
				fail(fmt.Errorf("%w: %s (%d)", ErrAssetStatus, asset, resp.Status))
				return nil
			}
			if err := gen.Put(ctx, req.Key(), resp); err != nil {
				fail(fmt.Errorf("store %s: %w", asset, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// resolve turns a manifest entry into a GET request against the origin.
func (c *Controller) resolve(ref string) (*fetch.Request, error) {
	u, err := c.origin.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
	return fetch.NewRequest(http.MethodGet, u.String())
}

// Restore marks the worker installed when the current generation already
// exists in storage, as left behind by an earlier process. It reports whether
// the generation was found.
func (c *Controller) Restore(ctx context.Context) (bool, error) {
	ok, err := c.storage.Has(ctx, c.version)
	if err != nil {
		return false, fmt.Errorf("look up cache %s: %w", c.version, err)
	}
	if !ok {
		return false, nil
	}
	if c.State() == StateParsed {
		c.setState(StateInstalled)
	}
	return true, nil
}
