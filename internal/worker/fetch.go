package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/i474232898/weather-shell/internal/cachestore"
	"github.com/i474232898/weather-shell/internal/fetch"
)

// Fetch answers req the way an intercepted page request is answered. The
// returned response may be served before its cache write completes.
func (c *Controller) Fetch(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	ev := NewEvent(EventFetch)
	ev.Request = req
	return c.Dispatch(ctx, ev)
}

func (c *Controller) handleFetch(ctx context.Context, ev *Event) (*fetch.Response, error) {
	req := ev.Request
	if req == nil || req.URL == nil {
		return nil, fmt.Errorf("fetch event without a request")
	}

	// Not controlling yet, or not ours: straight to the network.
	if !c.Controlling() || !fetch.SameOrigin(req.URL, c.origin) {
		return c.network.Fetch(ctx, req)
	}
	if req.Method != http.MethodGet {
		return c.network.Fetch(ctx, req)
	}

	key := req.Key()
	gen, err := c.storage.Open(ctx, c.version)
	if err != nil {
		log.Warnf("worker: open cache %s: %v", c.version, err)
	} else {
		cached, err := gen.Match(ctx, key)
		switch {
		case err == nil:
			log.Debugf("worker: cache hit %s", key)
			return cached, nil
		case !errors.Is(err, cachestore.ErrNotFound):
			log.Warnf("worker: cache lookup %s: %v", key, err)
		}
	}

	resp, err := c.network.Fetch(ctx, req)
	if err != nil {
		if req.IsNavigation() {
			if root, ok := c.offlineRoot(ctx); ok {
				log.Infof("worker: offline, serving cached root for %s", key)
				return root, nil
			}
		}
		return nil, err
	}

	if resp == nil || !resp.Cacheable() {
		return resp, nil
	}

	clone := resp.Clone()
	ev.WaitUntil(func(ctx context.Context) error {
		if gen == nil {
			var err error
			if gen, err = c.storage.Open(ctx, c.version); err != nil {
				log.Warnf("worker: cache write %s: %v", key, err)
				return nil
			}
		}
		if err := gen.Put(ctx, key, clone); err != nil {
			log.Warnf("worker: cache write %s: %v", key, err)
		}
		return nil
	})
	return resp, nil
}

// offlineRoot looks up the cached root document.
func (c *Controller) offlineRoot(ctx context.Context) (*fetch.Response, bool) {
	root, err := c.origin.Parse("/")
	if err != nil {
		return nil, false
	}
	resp, err := c.storage.Match(ctx, fetch.Key(http.MethodGet, root))
	if err != nil {
		if !errors.Is(err, cachestore.ErrNotFound) {
			log.Warnf("worker: offline root lookup: %v", err)
		}
		return nil, false
	}
	return resp, true
}
