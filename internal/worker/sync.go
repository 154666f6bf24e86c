package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-shell/internal/fetch"
	"github.com/i474232898/weather-shell/internal/kv"
)

// RefreshRecord is the persisted result of one background refresh.
type RefreshRecord struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// ErrNoRefresh is returned by LastRefresh when a location was never refreshed.
var ErrNoRefresh = errors.New("location has not been refreshed")

// RefreshKey is the kv key holding the last refresh of a location.
func RefreshKey(name string) string {
	return "weather-" + name
}

// Sync delivers a one-off background sync event and waits for it.
func (c *Controller) Sync(ctx context.Context, tag string) error {
	ev := NewEvent(EventSync)
	ev.Tag = tag
	return c.dispatchAndWait(ctx, ev)
}

// PeriodicSync delivers a periodic background sync event and waits for it.
func (c *Controller) PeriodicSync(ctx context.Context, tag string) error {
	ev := NewEvent(EventPeriodicSync)
	ev.Tag = tag
	return c.dispatchAndWait(ctx, ev)
}

// LastRefresh reads the stored refresh record for a location.
func (c *Controller) LastRefresh(ctx context.Context, name string) (RefreshRecord, error) {
	if c.kv == nil {
		return RefreshRecord{}, ErrNoRefresh
	}
	raw, err := c.kv.Get(ctx, RefreshKey(name))
	if errors.Is(err, kv.ErrNotFound) {
		return RefreshRecord{}, ErrNoRefresh
	}
	if err != nil {
		return RefreshRecord{}, err
	}

	var rec RefreshRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return RefreshRecord{}, fmt.Errorf("decode refresh record %s: %w", name, err)
	}
	return rec, nil
}

// ForgetRefresh drops the stored refresh record for a location once no
// remaining favorite carries that name.
func (c *Controller) ForgetRefresh(ctx context.Context, name string) error {
	if c.kv == nil {
		return nil
	}
	if c.favorites != nil {
		list, err := c.favorites.List(ctx)
		if err != nil {
			return err
		}
		for _, loc := range list {
			if loc.Name == name {
				return nil
			}
		}
	}
	return c.kv.Delete(ctx, RefreshKey(name))
}

func (c *Controller) handleSync(_ context.Context, ev *Event) (*fetch.Response, error) {
	if ev.Tag != SyncTag {
		log.Debugf("worker: ignoring sync tag %q", ev.Tag)
		return nil, nil
	}
	ev.WaitUntil(c.refreshFavorites)
	return nil, nil
}

func (c *Controller) handlePeriodicSync(_ context.Context, ev *Event) (*fetch.Response, error) {
	if ev.Tag != PeriodicSyncTag {
		log.Debugf("worker: ignoring periodic sync tag %q", ev.Tag)
		return nil, nil
	}
	ev.WaitUntil(c.refreshFavorites)
	return nil, nil
}

// refreshFavorites fetches current conditions for every favorite location.
// It never fails: errors are logged and the remaining locations proceed.
func (c *Controller) refreshFavorites(ctx context.Context) error {
	if c.favorites == nil || c.weather == nil {
		log.Debug("worker: background refresh not configured")
		return nil
	}

	locations, err := c.favorites.List(ctx)
	if err != nil {
		log.Errorf("worker: background sync failed: %v", err)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.refreshConcurrency)
	for _, loc := range locations {
		name := loc.Name
		g.Go(func() error {
			if err := c.refreshOne(gctx, name); err != nil {
				log.WithField("location", name).Errorf("worker: failed to refresh weather: %v", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Infof("worker: refreshed %d favorite location(s)", len(locations))
	return nil
}

func (c *Controller) refreshOne(ctx context.Context, name string) error {
	data, err := c.weather.Current(ctx, name)
	if err != nil {
		return err
	}

	rec, err := json.Marshal(RefreshRecord{
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode refresh record: %w", err)
	}
	return c.kv.Set(ctx, RefreshKey(name), string(rec))
}
