package main

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"

	"github.com/i474232898/weather-shell/internal/cachestore"
	"github.com/i474232898/weather-shell/internal/clients"
	"github.com/i474232898/weather-shell/internal/config"
	"github.com/i474232898/weather-shell/internal/fetch"
	"github.com/i474232898/weather-shell/internal/kv"
	"github.com/i474232898/weather-shell/internal/notify"
	"github.com/i474232898/weather-shell/internal/sqlitedb"
	"github.com/i474232898/weather-shell/internal/weather"
	"github.com/i474232898/weather-shell/internal/worker"
)

const maxNotifications = 50

// runtime is the wired set of components shared by every command.
type runtime struct {
	cfg           *config.AppConfig
	origin        *url.URL
	ctrl          *worker.Controller
	clients       *clients.Registry
	notifications *notify.Center
	weather       *weather.Client
	db            *sql.DB
}

func buildRuntime(cfg *config.AppConfig) (*runtime, error) {
	origin, err := cfg.Origin()
	if err != nil {
		return nil, err
	}
	upstream, err := cfg.Upstream()
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:           cfg,
		origin:        origin,
		clients:       clients.NewRegistry(),
		notifications: notify.NewCenter(maxNotifications),
	}

	var (
		storage cachestore.Storage
		store   kv.Store
	)
	switch cfg.StorageDriver {
	case config.StorageSQLite:
		db, err := sqlitedb.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		rt.db = db
		if storage, err = cachestore.NewSQLiteStorage(db); err != nil {
			rt.Close()
			return nil, err
		}
		if store, err = kv.NewSQLiteStore(db); err != nil {
			rt.Close()
			return nil, err
		}
		log.Infof("storage: sqlite at %s", cfg.SQLitePath)
	default:
		storage = cachestore.NewMemoryStorage()
		store = kv.NewMemoryStore()
		log.Info("storage: in memory")
	}

	// Shared HTTP client for outbound calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	rt.weather = weather.NewClient(httpClient, cfg.WeatherAPIBaseURL, cfg.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		log.Warn("WEATHERAPI_API_KEY is not set; background refresh will fail")
	}

	rt.ctrl, err = worker.New(worker.Options{
		Origin:             origin,
		Storage:            storage,
		Network:            fetch.NewHTTPNetwork(httpClient, origin, upstream),
		Weather:            rt.weather,
		KV:                 store,
		Clients:            rt.clients,
		Notifications:      rt.notifications,
		RefreshConcurrency: cfg.RefreshConcurrency,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("build worker: %w", err)
	}
	return rt, nil
}

// Close releases the database, if any.
func (rt *runtime) Close() error {
	if rt.db == nil {
		return nil
	}
	err := rt.db.Close()
	rt.db = nil
	if err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
