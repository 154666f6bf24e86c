package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/i474232898/weather-shell/internal/clients"
	"github.com/i474232898/weather-shell/internal/favorites"
	"github.com/i474232898/weather-shell/internal/installprompt"
	"github.com/i474232898/weather-shell/internal/notify"
	"github.com/i474232898/weather-shell/internal/weather"
	"github.com/i474232898/weather-shell/internal/worker"
)

var validate = validator.New()

// ForecastSource serves multi-day forecasts.
type ForecastSource interface {
	Forecast(ctx context.Context, query string, days int) (json.RawMessage, error)
}

// Deps are the components the control API drives. Forecast may be nil.
type Deps struct {
	Worker        *worker.Controller
	Clients       *clients.Registry
	Notifications *notify.Center
	Forecast      ForecastSource
}

// RegisterRoutes wires the control API into the Fiber app. Register it before
// the gateway so its catch-all does not shadow these routes.
func RegisterRoutes(app *fiber.App, deps Deps) {
	v1 := app.Group("/api/v1")

	registerLifecycle(v1, deps.Worker)
	registerEvents(v1, deps)
	registerFavorites(v1, deps.Worker)
	registerClients(v1, deps.Clients)
	registerWeather(v1, deps)
}

func registerLifecycle(r fiber.Router, ctrl *worker.Controller) {
	r.Get("/lifecycle", func(c *fiber.Ctx) error {
		return c.JSON(lifecycleBody(ctrl, nil))
	})

	r.Post("/lifecycle/install", func(c *fiber.Ctx) error {
		// Asset failures leave the worker installed; report them alongside.
		err := ctrl.Install(c.UserContext())
		return c.JSON(lifecycleBody(ctrl, err))
	})

	r.Post("/lifecycle/activate", func(c *fiber.Ctx) error {
		if err := ctrl.Activate(c.UserContext()); err != nil {
			if errors.Is(err, worker.ErrNotInstalled) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "activation failed")
		}
		return c.JSON(lifecycleBody(ctrl, nil))
	})
}

func lifecycleBody(ctrl *worker.Controller, err error) fiber.Map {
	body := fiber.Map{
		"version": ctrl.Version(),
		"state":   ctrl.State(),
	}
	if err != nil {
		body["error"] = err.Error()
	}
	return body
}

type syncRequest struct {
	Tag string `json:"tag" validate:"required"`
}

type clickRequest struct {
	Action string `json:"action" validate:"omitempty,oneof=view dismiss"`
}

func registerEvents(r fiber.Router, deps Deps) {
	ctrl := deps.Worker

	r.Post("/sync", func(c *fiber.Ctx) error {
		var req syncRequest
		if err := bindJSON(c, &req); err != nil {
			return err
		}
		if err := ctrl.Sync(c.UserContext(), req.Tag); err != nil {
			log.Errorf("httpapi: sync %q: %v", req.Tag, err)
			return fiber.NewError(fiber.StatusInternalServerError, "sync failed")
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"tag": req.Tag})
	})

	r.Post("/periodic-sync", func(c *fiber.Ctx) error {
		var req syncRequest
		if err := bindJSON(c, &req); err != nil {
			return err
		}
		if err := ctrl.PeriodicSync(c.UserContext(), req.Tag); err != nil {
			log.Errorf("httpapi: periodic sync %q: %v", req.Tag, err)
			return fiber.NewError(fiber.StatusInternalServerError, "periodic sync failed")
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"tag": req.Tag})
	})

	r.Post("/push", func(c *fiber.Ctx) error {
		var payload []byte
		if body := c.Body(); len(body) > 0 {
			payload = append([]byte(nil), body...)
		}
		if err := ctrl.Push(c.UserContext(), payload); err != nil {
			log.Errorf("httpapi: push: %v", err)
			return fiber.NewError(fiber.StatusInternalServerError, "push failed")
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Get("/notifications", func(c *fiber.Ctx) error {
		if deps.Notifications == nil {
			return c.JSON([]notify.Notification{})
		}
		return c.JSON(deps.Notifications.Open())
	})

	r.Post("/notifications/:id/click", func(c *fiber.Ctx) error {
		var req clickRequest
		if len(c.Body()) > 0 {
			if err := bindJSON(c, &req); err != nil {
				return err
			}
		}
		if err := ctrl.NotificationClick(c.UserContext(), c.Params("id"), req.Action); err != nil {
			if errors.Is(err, notify.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "notification not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "notification click failed")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

type customFavoriteRequest struct {
	Name string `json:"name" validate:"required"`
}

func registerFavorites(r fiber.Router, ctrl *worker.Controller) {
	store := ctrl.Favorites()
	g := r.Group("/favorites", func(c *fiber.Ctx) error {
		if store == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "favorites storage is not configured")
		}
		return c.Next()
	})

	g.Get("/", func(c *fiber.Ctx) error {
		list, err := store.List(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(list)
	})

	g.Post("/", func(c *fiber.Ctx) error {
		var in favorites.Input
		if err := bindJSON(c, &in); err != nil {
			return err
		}
		loc, err := store.Add(c.UserContext(), in)
		if err != nil {
			return favoritesError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(loc)
	})

	g.Post("/custom", func(c *fiber.Ctx) error {
		var req customFavoriteRequest
		if err := bindJSON(c, &req); err != nil {
			return err
		}
		loc, err := store.AddCustom(c.UserContext(), req.Name)
		if err != nil {
			return favoritesError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(loc)
	})

	g.Delete("/:id", func(c *fiber.Ctx) error {
		loc, err := store.Remove(c.UserContext(), c.Params("id"))
		if err != nil {
			return favoritesError(err)
		}
		if err := ctrl.ForgetRefresh(c.UserContext(), loc.Name); err != nil {
			log.Warnf("httpapi: forget refresh for %q: %v", loc.Name, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func favoritesError(err error) error {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, favorites.ErrDuplicate):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, favorites.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.As(err, &verrs), errors.Is(err, favorites.ErrInvalidName):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, favorites.ErrCorrupt):
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to update favorites")
	}
}

type registerClientRequest struct {
	URL        string `json:"url" validate:"required"`
	Standalone bool   `json:"standalone"`
}

func registerClients(r fiber.Router, registry *clients.Registry) {
	r.Get("/clients", func(c *fiber.Ctx) error {
		return c.JSON(registry.MatchAll())
	})

	r.Post("/clients", func(c *fiber.Ctx) error {
		var req registerClientRequest
		if err := bindJSON(c, &req); err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(registry.Register(req.URL, req.Standalone))
	})

	r.Delete("/clients/:id", func(c *fiber.Ctx) error {
		if err := registry.Remove(c.Params("id")); err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/clients/:id/install/:step", func(c *fiber.Ctx) error {
		m, err := registry.Prompt(c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}

		var state installprompt.State
		switch c.Params("step") {
		case "prompt":
			m.Capture()
			state = m.State()
		case "accept":
			state, err = m.Prompt(installprompt.OutcomeAccepted)
		case "decline":
			state, err = m.Prompt(installprompt.OutcomeDismissed)
		case "dismiss":
			state, err = m.Dismiss()
		case "installed":
			state = m.MarkInstalled()
		case "session":
			state = m.NewSession()
		default:
			return fiber.NewError(fiber.StatusNotFound, "unknown install step")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}

		return c.JSON(fiber.Map{
			"state":     state,
			"canPrompt": m.CanPrompt(),
		})
	})
}

func registerWeather(r fiber.Router, deps Deps) {
	r.Get("/weather/current", func(c *fiber.Ctx) error {
		q := c.Query("q")
		if q == "" {
			return fiber.NewError(fiber.StatusBadRequest, "q query parameter is required")
		}

		rec, err := deps.Worker.LastRefresh(c.UserContext(), q)
		if err != nil {
			if errors.Is(err, worker.ErrNoRefresh) {
				return fiber.NewError(fiber.StatusNotFound, "no weather data for requested location")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read weather data")
		}

		body := fiber.Map{
			"location":  q,
			"timestamp": rec.Timestamp,
			"data":      rec.Data,
		}
		if cond, err := weather.ParseCurrent(rec.Data); err == nil {
			body["conditions"] = cond
		}
		return c.JSON(body)
	})

	r.Get("/weather/forecast", func(c *fiber.Ctx) error {
		var req forecastQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if deps.Forecast == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "forecast provider is not configured")
		}

		raw, err := deps.Forecast.Forecast(c.UserContext(), req.Query, req.Days)
		if err != nil {
			return weatherError(err)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(raw)
	})
}

// forecastQuery holds query parameters for the forecast endpoint.
type forecastQuery struct {
	Query string `validate:"required"`
	Days  int    `validate:"required,min=1,max=7"`
}

func (f *forecastQuery) bind(c *fiber.Ctx) error {
	f.Query = c.Query("q")

	daysStr := c.Query("days")
	if daysStr == "" {
		return errors.New("days query parameter is required")
	}
	days, err := strconv.Atoi(daysStr)
	if err != nil {
		return errors.New("days must be an integer")
	}
	f.Days = days
	return nil
}

func weatherError(err error) error {
	switch {
	case errors.Is(err, weather.ErrLocationNotFound):
		return fiber.NewError(fiber.StatusNotFound, "location not found")
	case errors.Is(err, weather.ErrNotConfigured):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		log.Warnf("httpapi: forecast: %v", err)
		return fiber.NewError(fiber.StatusBadGateway, "weather service unavailable")
	}
}

// bindJSON parses and validates a JSON body.
func bindJSON(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}
