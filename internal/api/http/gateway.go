package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/i474232898/weather-shell/internal/fetch"
)

// Fetcher answers intercepted requests.
type Fetcher interface {
	Fetch(ctx context.Context, req *fetch.Request) (*fetch.Response, error)
}

// Response headers the gateway recomputes itself.
var skipResponseHeaders = map[string]bool{
	"Content-Length":    true,
	"Transfer-Encoding": true,
	"Connection":        true,
}

// errProxyTarget rejects proxy-form requests for origins the gateway does
// not serve.
var errProxyTarget = errors.New("proxy target not allowed")

// RegisterGateway answers every remaining request through the cache
// controller. Requests whose request line carries an absolute URL (proxy
// form) keep their own origin, which must be origin itself or one of
// proxyOrigins; all others are resolved against origin.
func RegisterGateway(app *fiber.App, origin *url.URL, fetcher Fetcher, proxyOrigins ...string) {
	allowed := map[string]bool{fetch.Origin(origin): true}
	for _, o := range proxyOrigins {
		if u, err := url.Parse(o); err == nil && u.IsAbs() {
			allowed[fetch.Origin(u)] = true
		}
	}

	app.All("/*", func(c *fiber.Ctx) error {
		req, err := toFetchRequest(c, origin, allowed)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		resp, err := fetcher.Fetch(c.UserContext(), req)
		if err != nil {
			log.WithField("url", req.URL.String()).Warnf("gateway: %v", err)
			if errors.Is(err, fetch.ErrCircuitOpen) {
				return fiber.NewError(fiber.StatusServiceUnavailable, "upstream unavailable")
			}
			return fiber.NewError(fiber.StatusBadGateway, "network request failed")
		}
		if resp == nil {
			log.WithField("url", req.URL.String()).Warn("gateway: fetch returned no response")
			return fiber.NewError(fiber.StatusBadGateway, "network request failed")
		}
		return writeResponse(c, resp)
	})
}

func toFetchRequest(c *fiber.Ctx, origin *url.URL, allowed map[string]bool) (*fetch.Request, error) {
	// Raw request line; Request.RequestURI rebuilds it in path form.
	target := string(c.Request().Header.RequestURI())
	if u, err := url.Parse(target); err != nil || !u.IsAbs() {
		target = strings.TrimSuffix(origin.String(), "/") + c.OriginalURL()
	} else if !allowed[fetch.Origin(u)] {
		return nil, fmt.Errorf("%w: %s", errProxyTarget, fetch.Origin(u))
	}

	req, err := fetch.NewRequest(c.Method(), target)
	if err != nil {
		return nil, err
	}
	c.Request().Header.VisitAll(func(k, v []byte) {
		req.Header.Add(string(k), string(v))
	})
	req.Header.Del(fiber.HeaderHost)
	req.Destination = fetch.Destination(c.Get("Sec-Fetch-Dest"))
	if body := c.Body(); len(body) > 0 {
		req.Body = append([]byte(nil), body...)
	}
	return req, nil
}

func writeResponse(c *fiber.Ctx, resp *fetch.Response) error {
	for k, vs := range resp.Header {
		if skipResponseHeaders[k] {
			continue
		}
		for _, v := range vs {
			c.Response().Header.Add(k, v)
		}
	}
	c.Set("X-Cache-Type", string(resp.Type))
	return c.Status(resp.Status).Send(resp.Body)
}
