package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// DefaultBaseURL is the WeatherAPI.com v1 endpoint.
const DefaultBaseURL = "https://api.weatherapi.com/v1"

var (
	ErrLocationNotFound = errors.New("location not found")
	ErrUnauthorized     = errors.New("weather api key rejected")
	ErrForbidden        = errors.New("weather api access denied")
	ErrUnavailable      = errors.New("weather service unavailable")
	ErrNotConfigured    = errors.New("weather api key is not configured")
	ErrCircuitOpen      = errors.New("circuit breaker open")

	errRateLimited = errors.New("rate limited")
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Client queries WeatherAPI.com by free-text location.
type Client struct {
	name    string
	apiKey  string
	baseURL string
	http    *http.Client
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
}

// NewClient creates a Client. An empty baseURL means DefaultBaseURL.
func NewClient(httpClient *http.Client, baseURL, apiKey string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "weatherapi",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		backoff: BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		circuit: cb,
	}
}

// WithBackoff overrides the retry policy.
func (c *Client) WithBackoff(cfg BackoffConfig) *Client {
	c.backoff = cfg
	return c
}

func (c *Client) Name() string {
	return c.name
}

// Current returns the raw current.json payload for query.
func (c *Client) Current(ctx context.Context, query string) (json.RawMessage, error) {
	values := url.Values{}
	values.Set("q", query)
	return c.get(ctx, "current.json", values)
}

// Forecast returns the raw forecast.json payload (days 1-7, with AQI and alerts).
func (c *Client) Forecast(ctx context.Context, query string, days int) (json.RawMessage, error) {
	if days < 1 || days > 7 {
		return nil, fmt.Errorf("days must be between 1 and 7")
	}
	values := url.Values{}
	values.Set("q", query)
	values.Set("days", strconv.Itoa(days))
	values.Set("aqi", "yes")
	values.Set("alerts", "yes")
	return c.get(ctx, "forecast.json", values)
}

type apiResult struct {
	status int
	body   []byte
}

func (c *Client) get(ctx context.Context, endpoint string, values url.Values) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(values.Get("q")) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrLocationNotFound)
	}
	values.Set("key", c.apiKey)
	u := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, values.Encode())

	var out json.RawMessage
	operation := func() error {
		result, err := c.circuit.Execute(func() (interface{}, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return nil, err
			}
			resp, err := c.http.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}

			// Handle rate limiting and server errors explicitly.
			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, errRateLimited
			}
			if resp.StatusCode >= 500 {
				return nil, fmt.Errorf("%w (%d)", ErrUnavailable, resp.StatusCode)
			}
			return &apiResult{status: resp.StatusCode, body: body}, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(fmt.Errorf("%w: %v", ErrCircuitOpen, err))
			}
			return err
		}

		res, ok := result.(*apiResult)
		if !ok {
			return backoff.Permanent(fmt.Errorf("unexpected result type from circuit breaker"))
		}
		switch {
		case res.status == http.StatusBadRequest:
			return backoff.Permanent(ErrLocationNotFound)
		case res.status == http.StatusUnauthorized:
			return backoff.Permanent(ErrUnauthorized)
		case res.status == http.StatusForbidden:
			return backoff.Permanent(ErrForbidden)
		case res.status < 200 || res.status >= 300:
			return backoff.Permanent(fmt.Errorf("%w (%d)", ErrUnavailable, res.status))
		}
		out = json.RawMessage(res.body)
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.backoff.InitialInterval
	eb.MaxInterval = c.backoff.MaxInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, c.backoff.MaxRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return out, nil
}
