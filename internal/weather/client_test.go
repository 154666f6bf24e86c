package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const currentPayload = `{
  "location": {"name": "Paris", "region": "Ile-de-France", "country": "France", "lat": 48.87, "lon": 2.33, "localtime_epoch": 1700000000},
  "current": {"last_updated_epoch": 1700000100, "temp_c": 12.5, "feelslike_c": 11.0, "wind_kph": 18.0,
              "humidity": 81, "precip_mm": 0.4, "uv": 2, "condition": {"text": "Light rain shower"}}
}`

func fastClient(srv *httptest.Server, key string) *Client {
	return NewClient(srv.Client(), srv.URL, key).WithBackoff(BackoffConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})
}

func TestCurrentSendsQueryAndKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/current.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("q") != "Paris" || r.URL.Query().Get("key") != "secret" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(currentPayload))
	}))
	defer srv.Close()

	raw, err := fastClient(srv, "secret").Current(context.Background(), "Paris")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cond, err := ParseCurrent(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cond.Name != "Paris" || cond.TempC != 12.5 || cond.Condition != ConditionRain {
		t.Fatalf("unexpected conditions %+v", cond)
	}
	if !cond.ObservedAt.Equal(time.Unix(1700000100, 0).UTC()) {
		t.Fatalf("unexpected observation time %v", cond.ObservedAt)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrLocationNotFound},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrUnavailable},
	}
	for _, tc := range cases {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(tc.status)
		}))

		_, err := fastClient(srv, "k").Current(context.Background(), "Atlantis")
		srv.Close()

		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		if atomic.LoadInt32(&calls) != 1 {
			t.Errorf("status %d: client errors must not be retried, got %d calls", tc.status, calls)
		}
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(currentPayload))
	}))
	defer srv.Close()

	if _, err := fastClient(srv, "k").Current(context.Background(), "Paris"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestMissingKey(t *testing.T) {
	c := NewClient(nil, "", "")
	if _, err := c.Current(context.Background(), "Paris"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestForecastDaysValidation(t *testing.T) {
	c := NewClient(nil, "", "k")
	if _, err := c.Forecast(context.Background(), "Paris", 8); err == nil {
		t.Fatal("expected error for 8 days")
	}
}

func TestMapCondition(t *testing.T) {
	cases := map[string]Condition{
		"":                           ConditionUnknown,
		"Sunny":                      ConditionClear,
		"Partly cloudy":              ConditionCloudy,
		"Patchy light drizzle":       ConditionRain,
		"Moderate snow":              ConditionSnow,
		"Thundery outbreaks":         ConditionStorm,
		"Moderate rain with thunder": ConditionStorm,
		"Freezing fog":               ConditionMist,
		"Something else":             ConditionUnknown,
	}
	for text, want := range cases {
		if got := MapCondition(text); got != want {
			t.Errorf("MapCondition(%q) = %s, want %s", text, got, want)
		}
	}
}
