package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

// DefaultMaxBodyBytes caps buffered response bodies.
const DefaultMaxBodyBytes int64 = 32 << 20

var errUpstreamServer = errors.New("upstream server error")

// hop-by-hop headers are meaningful for a single connection only.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HTTPNetwork fetches over HTTP. Same-origin requests are rewritten to the
// upstream asset server when one is configured; the response keeps the public
// URL so cache keys stay stable.
type HTTPNetwork struct {
	client   *http.Client
	origin   *url.URL
	upstream *url.URL
	circuit  *gobreaker.CircuitBreaker
	maxBody  int64
}

// NewHTTPNetwork returns a network bound to the public origin. upstream may be nil.
func NewHTTPNetwork(client *http.Client, origin, upstream *url.URL) *HTTPNetwork {
	if client == nil {
		client = http.DefaultClient
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &HTTPNetwork{
		client:   client,
		origin:   origin,
		upstream: upstream,
		circuit:  cb,
		maxBody:  DefaultMaxBodyBytes,
	}
}

// Fetch executes the request through the circuit breaker. Upstream 5xx
// responses count as breaker failures but are still returned to the caller,
// the same way a browser resolves fetch() with a 500.
func (n *HTTPNetwork) Fetch(ctx context.Context, req *Request) (*Response, error) {
	sameOrigin := SameOrigin(req.URL, n.origin)

	target := *req.URL
	target.Fragment = ""
	if sameOrigin && n.upstream != nil {
		target.Scheme = n.upstream.Scheme
		target.Host = n.upstream.Host
	}

	var out *Response
	_, err := n.circuit.Execute(func() (interface{}, error) {
		var body io.Reader
		if len(req.Body) > 0 {
			body = bytes.NewReader(req.Body)
		}
		hreq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
		if err != nil {
			return nil, err
		}
		for k, vs := range req.Header {
			for _, v := range vs {
				hreq.Header.Add(k, v)
			}
		}
		for _, h := range hopHeaders {
			hreq.Header.Del(h)
		}

		resp, err := n.client.Do(hreq)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, n.maxBody+1))
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
		}
		if int64(len(payload)) > n.maxBody {
			return nil, fmt.Errorf("%w: response too large (limit %d bytes)", ErrNetwork, n.maxBody)
		}

		header := resp.Header.Clone()
		for _, h := range hopHeaders {
			header.Del(h)
		}

		out = &Response{
			URL:    req.URL.String(),
			Status: resp.StatusCode,
			Header: header,
			Body:   payload,
			Type:   classify(sameOrigin, header),
		}
		if resp.StatusCode >= 500 {
			return nil, errUpstreamServer
		}
		return out, nil
	})

	if err != nil {
		if errors.Is(err, errUpstreamServer) && out != nil {
			return out, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}
	return out, nil
}

func classify(sameOrigin bool, header http.Header) ResponseType {
	switch {
	case sameOrigin:
		return TypeBasic
	case header.Get("Access-Control-Allow-Origin") != "":
		return TypeCORS
	default:
		return TypeOpaque
	}
}
