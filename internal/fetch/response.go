package fetch

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrRelativeURL is returned when a request URL has no scheme or host.
	ErrRelativeURL = errors.New("request url must be absolute")
	// ErrNetwork wraps transport-level failures (offline, DNS, refused).
	ErrNetwork = errors.New("network request failed")
	// ErrCircuitOpen is returned while the upstream circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// ResponseType classifies a response the way the browser does.
type ResponseType string

const (
	TypeBasic  ResponseType = "basic"
	TypeCORS   ResponseType = "cors"
	TypeOpaque ResponseType = "opaque"
)

// Response is a fully-buffered response snapshot.
type Response struct {
	URL    string       `json:"url"`
	Status int          `json:"status"`
	Header http.Header  `json:"header"`
	Body   []byte       `json:"-"`
	Type   ResponseType `json:"type"`
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Cacheable reports whether the response may be stored: exactly 200 and same-origin.
func (r *Response) Cacheable() bool {
	return r != nil && r.Status == http.StatusOK && r.Type == TypeBasic
}

// Clone returns a deep copy. A body is consumed by whoever receives it, so
// the copy handed to the cache must not share memory with the caller's.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	out.Header = r.Header.Clone()
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return &out
}

// Network performs requests that missed the cache.
type Network interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// NetworkFunc adapts a function to Network.
type NetworkFunc func(ctx context.Context, req *Request) (*Response, error)

func (f NetworkFunc) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
