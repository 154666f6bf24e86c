package fetch

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/i474232898/weather-shell/internal/common"
)

// Destination mirrors the Sec-Fetch-Dest request header.
type Destination string

const (
	DestinationEmpty    Destination = ""
	DestinationDocument Destination = "document"
	DestinationScript   Destination = "script"
	DestinationStyle    Destination = "style"
	DestinationImage    Destination = "image"
	DestinationFont     Destination = "font"
)

// Request is an outgoing request as seen by the cache controller.
type Request struct {
	Method      string
	URL         *url.URL
	Header      http.Header
	Destination Destination
	Body        []byte
}

// NewRequest builds a GET-style request for rawURL. Relative URLs are rejected.
func NewRequest(method, rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse request url: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("%w: %s", ErrRelativeURL, rawURL)
	}
	if method == "" {
		method = http.MethodGet
	}
	return &Request{
		Method: strings.ToUpper(method),
		URL:    u,
		Header: make(http.Header),
	}, nil
}

// Key returns the cache key for this request.
func (r *Request) Key() string {
	return Key(r.Method, r.URL)
}

// IsNavigation reports whether the request loads a full document.
func (r *Request) IsNavigation() bool {
	if r.Destination == DestinationDocument {
		return true
	}
	if r.Destination != DestinationEmpty || r.Header == nil {
		return false
	}
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	// Clients that do not send fetch metadata still ask for HTML when navigating.
	return r.Method == http.MethodGet && common.HasAnyFold(r.Header.Get("Accept"), "text/html", "application/xhtml+xml")
}

// Key normalizes method and URL into a cache key. The fragment never reaches
// the network, so it is dropped; scheme and host are case-insensitive.
func Key(method string, u *url.URL) string {
	if u == nil {
		return strings.ToUpper(method) + " "
	}
	n := *u
	n.Fragment = ""
	n.RawFragment = ""
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = canonicalHost(n.Scheme, n.Host)
	if n.Path == "" {
		n.Path = "/"
	}
	return strings.ToUpper(method) + " " + n.String()
}

// Origin returns scheme://host[:port] for u with default ports elided.
func Origin(u *url.URL) string {
	if u == nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme + "://" + canonicalHost(scheme, u.Host)
}

// SameOrigin reports whether a and b share scheme, host and port.
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return Origin(a) == Origin(b)
}

func canonicalHost(scheme, host string) string {
	host = strings.ToLower(host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		return strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		return strings.TrimSuffix(host, ":443")
	}
	return host
}
