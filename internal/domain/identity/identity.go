// Package identity derives a stable client key from request metadata.
package identity

import (
	"net/http"
	"strings"

	"github.com/okian/netpulse/internal/domain/model"
)

// Defaults used when no option overrides them.
const (
	DefaultHeader   = "X-Forwarded-For"
	DefaultSentinel = "unknown"
)

// Resolver maps request headers to a ClientKey. The value is opaque and is
// never validated as an address.
type Resolver struct {
	header   string
	sentinel model.ClientKey
}

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithHeader sets the forwarded-address header to read.
func WithHeader(name string) Option {
	return func(r *Resolver) {
		if name = strings.TrimSpace(name); name != "" {
			r.header = name
		}
	}
}

// WithSentinel sets the key returned when the header is absent or empty.
func WithSentinel(s string) Option {
	return func(r *Resolver) {
		if s != "" {
			r.sentinel = model.ClientKey(s)
		}
	}
}

// NewResolver creates a Resolver reading X-Forwarded-For by default.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{header: DefaultHeader, sentinel: DefaultSentinel}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the first entry of the forwarded chain, or the sentinel.
func (r *Resolver) Resolve(h http.Header) model.ClientKey {
	// Values returns one element per header line; the origin is in the first.
	values := h.Values(r.header)
	if len(values) == 0 {
		return r.sentinel
	}
	first, _, _ := strings.Cut(values[0], ",")
	if first = strings.TrimSpace(first); first == "" {
		return r.sentinel
	}
	return model.ClientKey(first)
}

// Sentinel returns the fallback key.
func (r *Resolver) Sentinel() model.ClientKey {
	return r.sentinel
}
