// Package geocode provides address geocoding via Census Geocoder (primary) and Google (fallback).
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client geocodes addresses using Census Geocoder (primary) and Google (fallback).
type Client interface {
	// Geocode geocodes a single address.
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)
}

// AddressInput represents an address to geocode.
type AddressInput struct {
	Street  string
	City    string
	State   string
	ZipCode string
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude         float64
	Longitude        float64
	FormattedAddress string
	PlaceID          string // Google only; empty for Census matches
	County           string
	Confidence       float64 // 0.0-1.0, provider match quality
	Source           string  // "census" or "google"
	Quality          string  // "rooftop", "range", "centroid", "approximate"
	Matched          bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both Census and Google requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second rate limit for Census API calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

type geocoder struct {
	httpClient *http.Client
	googleKey  string
	limiter    *rate.Limiter
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(50, 50), // Census default: 50 req/s
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode geocodes a single address, trying Census first, then Google if configured.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	result, censusErr := g.geocodeCensus(ctx, addr)
	if censusErr == nil && result.Matched {
		return result, nil
	}

	// If Census failed or didn't match, try Google if configured.
	if g.googleKey != "" {
		googleResult, googleErr := g.geocodeGoogle(ctx, addr)
		if googleErr == nil && googleResult.Matched {
			return googleResult, nil
		}
	}

	// No match from any provider — this is not an error, just unmatched.
	return &Result{Matched: false}, nil
}
