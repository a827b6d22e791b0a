package crossref

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/communityroots/resource-cli/internal/resilience"
)

const defaultPlacesURL = "https://places.googleapis.com/v1/places:searchText"

// PlacesOption configures the places directory source.
type PlacesOption func(*PlacesDirectory)

// WithPlacesBaseURL overrides the API endpoint (for testing).
func WithPlacesBaseURL(url string) PlacesOption {
	return func(p *PlacesDirectory) {
		p.baseURL = url
	}
}

// WithPlacesHTTPClient sets a custom HTTP client.
func WithPlacesHTTPClient(hc *http.Client) PlacesOption {
	return func(p *PlacesDirectory) {
		p.http = hc
	}
}

// PlacesDirectory cross-references resources against the Google Places
// text search API.
type PlacesDirectory struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewPlacesDirectory creates a places directory source.
func NewPlacesDirectory(apiKey string, opts ...PlacesOption) *PlacesDirectory {
	p := &PlacesDirectory{
		apiKey:  apiKey,
		baseURL: defaultPlacesURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Source.
func (p *PlacesDirectory) Name() string { return "google_places" }

type placesSearchRequest struct {
	TextQuery string `json:"textQuery"`
}

type placesSearchResponse struct {
	Places []struct {
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress    string `json:"formattedAddress"`
		NationalPhoneNumber string `json:"nationalPhoneNumber"`
		WebsiteURI          string `json:"websiteUri"`
		GoogleMapsURI       string `json:"googleMapsUri"`
		BusinessStatus      string `json:"businessStatus"`
	} `json:"places"`
}

// Lookup implements Source. The query text combines name and locality so
// the search lands in the right area.
func (p *PlacesDirectory) Lookup(ctx context.Context, q Query) (*Match, error) {
	text := q.Name
	if q.City != "" {
		text += " " + q.City
	}
	if q.State != "" {
		text += " " + q.State
	}
	payload, err := json.Marshal(placesSearchRequest{TextQuery: text})
	if err != nil {
		return nil, eris.Wrap(err, "crossref: marshal places request")
	}

	parsed, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*placesSearchResponse, error) {
		return p.search(ctx, payload)
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, len(parsed.Places))
	for i, pl := range parsed.Places {
		names[i] = pl.DisplayName.Text
	}
	idx, score := bestCandidate(q.Name, names)
	if idx < 0 {
		return &Match{Found: false, MatchScore: score}, nil
	}

	best := parsed.Places[idx]
	return &Match{
		Found:      true,
		MatchScore: score,
		URL:        best.GoogleMapsURI,
		Data: map[string]string{
			"name":    best.DisplayName.Text,
			"address": best.FormattedAddress,
			"phone":   best.NationalPhoneNumber,
			"website": best.WebsiteURI,
			"status":  best.BusinessStatus,
		},
	}, nil
}

func (p *PlacesDirectory) search(ctx context.Context, payload []byte) (*placesSearchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "crossref: build places request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", p.apiKey)
	req.Header.Set("X-Goog-FieldMask",
		"places.displayName,places.formattedAddress,places.nationalPhoneNumber,places.websiteUri,places.googleMapsUri,places.businessStatus")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "crossref: places request"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "crossref: read places response")
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("crossref: places returned %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var parsed placesSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "crossref: decode places response")
	}
	return &parsed, nil
}
