package crossref

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/communityroots/resource-cli/internal/resilience"
)

// RegistryOption configures the community services registry source.
type RegistryOption func(*ServiceRegistry)

// WithRegistryHTTPClient sets a custom HTTP client.
func WithRegistryHTTPClient(hc *http.Client) RegistryOption {
	return func(r *ServiceRegistry) {
		r.http = hc
	}
}

// ServiceRegistry cross-references resources against an Open Referral
// (HSDS) community services directory, e.g. a 211 provider API.
type ServiceRegistry struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewServiceRegistry creates a registry source for the given HSDS API base URL.
func NewServiceRegistry(baseURL, apiKey string, opts ...RegistryOption) *ServiceRegistry {
	r := &ServiceRegistry{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name implements Source.
func (r *ServiceRegistry) Name() string { return "service_registry" }

// registrySearchResponse mirrors the HSDS /organizations search shape.
type registrySearchResponse struct {
	Contents []struct {
		Name      string `json:"name"`
		URL       string `json:"url"`
		Status    string `json:"status"`
		Locations []struct {
			Addresses []struct {
				Address1      string `json:"address_1"`
				City          string `json:"city"`
				StateProvince string `json:"state_province"`
			} `json:"addresses"`
			Phones []struct {
				Number string `json:"number"`
			} `json:"phones"`
		} `json:"locations"`
	} `json:"contents"`
}

// Lookup implements Source.
func (r *ServiceRegistry) Lookup(ctx context.Context, q Query) (*Match, error) {
	params := url.Values{}
	params.Set("query", q.Name)
	if q.City != "" {
		params.Set("city", q.City)
	}
	if q.State != "" {
		params.Set("state_province", q.State)
	}
	reqURL := r.baseURL + "/organizations?" + params.Encode()

	parsed, err := resilience.DoVal(ctx, r.retry, func(ctx context.Context) (*registrySearchResponse, error) {
		return r.search(ctx, reqURL)
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, len(parsed.Contents))
	for i, org := range parsed.Contents {
		names[i] = org.Name
	}
	idx, score := bestCandidate(q.Name, names)
	if idx < 0 {
		return &Match{Found: false, MatchScore: score}, nil
	}

	best := parsed.Contents[idx]
	data := map[string]string{
		"name":    best.Name,
		"website": best.URL,
		"status":  best.Status,
	}
	if len(best.Locations) > 0 {
		loc := best.Locations[0]
		if len(loc.Addresses) > 0 {
			a := loc.Addresses[0]
			data["address"] = joinNonEmpty(", ", a.Address1, a.City, a.StateProvince)
		}
		if len(loc.Phones) > 0 {
			data["phone"] = loc.Phones[0].Number
		}
	}
	return &Match{Found: true, MatchScore: score, URL: best.URL, Data: data}, nil
}

func (r *ServiceRegistry) search(ctx context.Context, reqURL string) (*registrySearchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "crossref: build registry request")
	}
	req.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Api-Key", r.apiKey)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "crossref: registry request"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "crossref: read registry response")
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("crossref: registry returned %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var parsed registrySearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "crossref: decode registry response")
	}
	return &parsed, nil
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
