package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	// Census Geocoder geographies endpoint returns coordinates plus the
	// containing county in a single call.
	censusGeographiesURL = "https://geocoding.geo.census.gov/geocoder/geographies/onelineaddress"
	censusBenchmark      = "Public_AR_Current"
	censusVintage        = "Current_Current"
)

// censusGeographiesResponse mirrors the Census Geocoder JSON response shape.
type censusGeographiesResponse struct {
	Result struct {
		AddressMatches []struct {
			MatchedAddress string `json:"matchedAddress"`
			Coordinates    struct {
				X float64 `json:"x"` // longitude
				Y float64 `json:"y"` // latitude
			} `json:"coordinates"`
			TigerLine struct {
				TigerLineID string `json:"tigerLineId"`
				Side        string `json:"side"`
			} `json:"tigerLine"`
			Geographies map[string][]struct {
				Name string `json:"NAME"`
			} `json:"geographies"`
		} `json:"addressMatches"`
	} `json:"result"`
}

// geocodeCensus geocodes a single address via the Census Geocoder.
// An empty match list is returned as Matched=false, not an error.
func (g *geocoder) geocodeCensus(ctx context.Context, addr AddressInput) (*Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit wait")
	}

	params := url.Values{}
	params.Set("address", formatOneLine(addr))
	params.Set("benchmark", censusBenchmark)
	params.Set("vintage", censusVintage)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, censusGeographiesURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build census request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, eris.New(fmt.Sprintf("geocode: census returned %d: %s", resp.StatusCode, string(body)))
	}

	var parsed censusGeographiesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, eris.Wrap(err, "geocode: decode census response")
	}

	if len(parsed.Result.AddressMatches) == 0 {
		return &Result{Matched: false, Source: "census"}, nil
	}

	match := parsed.Result.AddressMatches[0]
	result := &Result{
		Latitude:         match.Coordinates.Y,
		Longitude:        match.Coordinates.X,
		FormattedAddress: match.MatchedAddress,
		Source:           "census",
		Quality:          "rooftop",
		Confidence:       0.9,
		Matched:          true,
	}
	if counties, ok := match.Geographies["Counties"]; ok && len(counties) > 0 {
		result.County = counties[0].Name
	}
	// A match with no TIGER line is an interpolated centroid, not a rooftop hit.
	if match.TigerLine.TigerLineID == "" {
		result.Quality = "centroid"
		result.Confidence = 0.7
	}
	return result, nil
}

// formatOneLine builds the single-line address string the Census API expects.
func formatOneLine(addr AddressInput) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{addr.Street, addr.City, addr.State, addr.ZipCode} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
