package model

import "time"

// VerificationLevel is the trust tier of a data source.
type VerificationLevel string

const (
	// LevelGovernment marks authoritative government feeds.
	LevelGovernment VerificationLevel = "L1"
	// LevelPartial marks partially verified sources (partner directories, curated CSVs).
	LevelPartial VerificationLevel = "L2"
	// LevelUnverified marks scraped or ad-hoc submissions.
	LevelUnverified VerificationLevel = "L3"
)

// SourceInfo records the provenance of a normalized resource.
type SourceInfo struct {
	SourceID    string    `json:"source_id"`
	SourceName  string    `json:"source_name"`
	DisplayName string    `json:"display_name,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// NormalizedResource is the canonical, source-agnostic representation of a
// candidate listing. Name, Address, City, State, and PrimaryCategory are
// required; everything else is best effort.
type NormalizedResource struct {
	Name            string `json:"name"`
	Address         string `json:"address"`
	City            string `json:"city"`
	State           string `json:"state"`
	ZipCode         string `json:"zip_code,omitempty"`
	PrimaryCategory string `json:"primary_category"`

	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Website string `json:"website,omitempty"`

	Description             string   `json:"description,omitempty"`
	ServicesOffered         []string `json:"services_offered,omitempty"`
	EligibilityRequirements string   `json:"eligibility_requirements,omitempty"`
	Fees                    string   `json:"fees,omitempty"`
	Languages               []string `json:"languages,omitempty"`
	AccessibilityFeatures   []string `json:"accessibility_features,omitempty"`
	Tags                    []string `json:"tags,omitempty"`

	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	FormattedAddress string   `json:"formatted_address,omitempty"`
	County           string   `json:"county,omitempty"`

	VerificationLevel VerificationLevel `json:"verification_level,omitempty"`
	Source            SourceInfo        `json:"source"`
}

// FullAddress joins the street address with city, state, and zip for
// geocoding and cross-reference queries.
func (r *NormalizedResource) FullAddress() string {
	addr := r.Address
	if r.City != "" {
		addr += ", " + r.City
	}
	if r.State != "" {
		addr += ", " + r.State
	}
	if r.ZipCode != "" {
		addr += " " + r.ZipCode
	}
	return addr
}
