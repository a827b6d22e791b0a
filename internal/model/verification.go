package model

import "time"

// Decision is the terminal classification a verification run assigns.
type Decision string

const (
	DecisionAutoApprove  Decision = "auto_approve"
	DecisionFlagForHuman Decision = "flag_for_human"
	DecisionAutoReject   Decision = "auto_reject"
)

// RunType distinguishes why a verification ran.
type RunType string

const (
	RunTypeInitial   RunType = "initial"
	RunTypePeriodic  RunType = "periodic"
	RunTypeTriggered RunType = "triggered"
)

// Well-known check names produced by the verification agent.
const (
	CheckURLReachable      = "url_reachable"
	CheckPhoneValid        = "phone_valid"
	CheckAddressGeocoded   = "address_geocoded"
	CheckContentConsistent = "content_consistent"
	CheckCrossReferenced   = "cross_referenced"
	CheckConflictDetection = "conflict_detection"
)

// CheckResult is the outcome of one named verification check.
type CheckResult struct {
	Pass       bool     `json:"pass"`
	Skipped    bool     `json:"skipped,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Evidence   string   `json:"evidence,omitempty"`
}

// FieldConflict records a disagreement between the candidate's claimed value
// for a field and a value observed in a cross-referenced source. Confidence
// in [0,1] estimates how likely the disagreement is a genuine error rather
// than formatting noise. Conflicts are never mutated after creation.
type FieldConflict struct {
	Field         string  `json:"field"`
	ClaimedValue  string  `json:"claimed_value"`
	ObservedValue string  `json:"observed_value"`
	SourceName    string  `json:"source_name"`
	Confidence    float64 `json:"confidence"`
}

// VerificationResult is the immutable output of one verification run over
// one candidate. Persisted verbatim to the verification log.
type VerificationResult struct {
	OverallScore    float64                `json:"overall_score"`
	Checks          map[string]CheckResult `json:"checks"`
	Conflicts       []FieldConflict        `json:"conflicts,omitempty"`
	Decision        Decision               `json:"decision"`
	DecisionReason  string                 `json:"decision_reason"`
	CrossRefMatches int                    `json:"cross_ref_matches"`
	CostUSD         float64                `json:"cost_usd"`
	ExternalCalls   int                    `json:"external_calls"`
	Duration        time.Duration          `json:"duration_ns"`
	GeocodeDuration time.Duration          `json:"geocode_duration_ns"`
	RunType         RunType                `json:"run_type"`
}

// VerificationLog is a persisted verification result keyed by candidate.
type VerificationLog struct {
	ID           string             `json:"id"`
	ResourceID   string             `json:"resource_id,omitempty"`
	SuggestionID string             `json:"suggestion_id,omitempty"`
	RunType      RunType            `json:"run_type"`
	Result       VerificationResult `json:"result"`
	CreatedAt    time.Time          `json:"created_at"`
}

// CostEntry is one row in the cost/telemetry log: a single priced call to an
// automated-reasoning provider.
type CostEntry struct {
	ID           string    `json:"id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Operation    string    `json:"operation"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	CreatedAt    time.Time `json:"created_at"`
}
