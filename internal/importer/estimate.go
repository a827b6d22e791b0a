package importer

import "time"

// perRecordEstimate approximates one record's wall time: a reachability
// probe, a geocode, two cross-reference lookups, and an LLM judgment.
const perRecordEstimate = 3 * time.Second

// Estimate summarizes what a run would do. Dry-run imports report this
// instead of invoking the orchestrator.
type Estimate struct {
	Records           int           `json:"records"`
	Batches           int           `json:"batches"`
	BatchSize         int           `json:"batch_size"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
}

// EstimateRun computes batch and duration estimates for a record count.
func EstimateRun(recordCount, batchSize int) Estimate {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	batches := (recordCount + batchSize - 1) / batchSize
	return Estimate{
		Records:           recordCount,
		Batches:           batches,
		BatchSize:         batchSize,
		EstimatedDuration: time.Duration(recordCount) * perRecordEstimate,
	}
}
