package syncer

import "time"

// Outcome is how one asset left the pipeline in a pass
type Outcome string

const (
	// OutcomeSkipped means the record was already uploaded
	OutcomeSkipped Outcome = "skipped"
	// OutcomeDeduplicated means the remote already held the content
	OutcomeDeduplicated Outcome = "deduplicated"
	// OutcomeUploaded means the content was stored by this pass
	OutcomeUploaded Outcome = "uploaded"
	// OutcomeFailed means a step failed; the asset is retried next run
	OutcomeFailed Outcome = "failed"
)

// DiscoveryResult represents the outcome of a discovery pass
type DiscoveryResult struct {
	// AssetIDs in enumeration order
	AssetIDs []string
	Created  int
	Existing int
	// Repaired counts corrupt records replaced by fresh ones
	Repaired int
	// Errors are entries the source could not enumerate
	Errors []error
}

// RunResult represents the outcome of a sync run
type RunResult struct {
	RunID        string
	StartedAt    time.Time
	Duration     time.Duration
	Discovered   int
	Total        int
	Uploaded     int
	Deduplicated int
	Skipped      int
	Failed       int
	// Cancelled is set when a stop request ended the upload pass early
	Cancelled       bool
	Errors          []*StepError
	DiscoveryErrors []error
	// SecondaryErrors are non-fatal failures such as history updates
	SecondaryErrors []error
}

func (r *RunResult) record(outcome Outcome, err error) {
	r.Total++
	switch outcome {
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeDeduplicated:
		r.Deduplicated++
	case OutcomeUploaded:
		r.Uploaded++
	case OutcomeFailed:
		r.Failed++
		if stepErr, ok := err.(*StepError); ok {
			r.Errors = append(r.Errors, stepErr)
		}
	}
}

// ProgressType represents the type of progress update
type ProgressType string

const (
	ProgressTypeDiscovery ProgressType = "discovery"
	ProgressTypeAsset     ProgressType = "asset"
	ProgressTypeError     ProgressType = "error"
)

// Progress reports one asset leaving the pipeline, or discovery finishing
type Progress struct {
	Type    ProgressType
	AssetID string
	Outcome Outcome
	Step    Step
	Index   int
	Total   int
	Message string
}
