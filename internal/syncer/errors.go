package syncer

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrHashMismatch is returned when re-read content no longer matches the frozen hash
	ErrHashMismatch = errors.New("hash mismatch")

	// ErrUnknownAsset is returned when a corrupt record cannot be rebuilt
	// because discovery has not described the asset
	ErrUnknownAsset = errors.New("asset not described by discovery")
)

// Step names a stage of the per-asset pipeline
type Step string

const (
	StepLoad       Step = "load"
	StepFetch      Step = "fetch"
	StepNormalize  Step = "normalize"
	StepHash       Step = "hash"
	StepStage      Step = "stage"
	StepPersist    Step = "persist"
	StepDedupCheck Step = "dedup_check"
	StepEnrich     Step = "enrich"
	StepUpload     Step = "upload"
	StepCommit     Step = "commit"
)

// StepError represents a failure of one asset at one step. The record keeps
// whatever state was persisted before the failure.
type StepError struct {
	AssetID string
	Step    Step
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Step, e.AssetID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// DiscoveryError represents a store failure that aborts a discovery pass
type DiscoveryError struct {
	AssetID string
	Err     error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery aborted at %s: %v", e.AssetID, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}
