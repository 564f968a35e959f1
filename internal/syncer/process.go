package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rumor-ml/commons.systems/assetsync/internal/enrich"
	"github.com/rumor-ml/commons.systems/assetsync/internal/record"
	"github.com/rumor-ml/commons.systems/assetsync/internal/remote"
	"github.com/rumor-ml/commons.systems/assetsync/internal/staging"
)

// runState is shared by every asset in one upload pass
type runState struct {
	// committed holds hashes confirmed on the remote during this pass
	committed map[string]bool
}

func newRunState() *runState {
	return &runState{committed: make(map[string]bool)}
}

// assetJob carries one asset through the pipeline
type assetJob struct {
	rec    *record.Record
	logger *slog.Logger
	// data holds the normalized bytes once they are in hand
	data []byte
}

func (o *Orchestrator) process(ctx context.Context, logger *slog.Logger, id string, run *runState) (Outcome, error) {
	job := &assetJob{logger: logger.With("asset_id", id)}

	rec, err := o.load(ctx, job.logger, id)
	if err != nil {
		return OutcomeFailed, &StepError{AssetID: id, Step: StepLoad, Err: err}
	}
	job.rec = rec

	if rec.State() == record.StateUploaded {
		return OutcomeSkipped, nil
	}

	if rec.State() == record.StateNew {
		if err := o.hash(ctx, job); err != nil {
			return OutcomeFailed, err
		}
	}

	duplicate, err := o.dedupCheck(ctx, job, run)
	if err != nil {
		return OutcomeFailed, err
	}
	if duplicate {
		if err := o.commit(ctx, job, run); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeDeduplicated, nil
	}

	if job.data == nil {
		if err := o.restore(ctx, job); err != nil {
			return OutcomeFailed, err
		}
	}

	upload, err := o.enrich(ctx, job)
	if err != nil {
		return OutcomeFailed, err
	}

	if err := o.index.Store(ctx, upload); err != nil {
		return OutcomeFailed, &StepError{AssetID: id, Step: StepUpload, Err: err}
	}

	if err := o.commit(ctx, job, run); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeUploaded, nil
}

// load reads the record, rebuilding it from its discovery descriptor when
// the stored bytes are corrupt
func (o *Orchestrator) load(ctx context.Context, logger *slog.Logger, id string) (*record.Record, error) {
	rec, err := o.store.Get(ctx, id)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, record.ErrCorrupt) {
		return nil, err
	}

	desc, ok := o.descriptor(id)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownAsset, err)
	}
	logger.Warn("rebuilding corrupt sync record", "error", err)
	rec = record.New(desc)
	if err := o.store.Put(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// read fetches the asset and applies normalization. It reports whether the
// bytes were normalized and the resulting content type.
func (o *Orchestrator) read(ctx context.Context, rec *record.Record) ([]byte, string, bool, *StepError) {
	data, err := o.source.Fetch(ctx, rec.AssetID)
	if err != nil {
		return nil, "", false, &StepError{AssetID: rec.AssetID, Step: StepFetch, Err: err}
	}

	// Once normalized, the stored content type is the output type, so the
	// flag decides whether fetched bytes need converting again.
	if !rec.Normalized && !o.normalizer.NeedsNormalization(rec.ContentType) {
		return data, rec.ContentType, false, nil
	}

	normalized, contentType, err := o.normalizer.Normalize(data)
	if err != nil {
		return nil, "", false, &StepError{AssetID: rec.AssetID, Step: StepNormalize, Err: err}
	}
	return normalized, contentType, true, nil
}

// hash advances a New record to Hashed
func (o *Orchestrator) hash(ctx context.Context, job *assetJob) error {
	rec := job.rec
	data, contentType, normalized, stepErr := o.read(ctx, rec)
	if stepErr != nil {
		return stepErr
	}

	if normalized && !rec.Normalized {
		next := rec.Clone()
		if err := next.SetNormalizedType(contentType); err != nil {
			return &StepError{AssetID: rec.AssetID, Step: StepNormalize, Err: err}
		}
		if err := o.store.Put(ctx, next); err != nil {
			return &StepError{AssetID: rec.AssetID, Step: StepPersist, Err: err}
		}
		job.rec, rec = next, next
	}

	sum, err := o.hasher.Sum(data)
	if err != nil {
		return &StepError{AssetID: rec.AssetID, Step: StepHash, Err: err}
	}

	if o.staging != nil {
		if err := o.staging.Put(sum, data); err != nil {
			return &StepError{AssetID: rec.AssetID, Step: StepStage, Err: err}
		}
	}

	next := rec.Clone()
	if err := next.SetContentHash(sum); err != nil {
		return &StepError{AssetID: rec.AssetID, Step: StepHash, Err: err}
	}
	if err := o.store.Put(ctx, next); err != nil {
		return &StepError{AssetID: rec.AssetID, Step: StepPersist, Err: err}
	}

	job.rec = next
	job.data = data
	job.logger.Debug("asset hashed", "hash", sum, "content_type", next.ContentType)
	return nil
}

// dedupCheck reports whether the remote already holds the record's hash
func (o *Orchestrator) dedupCheck(ctx context.Context, job *assetJob, run *runState) (bool, error) {
	hash := job.rec.ContentHash
	if run.committed[hash] {
		return true, nil
	}

	exists, err := o.index.Exists(ctx, hash)
	if err != nil {
		return false, &StepError{AssetID: job.rec.AssetID, Step: StepDedupCheck, Err: err}
	}
	return exists, nil
}

// restore recovers the normalized bytes of a Hashed record: from staging
// when possible, otherwise by fetching again and verifying the hash
func (o *Orchestrator) restore(ctx context.Context, job *assetJob) error {
	rec := job.rec

	if o.staging != nil {
		data, err := o.staging.Get(rec.ContentHash)
		if err == nil {
			job.data = data
			return nil
		}
		if !errors.Is(err, staging.ErrMissing) {
			job.logger.Warn("staged content unreadable", "error", err)
		}
	}

	data, _, _, stepErr := o.read(ctx, rec)
	if stepErr != nil {
		return stepErr
	}

	sum, err := o.hasher.Sum(data)
	if err != nil {
		return &StepError{AssetID: rec.AssetID, Step: StepHash, Err: err}
	}
	if sum != rec.ContentHash {
		return &StepError{
			AssetID: rec.AssetID,
			Step:    StepHash,
			Err:     fmt.Errorf("%w: recorded %s, content now %s", ErrHashMismatch, rec.ContentHash, sum),
		}
	}

	job.data = data
	return nil
}

// enrich derives upload metadata. Only persisting a new location can fail
// the asset; enrichment errors themselves are logged.
func (o *Orchestrator) enrich(ctx context.Context, job *assetJob) (remote.Upload, error) {
	rec := job.rec
	var res enrich.Result

	if o.enricher != nil {
		in := enrich.Input{Data: job.data, ContentType: rec.ContentType}
		if rec.Location == "" {
			if desc, ok := o.descriptor(rec.AssetID); ok {
				in.Point = desc.Location
			}
		}

		var err error
		res, err = o.enricher.Enrich(ctx, in)
		if err != nil {
			job.logger.Warn("enrichment incomplete", "step", StepEnrich, "error", err)
		}

		next := rec.Clone()
		if next.SetLocation(res.Location) {
			if err := o.store.Put(ctx, next); err != nil {
				return remote.Upload{}, &StepError{AssetID: rec.AssetID, Step: StepPersist, Err: err}
			}
			job.rec, rec = next, next
		}
	}

	return remote.Upload{
		ContentType: rec.ContentType,
		Data:        job.data,
		Thumbnail:   res.Thumbnail,
		Metadata: remote.Metadata{
			Name:       rec.OriginalName,
			Width:      rec.Width,
			Height:     rec.Height,
			Hash:       rec.ContentHash,
			Location:   rec.Location,
			CreatedAt:  rec.CreatedAt,
			Properties: res.Properties,
		},
	}, nil
}

// commit marks the record uploaded and releases its staged bytes
func (o *Orchestrator) commit(ctx context.Context, job *assetJob, run *runState) error {
	next := job.rec.Clone()
	if err := next.MarkUploaded(); err != nil {
		return &StepError{AssetID: next.AssetID, Step: StepCommit, Err: err}
	}
	if err := o.store.Put(ctx, next); err != nil {
		return &StepError{AssetID: next.AssetID, Step: StepCommit, Err: err}
	}
	job.rec = next
	run.committed[next.ContentHash] = true

	if o.staging != nil {
		if err := o.staging.Delete(next.ContentHash); err != nil {
			job.logger.Warn("failed to release staged content", "error", err)
		}
	}
	return nil
}
