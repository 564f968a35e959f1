// Package syncer drives media assets from the device to the remote store.
// A run is two passes:
//  1. Discovery: every asset the source enumerates gets a sync record if it
//     has none. Existing records are never overwritten.
//  2. Upload: each record is advanced New -> Hashed -> Uploaded, persisting
//     every transition so an interrupted run resumes where it stopped.
//
// Content is identified by the hash of its normalized bytes, and the remote
// is asked before every upload, so each distinct content is uploaded once.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rumor-ml/commons.systems/assetsync/internal/enrich"
	"github.com/rumor-ml/commons.systems/assetsync/internal/hasher"
	"github.com/rumor-ml/commons.systems/assetsync/internal/history"
	"github.com/rumor-ml/commons.systems/assetsync/internal/record"
	"github.com/rumor-ml/commons.systems/assetsync/internal/remote"
	"github.com/rumor-ml/commons.systems/assetsync/internal/source"
	"github.com/rumor-ml/commons.systems/assetsync/internal/staging"
	"github.com/rumor-ml/commons.systems/assetsync/internal/store"
)

// Config configures orchestrator behavior
type Config struct {
	StatsBatchInterval time.Duration // Interval for batched history updates (default 500ms)
	StatsBatchSize     int           // Number of outcomes before forced history update (default 50)
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		StatsBatchInterval: 500 * time.Millisecond,
		StatsBatchSize:     50,
	}
}

// Validate validates the orchestrator configuration
func (c Config) Validate() error {
	if c.StatsBatchInterval <= 0 {
		return fmt.Errorf("StatsBatchInterval must be > 0, got %v", c.StatsBatchInterval)
	}
	if c.StatsBatchSize < 1 {
		return fmt.Errorf("StatsBatchSize must be >= 1, got %d", c.StatsBatchSize)
	}
	return nil
}

// Normalizer converts asset bytes into the format that is hashed and uploaded
type Normalizer interface {
	NeedsNormalization(contentType string) bool
	Normalize(data []byte) ([]byte, string, error)
}

// Enricher derives non-essential upload metadata
type Enricher interface {
	Enrich(ctx context.Context, in enrich.Input) (enrich.Result, error)
}

// Orchestrator runs discovery and upload passes over one source
type Orchestrator struct {
	source     source.Source
	store      store.Store
	index      remote.Index
	hasher     hasher.Hasher
	normalizer Normalizer
	enricher   Enricher
	staging    *staging.Area
	history    history.Store
	progress   chan<- Progress
	logger     *slog.Logger
	config     Config

	mu          sync.RWMutex
	descriptors map[string]source.Descriptor
}

// Option is a functional option for configuring an Orchestrator
type Option func(*Orchestrator)

// WithConfig sets the orchestrator configuration
func WithConfig(config Config) Option {
	return func(o *Orchestrator) {
		o.config = config
	}
}

// WithHasher replaces the SHA-256 hasher
func WithHasher(h hasher.Hasher) Option {
	return func(o *Orchestrator) {
		o.hasher = h
	}
}

// WithNormalizer replaces the default JPEG normalizer
func WithNormalizer(n Normalizer) Option {
	return func(o *Orchestrator) {
		o.normalizer = n
	}
}

// WithEnricher enables enrichment before upload
func WithEnricher(e Enricher) Option {
	return func(o *Orchestrator) {
		o.enricher = e
	}
}

// WithStaging keeps hashed bytes on disk until they are committed
func WithStaging(area *staging.Area) Option {
	return func(o *Orchestrator) {
		o.staging = area
	}
}

// WithHistory records each run as a session
func WithHistory(store history.Store) Option {
	return func(o *Orchestrator) {
		o.history = store
	}
}

// WithProgress sends a Progress event for every asset. Sends never block;
// events are dropped when the channel is full.
func WithProgress(ch chan<- Progress) Option {
	return func(o *Orchestrator) {
		o.progress = ch
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an orchestrator
func New(src source.Source, st store.Store, idx remote.Index, opts ...Option) (*Orchestrator, error) {
	if src == nil {
		return nil, fmt.Errorf("source is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if idx == nil {
		return nil, fmt.Errorf("remote index is required")
	}

	o := &Orchestrator{
		source:      src,
		store:       st,
		index:       idx,
		hasher:      hasher.SHA256{},
		normalizer:  enrich.NewNormalizer(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		config:      DefaultConfig(),
		descriptors: make(map[string]source.Descriptor),
	}

	for _, opt := range opts {
		opt(o)
	}

	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestrator configuration: %w", err)
	}

	return o, nil
}

// Run executes discovery followed by an upload pass under a fresh run id
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	return o.RunWithID(ctx, uuid.New().String())
}

// RunWithID executes discovery followed by an upload pass. The error is
// non-nil only when discovery itself failed; per-asset failures are
// reported in the result.
func (o *Orchestrator) RunWithID(ctx context.Context, runID string) (*RunResult, error) {
	startTime := time.Now()
	logger := o.logger.With("run_id", runID)

	session := &history.Session{
		ID:        runID,
		Status:    history.StatusRunning,
		StartedAt: startTime,
		Root:      sourceRoot(o.source),
	}
	result := &RunResult{RunID: runID, StartedAt: startTime}

	if o.history != nil {
		if err := o.history.Create(ctx, session); err != nil {
			result.SecondaryErrors = append(result.SecondaryErrors, fmt.Errorf("failed to create run session: %w", err))
		}
	}
	stats := newStatsAccumulator(o.history, session, o.config.StatsBatchInterval, int64(o.config.StatsBatchSize))

	logger.Info("sync run started")

	discovery, err := o.discover(ctx, logger, stats)
	if err != nil {
		logger.Error("discovery failed", "error", err)
		o.finishSession(ctx, session, stats, history.StatusFailed, err, result)
		result.Duration = time.Since(startTime)
		return result, err
	}
	result.Discovered = len(discovery.AssetIDs)
	result.DiscoveryErrors = discovery.Errors

	o.upload(ctx, logger, discovery.AssetIDs, stats, result)

	status := history.StatusCompleted
	if result.Cancelled {
		status = history.StatusCancelled
	}
	o.finishSession(ctx, session, stats, status, nil, result)
	result.Duration = time.Since(startTime)

	logger.Info("sync run finished",
		"total", result.Total,
		"uploaded", result.Uploaded,
		"deduplicated", result.Deduplicated,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"cancelled", result.Cancelled,
		"duration", result.Duration)
	return result, nil
}

func (o *Orchestrator) finishSession(ctx context.Context, session *history.Session, stats *statsAccumulator, status history.Status, runErr error, result *RunResult) {
	now := time.Now()
	session.CompletedAt = &now
	session.Status = status
	if runErr != nil {
		session.Error = runErr.Error()
	}
	// A stop request must not prevent the final history write.
	if err := stats.flush(context.WithoutCancel(ctx)); err != nil {
		result.SecondaryErrors = append(result.SecondaryErrors, fmt.Errorf("failed to update run session: %w", err))
	}
}

// Discover runs a discovery pass: every enumerated asset without a record
// gets a fresh one, and corrupt records are replaced.
func (o *Orchestrator) Discover(ctx context.Context) (*DiscoveryResult, error) {
	return o.discover(ctx, o.logger, newStatsAccumulator(nil, &history.Session{}, o.config.StatsBatchInterval, int64(o.config.StatsBatchSize)))
}

func (o *Orchestrator) discover(ctx context.Context, logger *slog.Logger, stats *statsAccumulator) (*DiscoveryResult, error) {
	result := &DiscoveryResult{}
	enumCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	descCh, errCh := o.source.Enumerate(enumCtx)
	// Writes run to completion even if a stop arrives mid-pass
	writeCtx := context.WithoutCancel(ctx)

	var abort error
	for descCh != nil || errCh != nil {
		select {
		case desc, ok := <-descCh:
			if !ok {
				descCh = nil
				continue
			}
			if abort != nil {
				continue
			}
			if err := o.discoverOne(writeCtx, logger, desc, result); err != nil {
				abort = &DiscoveryError{AssetID: desc.ID, Err: err}
				cancel()
				continue
			}
			stats.incrementDiscovered()
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			logger.Warn("enumeration error", "error", err)
			result.Errors = append(result.Errors, err)
		}
	}

	if abort != nil {
		return nil, abort
	}

	logger.Info("discovery finished",
		"assets", len(result.AssetIDs),
		"created", result.Created,
		"existing", result.Existing,
		"repaired", result.Repaired,
		"errors", len(result.Errors))
	o.sendProgress(Progress{
		Type:    ProgressTypeDiscovery,
		Total:   len(result.AssetIDs),
		Message: fmt.Sprintf("discovered %d assets", len(result.AssetIDs)),
	})
	return result, nil
}

func (o *Orchestrator) discoverOne(ctx context.Context, logger *slog.Logger, desc source.Descriptor, result *DiscoveryResult) error {
	o.mu.Lock()
	o.descriptors[desc.ID] = desc
	o.mu.Unlock()

	fresh := record.New(desc)
	created, err := o.store.CreateIfAbsent(ctx, fresh)
	if err != nil {
		return err
	}
	if created {
		result.Created++
		result.AssetIDs = append(result.AssetIDs, desc.ID)
		return nil
	}

	if _, err := o.store.Get(ctx, desc.ID); err != nil {
		if !errors.Is(err, record.ErrCorrupt) {
			return err
		}
		logger.Warn("replacing corrupt sync record", "asset_id", desc.ID, "error", err)
		if err := o.store.Put(ctx, fresh); err != nil {
			return err
		}
		result.Repaired++
	} else {
		result.Existing++
	}
	result.AssetIDs = append(result.AssetIDs, desc.ID)
	return nil
}

// Upload runs an upload pass over ids in order. Cancellation is checked
// between assets only; an asset already in flight completes every step.
func (o *Orchestrator) Upload(ctx context.Context, ids []string) *RunResult {
	result := &RunResult{StartedAt: time.Now()}
	stats := newStatsAccumulator(nil, &history.Session{}, o.config.StatsBatchInterval, int64(o.config.StatsBatchSize))
	o.upload(ctx, o.logger, ids, stats, result)
	result.Duration = time.Since(result.StartedAt)
	return result
}

func (o *Orchestrator) upload(ctx context.Context, logger *slog.Logger, ids []string, stats *statsAccumulator, result *RunResult) {
	run := newRunState()
	stepCtx := context.WithoutCancel(ctx)

	for i, id := range ids {
		if ctx.Err() != nil {
			logger.Info("sync stopped", "remaining", len(ids)-i)
			result.Cancelled = true
			return
		}

		outcome, err := o.process(stepCtx, logger, id, run)
		if err != nil {
			outcome = OutcomeFailed
			var stepErr *StepError
			step := Step("")
			if errors.As(err, &stepErr) {
				step = stepErr.Step
			}
			logger.Error("asset failed", "asset_id", id, "step", step, "error", err)
			o.sendProgress(Progress{Type: ProgressTypeError, AssetID: id, Outcome: outcome, Step: step, Index: i + 1, Total: len(ids), Message: err.Error()})
		} else {
			logger.Debug("asset done", "asset_id", id, "outcome", outcome)
			o.sendProgress(Progress{Type: ProgressTypeAsset, AssetID: id, Outcome: outcome, Index: i + 1, Total: len(ids)})
		}

		result.record(outcome, err)
		stats.incrementOutcome(outcome)
		if stats.shouldFlush() {
			if err := stats.flush(stepCtx); err != nil {
				result.SecondaryErrors = append(result.SecondaryErrors, fmt.Errorf("failed to update run session: %w", err))
			}
		}
	}
}

// ProcessAsset advances one asset as far as it can go. Outside a run the
// in-run dedup set is empty, so every hashed asset is checked remotely.
// Geocoding reads the GPS point from the asset's discovery descriptor, so an
// asset this orchestrator has not discovered is enriched without a location.
func (o *Orchestrator) ProcessAsset(ctx context.Context, id string) (Outcome, error) {
	outcome, err := o.process(context.WithoutCancel(ctx), o.logger, id, newRunState())
	if err != nil {
		return OutcomeFailed, err
	}
	return outcome, nil
}

func (o *Orchestrator) descriptor(id string) (source.Descriptor, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	desc, ok := o.descriptors[id]
	return desc, ok
}

// sendProgress safely sends a progress update to the channel
func (o *Orchestrator) sendProgress(p Progress) {
	if o.progress == nil {
		return
	}

	select {
	case o.progress <- p:
	default:
		o.logger.Debug("dropped progress event", "asset_id", p.AssetID, "type", p.Type)
	}
}

type rooted interface {
	Root() string
}

func sourceRoot(src source.Source) string {
	if r, ok := src.(rooted); ok {
		return r.Root()
	}
	return ""
}
