// Package controller owns the single active sync run and exposes the control
// surface: start, stop, status, permissions and a read-only view of records.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/rumor-ml/commons.systems/assetsync/internal/permission"
	"github.com/rumor-ml/commons.systems/assetsync/internal/record"
	"github.com/rumor-ml/commons.systems/assetsync/internal/staging"
	"github.com/rumor-ml/commons.systems/assetsync/internal/store"
	"github.com/rumor-ml/commons.systems/assetsync/internal/syncer"
)

var (
	// ErrConfirmationRequired is returned by Resync unless the caller confirms
	// that every sync record may be discarded
	ErrConfirmationRequired = errors.New("resync discards all sync records and requires confirmation")

	// ErrSyncInProgress is returned when an operation needs the run slot while a run holds it
	ErrSyncInProgress = errors.New("sync already in progress")
)

// Runner executes one sync run. *syncer.Orchestrator implements it.
type Runner interface {
	RunWithID(ctx context.Context, runID string) (*syncer.RunResult, error)
}

// Config configures controller behavior
type Config struct {
	// WatchDebounce is how long the watch trigger waits for the library to
	// settle before starting a run
	WatchDebounce time.Duration
}

// DefaultConfig returns the default controller configuration
func DefaultConfig() Config {
	return Config{WatchDebounce: 2 * time.Second}
}

// Validate validates the controller configuration
func (c Config) Validate() error {
	if c.WatchDebounce <= 0 {
		return fmt.Errorf("WatchDebounce must be > 0, got %v", c.WatchDebounce)
	}
	return nil
}

// RunSummary describes a finished run
type RunSummary struct {
	RunID        string        `json:"runId"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"duration"`
	Discovered   int           `json:"discovered"`
	Uploaded     int           `json:"uploaded"`
	Deduplicated int           `json:"deduplicated"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	Cancelled    bool          `json:"cancelled"`
}

// Status is the answer to CheckSyncStatus
type Status struct {
	Syncing   bool        `json:"syncing"`
	RunID     string      `json:"runId,omitempty"`
	StartedAt *time.Time  `json:"startedAt,omitempty"`
	LastRun   *RunSummary `json:"lastRun,omitempty"`
	LastError string      `json:"lastError,omitempty"`
}

// StartResult reports whether a start request launched a run
type StartResult struct {
	Started bool   `json:"started"`
	RunID   string `json:"runId,omitempty"`
}

// Option configures a Controller
type Option func(*Controller)

// WithStaging lets Resync discard staged content along with the records
func WithStaging(area *staging.Area) Option {
	return func(c *Controller) {
		c.staging = area
	}
}

// Controller allows at most one sync run at a time
type Controller struct {
	config      Config
	runner      Runner
	permissions permission.Checker
	store       store.Store
	staging     *staging.Area
	logger      *slog.Logger

	// sem has a single slot; holding it is owning the run
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu        sync.RWMutex
	runID     string
	startedAt time.Time
	cancel    context.CancelFunc
	lastRun   *RunSummary
	lastError string
}

// New creates a controller
func New(config Config, runner Runner, permissions permission.Checker, st store.Store, logger *slog.Logger, opts ...Option) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid controller configuration: %w", err)
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if permissions == nil {
		return nil, fmt.Errorf("permission checker is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Controller{
		config:      config,
		runner:      runner,
		permissions: permissions,
		store:       st,
		logger:      logger,
		sem:         semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// StartSync launches a discovery pass followed by an upload pass in the
// background. It does nothing when a run is already active. A permission
// failure is returned and also reported by CheckSyncStatus.
func (c *Controller) StartSync(ctx context.Context) (StartResult, error) {
	if !c.sem.TryAcquire(1) {
		runID := c.currentRunID()
		c.logger.Info("sync already running, start ignored", "run_id", runID)
		return StartResult{RunID: runID}, nil
	}

	if err := c.authorize(ctx); err != nil {
		c.sem.Release(1)
		return StartResult{}, err
	}

	return StartResult{Started: true, RunID: c.launch(ctx)}, nil
}

// StopSync asks the active run to stop before its next asset. It reports
// whether a run was active.
func (c *Controller) StopSync() bool {
	c.mu.RLock()
	cancel, runID := c.cancel, c.runID
	c.mu.RUnlock()

	if cancel == nil {
		return false
	}
	c.logger.Info("stop requested", "run_id", runID)
	cancel()
	return true
}

// CheckSyncStatus reports whether a run is active and how the last one ended
func (c *Controller) CheckSyncStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := Status{
		Syncing:   c.runID != "",
		RunID:     c.runID,
		LastError: c.lastError,
	}
	if status.Syncing {
		startedAt := c.startedAt
		status.StartedAt = &startedAt
	}
	if c.lastRun != nil {
		summary := *c.lastRun
		status.LastRun = &summary
	}
	return status
}

// CheckPermissions reports granted or denied without prompting
func (c *Controller) CheckPermissions(ctx context.Context) permission.Status {
	return c.permissions.Check(ctx)
}

// RequestPermissions asks the host for access
func (c *Controller) RequestPermissions(ctx context.Context) permission.Status {
	return c.permissions.Request(ctx)
}

// GetFiles returns a snapshot of every readable sync record. Corrupt entries
// are logged and left out; they are rebuilt by the next run.
func (c *Controller) GetFiles(ctx context.Context) ([]*record.Record, error) {
	records, err := c.store.List(ctx)
	if err == nil {
		return records, nil
	}

	var corrupt *store.CorruptEntryError
	if !errors.As(err, &corrupt) {
		return nil, err
	}
	c.logger.Warn("sync records unreadable", "error", err)
	if records == nil {
		records = []*record.Record{}
	}
	return records, nil
}

// Resync discards every sync record and staged file, then starts a fresh
// run. Upload progress is lost, though content the remote already holds is
// deduplicated again rather than re-uploaded.
func (c *Controller) Resync(ctx context.Context, confirm bool) (StartResult, error) {
	if !confirm {
		return StartResult{}, ErrConfirmationRequired
	}
	if !c.sem.TryAcquire(1) {
		return StartResult{RunID: c.currentRunID()}, ErrSyncInProgress
	}

	if err := c.authorize(ctx); err != nil {
		c.sem.Release(1)
		return StartResult{}, err
	}

	if err := c.store.Clear(ctx); err != nil {
		c.sem.Release(1)
		return StartResult{}, fmt.Errorf("failed to clear sync records: %w", err)
	}
	if c.staging != nil {
		if err := c.staging.Clear(); err != nil {
			c.logger.Warn("failed to clear staging area", "error", err)
		}
	}
	c.logger.Warn("sync records cleared for resync")

	return StartResult{Started: true, RunID: c.launch(ctx)}, nil
}

// Wait blocks until the active run, if any, has finished
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) authorize(ctx context.Context) error {
	status := c.permissions.Request(ctx)
	err := permission.Require(status)
	if err != nil {
		c.logger.Warn("sync not started", "permission", status)
		c.mu.Lock()
		c.lastError = err.Error()
		c.mu.Unlock()
	}
	return err
}

// launch starts a run in the background. The caller must hold the run slot;
// it is released when the run ends.
func (c *Controller) launch(ctx context.Context) string {
	runID := uuid.New().String()
	// The run outlives the request that started it; only StopSync cancels it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.runID = runID
	c.startedAt = time.Now()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.sem.Release(1)
		defer cancel()

		result, err := c.run(runCtx, runID)
		c.finish(runID, result, err)
	}()

	return runID
}

func (c *Controller) run(ctx context.Context, runID string) (result *syncer.RunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("sync run panicked", "run_id", runID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("sync run panicked: %v", r)
		}
	}()
	return c.runner.RunWithID(ctx, runID)
}

// finish records the outcome and clears the active run, so a stop request
// never carries over into the next run
func (c *Controller) finish(runID string, result *syncer.RunResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if result != nil {
		c.lastRun = &RunSummary{
			RunID:        runID,
			StartedAt:    result.StartedAt,
			Duration:     result.Duration,
			Discovered:   result.Discovered,
			Uploaded:     result.Uploaded,
			Deduplicated: result.Deduplicated,
			Skipped:      result.Skipped,
			Failed:       result.Failed,
			Cancelled:    result.Cancelled,
		}
	}
	if err != nil {
		c.lastError = err.Error()
		c.logger.Error("sync run failed", "run_id", runID, "error", err)
	} else {
		c.lastError = ""
	}

	c.runID = ""
	c.cancel = nil
	c.startedAt = time.Time{}
}

func (c *Controller) currentRunID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runID
}
