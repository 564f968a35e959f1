package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rumor-ml/commons.systems/assetsync/internal/history"
)

// statsAccumulator counts outcomes during a run and writes them to the run
// history in batches
type statsAccumulator struct {
	discovered   int64
	uploaded     int64
	deduplicated int64
	skipped      int64
	failed       int64

	// Operations since the last flush
	pending int64

	mu            sync.Mutex
	lastFlush     time.Time
	batchInterval time.Duration
	batchSize     int64

	store   history.Store
	session *history.Session
}

func newStatsAccumulator(store history.Store, session *history.Session, batchInterval time.Duration, batchSize int64) *statsAccumulator {
	return &statsAccumulator{
		store:         store,
		session:       session,
		batchInterval: batchInterval,
		batchSize:     batchSize,
		lastFlush:     time.Now(),
	}
}

func (s *statsAccumulator) incrementDiscovered() {
	atomic.AddInt64(&s.discovered, 1)
	atomic.AddInt64(&s.pending, 1)
}

func (s *statsAccumulator) incrementOutcome(outcome Outcome) {
	switch outcome {
	case OutcomeUploaded:
		atomic.AddInt64(&s.uploaded, 1)
	case OutcomeDeduplicated:
		atomic.AddInt64(&s.deduplicated, 1)
	case OutcomeSkipped:
		atomic.AddInt64(&s.skipped, 1)
	case OutcomeFailed:
		atomic.AddInt64(&s.failed, 1)
	}
	atomic.AddInt64(&s.pending, 1)
}

// shouldFlush checks if stats should be flushed based on time or batch size
func (s *statsAccumulator) shouldFlush() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.lastFlush) >= s.batchInterval {
		return true
	}
	return atomic.LoadInt64(&s.pending) >= s.batchSize
}

// flush writes accumulated stats to the history store
func (s *statsAccumulator) flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.Stats = s.getSnapshot()
	if s.store != nil {
		if err := s.store.Update(ctx, s.session); err != nil {
			return err
		}
	}

	atomic.StoreInt64(&s.pending, 0)
	s.lastFlush = time.Now()
	return nil
}

// getSnapshot returns a snapshot of current stats without flushing
func (s *statsAccumulator) getSnapshot() history.Stats {
	return history.Stats{
		Discovered:   int(atomic.LoadInt64(&s.discovered)),
		Uploaded:     int(atomic.LoadInt64(&s.uploaded)),
		Deduplicated: int(atomic.LoadInt64(&s.deduplicated)),
		Skipped:      int(atomic.LoadInt64(&s.skipped)),
		Failed:       int(atomic.LoadInt64(&s.failed)),
	}
}
