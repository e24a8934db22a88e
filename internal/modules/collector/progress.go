package collector

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ProgressSnapshot is an immutable view of a running (or last finished)
// collection. Handlers serve it as-is.
type ProgressSnapshot struct {
	RunID        string     `json:"runId"`
	Operation    string     `json:"operation"`
	Running      bool       `json:"running"`
	Total        int        `json:"total"`
	Current      int        `json:"current"`
	CurrentStock string     `json:"currentStock,omitempty"`
	FailedCount  int        `json:"failedCount"`
	FailedCodes  []string   `json:"failedCodes,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// ProgressTracker publishes collection progress. Writers (collector workers)
// serialise on a mutex; readers get a lock-free atomic snapshot which may be
// marginally stale.
type ProgressTracker struct {
	mu       sync.Mutex
	current  ProgressSnapshot
	snapshot atomic.Pointer[ProgressSnapshot]
}

// NewProgressTracker creates an idle tracker.
func NewProgressTracker() *ProgressTracker {
	t := &ProgressTracker{}
	t.publishLocked()
	return t
}

// Begin resets the tracker for a new run and returns the run ID.
func (t *ProgressTracker) Begin(operation string, total int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = ProgressSnapshot{
		RunID:     uuid.New().String(),
		Operation: operation,
		Running:   true,
		Total:     total,
		StartedAt: time.Now(),
	}
	t.publishLocked()
	return t.current.RunID
}

// Advance records one processed instrument.
func (t *ProgressTracker) Advance(code string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current.Current++
	t.current.CurrentStock = code
	t.publishLocked()
}

// RecordFailure marks one instrument as failed. The instrument still counts
// toward Current via Advance.
func (t *ProgressTracker) RecordFailure(code string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current.FailedCount++
	t.current.FailedCodes = append(t.current.FailedCodes, code)
	t.publishLocked()
}

// Complete finishes the run.
func (t *ProgressTracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.current.Running = false
	t.current.CompletedAt = &now
	t.current.CurrentStock = ""
	t.publishLocked()
}

// Snapshot returns the latest published view without locking.
func (t *ProgressTracker) Snapshot() ProgressSnapshot {
	return *t.snapshot.Load()
}

func (t *ProgressTracker) publishLocked() {
	snap := t.current
	snap.FailedCodes = append([]string(nil), t.current.FailedCodes...)
	t.snapshot.Store(&snap)
}
