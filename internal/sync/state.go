package sync

import (
	"sync"
	"time"
)

// state is the mutex-guarded single-flight gate plus surfaced status.
//
// At most one cycle runs at a time. A Sync call arriving mid-cycle records a
// rerun request and the most recent view context; when the active cycle
// finishes, exactly one more starts. There is never more than one pending
// rerun: requests coalesce, they do not queue.
type state struct {
	mu             sync.Mutex
	syncing        bool
	rerunRequested bool
	pendingView    ViewContext

	lastErr  error
	syncedAt time.Time
	stats    CycleStats
}

// tryStart claims the gate. Returns false when a cycle is already active,
// in which case the call is recorded as a rerun request.
func (s *state) tryStart(view ViewContext) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.syncing {
		s.rerunRequested = true
		s.pendingView = view
		return false
	}
	s.syncing = true
	return true
}

// finish records the cycle outcome. When a rerun was requested it stays
// claimed and returns (true, pendingView); otherwise the gate is released.
func (s *state) finish(err error, now time.Time) (bool, ViewContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.lastErr = err
	} else {
		s.lastErr = nil
		s.syncedAt = now
	}

	if s.rerunRequested {
		s.rerunRequested = false
		view := s.pendingView
		s.pendingView = ViewContext{}
		return true, view
	}

	s.syncing = false
	return false, ViewContext{}
}

func (s *state) recordStats(cs CycleStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = cs
}

func (s *state) lastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *state) lastSyncAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncedAt
}

func (s *state) lastStats() CycleStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *state) isSyncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}
