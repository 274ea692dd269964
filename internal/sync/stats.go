package sync

import "time"

// PhaseStats counts what one per-collection phase did. Record-level errors
// are counted, logged, and skipped; they never abort the phase.
type PhaseStats struct {
	Pushed       int
	Pulled       int
	Inserted     int
	Applied      int
	SkippedOlder int
	SkippedNoop  int
	RecordErrors int
}

// CycleStats summarizes one full sync cycle.
type CycleStats struct {
	StartedAt time.Time
	Duration  time.Duration

	Phases map[string]*PhaseStats

	// RolledOver is true when a weekly rollover moved tasks this cycle.
	RolledOver bool
}

func newCycleStats(now time.Time) CycleStats {
	return CycleStats{
		StartedAt: now,
		Phases:    make(map[string]*PhaseStats),
	}
}

func (c *CycleStats) phase(name string) *PhaseStats {
	ps, ok := c.Phases[name]
	if !ok {
		ps = &PhaseStats{}
		c.Phases[name] = ps
	}
	return ps
}
