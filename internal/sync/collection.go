package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/weekfold/weekfold/internal/model"
)

// checkpointOverlap is subtracted from the stored watermark on every delta
// pull. The deliberate 120s backward overlap tolerates server clock skew and
// at-least-once redelivery; the LWW merge makes re-applied rows harmless.
const checkpointOverlap = 120 * time.Second

// collectionSyncer runs the per-entity sync algorithm (push dirty, pull
// delta, LWW merge, advance checkpoint) for one collection. Tasks, labels,
// and the other syncable collections are structurally identical, so the
// algorithm is written once over the Record interface.
type collectionSyncer[T model.Record] struct {
	name   model.Collection
	local  LocalStore[T]
	remote RemoteStore[T]
	cps    CheckpointStore

	// equivalent reports observable equality so redundant writes (and the
	// change notifications they would fire) are skipped. Nil disables the
	// check.
	equivalent func(a, b T) bool

	// pushEnabled is false for pull-only collections (recurrence
	// definitions, templates, series).
	pushEnabled bool

	// narrowed is true for collections the view context applies to.
	narrowed bool

	// onApplied, when set, runs after a pulled record replaces an existing
	// local one. Used to cascade template edits.
	onApplied func(ctx context.Context, old, new T)

	logger *log.Logger
}

// run executes one push+pull round. snap is the cycle's checkpoint snapshot
// and is updated in place when the watermark advances.
func (c *collectionSyncer[T]) run(ctx context.Context, userID string, view ViewContext, snap model.CheckpointSnapshot, stats *PhaseStats) error {
	if c.pushEnabled {
		if err := c.push(ctx, userID, stats); err != nil {
			return err
		}
	}
	return c.pull(ctx, userID, view, snap, stats)
}

// push sends every dirty, non-deleted record to the remote store and marks
// each clean using the server-returned representation.
func (c *collectionSyncer[T]) push(ctx context.Context, userID string, stats *PhaseStats) error {
	dirty, err := c.local.NeedingSync(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: fetch dirty records: %w", c.name, err)
	}
	if len(dirty) == 0 {
		return nil
	}

	serverRecs, err := c.remote.Push(ctx, dirty)
	if err != nil {
		return fmt.Errorf("%s: push %d records: %w", c.name, len(dirty), err)
	}
	stats.Pushed += len(dirty)

	// The server is now the source of truth for computed fields; write its
	// representation back and clear the dirty flags. A single bad row is
	// logged and skipped, not fatal.
	for _, rec := range serverRecs {
		if err := c.local.ApplyServer(ctx, rec); err != nil {
			c.logger.Printf("WARNING: %s: failed to store server copy of %s: %v", c.name, rec.RecordID(), err)
			stats.RecordErrors++
		}
	}
	return nil
}

// pull fetches the remote delta and merges it last-write-wins.
func (c *collectionSyncer[T]) pull(ctx context.Context, userID string, view ViewContext, snap model.CheckpointSnapshot, stats *PhaseStats) error {
	count, err := c.local.Count(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: count local records: %w", c.name, err)
	}
	cold := count == 0

	if !c.narrowed {
		view = ViewContext{}
	}

	// Cold store: pull everything. Otherwise pull the delta with the
	// backward overlap applied.
	var since time.Time
	if !cold {
		if cp, ok := snap[c.name]; ok {
			since = cp.Add(-checkpointOverlap)
		}
	}

	pulled, err := c.remote.PullSince(ctx, userID, since, view)
	if err != nil {
		return fmt.Errorf("%s: pull since %v: %w", c.name, since, err)
	}

	// A cold store that gets zero rows from a filtered pull falls back to
	// an unconditional full pull: the filter may have wrongly excluded
	// everything.
	if len(pulled) == 0 && cold && !view.Empty() {
		c.logger.Printf("%s: cold store and empty filtered pull, retrying unfiltered", c.name)
		pulled, err = c.remote.PullSince(ctx, userID, time.Time{}, ViewContext{})
		if err != nil {
			return fmt.Errorf("%s: fallback full pull: %w", c.name, err)
		}
	}

	stats.Pulled += len(pulled)

	var maxUpdated time.Time
	for _, rec := range pulled {
		if u := rec.RecordUpdatedAt(); u.After(maxUpdated) {
			maxUpdated = u
		}
		c.mergeOne(ctx, rec, stats)
	}

	// Advance the checkpoint to the newest UpdatedAt observed among pulled
	// records. Never to "now": a server-sourced watermark cannot skip rows
	// written concurrently by another device.
	if !maxUpdated.IsZero() && maxUpdated.After(snap[c.name]) {
		if err := c.cps.UpdateCheckpoint(ctx, userID, c.name, maxUpdated); err != nil {
			return fmt.Errorf("%s: update checkpoint: %w", c.name, err)
		}
		snap[c.name] = maxUpdated
	}
	return nil
}

// mergeOne applies one pulled record last-write-wins. Failures are counted
// and logged; one bad row cannot abort the batch.
func (c *collectionSyncer[T]) mergeOne(ctx context.Context, rec T, stats *PhaseStats) {
	existing, found, err := c.local.Get(ctx, rec.RecordID())
	if err != nil {
		c.logger.Printf("WARNING: %s: failed to read local %s: %v", c.name, rec.RecordID(), err)
		stats.RecordErrors++
		return
	}

	if !found {
		if err := c.local.ApplyServer(ctx, rec); err != nil {
			c.logger.Printf("WARNING: %s: failed to insert %s: %v", c.name, rec.RecordID(), err)
			stats.RecordErrors++
			return
		}
		stats.Inserted++
		return
	}

	// Strictly greater wins; an equal timestamp keeps the local version.
	if !rec.RecordUpdatedAt().After(existing.RecordUpdatedAt()) {
		stats.SkippedOlder++
		return
	}

	if c.equivalent != nil && c.equivalent(existing, rec) {
		stats.SkippedNoop++
		return
	}

	if err := c.local.ApplyServer(ctx, rec); err != nil {
		c.logger.Printf("WARNING: %s: failed to apply %s: %v", c.name, rec.RecordID(), err)
		stats.RecordErrors++
		return
	}
	stats.Applied++

	if c.onApplied != nil {
		c.onApplied(ctx, existing, rec)
	}
}
