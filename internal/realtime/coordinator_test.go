package realtime

import (
	"context"
	"errors"
	"io"
	"log"
	gosync "sync"
	"testing"
	"time"

	"github.com/weekfold/weekfold/internal/model"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// memFeed hands out test-controlled event channels.
type memFeed struct {
	mu       gosync.Mutex
	channels map[model.Collection]chan Event
	filters  map[model.Collection]string
	failing  map[model.Collection]bool
}

func newMemFeed() *memFeed {
	return &memFeed{
		channels: make(map[model.Collection]chan Event),
		filters:  make(map[model.Collection]string),
		failing:  make(map[model.Collection]bool),
	}
}

func (f *memFeed) Subscribe(ctx context.Context, table model.Collection, filter string) (<-chan Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[table] {
		return nil, errors.New("subscribe rejected")
	}
	ch := make(chan Event, 16)
	f.channels[table] = ch
	f.filters[table] = filter
	return ch, nil
}

func (f *memFeed) emit(table model.Collection, ev Event) {
	f.mu.Lock()
	ch := f.channels[table]
	f.mu.Unlock()
	ch <- ev
}

type mergeCall struct {
	col model.Collection
	id  string
}

type memMerger struct {
	mu    gosync.Mutex
	calls []mergeCall
	err   error
}

func (m *memMerger) MergeRow(ctx context.Context, col model.Collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mergeCall{col: col, id: id})
	return m.err
}

func (m *memMerger) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// resyncCounter counts debounced resync firings.
type resyncCounter struct {
	mu    gosync.Mutex
	count int
	fired chan struct{}
}

func newResyncCounter() *resyncCounter {
	return &resyncCounter{fired: make(chan struct{}, 16)}
}

func (r *resyncCounter) fn() {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
	r.fired <- struct{}{}
}

func (r *resyncCounter) get() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *resyncCounter) waitOne(t *testing.T) {
	t.Helper()
	select {
	case <-r.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("resync never fired")
	}
}

func startCoordinator(t *testing.T, feed *memFeed, merger *memMerger, resync *resyncCounter, debounce time.Duration) *Coordinator {
	t.Helper()
	c := New(feed, merger, resync.fn, &Config{Debounce: debounce, Logger: testLogger()})
	if err := c.Start(context.Background(), "u1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(c.Stop)
	return c
}

func TestStartSubscribesWithUserFilter(t *testing.T) {
	feed := newMemFeed()
	startCoordinator(t, feed, &memMerger{}, newResyncCounter(), time.Hour)

	feed.mu.Lock()
	defer feed.mu.Unlock()
	if len(feed.channels) != len(DefaultChannels) {
		t.Fatalf("subscribed channels = %d, want %d", len(feed.channels), len(DefaultChannels))
	}
	for table, filter := range feed.filters {
		if filter != "user_id=eq.u1" {
			t.Errorf("channel %s filter = %q, want user row filter", table, filter)
		}
	}
}

func TestTargetedEventMergesRow(t *testing.T) {
	feed := newMemFeed()
	merger := &memMerger{}
	resync := newResyncCounter()
	startCoordinator(t, feed, merger, resync, 10*time.Millisecond)

	feed.emit(model.CollectionTasks, Event{Table: model.CollectionTasks, Action: ActionUpsert, RowID: "t1"})

	deadline := time.After(2 * time.Second)
	for merger.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("targeted merge never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}

	merger.mu.Lock()
	call := merger.calls[0]
	merger.mu.Unlock()
	if call.col != model.CollectionTasks || call.id != "t1" {
		t.Errorf("merge call = %+v, want tasks/t1", call)
	}
	if got := resync.get(); got != 0 {
		t.Errorf("resyncs = %d, want 0 for a targeted event", got)
	}
}

func TestCoarseEventsDebounceIntoOneResync(t *testing.T) {
	feed := newMemFeed()
	resync := newResyncCounter()
	c := startCoordinator(t, feed, &memMerger{}, resync, 50*time.Millisecond)

	// A burst of coarse hints inside one debounce window.
	for i := 0; i < 5; i++ {
		feed.emit(model.CollectionTasks, Event{Table: model.CollectionTasks, Action: ActionUpsert})
	}

	resync.waitOne(t)
	// Give a stray second firing a chance to surface.
	time.Sleep(100 * time.Millisecond)

	if got := resync.get(); got != 1 {
		t.Errorf("resyncs = %d, want 1 coalesced", got)
	}
	if got := c.DroppedHints(); got != 4 {
		t.Errorf("dropped hints = %d, want 4", got)
	}
}

func TestFailedTargetedMergeDegradesToResync(t *testing.T) {
	feed := newMemFeed()
	merger := &memMerger{err: errors.New("remote hiccup")}
	resync := newResyncCounter()
	startCoordinator(t, feed, merger, resync, 10*time.Millisecond)

	feed.emit(model.CollectionTasks, Event{Table: model.CollectionTasks, Action: ActionUpsert, RowID: "t1"})

	resync.waitOne(t)
	if got := resync.get(); got != 1 {
		t.Errorf("resyncs = %d, want 1 after merge failure", got)
	}
}

func TestUnknownActionIsCoarse(t *testing.T) {
	feed := newMemFeed()
	merger := &memMerger{}
	resync := newResyncCounter()
	startCoordinator(t, feed, merger, resync, 10*time.Millisecond)

	feed.emit(model.CollectionTasks, Event{Table: model.CollectionTasks, Action: ActionUnknown, RowID: "t1"})

	resync.waitOne(t)
	if got := merger.callCount(); got != 0 {
		t.Errorf("merges = %d, want 0 for an unknown action", got)
	}
}

func TestPartialSubscribeFailureKeepsOthers(t *testing.T) {
	feed := newMemFeed()
	feed.failing[model.CollectionLabels] = true

	c := New(feed, &memMerger{}, func() {}, &Config{Logger: testLogger()})
	if err := c.Start(context.Background(), "u1"); err != nil {
		t.Fatalf("Start with one failing channel: %v", err)
	}
	defer c.Stop()

	states := c.States()
	if states[model.CollectionLabels] != StateIdle {
		t.Errorf("labels state = %s, want idle after failed subscribe", states[model.CollectionLabels])
	}
	if states[model.CollectionTasks] == StateIdle {
		t.Error("tasks channel idle, want subscribed")
	}
}

func TestAllSubscribesFailingIsAnError(t *testing.T) {
	feed := newMemFeed()
	for _, table := range DefaultChannels {
		feed.failing[table] = true
	}

	c := New(feed, &memMerger{}, func() {}, &Config{Logger: testLogger()})
	if err := c.Start(context.Background(), "u1"); err == nil {
		t.Fatal("Start succeeded with zero subscribed channels")
	}
}

func TestCancelChannelLeavesOthersRunning(t *testing.T) {
	feed := newMemFeed()
	merger := &memMerger{}
	resync := newResyncCounter()
	c := startCoordinator(t, feed, merger, resync, 10*time.Millisecond)

	c.CancelChannel(model.CollectionLabels)

	// The tasks channel still consumes.
	feed.emit(model.CollectionTasks, Event{Table: model.CollectionTasks, Action: ActionUpsert, RowID: "t1"})
	deadline := time.After(2 * time.Second)
	for merger.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("tasks channel stopped consuming after unrelated cancel")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	feed := newMemFeed()
	c := New(feed, &memMerger{}, func() {}, &Config{Logger: testLogger()})

	// Stop before Start must not panic.
	c.Stop()

	if err := c.Start(context.Background(), "u1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop()
	c.Stop()

	for table, st := range c.States() {
		if st != StateIdle {
			t.Errorf("channel %s state = %s after Stop, want idle", table, st)
		}
	}
}

func TestStopDropsArmedDebounce(t *testing.T) {
	feed := newMemFeed()
	resync := newResyncCounter()
	c := startCoordinator(t, feed, &memMerger{}, resync, 200*time.Millisecond)

	feed.emit(model.CollectionTasks, Event{Table: model.CollectionTasks, Action: ActionUpsert})

	// Let the consumer arm the timer, then stop before it fires.
	time.Sleep(50 * time.Millisecond)
	c.Stop()
	time.Sleep(300 * time.Millisecond)

	if got := resync.get(); got != 0 {
		t.Errorf("resyncs = %d, want 0 after Stop cancelled the window", got)
	}
}

// slowFeed blocks every Subscribe until released, like a stalled dial.
type slowFeed struct {
	inner   *memFeed
	entered chan struct{}
	release chan struct{}
}

func (f *slowFeed) Subscribe(ctx context.Context, table model.Collection, filter string) (<-chan Event, error) {
	f.entered <- struct{}{}
	<-f.release
	return f.inner.Subscribe(ctx, table, filter)
}

func TestStartSubscribesWithoutHoldingLock(t *testing.T) {
	feed := &slowFeed{
		inner:   newMemFeed(),
		entered: make(chan struct{}, len(DefaultChannels)),
		release: make(chan struct{}),
	}
	c := New(feed, &memMerger{}, nil, &Config{Logger: testLogger()})

	started := make(chan error, 1)
	go func() { started <- c.Start(context.Background(), "u1") }()
	<-feed.entered

	// With a subscribe still in flight, status queries and coarse hints
	// must not block.
	done := make(chan struct{})
	go func() {
		c.States()
		c.DroppedHints()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("States blocked while a subscribe was in flight")
	}

	close(feed.release)
	if err := <-started; err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop()
}
