// Package realtime turns remote change-feed notifications into sync work.
//
// The Coordinator subscribes to one change channel per collection. Each
// inbound event is handled one of two ways:
//
//   - Targeted (the event carries a row id): the single row is fetched from
//     the remote store and merged last-write-wins, bypassing a full sync.
//     A row that is gone upstream tombstones the local copy. Any error
//     degrades to a coarse hint.
//   - Coarse (no row id, or an unknown action): a debounced full resync is
//     requested. Hints arriving inside the debounce window are dropped and
//     counted, not re-armed: the first hint decides when the resync fires.
//
// Channel consumers are independently cancellable; stopping the coordinator
// is safe from any state.
package realtime

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/weekfold/weekfold/internal/model"
)

// DefaultDebounce is the coarse-hint debounce window.
const DefaultDebounce = 500 * time.Millisecond

// Action is the kind of change a feed event reports.
type Action string

const (
	ActionUpsert  Action = "upsert"
	ActionDelete  Action = "delete"
	ActionUnknown Action = "unknown"
)

// Event is one change notification from a remote feed channel.
type Event struct {
	Table  model.Collection
	Action Action

	// RowID is empty for coarse events (e.g. an ambiguous batch change).
	RowID string
}

// ChannelClient subscribes to remote change-feed channels. The returned
// channel closes when the subscription ends; cancelling ctx releases it.
type ChannelClient interface {
	Subscribe(ctx context.Context, table model.Collection, filter string) (<-chan Event, error)
}

// RowMerger applies a single remote row locally. Implemented by
// sync.RowMerger.
type RowMerger interface {
	MergeRow(ctx context.Context, col model.Collection, id string) error
}

// ChannelState tracks a channel's lifecycle for status reporting.
type ChannelState int

const (
	StateIdle ChannelState = iota
	StateSubscribed
	StateConsuming
)

// String returns a human-readable channel state.
func (s ChannelState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StateConsuming:
		return "consuming"
	default:
		return "unknown"
	}
}

// DefaultChannels are the collections watched when none are configured.
var DefaultChannels = []model.Collection{
	model.CollectionTasks,
	model.CollectionLabels,
	model.CollectionTemplates,
	model.CollectionSeries,
}

// Config holds coordinator configuration.
type Config struct {
	// Debounce is the coarse-hint window. Zero means DefaultDebounce.
	Debounce time.Duration

	// Channels overrides the watched collections.
	Channels []model.Collection

	// Logger for coordinator activity.
	Logger *log.Logger
}

// Coordinator consumes change channels and drives targeted merges or
// debounced resyncs.
type Coordinator struct {
	client   ChannelClient
	merger   RowMerger
	resync   func()
	debounce time.Duration
	channels []model.Collection
	logger   *log.Logger

	mu           sync.Mutex
	running      bool
	cancels      map[model.Collection]context.CancelFunc
	states       map[model.Collection]ChannelState
	timer        *time.Timer
	timerActive  bool
	dropped      int
	droppedTotal int

	wg sync.WaitGroup
}

// New creates a coordinator. resync is invoked (on a timer goroutine) each
// time a debounced coarse window expires; hosts typically point it at the
// orchestrator. If cfg is nil or partial, defaults apply.
func New(client ChannelClient, merger RowMerger, resync func(), cfg *Config) *Coordinator {
	if cfg == nil {
		cfg = &Config{}
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	channels := cfg.Channels
	if len(channels) == 0 {
		channels = DefaultChannels
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[realtime] ", log.LstdFlags)
	}

	states := make(map[model.Collection]ChannelState, len(channels))
	for _, ch := range channels {
		states[ch] = StateIdle
	}

	return &Coordinator{
		client:   client,
		merger:   merger,
		resync:   resync,
		debounce: debounce,
		channels: channels,
		logger:   logger,
		cancels:  make(map[model.Collection]context.CancelFunc),
		states:   states,
	}
}

// Start subscribes every configured channel for the user and begins
// consuming. A channel that fails to subscribe is logged and left idle; the
// others still run.
func (c *Coordinator) Start(ctx context.Context, userID string) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("coordinator already running")
	}
	c.running = true
	c.mu.Unlock()

	filter := "user_id=eq." + userID
	subscribed := 0
	for _, table := range c.channels {
		chCtx, cancel := context.WithCancel(ctx)

		// Subscribe can dial a remote feed; the lock is never held across it
		// so Stop, States, and coarse hints stay responsive.
		events, err := c.client.Subscribe(chCtx, table, filter)
		if err != nil {
			cancel()
			c.logger.Printf("WARNING: subscribe %s: %v", table, err)
			continue
		}

		c.mu.Lock()
		if !c.running {
			// Stopped while the subscribe was in flight.
			c.mu.Unlock()
			cancel()
			return fmt.Errorf("coordinator stopped")
		}
		c.cancels[table] = cancel
		c.states[table] = StateSubscribed
		c.wg.Add(1)
		c.mu.Unlock()
		subscribed++

		go c.consume(chCtx, table, events)
	}

	if subscribed == 0 {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return fmt.Errorf("no channels subscribed")
	}
	return nil
}

// consume drains one channel until cancellation or feed closure.
func (c *Coordinator) consume(ctx context.Context, table model.Collection, events <-chan Event) {
	defer c.wg.Done()

	c.setState(table, StateConsuming)
	defer c.setState(table, StateIdle)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.logger.Printf("channel %s closed", table)
				return
			}
			c.handle(ctx, table, ev)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, table model.Collection, ev Event) {
	if ev.RowID == "" || ev.Action == ActionUnknown {
		c.coarse(table)
		return
	}

	if err := c.merger.MergeRow(ctx, table, ev.RowID); err != nil {
		// Degrade to a coarse resync rather than losing the change.
		c.logger.Printf("WARNING: targeted merge %s/%s: %v", table, ev.RowID, err)
		c.coarse(table)
	}
}

// coarse requests a debounced resync. The first hint arms the timer; hints
// inside the window are dropped and counted.
func (c *Coordinator) coarse(table model.Collection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timerActive {
		c.dropped++
		return
	}
	c.timerActive = true
	c.timer = time.AfterFunc(c.debounce, c.fireResync)
}

func (c *Coordinator) fireResync() {
	c.mu.Lock()
	c.timerActive = false
	coalesced := c.dropped
	c.dropped = 0
	c.droppedTotal += coalesced
	c.mu.Unlock()

	if coalesced > 0 {
		c.logger.Printf("resync trigger (%d hints coalesced)", coalesced)
	}
	if c.resync != nil {
		c.resync()
	}
}

// CancelChannel stops one channel's consumer without affecting the others.
func (c *Coordinator) CancelChannel(table model.Collection) {
	c.mu.Lock()
	cancel, ok := c.cancels[table]
	delete(c.cancels, table)
	c.mu.Unlock()

	if ok {
		cancel()
	}
}

// Stop cancels all consumers, releases subscriptions, and drops any armed
// debounce timer. Safe to call from any state, including before Start and
// more than once.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	for table, cancel := range c.cancels {
		cancel()
		delete(c.cancels, table)
	}
	if c.timerActive && c.timer != nil {
		c.timer.Stop()
		c.timerActive = false
		c.dropped = 0
	}
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
}

// States returns a snapshot of every channel's lifecycle state.
func (c *Coordinator) States() map[model.Collection]ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[model.Collection]ChannelState, len(c.states))
	for k, v := range c.states {
		out[k] = v
	}
	return out
}

// DroppedHints returns the total number of coalesced coarse hints, for
// diagnostics.
func (c *Coordinator) DroppedHints() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.droppedTotal
}

func (c *Coordinator) setState(table model.Collection, st ChannelState) {
	c.mu.Lock()
	c.states[table] = st
	c.mu.Unlock()
}
