package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/upvotelabs/upvote-client/internal/metrics"
	"github.com/upvotelabs/upvote-client/internal/system"
	"github.com/upvotelabs/upvote-client/internal/track"
	"github.com/upvotelabs/upvote-client/pkg/logger"
)

// State is the scheduler state of a session.
type State string

const (
	// StateIdle means no timer is armed. A started session returns here
	// when every tracked item is terminal or after Halt/Stop.
	StateIdle State = "idle"
	// StateArmed means the timer is armed and waiting for the next tick.
	StateArmed State = "armed"
	// StateFiring means a poll cycle is in flight. The timer does not
	// re-arm until every fetch of the cycle has settled.
	StateFiring State = "firing"
)

// ErrCycleInFlight is returned by ForcePoll when a cycle is already running.
var ErrCycleInFlight = errors.New("poll cycle already in flight")

const (
	// DefaultOrderInterval is the poll interval for order list sessions.
	DefaultOrderInterval = 10 * time.Second
	// DefaultPaymentInterval is the poll interval for single-payment
	// sessions. Orders and payments are never polled by the same session,
	// so the two values do not need to align.
	DefaultPaymentInterval = 30 * time.Second

	defaultFetchTimeout = 8 * time.Second
)

// SessionConfig configures a poll session.
type SessionConfig struct {
	Kind         track.Kind
	Interval     time.Duration
	FetchTimeout time.Duration
	Fetcher      Fetcher
	Store        *track.SnapshotStore
	Handler      TransitionHandler
	// Limiter caps the aggregate fetch rate across cycles so a large
	// tracked set cannot hammer the server. Nil disables throttling.
	Limiter *rate.Limiter
	Log     *logger.Logger
}

// Session owns one polling loop bound to a tracked collection and a fixed
// interval. It implements system.Service; Start and Stop bracket the
// lifetime of the owning view.
type Session struct {
	id           string
	kind         track.Kind
	interval     time.Duration
	fetchTimeout time.Duration
	fetcher      Fetcher
	store        *track.SnapshotStore
	reconciler   *Reconciler
	limiter      *rate.Limiter
	log          *logger.Logger

	mu      sync.Mutex
	state   State
	epoch   uint64
	started bool
	parent  context.Context
	cancel  context.CancelFunc
	tracked map[string]struct{}
	wg      sync.WaitGroup
}

var _ system.Service = (*Session)(nil)

// NewSession builds an idle session. Items may be tracked before Start.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("session fetcher required")
	}
	if cfg.Kind != track.KindOrder && cfg.Kind != track.KindPayment {
		return nil, fmt.Errorf("unknown session kind %q", cfg.Kind)
	}

	interval := cfg.Interval
	if interval <= 0 {
		if cfg.Kind == track.KindPayment {
			interval = DefaultPaymentInterval
		} else {
			interval = DefaultOrderInterval
		}
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	store := cfg.Store
	if store == nil {
		store = track.NewSnapshotStore()
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault(string(cfg.Kind) + "-session")
	}
	sessionID := uuid.NewString()
	log = log.WithField("session_id", sessionID)

	return &Session{
		id:           sessionID,
		kind:         cfg.Kind,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		fetcher:      cfg.Fetcher,
		store:        store,
		reconciler:   NewReconciler(cfg.Kind, store, cfg.Handler, log),
		limiter:      cfg.Limiter,
		log:          log,
		state:        StateIdle,
		tracked:      make(map[string]struct{}),
	}, nil
}

// Name implements system.Service.
func (s *Session) Name() string { return string(s.kind) + "-session" }

// Kind returns the tracked collection kind.
func (s *Session) Kind() track.Kind { return s.kind }

// Store returns the session's snapshot store.
func (s *Session) Store() *track.SnapshotStore { return s.store }

// State returns the current scheduler state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins the session. The timer arms immediately when at least one
// tracked item is non-terminal; otherwise the session stays idle until
// Track supplies one.
func (s *Session) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	s.parent = ctx
	if len(s.nonTerminalLocked()) > 0 {
		s.armLocked()
	}
	s.log.Infof("%s session started (interval %s)", s.kind, s.interval)
	return nil
}

// Halt tears the session down without waiting for in-flight fetches. The
// armed timer is cleared synchronously; fetches already in flight settle in
// the background and their results are discarded.
func (s *Session) Halt() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.started = false
	s.state = StateIdle
	s.epoch++
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Stop halts the session and then waits, bounded by ctx, for the polling
// goroutine to exit. Used by lifecycle management at shutdown; interactive
// teardown should call Halt.
func (s *Session) Stop(ctx context.Context) error {
	s.Halt()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Infof("%s session stopped", s.kind)
	return nil
}

// Track adds item ids to the session. Tracking a non-terminal item re-arms
// an idle started session, e.g. a new order appearing in a list whose
// earlier orders all finished.
func (s *Session) Track(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if id == "" {
			continue
		}
		s.tracked[id] = struct{}{}
	}
	if s.started && s.state == StateIdle && len(s.nonTerminalLocked()) > 0 {
		s.armLocked()
	}
}

// Untrack removes an item from active tracking. Its snapshot is retained.
func (s *Session) Untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracked, id)
}

// TrackedIDs returns the ids currently tracked, terminal or not.
func (s *Session) TrackedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.tracked))
	for id := range s.tracked {
		ids = append(ids, id)
	}
	return ids
}

// ForcePoll runs one cycle immediately, outside the timer, reusing the same
// dedup path so a user-initiated refresh can never double-notify. Returns
// ErrCycleInFlight when a scheduled cycle is running.
func (s *Session) ForcePoll(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateFiring {
		s.mu.Unlock()
		return ErrCycleInFlight
	}
	wasArmed := s.state == StateArmed
	epoch := s.epoch
	s.state = StateFiring
	s.mu.Unlock()

	remaining := s.runCycle(ctx, epoch)

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		// Halted while the manual cycle ran; leave the session idle.
		return nil
	}
	switch {
	case remaining == 0:
		s.disarmLocked()
	case wasArmed:
		s.state = StateArmed
	case s.started:
		s.armLocked()
	default:
		s.state = StateIdle
	}
	return nil
}

// armLocked transitions Idle -> Armed and launches the polling loop.
// Callers hold s.mu.
func (s *Session) armLocked() {
	runCtx, cancel := context.WithCancel(s.parent)
	s.cancel = cancel
	s.state = StateArmed
	epoch := s.epoch

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(runCtx, epoch)
	}()
}

// disarmLocked transitions to Idle and clears the armed timer. Callers hold
// s.mu.
func (s *Session) disarmLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state = StateIdle
}

func (s *Session) loop(ctx context.Context, epoch uint64) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.beginCycle(epoch) {
				continue
			}
			remaining := s.runCycle(ctx, epoch)
			if !s.endCycle(epoch, remaining) {
				return
			}
		}
	}
}

// beginCycle transitions Armed -> Firing for the loop's epoch. A false
// return means the tick is skipped (halted, superseded, or a manual cycle
// holds the firing slot).
func (s *Session) beginCycle(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.state != StateArmed {
		return false
	}
	s.state = StateFiring
	return true
}

// endCycle re-arms the timer when non-terminal items remain and retires the
// loop otherwise.
func (s *Session) endCycle(epoch uint64, remaining int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return false
	}
	if remaining == 0 {
		s.log.Infof("no non-terminal %s items left; session going idle", s.kind)
		s.disarmLocked()
		return false
	}
	s.state = StateArmed
	return true
}

// runCycle fans out one fetch per tracked non-terminal item, waits for all
// of them to settle, and applies the results. Results of a halted session
// are discarded. Returns the number of non-terminal items still tracked.
func (s *Session) runCycle(ctx context.Context, epoch uint64) int {
	ids := s.pruneAndListNonTerminal()
	if len(ids) == 0 {
		return 0
	}

	start := time.Now()
	resultCh := make(chan FetchResult, len(ids))
	for _, id := range ids {
		go func(id string) {
			resultCh <- s.fetchOne(ctx, id)
		}(id)
	}

	// Fan-in: collection order is completion order, which is also the
	// order transitions are applied to the store.
	results := make([]FetchResult, 0, len(ids))
	for range ids {
		results = append(results, <-resultCh)
	}

	if ctx.Err() != nil || s.stale(epoch) {
		s.log.Debugf("discarding %d results from torn-down cycle", len(results))
		return 0
	}

	s.reconciler.Apply(ctx, results)
	metrics.RecordPollCycle(string(s.kind), time.Since(start))

	remaining := s.pruneAndListNonTerminal()
	metrics.SetTrackedItems(string(s.kind), len(remaining))
	return len(remaining)
}

func (s *Session) fetchOne(ctx context.Context, id string) FetchResult {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return FetchResult{ID: id, Err: fmt.Errorf("throttle wait: %w", err)}
		}
	}
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	result, err := s.fetcher.Fetch(fetchCtx, id)
	if err != nil {
		return FetchResult{ID: id, Err: err}
	}
	return FetchResult{ID: id, Result: result}
}

func (s *Session) stale(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch != epoch
}

// pruneAndListNonTerminal drops tracked ids whose snapshot went terminal and
// returns the ids still awaiting completion. Items without a snapshot yet
// count as non-terminal.
func (s *Session) pruneAndListNonTerminal() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonTerminalLocked()
}

func (s *Session) nonTerminalLocked() []string {
	ids := make([]string, 0, len(s.tracked))
	for id := range s.tracked {
		if item, ok := s.store.Get(id); ok && item.Terminal() {
			delete(s.tracked, id)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
