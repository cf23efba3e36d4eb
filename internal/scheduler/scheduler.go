package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/snagbot/internal/model"
	"github.com/dukerupert/snagbot/internal/ugphone"
)

// State is the lifecycle state of one account's attempt cycle.
type State string

const (
	StateIdle       State = "idle"
	StateAttempting State = "attempting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateStopped    State = "stopped"
)

// Attempter performs exactly one purchase attempt. *ugphone.Client satisfies
// this; tests substitute fakes.
type Attempter interface {
	Attempt(ctx context.Context, acc *model.Account) ugphone.Outcome
}

// Event describes one attempt outcome. Every completed attempt produces
// exactly one event, so an account's full history can be reconstructed from
// the event stream alone.
type Event struct {
	Account *model.Account
	Kind    ugphone.Kind
	State   State
	Reason  string
	OrderID string
	Attempt int
	At      time.Time
}

// Notifier consumes outcome events. Delivery is best-effort: implementations
// log their own failures and must not propagate errors back into the
// scheduler. Notify runs on the account's cycle goroutine while the cycle's
// emission lock is held, so implementations must not call back into the
// Scheduler.
type Notifier interface {
	Notify(ev Event)
}

// MultiNotifier fans one event out to several sinks.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ev Event) {
	for _, n := range m {
		n.Notify(ev)
	}
}

// EventRecorder persists attempt events. *store.EventStore satisfies this.
type EventRecorder interface {
	Append(loginID, kind, reason, orderID string, attempt int) error
}

// Config holds scheduler configuration.
type Config struct {
	// Interval is the cadence between consecutive attempts for one account.
	// Fixed, no backoff: the trial drop window is time-critical and the
	// remote service tolerates minute-cadence polling.
	Interval time.Duration
}

// CycleStatus is a read-only snapshot of one account's cycle.
type CycleStatus struct {
	LoginID     string    `json:"login_id"`
	ChatID      int64     `json:"chat_id"`
	State       State     `json:"state"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
}

// Scheduler runs one independent attempt cycle per registered account. The
// registry lock covers only map mutation; attempts and waits happen on
// per-account goroutines so no account can delay another.
type Scheduler struct {
	mu       sync.Mutex
	cycles   map[string]*cycle
	started  bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	client   Attempter
	notifier Notifier
	recorder EventRecorder
	interval time.Duration
	logger   *slog.Logger
}

type cycle struct {
	mu          sync.Mutex
	account     *model.Account
	state       State
	attempts    int
	lastAttempt time.Time
	removed     bool
	cancel      context.CancelFunc
	done        chan struct{}

	// emitMu serializes event delivery against Unregister. Sinks may do slow
	// network I/O in Notify, so delivery must not hold mu: State and Snapshot
	// read state under mu and must stay responsive throughout.
	emitMu sync.Mutex
}

// New creates a scheduler. The recorder may be nil to skip durable event
// logging.
func New(cfg Config, client Attempter, notifier Notifier, recorder EventRecorder, logger *slog.Logger) *Scheduler {
	interval := cfg.Interval
	if interval == 0 {
		interval = 60 * time.Second
	}
	return &Scheduler{
		cycles:   make(map[string]*cycle),
		client:   client,
		notifier: notifier,
		recorder: recorder,
		interval: interval,
		logger:   logger,
	}
}

// Start makes the scheduler ready to run cycles. Must be called before
// Register.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
}

// Register starts an attempt cycle for the account. The first attempt is
// scheduled immediately. Idempotent: registering an already-known login id is
// a no-op.
func (s *Scheduler) Register(acc *model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.ctx.Err() != nil {
		s.logger.Warn("register on stopped scheduler", "login_id", acc.LoginID)
		return
	}
	if _, ok := s.cycles[acc.LoginID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	c := &cycle{
		account: acc,
		state:   StateIdle,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.cycles[acc.LoginID] = c
	s.wg.Add(1)
	go s.run(ctx, c)

	s.logger.Info("account registered", "login_id", acc.LoginID)
}

// Unregister stops and discards the cycle for the given login id; unknown ids
// are a no-op. Once Unregister returns, no further events are emitted for the
// account — an in-flight attempt is allowed to finish but its result is
// discarded.
func (s *Scheduler) Unregister(loginID string) {
	s.mu.Lock()
	c, ok := s.cycles[loginID]
	if ok {
		delete(s.cycles, loginID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	// Taking emitMu first waits out any delivery already past its removed
	// check, so once this call returns no event can slip out.
	c.emitMu.Lock()
	c.mu.Lock()
	c.removed = true
	c.state = StateStopped
	c.mu.Unlock()
	c.emitMu.Unlock()
	c.cancel()

	s.logger.Info("account unregistered", "login_id", loginID)
}

// State returns the current cycle state for a login id. Never blocks on
// network activity.
func (s *Scheduler) State(loginID string) (State, bool) {
	s.mu.Lock()
	c, ok := s.cycles[loginID]
	s.mu.Unlock()
	if !ok {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, true
}

// Snapshot returns the status of every registered cycle.
func (s *Scheduler) Snapshot() []CycleStatus {
	s.mu.Lock()
	cycles := make([]*cycle, 0, len(s.cycles))
	for _, c := range s.cycles {
		cycles = append(cycles, c)
	}
	s.mu.Unlock()

	statuses := make([]CycleStatus, 0, len(cycles))
	for _, c := range cycles {
		c.mu.Lock()
		statuses = append(statuses, CycleStatus{
			LoginID:     c.account.LoginID,
			ChatID:      c.account.ChatID,
			State:       c.state,
			Attempts:    c.attempts,
			LastAttempt: c.lastAttempt,
		})
		c.mu.Unlock()
	}
	return statuses
}

// Stop cancels all cycles and waits for them to wind down, bounded by ctx.
// In-flight attempts finish or are abandoned; no events are emitted after
// Stop begins.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context, c *cycle) {
	defer s.wg.Done()
	defer close(c.done)

	// First attempt fires immediately; subsequent waits use the cadence
	// interval.
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			if c.state == StateIdle || c.state == StateAttempting {
				c.state = StateStopped
			}
			c.mu.Unlock()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		c.state = StateAttempting
		c.attempts++
		c.lastAttempt = time.Now()
		attempt := c.attempts
		acc := c.account
		c.mu.Unlock()

		outcome := s.client.Attempt(ctx, acc)

		if !s.conclude(ctx, c, acc, attempt, outcome) {
			return
		}
		if outcome.Kind == ugphone.KindSuccess || outcome.Kind == ugphone.KindAuthError {
			return
		}
		timer.Reset(s.interval)
	}
}

// conclude applies an attempt outcome to the cycle and emits its event. It
// returns false when the result must be discarded because the account was
// unregistered (or the scheduler stopped) while the attempt was in flight.
// The state transition happens under the cycle lock; delivery to the recorder
// and notifier happens under emitMu only, so a slow sink never blocks State
// or Snapshot. Unregister also takes emitMu, which preserves the
// no-events-after-Unregister guarantee.
func (s *Scheduler) conclude(ctx context.Context, c *cycle, acc *model.Account, attempt int, outcome ugphone.Outcome) bool {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.removed || ctx.Err() != nil {
		if c.state == StateAttempting {
			c.state = StateStopped
		}
		c.mu.Unlock()
		return false
	}

	switch outcome.Kind {
	case ugphone.KindSuccess:
		c.state = StateSucceeded
	case ugphone.KindAuthError:
		c.state = StateFailed
	default:
		// Transient: back to idle, the event carries the reason.
		c.state = StateIdle
	}

	ev := Event{
		Account: acc,
		Kind:    outcome.Kind,
		State:   c.state,
		Reason:  outcome.Detail,
		OrderID: outcome.OrderID,
		Attempt: attempt,
		At:      time.Now(),
	}
	c.mu.Unlock()

	s.logger.Info("attempt finished",
		"login_id", acc.LoginID,
		"outcome", string(outcome.Kind),
		"attempt", attempt,
		"reason", outcome.Detail,
	)

	if s.recorder != nil {
		if err := s.recorder.Append(acc.LoginID, string(ev.Kind), ev.Reason, ev.OrderID, ev.Attempt); err != nil {
			s.logger.Error("record attempt event", "login_id", acc.LoginID, "error", err)
		}
	}
	if s.notifier != nil {
		s.notifier.Notify(ev)
	}
	return true
}
