package scheduler

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid"
	"go.uber.org/zap"

	"github.com/hamed0406/fleethealth/internal/domain"
	"github.com/hamed0406/fleethealth/internal/probe"
	"github.com/hamed0406/fleethealth/internal/repo"
	"github.com/hamed0406/fleethealth/internal/snapshot"
)

var (
	// ErrEmptyTargets aborts a cycle whose source returned no targets.
	ErrEmptyTargets = errors.New("target list is empty")
	// ErrBusy is returned when a cycle for the class is already running.
	ErrBusy = errors.New("cycle already running")
	// ErrUnknownClass is returned by Trigger for a class with no loop.
	ErrUnknownClass = errors.New("no loop for class")
	// ErrStopped is returned by Trigger once the loop's Run has returned.
	ErrStopped = errors.New("loop stopped")
)

// State is where a class loop is in its cycle.
type State string

const (
	StateIdle            State = "idle"
	StateFetchingTargets State = "fetching_targets"
	StateProbing         State = "probing"
	StateAggregating     State = "aggregating"
	StatePublishing      State = "publishing"
)

// BatchRunner is satisfied by *prober.Prober.
type BatchRunner interface {
	RunBatch(ctx context.Context, targets domain.TargetList, set probe.Set) ([]domain.ProbeOutcome, error)
}

// CyclePublisher is satisfied by *metrics.Publisher. It must not block.
type CyclePublisher interface {
	PublishCycle(class domain.TargetClass, outcomes []domain.ProbeOutcome, ts time.Time)
}

// Loop runs the cycle for one target class on a fixed interval.
type Loop struct {
	Logger    *zap.Logger
	Class     domain.TargetClass
	Source    repo.TargetSource
	Set       probe.Set
	Prober    BatchRunner
	Store     repo.SnapshotStore
	Publisher CyclePublisher
	Interval  time.Duration

	// OnSwap, when set, sees each snapshot right after it becomes current
	// together with the one it replaced (nil on the first cycle).
	OnSwap func(prev, next *domain.Snapshot)

	running atomic.Bool
	state   atomic.Value // State

	// startMu orders wg.Add in start against the final wg.Wait in Run.
	startMu sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	base    atomic.Pointer[context.Context]

	cycles  atomic.Uint64
	aborted atomic.Uint64
	dropped atomic.Uint64

	mu        sync.Mutex
	lastID    string
	lastStart time.Time
	lastDur   time.Duration
	lastErr   string
}

func NewLoop(
	logger *zap.Logger,
	class domain.TargetClass,
	src repo.TargetSource,
	set probe.Set,
	prober BatchRunner,
	store repo.SnapshotStore,
	pub CyclePublisher,
	interval time.Duration,
) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	l := &Loop{
		Logger:    logger.With(zap.String("class", string(class))),
		Class:     class,
		Source:    src,
		Set:       set,
		Prober:    prober,
		Store:     store,
		Publisher: pub,
		Interval:  interval,
	}
	l.state.Store(StateIdle)
	return l
}

// Run starts the loop. It does an immediate pass, then one per tick. A tick
// that finds a cycle still running is dropped. Returns once ctx is cancelled
// and the in-flight cycle, if any, has finished.
func (l *Loop) Run(ctx context.Context) {
	t := time.NewTicker(l.Interval)
	defer t.Stop()
	defer l.stop()
	l.base.Store(&ctx)

	l.Logger.Info("loop_started", zap.Duration("interval", l.Interval))
	l.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			l.Logger.Info("loop_stopped")
			return
		case <-t.C:
			l.tick(ctx)
		}
	}
}

// stop refuses further background cycles and waits for the in-flight one.
func (l *Loop) stop() {
	l.startMu.Lock()
	l.stopped = true
	l.startMu.Unlock()
	l.wg.Wait()
}

func (l *Loop) tick(ctx context.Context) {
	if errors.Is(l.start(ctx), ErrBusy) {
		n := l.dropped.Add(1)
		l.Logger.Warn("tick_dropped", zap.Uint64("dropped_total", n))
	}
}

// start launches a cycle in the background unless one is running or the
// loop has stopped.
func (l *Loop) start(ctx context.Context) error {
	l.startMu.Lock()
	defer l.startMu.Unlock()
	if l.stopped {
		return ErrStopped
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.running.Store(false)
		_ = l.cycle(ctx)
	}()
	return nil
}

// Trigger starts an out-of-band cycle on the loop's own context and returns
// without waiting for it. ErrBusy when a cycle is already running, ErrStopped
// once Run is shutting down.
func (l *Loop) Trigger() error {
	ctx := context.Background()
	if p := l.base.Load(); p != nil {
		ctx = *p
		if ctx.Err() != nil {
			return ErrStopped
		}
	}
	if err := l.start(ctx); err != nil {
		return err
	}
	l.Logger.Info("cycle_triggered")
	return nil
}

// RunOnce runs a single cycle synchronously, bypassing the ticker. It still
// honours the overlap guard.
func (l *Loop) RunOnce(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		l.dropped.Add(1)
		return ErrBusy
	}
	defer l.running.Store(false)
	return l.cycle(ctx)
}

func (l *Loop) cycle(ctx context.Context) (err error) {
	id := newCycleID()
	start := time.Now()
	log := l.Logger.With(zap.String("cycle_id", id))

	l.mu.Lock()
	l.lastID, l.lastStart = id, start
	l.mu.Unlock()

	defer func() {
		l.setState(StateIdle)
		l.cycles.Add(1)
		l.mu.Lock()
		l.lastDur = time.Since(start)
		l.lastErr = ""
		if err != nil {
			l.lastErr = err.Error()
		}
		l.mu.Unlock()
	}()

	l.setState(StateFetchingTargets)
	targets, err := l.Source.Targets(ctx)
	if err == nil && len(targets) == 0 {
		err = ErrEmptyTargets
	}
	if err != nil {
		l.aborted.Add(1)
		log.Warn("cycle_aborted", zap.Error(err))
		l.Publisher.PublishCycle(l.Class, nil, start)
		return fmt.Errorf("fetch targets: %w", err)
	}

	l.setState(StateProbing)
	outcomes, err := l.Prober.RunBatch(ctx, targets, l.Set)
	if err != nil {
		// Cancelled or malformed: the previous snapshot stays current.
		l.aborted.Add(1)
		if ctx.Err() != nil {
			log.Info("cycle_cancelled", zap.Int("targets", len(targets)), zap.Error(err))
		} else {
			log.Error("cycle_aborted", zap.Int("targets", len(targets)), zap.Error(err))
		}
		l.Publisher.PublishCycle(l.Class, nil, start)
		return fmt.Errorf("probe: %w", err)
	}

	l.setState(StateAggregating)
	ts := time.Now().UTC()
	snap := snapshot.Build(l.Class, outcomes, ts)
	prev, _ := l.Store.Get(l.Class)
	l.Store.Swap(snap)
	if l.OnSwap != nil {
		l.OnSwap(prev, snap)
	}

	l.setState(StatePublishing)
	l.Publisher.PublishCycle(l.Class, snap.Outcomes, ts)

	log.Info("cycle_done",
		zap.Int("targets", len(targets)),
		zap.Int("healthy", len(snap.Healthy())),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (l *Loop) setState(s State) { l.state.Store(s) }

// ClassStatus is a point-in-time view of one loop.
type ClassStatus struct {
	Class        domain.TargetClass `json:"class"`
	State        State              `json:"state"`
	Interval     string             `json:"interval"`
	Cycles       uint64             `json:"cycles"`
	Aborted      uint64             `json:"aborted"`
	DroppedTicks uint64             `json:"dropped_ticks"`
	LastCycleID  string             `json:"last_cycle_id,omitempty"`
	LastStarted  *time.Time         `json:"last_started,omitempty"`
	LastDuration string             `json:"last_duration,omitempty"`
	LastError    string             `json:"last_error,omitempty"`
}

func (l *Loop) Status() ClassStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, _ := l.state.Load().(State)
	if state == "" {
		state = StateIdle
	}
	st := ClassStatus{
		Class:        l.Class,
		State:        state,
		Interval:     l.Interval.String(),
		Cycles:       l.cycles.Load(),
		Aborted:      l.aborted.Load(),
		DroppedTicks: l.dropped.Load(),
		LastCycleID:  l.lastID,
		LastError:    l.lastErr,
	}
	if !l.lastStart.IsZero() {
		t := l.lastStart.UTC()
		st.LastStarted = &t
		st.LastDuration = l.lastDur.String()
	}
	return st
}

// Scheduler owns one Loop per class.
type Scheduler struct {
	loops []*Loop
}

func New(loops ...*Loop) *Scheduler {
	return &Scheduler{loops: loops}
}

// Run blocks until ctx is cancelled and every loop has returned.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, l := range s.loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Run(ctx)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) Status() []ClassStatus {
	out := make([]ClassStatus, 0, len(s.loops))
	for _, l := range s.loops {
		out = append(out, l.Status())
	}
	return out
}

// Trigger starts an immediate cycle for class.
func (s *Scheduler) Trigger(class domain.TargetClass) error {
	for _, l := range s.loops {
		if l.Class == class {
			return l.Trigger()
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownClass, class)
}

// Interval returns the configured interval for class, or 0.
func (s *Scheduler) Interval(class domain.TargetClass) time.Duration {
	for _, l := range s.loops {
		if l.Class == class {
			return l.Interval
		}
	}
	return 0
}

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

func newCycleID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Now(), idEntropy).String()
}
