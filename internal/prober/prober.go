package prober

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/fleethealth/internal/domain"
	"github.com/hamed0406/fleethealth/internal/probe"
)

// ErrMalformedTargets rejects a target list before any probe runs. Probe
// failures are outcomes, not errors.
var ErrMalformedTargets = errors.New("malformed target list")

// DeadlineReason is the Detail of outcomes synthesised for targets that were
// still outstanding when the batch deadline elapsed.
const DeadlineReason = "batch deadline exceeded"

type Prober struct {
	Logger        *zap.Logger
	Concurrency   int
	ProbeTimeout  time.Duration
	BatchDeadline time.Duration
}

func New(logger *zap.Logger, concurrency int, probeTimeout, batchDeadline time.Duration) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Prober{
		Logger:        logger,
		Concurrency:   concurrency,
		ProbeTimeout:  probeTimeout,
		BatchDeadline: batchDeadline,
	}
}

// RunBatch probes every target with set and returns exactly one outcome per
// target, in input order. At most Concurrency probes are in flight. When the
// batch deadline elapses, outstanding probes are cancelled and their targets
// get set.Synthetic; RunBatch does not wait for them to unwind. If ctx itself
// ends first, no outcomes are returned, only ctx's error.
func (p *Prober) RunBatch(ctx context.Context, targets domain.TargetList, set probe.Set) ([]domain.ProbeOutcome, error) {
	if err := validate(targets, set.Class()); err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return []domain.ProbeOutcome{}, nil
	}

	bctx, cancel := ctx, context.CancelFunc(func() {})
	if p.BatchDeadline > 0 {
		bctx, cancel = context.WithTimeout(ctx, p.BatchDeadline)
	}
	defer cancel()

	var (
		mu     sync.Mutex
		sealed bool
		done   = make([]bool, len(targets))
		out    = make([]domain.ProbeOutcome, len(targets))
	)

	g := new(errgroup.Group)
	g.SetLimit(p.Concurrency)

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i, t := range targets {
			if bctx.Err() != nil {
				return
			}
			g.Go(func() error {
				if bctx.Err() != nil {
					return nil
				}
				pctx, pcancel := bctx, context.CancelFunc(func() {})
				if p.ProbeTimeout > 0 {
					pctx, pcancel = context.WithTimeout(bctx, p.ProbeTimeout)
				}
				defer pcancel()

				o := set.Run(pctx, t)

				mu.Lock()
				defer mu.Unlock()
				if !sealed {
					out[i] = o
					done[i] = true
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-finished:
	case <-bctx.Done():
	}

	mu.Lock()
	sealed = true
	if err := ctx.Err(); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("batch cancelled: %w", err)
	}
	missing := 0
	for i, t := range targets {
		if !done[i] {
			out[i] = set.Synthetic(t, DeadlineReason)
			missing++
		}
	}
	mu.Unlock()

	if missing > 0 {
		p.Logger.Warn("batch_deadline_exceeded",
			zap.String("class", string(set.Class())),
			zap.Int("targets", len(targets)),
			zap.Int("synthesised", missing),
			zap.Duration("deadline", p.BatchDeadline),
		)
	}
	return out, nil
}

func validate(targets domain.TargetList, class domain.TargetClass) error {
	for i, t := range targets {
		switch {
		case t.Address == "":
			return fmt.Errorf("%w: entry %d has an empty address", ErrMalformedTargets, i)
		case strings.ContainsAny(t.Address, " \t\r\n"):
			return fmt.Errorf("%w: entry %d address %q contains whitespace", ErrMalformedTargets, i, t.Address)
		case t.Class != class:
			return fmt.Errorf("%w: entry %d is a %s, set probes %s", ErrMalformedTargets, i, t.Class, class)
		}
	}
	return nil
}
