package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/fleethealth/internal/domain"
)

type batch struct {
	class  domain.TargetClass
	points []domain.MetricPoint
}

// Publisher decouples cycles from the sink: Publish and PublishCycle only
// enqueue, a single worker started by Run does the writes. A full queue
// drops the batch. Sink errors are logged and never reach the caller.
type Publisher struct {
	Logger  *zap.Logger
	Sink    Sink
	Timeout time.Duration

	queue   chan batch
	dropped atomic.Uint64
	written atomic.Uint64
	failed  atomic.Uint64
}

func NewPublisher(logger *zap.Logger, sink Sink, queueSize int, timeout time.Duration) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Publisher{
		Logger:  logger,
		Sink:    sink,
		Timeout: timeout,
		queue:   make(chan batch, queueSize),
	}
}

// Publish enqueues the point for a single outcome.
func (p *Publisher) Publish(o domain.ProbeOutcome, ts time.Time) {
	p.enqueue(batch{class: o.Target.Class, points: []domain.MetricPoint{Point(o, ts)}})
}

// PublishCycle enqueues one point per outcome as a single write. A cycle with
// no outcomes (aborted, or an empty list) writes nothing.
func (p *Publisher) PublishCycle(class domain.TargetClass, outcomes []domain.ProbeOutcome, ts time.Time) {
	if len(outcomes) == 0 {
		p.Logger.Debug("metrics_cycle_empty", zap.String("class", string(class)))
		return
	}
	p.enqueue(batch{class: class, points: Points(outcomes, ts)})
}

func (p *Publisher) enqueue(b batch) {
	select {
	case p.queue <- b:
	default:
		n := p.dropped.Add(1)
		p.Logger.Warn("metrics_queue_full",
			zap.String("class", string(b.class)),
			zap.Int("points", len(b.points)),
			zap.Uint64("dropped_total", n),
		)
	}
}

// Run writes queued batches until ctx is cancelled, then drains whatever is
// already queued with a fresh timeout per write.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case b := <-p.queue:
					p.write(context.Background(), b)
				default:
					return
				}
			}
		case b := <-p.queue:
			p.write(ctx, b)
		}
	}
}

func (p *Publisher) write(parent context.Context, b batch) {
	if p.Sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, p.Timeout)
	defer cancel()

	if err := p.Sink.Write(ctx, b.points); err != nil {
		p.failed.Add(1)
		p.Logger.Warn("metrics_write_error",
			zap.String("class", string(b.class)),
			zap.Int("points", len(b.points)),
			zap.Error(err),
		)
		return
	}
	p.written.Add(1)
}

// Stats reports batch counters since start.
type Stats struct {
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

func (p *Publisher) Stats() Stats {
	return Stats{Written: p.written.Load(), Failed: p.failed.Load(), Dropped: p.dropped.Load()}
}
