package metrics

import (
	"time"

	"github.com/hamed0406/fleethealth/internal/domain"
)

const (
	MeasurementNode  = "node_status"
	MeasurementProxy = "proxy_status"
)

// Point maps one outcome to its metric point.
func Point(o domain.ProbeOutcome, ts time.Time) domain.MetricPoint {
	p := domain.MetricPoint{
		Host:      o.Target.Address,
		Value:     o.MetricValue(),
		Timestamp: ts,
	}
	switch o.Target.Class {
	case domain.ClassProxy:
		p.Measurement = MeasurementProxy
		state := o.State
		if state == "" {
			state = domain.StateUnknown
		}
		p.Tags = map[string]string{"state": string(state)}
	default:
		p.Measurement = MeasurementNode
	}
	return p
}

// Points maps a cycle's outcomes in order, one point per outcome.
func Points(outcomes []domain.ProbeOutcome, ts time.Time) []domain.MetricPoint {
	out := make([]domain.MetricPoint, len(outcomes))
	for i, o := range outcomes {
		out[i] = Point(o, ts)
	}
	return out
}
