// Package otelsink maps orchestrator events onto counter/histogram
// instruments via the telemetry.Metrics interface.
package otelsink

import (
	"strings"

	"github.com/featherlabs/feather/events"
	"github.com/featherlabs/feather/telemetry"
)

// Sink forwards events to a telemetry.Metrics implementation.
type Sink struct {
	metrics telemetry.Metrics
}

// New constructs a Sink backed by metrics.
func New(metrics telemetry.Metrics) *Sink {
	return &Sink{metrics: metrics}
}

// HandleEvent implements events.Subscriber.
func (s *Sink) HandleEvent(e events.Event) {
	name := "feather." + strings.ReplaceAll(string(e.Type), ".", "_")
	tags := []string{"session", e.SessionID}

	s.metrics.IncCounter(name+"_total", 1, tags...)

	if ms, ok := e.Fields["durationMs"]; ok {
		if v, ok := toFloat(ms); ok {
			s.metrics.RecordGauge(name+"_duration_ms", v, tags...)
		}
	}
	if cost, ok := e.Fields["costUSD"]; ok {
		if v, ok := toFloat(cost); ok {
			s.metrics.RecordGauge("feather_cost_usd", v, tags...)
		}
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
