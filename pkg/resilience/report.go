package resilience

import "github.com/prometheus/client_golang/prometheus"

// Level is the gauge value exported for a state: 0 closed, 1 half-open,
// 2 open.
func (s State) Level() float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}

// ReportState returns an OnStateChange hook that sets gauge, labelled by
// dependency name, to the breaker's current Level. A nil gauge reports
// nothing.
func ReportState(gauge *prometheus.GaugeVec) func(name string, from, to State) {
	return func(name string, _, to State) {
		if gauge == nil {
			return
		}
		gauge.WithLabelValues(name).Set(to.Level())
	}
}
