package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures the duration of an operation
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed seconds on a histogram
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed seconds on a histogram vector
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
