package monitoring

import "time"

// Timer measures pass duration
type Timer struct {
	start     time.Time
	metrics   *Metrics
	direction string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, direction string) *Timer {
	return &Timer{
		start:     time.Now(),
		metrics:   metrics,
		direction: direction,
	}
}

// Stop stops the timer, records the pass and returns its duration
func (t *Timer) Stop(err error) time.Duration {
	duration := time.Since(t.start)
	result := "success"
	if err != nil {
		result = "error"
	}
	t.metrics.RecordPass(t.direction, result, duration)
	return duration
}
