package limiter

import "time"

// Option configures a MemoryLimiter at construction time.
type Option func(*MemoryLimiter)

// WithRecorder injects a metrics recorder. The default recorder discards
// everything.
func WithRecorder(r MetricsRecorder) Option {
	return func(m *MemoryLimiter) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithSweepInterval overrides how often the background sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(m *MemoryLimiter) {
		if d > 0 {
			m.sweepInterval = d
		}
	}
}

// WithClock overrides the time source. Tests use this to step through a
// window without sleeping.
func WithClock(now func() time.Time) Option {
	return func(m *MemoryLimiter) {
		if now != nil {
			m.now = now
		}
	}
}
