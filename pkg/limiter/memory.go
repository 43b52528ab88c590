package limiter

import (
	"sync"
	"time"
)

const (
	DefaultMaxRequests   = 20
	DefaultWindow        = time.Minute
	DefaultSweepInterval = time.Minute
)

type window struct {
	count     int
	resetTime time.Time
}

// MemoryLimiter is an in-process fixed-window rate limiter.
//
// It is safe for concurrent use by multiple goroutines, but its state is local
// to the process and is not shared across replicas.
type MemoryLimiter struct {
	mu      sync.Mutex
	clients map[string]*window

	maxRequests   int
	windowLength  time.Duration
	sweepInterval time.Duration

	now      func() time.Time
	recorder MetricsRecorder

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryLimiter constructs a MemoryLimiter admitting maxRequests per
// windowLength for each client identifier. Non-positive arguments fall back to
// the defaults (20 requests per minute).
//
// A background sweep removes expired entries so abandoned identifiers do not
// accumulate; call Close to stop it when the limiter is no longer needed.
func NewMemoryLimiter(maxRequests int, windowLength time.Duration, opts ...Option) *MemoryLimiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if windowLength <= 0 {
		windowLength = DefaultWindow
	}

	m := &MemoryLimiter{
		clients:       make(map[string]*window),
		maxRequests:   maxRequests,
		windowLength:  windowLength,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		recorder:      &NoOpMetricsRecorder{},
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	go m.sweepLoop()

	return m
}

// Allow checks whether a request for the given client identifier should be
// admitted within the current window. The first call for an unseen (or
// expired) identifier opens a fresh window; subsequent calls count against it
// until it fills or expires.
func (m *MemoryLimiter) Allow(clientID string) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	// One clock reading per call: the expiry check and the new resetTime
	// must not disagree.
	now := m.now()

	w, exists := m.clients[clientID]
	if !exists || !w.resetTime.After(now) {
		reset := now.Add(m.windowLength)
		m.clients[clientID] = &window{count: 1, resetTime: reset}
		m.recorder.Add("ratelimit.allowed", 1, nil)
		return Decision{
			Allow:     true,
			Remaining: m.maxRequests - 1,
			ResetTime: reset,
		}
	}

	if w.count < m.maxRequests {
		w.count++
		m.recorder.Add("ratelimit.allowed", 1, nil)
		return Decision{
			Allow:     true,
			Remaining: m.maxRequests - w.count,
			ResetTime: w.resetTime,
		}
	}

	m.recorder.Add("ratelimit.denied", 1, nil)
	return Decision{
		Allow:      false,
		Remaining:  0,
		RetryAfter: w.resetTime.Sub(now),
		ResetTime:  w.resetTime,
	}
}

// Len reports how many window entries are currently held, expired or not.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// Close stops the background sweep goroutine. Admission checks remain valid
// after Close; lazy expiry in Allow does not depend on the sweep.
func (m *MemoryLimiter) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}

func (m *MemoryLimiter) sweepLoop() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep(m.now())
		case <-m.done:
			return
		}
	}
}

// sweep deletes entries whose window ended at or before now. It snapshots
// candidates first and re-checks each under a short lock hold, so a large map
// never pins the lock for the whole scan.
func (m *MemoryLimiter) sweep(now time.Time) int {
	m.mu.Lock()
	var expired []string
	for clientID, w := range m.clients {
		if !w.resetTime.After(now) {
			expired = append(expired, clientID)
		}
	}
	m.mu.Unlock()

	removed := 0
	for _, clientID := range expired {
		m.mu.Lock()
		if w, ok := m.clients[clientID]; ok && !w.resetTime.After(now) {
			delete(m.clients, clientID)
			removed++
		}
		m.mu.Unlock()
	}

	if removed > 0 {
		m.recorder.Add("ratelimit.swept", float64(removed), nil)
	}
	return removed
}
