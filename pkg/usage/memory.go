package usage

import (
	"context"
	"sync"
)

// MemoryTracker is an in-process Tracker backed by a Go map. This is useful
// for unit tests, local development, and deployments without Redis. Its state
// is local to the process and is lost on restart.
type MemoryTracker struct {
	mu        sync.Mutex
	summaries map[string]*Summary
	records   []Record
	maxEvents int
}

// NewMemoryTracker constructs a MemoryTracker with empty state.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		summaries: make(map[string]*Summary),
		maxEvents: defaultMaxEvents,
	}
}

// Track folds the record into the client's running summary.
func (m *MemoryTracker) Track(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.summaries[rec.ClientID]
	if !ok {
		s = &Summary{ClientID: rec.ClientID}
		m.summaries[rec.ClientID] = s
	}

	s.Requests++
	s.PromptTokens += int64(rec.PromptTokens)
	s.CompletionTokens += int64(rec.CompletionTokens)
	s.Characters += int64(rec.Characters)
	s.CostUSD = float64(microUSD(s.CostUSD)+microUSD(rec.CostUSD)) / 1e6

	m.records = append(m.records, rec)
	if len(m.records) > m.maxEvents {
		m.records = m.records[len(m.records)-m.maxEvents:]
	}

	return nil
}

// Summary returns the client's aggregated usage. An unseen client gets a zero
// summary, not an error.
func (m *MemoryTracker) Summary(ctx context.Context, clientID string) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.summaries[clientID]; ok {
		return *s, nil
	}
	return Summary{ClientID: clientID}, nil
}

// Records returns a copy of the retained recent records, oldest first.
func (m *MemoryTracker) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
