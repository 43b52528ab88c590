// Package usage records per-client usage of upstream AI providers for
// billing and analytics. Recording is best-effort from the request pipeline:
// a failed write is logged by the caller, never surfaced to the end client.
package usage

import (
	"context"
	"time"
)

// Kind distinguishes the billable operation types.
type Kind string

const (
	KindChat   Kind = "chat"
	KindSpeech Kind = "speech"
)

// Record is one billable provider call.
type Record struct {
	ClientID         string    `json:"client_id"`
	RequestID        string    `json:"request_id"`
	Kind             Kind      `json:"kind"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
	Characters       int       `json:"characters,omitempty"`
	DurationMS       int64     `json:"duration_ms"`
	CostUSD          float64   `json:"cost_usd"`
	At               time.Time `json:"at"`
}

// Summary aggregates a client's recorded usage.
type Summary struct {
	ClientID         string  `json:"client_id"`
	Requests         int64   `json:"requests"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	Characters       int64   `json:"characters"`
	CostUSD          float64 `json:"cost_usd"`
}

// Tracker persists usage records and answers per-client summaries.
type Tracker interface {
	Track(ctx context.Context, rec Record) error
	Summary(ctx context.Context, clientID string) (Summary, error)
}
