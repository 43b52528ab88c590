// Package provider defines the request and response types exchanged with
// upstream AI providers, independent of any concrete vendor API shape.
package provider

import (
	"context"
	"fmt"
)

// Message is a single turn in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes a chat-completion call.
type ChatRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
}

// Usage reports token consumption for a completed chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse is the assistant reply plus accounting metadata.
type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

// SpeechRequest describes a text-to-speech call.
type SpeechRequest struct {
	Model  string
	Input  string
	Voice  string
	Format string
}

// SpeechResponse carries the synthesized audio.
type SpeechResponse struct {
	Audio       []byte
	ContentType string
}

// ChatCompleter is implemented by drivers that can answer chat requests.
type ChatCompleter interface {
	Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// SpeechSynthesizer is implemented by drivers that can synthesize speech.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req *SpeechRequest) (*SpeechResponse, error)
}

// ProviderError is returned when a provider responds with a non-2xx status.
//
// Drivers should populate RawResponse with the provider response body bytes.
// RawResponse must never include API keys.
type ProviderError struct {
	Provider    string
	StatusCode  int
	Message     string
	RawResponse []byte
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s request failed: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
}
