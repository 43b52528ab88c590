package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/manenim/ai-gateway/pkg/provider"
	"github.com/manenim/ai-gateway/pkg/usage"
)

// fallbackClientKey buckets requests whose source address cannot be
// determined. They intentionally share a single quota.
const fallbackClientKey = "unknown"

type chatPayload struct {
	Model       string             `json:"model,omitempty"`
	Messages    []provider.Message `json:"messages"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type chatReply struct {
	RequestID string        `json:"request_id"`
	Model     string        `json:"model"`
	Reply     string        `json:"reply"`
	Usage     chatUsageJSON `json:"usage"`
}

type chatUsageJSON struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type speechPayload struct {
	Model  string `json:"model,omitempty"`
	Input  string `json:"input"`
	Voice  string `json:"voice,omitempty"`
	Format string `json:"format,omitempty"`
}

type errorResponse struct {
	Error      string `json:"error"`
	RetryAfter string `json:"retry_after,omitempty"`
	ResetTime  string `json:"reset_time,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(payload.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}

	clientID := clientKey(r)

	// Admission check before the provider is touched. Denial is a routine
	// outcome: the provider call never happens and the client learns when
	// to retry.
	dec := s.limiter.Allow(clientID)
	if !dec.Allow {
		retryAfter := ceilSeconds(dec.RetryAfter)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:      fmt.Sprintf("rate limit exceeded, retry in %ds", retryAfter),
			RetryAfter: (time.Duration(retryAfter) * time.Second).String(),
			ResetTime:  dec.ResetTime.UTC().Format(time.RFC3339),
		})
		return
	}

	model := payload.Model
	if model == "" {
		model = s.cfg.Provider.ChatModel
	}

	start := time.Now()
	resp, err := s.chat.Complete(r.Context(), &provider.ChatRequest{
		Model:       model,
		Messages:    payload.Messages,
		MaxTokens:   payload.MaxTokens,
		Temperature: payload.Temperature,
	})
	if err != nil {
		s.upstreamError(w, r, err)
		return
	}

	respModel := resp.Model
	if respModel == "" {
		respModel = model
	}

	writeJSON(w, http.StatusOK, chatReply{
		RequestID: GetRequestID(r.Context()),
		Model:     respModel,
		Reply:     resp.Content,
		Usage: chatUsageJSON{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	})

	// Recorded after the response is sent; a tracker failure must never
	// reach the client.
	go s.trackUsage(usage.Record{
		ClientID:         clientID,
		RequestID:        GetRequestID(r.Context()),
		Kind:             usage.KindChat,
		Model:            respModel,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		DurationMS:       time.Since(start).Milliseconds(),
		CostUSD:          usage.ChatCost(respModel, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		At:               start,
	})
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var payload speechPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Input) == "" {
		writeError(w, http.StatusBadRequest, "input text is required")
		return
	}

	model := payload.Model
	if model == "" {
		model = s.cfg.Provider.SpeechModel
	}

	start := time.Now()
	resp, err := s.speech.Synthesize(r.Context(), &provider.SpeechRequest{
		Model:  model,
		Input:  payload.Input,
		Voice:  payload.Voice,
		Format: payload.Format,
	})
	if err != nil {
		s.upstreamError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Audio)

	go s.trackUsage(usage.Record{
		ClientID:   clientKey(r),
		RequestID:  GetRequestID(r.Context()),
		Kind:       usage.KindSpeech,
		Model:      model,
		Characters: len(payload.Input),
		DurationMS: time.Since(start).Milliseconds(),
		CostUSD:    usage.SpeechCost(model, len(payload.Input)),
		At:         start,
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AdminPassword == "" {
		writeError(w, http.StatusForbidden, "usage reporting is not enabled")
		return
	}

	password := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.AdminPassword)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid admin credentials")
		return
	}

	clientID := chi.URLParam(r, "clientID")
	summary, err := s.tracker.Summary(r.Context(), clientID)
	if err != nil {
		s.logger.Error("usage summary failed", zap.String("client_id", clientID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load usage summary")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// trackUsage runs detached from the request; the response has already been
// sent when it executes.
func (s *Server) trackUsage(rec usage.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.tracker.Track(ctx, rec); err != nil {
		s.logger.Warn("usage tracking failed",
			zap.String("request_id", rec.RequestID),
			zap.String("client_id", rec.ClientID),
			zap.Error(err),
		)
	}
}

func (s *Server) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var provErr *provider.ProviderError
	if errors.As(err, &provErr) {
		s.logger.Error("provider request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("provider", provErr.Provider),
			zap.Int("upstream_status", provErr.StatusCode),
			zap.String("message", provErr.Message),
		)
	} else {
		s.logger.Error("provider request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
	}
	writeError(w, http.StatusBadGateway, "upstream provider request failed")
}

// clientKey derives the limiter key from the request source address. chi's
// RealIP has already substituted the forwarded address when present.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return fallbackClientKey
	}
	return host
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
