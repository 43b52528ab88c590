package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/manenim/ai-gateway/internal/config"
	"github.com/manenim/ai-gateway/pkg/limiter"
	"github.com/manenim/ai-gateway/pkg/provider"
	"github.com/manenim/ai-gateway/pkg/usage"
)

type fakeChat struct {
	calls int32
	resp  *provider.ChatResponse
	err   error
}

func (f *fakeChat) Complete(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeSpeech struct {
	calls int32
	resp  *provider.SpeechResponse
	err   error
}

func (f *fakeSpeech) Synthesize(ctx context.Context, req *provider.SpeechRequest) (*provider.SpeechResponse, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type testEnv struct {
	server  *Server
	chat    *fakeChat
	speech  *fakeSpeech
	tracker *usage.MemoryTracker
}

func newTestEnv(t *testing.T, maxRequests int) *testEnv {
	t.Helper()

	cfg := &config.Config{
		ListenAddr:    ":0",
		AdminPassword: "hunter2",
		Provider: config.ProviderConfig{
			ChatModel:   "gpt-4o-mini",
			SpeechModel: "tts-1",
		},
	}

	lim := limiter.NewMemoryLimiter(maxRequests, time.Minute)
	t.Cleanup(lim.Close)

	env := &testEnv{
		chat: &fakeChat{resp: &provider.ChatResponse{
			Content: "hello there",
			Model:   "gpt-4o-mini",
			Usage:   provider.Usage{PromptTokens: 12, CompletionTokens: 7, TotalTokens: 19},
		}},
		speech:  &fakeSpeech{resp: &provider.SpeechResponse{Audio: []byte("ID3audio"), ContentType: "audio/mpeg"}},
		tracker: usage.NewMemoryTracker(),
	}
	env.server = New(cfg, zap.NewNop(), lim, env.chat, env.speech, env.tracker)

	return env
}

func postJSON(t *testing.T, handler http.Handler, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.RemoteAddr = "1.2.3.4:56789"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

const chatBody = `{"messages":[{"role":"user","content":"hi"}]}`

func TestChatHappyPath(t *testing.T) {
	env := newTestEnv(t, 20)

	rec := postJSON(t, env.server.Handler(), "/v1/chat", chatBody)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var reply chatReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	require.Equal(t, "hello there", reply.Reply)
	require.Equal(t, "gpt-4o-mini", reply.Model)
	require.Equal(t, 19, reply.Usage.TotalTokens)

	// Usage is recorded after the response; wait for the detached write.
	require.Eventually(t, func() bool {
		s, err := env.tracker.Summary(context.Background(), "1.2.3.4")
		return err == nil && s.Requests == 1
	}, 2*time.Second, 10*time.Millisecond)

	s, err := env.tracker.Summary(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	require.Equal(t, int64(12), s.PromptTokens)
	require.Equal(t, int64(7), s.CompletionTokens)
}

func TestChatValidation(t *testing.T) {
	env := newTestEnv(t, 20)

	rec := postJSON(t, env.server.Handler(), "/v1/chat", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, env.server.Handler(), "/v1/chat", `{"messages":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Zero(t, atomic.LoadInt32(&env.chat.calls), "provider must not be called on validation failure")
}

func TestChatRateLimited(t *testing.T) {
	env := newTestEnv(t, 2)

	for i := 0; i < 2; i++ {
		rec := postJSON(t, env.server.Handler(), "/v1/chat", chatBody)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := postJSON(t, env.server.Handler(), "/v1/chat", chatBody)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp.Error, "rate limit exceeded")
	require.NotEmpty(t, resp.ResetTime)

	require.Equal(t, int32(2), atomic.LoadInt32(&env.chat.calls), "denied requests must not reach the provider")
}

func TestChatRateLimitIsPerClient(t *testing.T) {
	env := newTestEnv(t, 1)

	for _, addr := range []string{"10.0.0.1:1000", "10.0.0.2:1000"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader([]byte(chatBody)))
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "distinct clients must not share a quota")
	}
}

func TestChatUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, 20)
	env.chat.err = &provider.ProviderError{Provider: "openai", StatusCode: 503, Message: "overloaded"}

	rec := postJSON(t, env.server.Handler(), "/v1/chat", chatBody)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSpeechHappyPath(t *testing.T) {
	env := newTestEnv(t, 20)

	rec := postJSON(t, env.server.Handler(), "/v1/speech", `{"input":"hello world"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	require.Equal(t, []byte("ID3audio"), rec.Body.Bytes())

	require.Eventually(t, func() bool {
		s, err := env.tracker.Summary(context.Background(), "1.2.3.4")
		return err == nil && s.Characters == int64(len("hello world"))
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSpeechValidation(t *testing.T) {
	env := newTestEnv(t, 20)

	rec := postJSON(t, env.server.Handler(), "/v1/speech", `{"input":"   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, atomic.LoadInt32(&env.speech.calls))
}

func TestSpeechIsNotRateLimited(t *testing.T) {
	env := newTestEnv(t, 1)

	for i := 0; i < 3; i++ {
		rec := postJSON(t, env.server.Handler(), "/v1/speech", `{"input":"hi"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestUsageEndpointAuth(t *testing.T) {
	env := newTestEnv(t, 20)

	req := httptest.NewRequest(http.MethodGet, "/v1/usage/1.2.3.4", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/usage/1.2.3.4", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUsageEndpointSummary(t *testing.T) {
	env := newTestEnv(t, 20)

	require.NoError(t, env.tracker.Track(context.Background(), usage.Record{
		ClientID: "1.2.3.4", Kind: usage.KindChat, PromptTokens: 5, CostUSD: 0.001,
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/usage/1.2.3.4", nil)
	req.Header.Set("Authorization", "Bearer hunter2")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var s usage.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	require.Equal(t, int64(1), s.Requests)
	require.Equal(t, int64(5), s.PromptTokens)
}

func TestUsageEndpointDisabledWithoutPassword(t *testing.T) {
	env := newTestEnv(t, 20)
	env.server.cfg.AdminPassword = ""

	req := httptest.NewRequest(http.MethodGet, "/v1/usage/1.2.3.4", nil)
	req.Header.Set("Authorization", "Bearer hunter2")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, 20)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestClientKeyFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
	req.RemoteAddr = ""
	require.Equal(t, fallbackClientKey, clientKey(req))

	req.RemoteAddr = "9.8.7.6:1234"
	require.Equal(t, "9.8.7.6", clientKey(req))

	// No port at all still yields the bare address.
	req.RemoteAddr = "9.8.7.6"
	require.Equal(t, "9.8.7.6", clientKey(req))
}

func TestRequestIDHonorsCaller(t *testing.T) {
	env := newTestEnv(t, 20)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "caller-supplied-id")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "caller-supplied-id", rec.Header().Get(RequestIDHeader))
}
