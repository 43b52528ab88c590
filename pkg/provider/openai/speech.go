package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/manenim/ai-gateway/pkg/provider"
)

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

var speechContentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"opus": "audio/ogg",
	"aac":  "audio/aac",
	"flac": "audio/flac",
	"wav":  "audio/wav",
	"pcm":  "audio/pcm",
}

// Synthesize sends a text-to-speech request and returns the raw audio bytes.
func (c *Client) Synthesize(ctx context.Context, req *provider.SpeechRequest) (*provider.SpeechResponse, error) {
	if c == nil {
		return nil, fmt.Errorf("openai client not configured")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if strings.TrimSpace(req.Input) == "" {
		return nil, fmt.Errorf("input text is required")
	}

	payload := speechRequest{
		Model:          strings.TrimSpace(req.Model),
		Input:          req.Input,
		Voice:          strings.TrimSpace(req.Voice),
		ResponseFormat: strings.TrimSpace(req.Format),
	}
	if payload.Model == "" {
		payload.Model = "tts-1"
	}
	if payload.Voice == "" {
		payload.Voice = "alloy"
	}

	audio, err := c.post(ctx, "/audio/speech", payload)
	if err != nil {
		return nil, err
	}

	contentType, ok := speechContentTypes[payload.ResponseFormat]
	if !ok {
		contentType = "audio/mpeg"
	}

	return &provider.SpeechResponse{Audio: audio, ContentType: contentType}, nil
}
