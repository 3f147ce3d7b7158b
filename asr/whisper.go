package asr

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Whisper transcribes via the OpenAI transcription API. It serves
// source languages that have no local streaming recognizer.
type Whisper struct {
	client  openai.Client
	model   openai.AudioModel
	timeout time.Duration
}

// WhisperConfig configures the API-backed recognizer.
type WhisperConfig struct {
	APIKey  string
	BaseURL string
	Model   string        // default whisper-1
	Timeout time.Duration // per-request, default 30s
}

// NewWhisper creates an API-backed recognizer.
func NewWhisper(cfg WhisperConfig) (*Whisper, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("whisper: api key required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := openai.AudioModel(cfg.Model)
	if cfg.Model == "" {
		model = openai.AudioModelWhisper1
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Whisper{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: timeout,
	}, nil
}

// Transcribe uploads the audio as WAV and returns the recognized text.
func (w *Whisper) Transcribe(audio []float32, language string) (*Result, error) {
	if len(audio) == 0 {
		return &Result{Language: language}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(EncodeWAV(audio, 16000)), "audio.wav", "audio/wav"),
		Model: w.model,
	}
	// The API rejects "auto"; empty means auto-detect.
	if language != "" && language != "auto" {
		params.Language = openai.String(language)
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}

	return &Result{
		Text:       strings.TrimSpace(resp.Text),
		Language:   language,
		Confidence: 0.9,
	}, nil
}

func (w *Whisper) Close() error { return nil }
