// Package tts synthesizes speech prompts through the Cartesia bytes API.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/kyc-voice/internal/metrics"
)

const (
	modelID    = "sonic-2"
	language   = "hi"
	sampleRate = 44100

	maxAudioBytes = 50 << 20
)

var (
	// ErrEmptyText is returned before any vendor call is made.
	ErrEmptyText = errors.New("text is required")
	// ErrCreditsExhausted means the vendor answered 402.
	ErrCreditsExhausted = errors.New("speech synthesis credits exhausted")
)

// VendorError carries a non-success vendor reply verbatim.
type VendorError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *VendorError) Error() string {
	return fmt.Sprintf("cartesia error (status %d): %s", e.StatusCode, e.Message)
}

// Config holds the vendor credentials.
type Config struct {
	BaseURL string
	APIKey  string
	VoiceID string
	Version string
}

type voice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type outputFormat struct {
	Container  string `json:"container"`
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
}

type bytesRequest struct {
	ModelID      string       `json:"model_id"`
	Transcript   string       `json:"transcript"`
	Voice        voice        `json:"voice"`
	Language     string       `json:"language"`
	OutputFormat outputFormat `json:"output_format"`
}

// Synthesizer is safe for concurrent use.
type Synthesizer struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

func NewSynthesizer(cfg Config, httpClient *http.Client, logger *zap.Logger, m *metrics.Metrics) *Synthesizer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Version == "" {
		cfg.Version = "2024-06-10"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Synthesizer{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("tts"),
		metrics:    m,
	}
}

// Synthesize renders text as a 44.1kHz float WAV and returns it base64 encoded.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		s.metrics.IncrementSpeech("empty_text")
		return "", ErrEmptyText
	}

	audio, err := s.fetch(ctx, text)
	if err != nil {
		s.metrics.IncrementSpeech(outcome(err))
		s.logger.Warn("speech synthesis failed", zap.Error(err), zap.Int("text_length", len(text)))
		return "", err
	}

	s.metrics.IncrementSpeech("ok")
	s.logger.Debug("speech synthesized", zap.Int("audio_bytes", len(audio)))
	return base64.StdEncoding.EncodeToString(audio), nil
}

func (s *Synthesizer) fetch(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(bytesRequest{
		ModelID:    modelID,
		Transcript: text,
		Voice:      voice{Mode: "id", ID: s.cfg.VoiceID},
		Language:   language,
		OutputFormat: outputFormat{
			Container:  "wav",
			SampleRate: sampleRate,
			Encoding:   "pcm_f32le",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/tts/bytes", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", s.cfg.APIKey)
	req.Header.Set("Cartesia-Version", s.cfg.Version)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call cartesia: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("read cartesia response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		return nil, ErrCreditsExhausted
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &VendorError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func outcome(err error) string {
	var vendorErr *VendorError
	switch {
	case errors.Is(err, ErrCreditsExhausted):
		return "credits_exhausted"
	case errors.As(err, &vendorErr):
		return "vendor_error"
	default:
		return "error"
	}
}
