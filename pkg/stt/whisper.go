package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/voicetalk/voicegate/pkg/provider"
)

const (
	whisperURL      = "https://api.openai.com/v1/audio/transcriptions"
	providerWhisper = "whisper"

	// ModelWhisper1 is OpenAI's hosted transcription model.
	ModelWhisper1 = "whisper-1"
)

// Whisper implements Provider for OpenAI's transcription API.
type Whisper struct {
	config    *Config
	client    *http.Client
	logger    *slog.Logger
	baseURL   string
	healthURL string
}

// NewWhisper creates a Whisper provider.
func NewWhisper(opts ...Option) (*Whisper, error) {
	cfg := DefaultConfig()
	cfg.Model = ModelWhisper1
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, provider.WrapError(providerWhisper, provider.ErrNoCredentials)
	}

	baseURL := cfg.BaseURL
	healthURL := "https://api.openai.com/v1/models"
	if baseURL == "" {
		baseURL = whisperURL
	} else {
		// Health probes go to the same host the transcriptions do, so a
		// proxy deployment is checked against the proxy.
		healthURL = strings.TrimSuffix(baseURL, "/audio/transcriptions") + "/models"
	}

	return &Whisper{
		config:    cfg,
		client:    cfg.HTTPClient,
		logger:    cfg.Logger.With("component", "stt.whisper"),
		baseURL:   baseURL,
		healthURL: healthURL,
	}, nil
}

// Transcribe uploads the audio buffer and returns the transcription.
func (w *Whisper) Transcribe(ctx context.Context, audio *provider.AudioBuffer) (*provider.Transcript, error) {
	start := time.Now()

	if err := validate(audio); err != nil {
		return nil, err
	}

	body, contentType, err := w.buildForm(audio)
	if err != nil {
		return nil, provider.WrapError(providerWhisper, fmt.Errorf("build form: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL, body)
	if err != nil {
		return nil, provider.WrapError(providerWhisper, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+w.config.APIKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, provider.WrapError(providerWhisper, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseOpenAIError(resp, providerWhisper)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, provider.WrapError(providerWhisper, fmt.Errorf("%w: %v", provider.ErrBadResponse, err))
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return nil, provider.WrapError(providerWhisper, fmt.Errorf("%w: empty transcript", provider.ErrBadResponse))
	}

	w.logger.Debug("transcribed audio",
		"bytes", len(audio.Data),
		"chars", len(text),
		"latency_ms", time.Since(start).Milliseconds(),
	)

	// The API does not report confidence; an accepted transcription counts
	// as full confidence on the normalized scale.
	return &provider.Transcript{
		Text:       text,
		Confidence: 1,
		Provider:   providerWhisper,
	}, nil
}

// buildForm assembles the multipart upload. Raw PCM is wrapped in a minimal
// WAV header so the API can identify the format.
func (w *Whisper) buildForm(audio *provider.AudioBuffer) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	filename, payload := "audio.wav", wrapWAV(audio)
	if audio.Encoding == provider.EncodingMP3 {
		filename, payload = "audio.mp3", audio.Data
	}

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(payload); err != nil {
		return nil, "", err
	}

	if err := mw.WriteField("model", w.config.Model); err != nil {
		return nil, "", err
	}
	if w.config.Language != "" {
		if err := mw.WriteField("language", w.config.Language); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}

	return &buf, mw.FormDataContentType(), nil
}

// Health checks API connectivity using the models endpoint.
func (w *Whisper) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.healthURL, nil)
	if err != nil {
		return provider.WrapError(providerWhisper, err)
	}
	req.Header.Set("Authorization", "Bearer "+w.config.APIKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return provider.WrapError(providerWhisper, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseOpenAIError(resp, providerWhisper)
	}
	return nil
}

// Name returns the backend name.
func (w *Whisper) Name() string { return providerWhisper }

// Close releases resources.
func (w *Whisper) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

// wrapWAV prepends a RIFF header to raw PCM16 so the payload is a valid
// WAV file. Non-PCM data is returned unchanged.
func wrapWAV(audio *provider.AudioBuffer) []byte {
	switch audio.Encoding {
	case provider.EncodingPCM16, provider.EncodingPCM22, provider.EncodingPCM24, provider.EncodingPCM44, "":
	default:
		return audio.Data
	}

	sampleRate := audio.SampleRate
	if sampleRate == 0 {
		sampleRate = provider.SampleRateFromEncoding(audio.Encoding)
	}
	channels := audio.Channels
	if channels == 0 {
		channels = 1
	}

	dataLen := len(audio.Data)
	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	putLE32(header[4:], uint32(36+dataLen))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	putLE32(header[16:], 16) // PCM chunk size
	putLE16(header[20:], 1)  // PCM format
	putLE16(header[22:], uint16(channels))
	putLE32(header[24:], uint32(sampleRate))
	putLE32(header[28:], uint32(byteRate))
	putLE16(header[32:], uint16(blockAlign))
	putLE16(header[34:], 16) // bits per sample
	copy(header[36:40], "data")
	putLE32(header[40:], uint32(dataLen))

	return append(header, audio.Data...)
}

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// parseOpenAIError reads an OpenAI-style error payload into an APIError.
func parseOpenAIError(resp *http.Response, providerName string) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}

	return &provider.APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerName,
	}
}

// Verify Whisper implements Provider at compile time.
var _ Provider = (*Whisper)(nil)
