package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/voicetalk/voicegate/pkg/provider"
)

const (
	defaultVoskURL = "ws://127.0.0.1:2700"
	providerVosk   = "vosk"

	// voskChunkSize is how much audio goes out per websocket frame.
	// vosk-server answers each frame with a partial or final result.
	voskChunkSize = 8000
)

// Vosk implements Provider against a vosk-server instance.
// Vosk runs fully offline, which makes it the natural rank-0 STT provider:
// no credentials, no rate limits, no egress.
type Vosk struct {
	config *Config
	dialer *websocket.Dialer
	logger *slog.Logger
	url    string
}

// NewVosk creates a Vosk provider. The server address comes from
// WithBaseURL and defaults to ws://127.0.0.1:2700.
func NewVosk(opts ...Option) (*Vosk, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	url := cfg.BaseURL
	if url == "" {
		url = defaultVoskURL
	}

	return &Vosk{
		config: cfg,
		dialer: websocket.DefaultDialer,
		logger: cfg.Logger.With("component", "stt.vosk"),
		url:    url,
	}, nil
}

// voskResult is one JSON message from vosk-server. Partial results carry
// only "partial"; finals carry "text" plus per-word confidences.
type voskResult struct {
	Text    string `json:"text"`
	Partial string `json:"partial"`
	Result  []struct {
		Word string  `json:"word"`
		Conf float64 `json:"conf"`
	} `json:"result"`
}

// Transcribe streams the buffer to vosk-server and aggregates final results.
func (v *Vosk) Transcribe(ctx context.Context, audio *provider.AudioBuffer) (*provider.Transcript, error) {
	if err := validate(audio); err != nil {
		return nil, err
	}

	conn, _, err := v.dialer.DialContext(ctx, v.url, nil)
	if err != nil {
		return nil, provider.WrapError(providerVosk, fmt.Errorf("dial %s: %w", v.url, err))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	sampleRate := audio.SampleRate
	if sampleRate == 0 {
		sampleRate = provider.SampleRateFromEncoding(audio.Encoding)
	}
	cfgMsg := fmt.Sprintf(`{"config": {"sample_rate": %d}}`, sampleRate)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(cfgMsg)); err != nil {
		return nil, provider.WrapError(providerVosk, fmt.Errorf("send config: %w", err))
	}

	var (
		parts     []string
		confSum   float64
		confWords int
	)

	collect := func(raw []byte) error {
		var res voskResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return provider.WrapError(providerVosk, fmt.Errorf("%w: %v", provider.ErrBadResponse, err))
		}
		if res.Text != "" {
			parts = append(parts, res.Text)
			for _, w := range res.Result {
				confSum += w.Conf
				confWords++
			}
		}
		return nil
	}

	data := audio.Data
	for off := 0; off < len(data); off += voskChunkSize {
		end := off + voskChunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, data[off:end]); err != nil {
			return nil, provider.WrapError(providerVosk, fmt.Errorf("send audio: %w", err))
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return nil, provider.WrapError(providerVosk, fmt.Errorf("read result: %w", err))
		}
		if err := collect(raw); err != nil {
			return nil, err
		}
	}

	// EOF flushes the recognizer and yields the last final result.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"eof" : 1}`)); err != nil {
		return nil, provider.WrapError(providerVosk, fmt.Errorf("send eof: %w", err))
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, provider.WrapError(providerVosk, fmt.Errorf("read final result: %w", err))
	}
	if err := collect(raw); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return nil, provider.WrapError(providerVosk, fmt.Errorf("%w: empty transcript", provider.ErrBadResponse))
	}

	// Average per-word confidence when the server reports it; otherwise a
	// fixed heuristic for accepted finals.
	confidence := 0.9
	if confWords > 0 {
		confidence = confSum / float64(confWords)
	}

	v.logger.Debug("transcribed audio",
		"bytes", len(data),
		"chars", len(text),
		"confidence", confidence,
	)

	return &provider.Transcript{
		Text:       text,
		Confidence: confidence,
		Provider:   providerVosk,
	}, nil
}

// Health dials the server and closes the connection.
func (v *Vosk) Health(ctx context.Context) error {
	conn, _, err := v.dialer.DialContext(ctx, v.url, nil)
	if err != nil {
		return provider.WrapError(providerVosk, fmt.Errorf("dial %s: %w", v.url, err))
	}
	return conn.Close()
}

// Name returns the backend name.
func (v *Vosk) Name() string { return providerVosk }

// Close releases resources. Connections are per-call, so this is a no-op.
func (v *Vosk) Close() error { return nil }

// Verify Vosk implements Provider at compile time.
var _ Provider = (*Vosk)(nil)
