package stt

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	speech "google.golang.org/api/speech/v1"

	"github.com/voicetalk/voicegate/pkg/provider"
)

const providerGoogle = "google"

// Google implements Provider for Google Cloud Speech-to-Text.
type Google struct {
	config *Config
	svc    *speech.Service
	logger *slog.Logger
}

// googleOptions extends Config with Google-specific credentials.
type googleOptions struct {
	credentialsJSON []byte
}

// GoogleOption configures the Google adapter beyond the shared options.
type GoogleOption func(*googleOptions)

// WithCredentialsJSON authenticates with a service-account key.
func WithCredentialsJSON(data []byte) GoogleOption {
	return func(o *googleOptions) { o.credentialsJSON = data }
}

// NewGoogle creates a Google Cloud Speech provider. Authentication uses the
// API key from WithAPIKey or a service-account key from WithCredentialsJSON.
func NewGoogle(ctx context.Context, opts []Option, googleOpts ...GoogleOption) (*Google, error) {
	cfg := DefaultConfig()
	cfg.Language = "en-US"
	cfg.Apply(opts...)

	var gopts googleOptions
	for _, opt := range googleOpts {
		opt(&gopts)
	}

	var clientOpts []option.ClientOption
	switch {
	case len(gopts.credentialsJSON) > 0:
		creds, err := google.CredentialsFromJSON(ctx, gopts.credentialsJSON, speech.CloudPlatformScope)
		if err != nil {
			return nil, provider.WrapError(providerGoogle, fmt.Errorf("parse credentials: %w", err))
		}
		clientOpts = append(clientOpts, option.WithTokenSource(creds.TokenSource))
	case cfg.APIKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	default:
		return nil, provider.WrapError(providerGoogle, provider.ErrNoCredentials)
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.BaseURL))
	}

	svc, err := speech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, provider.WrapError(providerGoogle, fmt.Errorf("create service: %w", err))
	}

	return &Google{
		config: cfg,
		svc:    svc,
		logger: cfg.Logger.With("component", "stt.google"),
	}, nil
}

// Transcribe sends the buffer through the synchronous Recognize API.
func (g *Google) Transcribe(ctx context.Context, audio *provider.AudioBuffer) (*provider.Transcript, error) {
	start := time.Now()

	if err := validate(audio); err != nil {
		return nil, err
	}

	sampleRate := audio.SampleRate
	if sampleRate == 0 {
		sampleRate = provider.SampleRateFromEncoding(audio.Encoding)
	}

	req := &speech.RecognizeRequest{
		Config: &speech.RecognitionConfig{
			Encoding:        googleEncoding(audio.Encoding),
			SampleRateHertz: int64(sampleRate),
			LanguageCode:    g.config.Language,
		},
		Audio: &speech.RecognitionAudio{
			Content: base64.StdEncoding.EncodeToString(audio.Data),
		},
	}

	resp, err := g.svc.Speech.Recognize(req).Context(ctx).Do()
	if err != nil {
		return nil, g.mapError(err)
	}

	var (
		parts     []string
		confSum   float64
		confCount int
	)
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		best := result.Alternatives[0]
		if best.Transcript == "" {
			continue
		}
		parts = append(parts, best.Transcript)
		confSum += best.Confidence
		confCount++
	}

	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return nil, provider.WrapError(providerGoogle, fmt.Errorf("%w: no transcription results", provider.ErrBadResponse))
	}

	confidence := 1.0
	if confCount > 0 {
		confidence = confSum / float64(confCount)
	}

	g.logger.Debug("transcribed audio",
		"bytes", len(audio.Data),
		"chars", len(text),
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return &provider.Transcript{
		Text:       text,
		Confidence: confidence,
		Provider:   providerGoogle,
	}, nil
}

// Health reports whether the service client exists. A live probe would bill
// a recognition request, so construction-time credential checks have to do.
func (g *Google) Health(ctx context.Context) error {
	if g.svc == nil {
		return provider.WrapError(providerGoogle, errors.New("service not initialized"))
	}
	return nil
}

// Name returns the backend name.
func (g *Google) Name() string { return providerGoogle }

// Close releases resources.
func (g *Google) Close() error { return nil }

// mapError converts googleapi errors into the shared taxonomy.
func (g *Google) mapError(err error) error {
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return &provider.APIError{
			StatusCode: ge.Code,
			Message:    ge.Message,
			Provider:   providerGoogle,
		}
	}
	return provider.WrapError(providerGoogle, err)
}

// googleEncoding maps buffer encodings onto the Speech API enum.
func googleEncoding(enc provider.Encoding) string {
	switch enc {
	case provider.EncodingPCM16, provider.EncodingPCM22, provider.EncodingPCM24, provider.EncodingPCM44:
		return "LINEAR16"
	case provider.EncodingOpus:
		return "OGG_OPUS"
	case provider.EncodingMP3:
		return "MP3"
	default:
		return "ENCODING_UNSPECIFIED"
	}
}

// Verify Google implements Provider at compile time.
var _ Provider = (*Google)(nil)
