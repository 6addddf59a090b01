package ai

import (
	"context"

	"github.com/voicetalk/voicegate/pkg/provider"
)

const (
	openAIBaseURL  = "https://api.openai.com/v1"
	providerOpenAI = "openai"

	// ModelGPT4oMini is the default OpenAI chat model.
	ModelGPT4oMini = "gpt-4o-mini"
)

// OpenAI implements Provider for OpenAI chat completions.
type OpenAI struct {
	chat *chatClient
}

// NewOpenAI creates an OpenAI text-generation provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Model = ModelGPT4oMini
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, provider.WrapError(providerOpenAI, provider.ErrNoCredentials)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	return &OpenAI{chat: &chatClient{
		name:    providerOpenAI,
		config:  cfg,
		client:  cfg.HTTPClient,
		logger:  cfg.Logger.With("component", "ai.openai"),
		baseURL: baseURL,
	}}, nil
}

// Generate produces a reply for the given context.
func (o *OpenAI) Generate(ctx context.Context, req *Request) (*Reply, error) {
	return o.chat.generate(ctx, req)
}

// Health checks API connectivity and credential validity.
func (o *OpenAI) Health(ctx context.Context) error {
	return o.chat.health(ctx)
}

// Name returns the backend name.
func (o *OpenAI) Name() string { return providerOpenAI }

// Close releases resources.
func (o *OpenAI) Close() error {
	o.chat.client.CloseIdleConnections()
	return nil
}

// Verify OpenAI implements Provider at compile time.
var _ Provider = (*OpenAI)(nil)
