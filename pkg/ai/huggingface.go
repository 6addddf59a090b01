package ai

import (
	"context"

	"github.com/voicetalk/voicegate/pkg/provider"
)

const (
	huggingFaceBaseURL  = "https://router.huggingface.co/v1"
	providerHuggingFace = "huggingface"

	// ModelZephyr7B is a free-tier conversational model on the HF router.
	ModelZephyr7B = "HuggingFaceH4/zephyr-7b-beta"
)

// HuggingFace implements Provider against the HuggingFace inference
// router, which exposes hosted models through the chat completions shape.
type HuggingFace struct {
	chat *chatClient
}

// NewHuggingFace creates a HuggingFace text-generation provider.
func NewHuggingFace(opts ...Option) (*HuggingFace, error) {
	cfg := DefaultConfig()
	cfg.Model = ModelZephyr7B
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, provider.WrapError(providerHuggingFace, provider.ErrNoCredentials)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = huggingFaceBaseURL
	}

	return &HuggingFace{chat: &chatClient{
		name:    providerHuggingFace,
		config:  cfg,
		client:  cfg.HTTPClient,
		logger:  cfg.Logger.With("component", "ai.huggingface"),
		baseURL: baseURL,
	}}, nil
}

// Generate produces a reply for the given context.
func (h *HuggingFace) Generate(ctx context.Context, req *Request) (*Reply, error) {
	return h.chat.generate(ctx, req)
}

// Health checks API connectivity and credential validity.
func (h *HuggingFace) Health(ctx context.Context) error {
	return h.chat.health(ctx)
}

// Name returns the backend name.
func (h *HuggingFace) Name() string { return providerHuggingFace }

// Close releases resources.
func (h *HuggingFace) Close() error {
	h.chat.client.CloseIdleConnections()
	return nil
}

// Verify HuggingFace implements Provider at compile time.
var _ Provider = (*HuggingFace)(nil)
