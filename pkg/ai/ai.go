// Package ai provides text-generation adapters for conversational replies.
//
// Two backends are bundled, both speaking the OpenAI-compatible chat
// completions shape: OpenAI itself and the HuggingFace inference router.
// Adapters validate input, honor context deadlines, and never retry;
// fallback between backends belongs to pkg/provider.
package ai

import (
	"context"

	"github.com/voicetalk/voicegate/pkg/provider"
)

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the prompt context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request carries the prompt context for one generation call.
type Request struct {
	// Messages is the conversation context in chronological order.
	// The session manager bounds its length before it gets here.
	Messages []Message

	// MaxTokens limits the reply length. Zero uses the provider default.
	MaxTokens int

	// Temperature controls response randomness (0.0-2.0).
	Temperature float64
}

// Reply is the result of a generation call.
type Reply struct {
	// Text is the assistant's reply.
	Text string

	// Provider identifies which backend produced the reply.
	Provider string

	// Model is the model that generated the reply, if reported.
	Model string
}

// Provider defines the text-generation adapter interface.
type Provider interface {
	// Generate produces a reply for the given context.
	Generate(ctx context.Context, req *Request) (*Reply, error)

	// Health checks backend connectivity and credential validity.
	Health(ctx context.Context) error

	// Name returns the backend name.
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// Chain is a fallback chain over AI providers.
type Chain = provider.Chain[*Request, *Reply]

// Binding pairs a provider spec with an AI adapter for chain construction.
func Binding(spec *provider.Spec, p Provider) provider.Binding[*Request, *Reply] {
	return provider.Bind(spec, p.Generate)
}

// NewChain builds the AI fallback chain.
func NewChain(registry *provider.Registry, bindings []provider.Binding[*Request, *Reply], opts ...provider.ChainOption) (*Chain, error) {
	return provider.NewChain(provider.CapabilityAI, registry, bindings, opts...)
}

// validate rejects requests with no usable content before any network call.
func validate(req *Request) error {
	if req == nil || len(req.Messages) == 0 {
		return provider.Validationf("messages", "must not be empty")
	}
	for _, m := range req.Messages {
		if m.Content != "" {
			return nil
		}
	}
	return provider.Validationf("messages", "must contain non-empty content")
}
