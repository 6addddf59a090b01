package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/voicetalk/voicegate/internal/config"
	"github.com/voicetalk/voicegate/internal/log"
	"github.com/voicetalk/voicegate/internal/metrics"
	"github.com/voicetalk/voicegate/pkg/ai"
	"github.com/voicetalk/voicegate/pkg/pipeline"
	"github.com/voicetalk/voicegate/pkg/provider"
	"github.com/voicetalk/voicegate/pkg/session"
	"github.com/voicetalk/voicegate/pkg/stt"
	"github.com/voicetalk/voicegate/pkg/tts"
)

// adapterHealth lets the status command probe each configured backend.
type adapterHealth struct {
	id     string
	health func(ctx context.Context) error
}

// gateway is the wired-up process: chains, sessions, orchestrator.
type gateway struct {
	cfg      *config.Config
	registry *provider.Registry
	sessions *session.Manager
	sttChain *stt.Chain
	orch     *pipeline.Orchestrator
	adapters []adapterHealth
	closers  []func() error
}

// buildGateway constructs every component from the loaded configuration.
func buildGateway(ctx context.Context, cfg *config.Config) (*gateway, error) {
	prom := metrics.New(prometheus.DefaultRegisterer)
	registry := provider.NewRegistry(provider.WithObserver(prom))

	g := &gateway{cfg: cfg, registry: registry}

	sessionOpts := []session.Option{
		session.WithMaxTurns(cfg.Session.MaxContextTurns),
		session.WithTokenBudget(cfg.Session.MaxContextTokens),
		session.WithIdleTimeout(cfg.Session.IdleTimeout.Std()),
		session.WithSweepInterval(cfg.Session.SweepInterval.Std()),
		session.WithLogger(log.L()),
	}
	if cfg.Session.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Session.RedisAddr})
		sessionOpts = append(sessionOpts, session.WithStore(session.NewRedisStore(client, cfg.Session.IdleTimeout.Std())))
		log.Component("main").Info("redis session store enabled", "addr", cfg.Session.RedisAddr)
	}
	g.sessions = session.NewManager(sessionOpts...)
	g.closers = append(g.closers, g.sessions.Close)
	metrics.RegisterSessionCount(prometheus.DefaultRegisterer, g.sessions.Len)

	sttChain, err := g.buildSTTChain(ctx, cfg.Providers.STT)
	if err != nil {
		return nil, err
	}
	g.sttChain = sttChain

	aiChain, err := g.buildAIChain(cfg.Providers.AI)
	if err != nil {
		return nil, err
	}

	ttsChain, err := g.buildTTSChain(cfg.Providers.TTS)
	if err != nil {
		return nil, err
	}

	orch, err := pipeline.NewOrchestrator(sttChain, aiChain, ttsChain, g.sessions,
		pipeline.WithMaxConcurrentTurns(cfg.Pipeline.MaxConcurrentTurns),
		pipeline.WithMaxTokens(cfg.Pipeline.MaxTokens),
		pipeline.WithMetrics(prom),
		pipeline.WithLogger(log.L()),
	)
	if err != nil {
		return nil, err
	}
	g.orch = orch
	return g, nil
}

// Close releases everything the gateway holds, last-built first.
func (g *gateway) Close() {
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i](); err != nil {
			log.Component("main").Warn("close failed", "error", err)
		}
	}
}

func spec(p config.ProviderConfig, capability provider.Capability) *provider.Spec {
	return &provider.Spec{
		ID:            p.ID,
		Capability:    capability,
		Priority:      p.Priority,
		Endpoint:      p.Endpoint,
		CredentialRef: p.CredentialEnv,
		Timeout:       p.Timeout(),
	}
}

func (g *gateway) buildSTTChain(ctx context.Context, list []config.ProviderConfig) (*stt.Chain, error) {
	if len(list) == 0 {
		return nil, nil
	}

	var bindings []provider.Binding[*provider.AudioBuffer, *provider.Transcript]
	for _, p := range list {
		adapter, err := buildSTTAdapter(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("stt provider %q: %w", p.ID, err)
		}
		g.track(p.ID, adapter.Health, adapter.Close)
		bindings = append(bindings, stt.Binding(spec(p, provider.CapabilitySTT), adapter))
	}
	return stt.NewChain(g.registry, bindings, provider.WithChainLogger(log.L()))
}

func buildSTTAdapter(ctx context.Context, p config.ProviderConfig) (stt.Provider, error) {
	opts := []stt.Option{stt.WithLogger(log.L())}
	if p.Endpoint != "" {
		opts = append(opts, stt.WithBaseURL(p.Endpoint))
	}
	if p.Model != "" {
		opts = append(opts, stt.WithModel(p.Model))
	}
	if p.Language != "" {
		opts = append(opts, stt.WithLanguage(p.Language))
	}
	cred := p.Credential()
	if cred != "" {
		opts = append(opts, stt.WithAPIKey(cred))
	}

	switch p.Kind {
	case "vosk":
		return stt.NewVosk(opts...)
	case "whisper":
		return stt.NewWhisper(opts...)
	case "google":
		// A JSON credential is a service account; anything else is an
		// API key, which WithAPIKey already applied.
		var googleOpts []stt.GoogleOption
		if strings.HasPrefix(strings.TrimSpace(cred), "{") {
			googleOpts = append(googleOpts, stt.WithCredentialsJSON([]byte(cred)))
		}
		return stt.NewGoogle(ctx, opts, googleOpts...)
	default:
		return nil, fmt.Errorf("unknown kind %q", p.Kind)
	}
}

func (g *gateway) buildAIChain(list []config.ProviderConfig) (*ai.Chain, error) {
	var bindings []provider.Binding[*ai.Request, *ai.Reply]
	for _, p := range list {
		adapter, err := buildAIAdapter(p, g.cfg.Pipeline.SystemPrompt)
		if err != nil {
			return nil, fmt.Errorf("ai provider %q: %w", p.ID, err)
		}
		g.track(p.ID, adapter.Health, adapter.Close)
		bindings = append(bindings, ai.Binding(spec(p, provider.CapabilityAI), adapter))
	}
	return ai.NewChain(g.registry, bindings, provider.WithChainLogger(log.L()))
}

func buildAIAdapter(p config.ProviderConfig, systemPrompt string) (ai.Provider, error) {
	opts := []ai.Option{ai.WithLogger(log.L())}
	if p.Endpoint != "" {
		opts = append(opts, ai.WithBaseURL(p.Endpoint))
	}
	if p.Model != "" {
		opts = append(opts, ai.WithModel(p.Model))
	}
	if systemPrompt != "" {
		opts = append(opts, ai.WithSystemPrompt(systemPrompt))
	}
	if cred := p.Credential(); cred != "" {
		opts = append(opts, ai.WithAPIKey(cred))
	}

	switch p.Kind {
	case "openai":
		return ai.NewOpenAI(opts...)
	case "huggingface":
		return ai.NewHuggingFace(opts...)
	default:
		return nil, fmt.Errorf("unknown kind %q", p.Kind)
	}
}

func (g *gateway) buildTTSChain(list []config.ProviderConfig) (*tts.Chain, error) {
	if len(list) == 0 {
		return nil, nil
	}

	var bindings []provider.Binding[string, *provider.AudioBuffer]
	for _, p := range list {
		adapter, err := buildTTSAdapter(p)
		if err != nil {
			return nil, fmt.Errorf("tts provider %q: %w", p.ID, err)
		}
		g.track(p.ID, adapter.Health, adapter.Close)
		bindings = append(bindings, tts.Binding(spec(p, provider.CapabilityTTS), adapter))
	}
	return tts.NewChain(g.registry, bindings, provider.WithChainLogger(log.L()))
}

func buildTTSAdapter(p config.ProviderConfig) (tts.Provider, error) {
	opts := []tts.Option{tts.WithLogger(log.L())}
	if p.Endpoint != "" {
		opts = append(opts, tts.WithBaseURL(p.Endpoint))
	}
	if p.Model != "" {
		opts = append(opts, tts.WithModel(p.Model))
	}
	if p.Voice != "" {
		opts = append(opts, tts.WithVoice(p.Voice))
	}
	if cred := p.Credential(); cred != "" {
		opts = append(opts, tts.WithAPIKey(cred))
	}

	switch p.Kind {
	case "elevenlabs":
		return tts.NewElevenLabs(opts...)
	case "openai":
		return tts.NewOpenAI(opts...)
	default:
		return nil, fmt.Errorf("unknown kind %q", p.Kind)
	}
}

func (g *gateway) track(id string, health func(ctx context.Context) error, closeFn func() error) {
	g.adapters = append(g.adapters, adapterHealth{id: id, health: health})
	g.closers = append(g.closers, closeFn)
}
