package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/voicetalk/voicegate/pkg/ai"
	"github.com/voicetalk/voicegate/pkg/provider"
	"github.com/voicetalk/voicegate/pkg/session"
	"github.com/voicetalk/voicegate/pkg/stt"
	"github.com/voicetalk/voicegate/pkg/tts"
)

// ErrNoAIChain is returned when an orchestrator is built without a
// text-generation chain.
var ErrNoAIChain = errors.New("pipeline: AI chain required")

// Config holds orchestrator configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// MaxConcurrentTurns caps turns in flight across all sessions.
	// Zero means unlimited.
	MaxConcurrentTurns int

	// MaxTokens is passed through to the AI provider. Zero lets the
	// provider decide.
	MaxTokens int

	// Metrics receives timing observations. Defaults to a no-op.
	Metrics MetricsRecorder

	// Logger is the structured logger for the orchestrator.
	Logger *slog.Logger
}

// Option is a functional option for configuring the orchestrator.
type Option func(*Config)

// WithMaxConcurrentTurns caps turns in flight across all sessions.
func WithMaxConcurrentTurns(n int) Option {
	return func(c *Config) { c.MaxConcurrentTurns = n }
}

// WithMaxTokens bounds AI reply length.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// Orchestrator runs the turn state machine over the capability chains.
// One turn runs its stages sequentially; independent sessions run
// concurrently, bounded only by the optional concurrency cap.
type Orchestrator struct {
	sttChain *stt.Chain
	aiChain  *ai.Chain
	ttsChain *tts.Chain
	sessions *session.Manager

	cfg     *Config
	sem     *semaphore.Weighted
	metrics MetricsRecorder
	logger  *slog.Logger
}

// NewOrchestrator wires the capability chains and session manager into
// a turn pipeline. The AI chain and session manager are required; STT
// and TTS chains may be nil when the deployment has no providers for
// that capability.
func NewOrchestrator(sttChain *stt.Chain, aiChain *ai.Chain, ttsChain *tts.Chain, sessions *session.Manager, opts ...Option) (*Orchestrator, error) {
	if aiChain == nil {
		return nil, ErrNoAIChain
	}
	if sessions == nil {
		return nil, errors.New("pipeline: session manager required")
	}

	cfg := &Config{Logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}

	o := &Orchestrator{
		sttChain: sttChain,
		aiChain:  aiChain,
		ttsChain: ttsChain,
		sessions: sessions,
		cfg:      cfg,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "pipeline"),
	}
	if cfg.MaxConcurrentTurns > 0 {
		o.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentTurns))
	}
	return o, nil
}

// Sessions returns the session manager backing this orchestrator.
func (o *Orchestrator) Sessions() *session.Manager { return o.sessions }

// Run executes one turn.
//
// Audio input is transcribed first; transcription exhaustion fails the
// turn before any history mutation. The user turn is then appended
// (rejected with session.ErrSessionBusy if one is already in flight),
// the AI reply generated from the windowed context, and the assistant
// turn recorded. When speech was requested and every TTS provider
// fails, the text reply is still returned with the failures recorded —
// degraded output beats total failure.
func (o *Orchestrator) Run(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	text := req.Text
	if text == "" && req.Audio.Empty() {
		return nil, provider.Validationf("input", "audio or text required")
	}

	if o.sem != nil {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer o.sem.Release(1)
	}

	sessionID := o.sessions.GetOrCreate(ctx, req.SessionID)
	result := &Result{SessionID: sessionID}
	logger := o.logger.With("session_id", sessionID)

	// Transcribe
	if text == "" {
		transcript, err := o.resolveSTT(ctx, req.Audio)
		if err != nil {
			o.metrics.ObserveTurn(time.Since(start), string(StageTranscribe))
			return nil, err
		}
		text = transcript.Text
		result.Transcript = transcript.Text
		logger.Debug("transcribed input",
			"provider", transcript.Provider,
			"confidence", transcript.Confidence,
			"chars", len(text),
		)
	}

	// Record the user turn; this is the per-session single-flight gate.
	if err := o.sessions.AppendTurn(ctx, sessionID, session.RoleUser, text); err != nil {
		o.metrics.ObserveTurn(time.Since(start), "busy")
		return nil, err
	}

	// Generate
	reply, err := o.resolveAI(ctx, sessionID)
	if err != nil {
		// The user turn stays: the user's message was real. Only the
		// busy state is rolled back so the session is not wedged.
		o.sessions.Abort(sessionID)
		o.metrics.ObserveTurn(time.Since(start), string(StageGenerate))
		return nil, err
	}
	result.Reply = reply.Text

	if err := o.sessions.AppendTurn(ctx, sessionID, session.RoleAssistant, reply.Text); err != nil {
		logger.Warn("assistant turn not recorded", "error", err)
	}

	// Synthesize
	if req.WantsSpeech {
		audio, failures, err := o.resolveTTS(ctx, reply.Text)
		if err != nil {
			o.metrics.ObserveTurn(time.Since(start), string(StageSynthesize))
			return nil, err
		}
		result.Audio = audio
		result.StageFailures = append(result.StageFailures, failures...)
	}

	outcome := "complete"
	if len(result.StageFailures) > 0 {
		outcome = "degraded"
	}
	o.metrics.ObserveTurn(time.Since(start), outcome)
	logger.Info("turn complete",
		"reply_chars", len(result.Reply),
		"speech", result.Audio != nil,
		"stage_failures", len(result.StageFailures),
	)
	return result, nil
}

func (o *Orchestrator) resolveSTT(ctx context.Context, audio *provider.AudioBuffer) (*provider.Transcript, error) {
	if o.sttChain == nil {
		return nil, &Error{Stage: StageTranscribe, Err: provider.ErrNoProviders}
	}

	start := time.Now()
	transcript, err := o.sttChain.Resolve(ctx, audio)
	o.metrics.ObserveStage(StageTranscribe, time.Since(start), err)
	if err != nil {
		if _, ok := provider.IsExhausted(err); ok || errors.Is(err, provider.ErrNoProviders) {
			return nil, &Error{Stage: StageTranscribe, Err: err}
		}
		return nil, err
	}
	return transcript, nil
}

func (o *Orchestrator) resolveAI(ctx context.Context, sessionID string) (*ai.Reply, error) {
	window, err := o.sessions.BuildContext(sessionID)
	if err != nil {
		return nil, err
	}

	messages := make([]ai.Message, len(window))
	for i, turn := range window {
		messages[i] = ai.Message{Role: ai.Role(turn.Role), Content: turn.Text}
	}

	start := time.Now()
	reply, err := o.aiChain.Resolve(ctx, &ai.Request{Messages: messages, MaxTokens: o.cfg.MaxTokens})
	o.metrics.ObserveStage(StageGenerate, time.Since(start), err)
	if err != nil {
		if _, ok := provider.IsExhausted(err); ok {
			return nil, &Error{Stage: StageGenerate, Err: err}
		}
		return nil, err
	}
	return reply, nil
}

// resolveTTS degrades to a text-only result when every provider fails:
// the stage failures come back instead of an error.
func (o *Orchestrator) resolveTTS(ctx context.Context, text string) (*provider.AudioBuffer, []StageFailure, error) {
	if o.ttsChain == nil {
		return nil, []StageFailure{{Stage: StageSynthesize, Kind: provider.KindUnknown}}, nil
	}

	start := time.Now()
	audio, err := o.ttsChain.Resolve(ctx, text)
	o.metrics.ObserveStage(StageSynthesize, time.Since(start), err)
	if err == nil {
		return audio, nil, nil
	}

	if exhausted, ok := provider.IsExhausted(err); ok {
		failures := make([]StageFailure, len(exhausted.Failures))
		for i, f := range exhausted.Failures {
			failures[i] = StageFailure{Stage: StageSynthesize, ProviderID: f.ProviderID, Kind: f.Kind}
		}
		o.logger.Warn("speech synthesis exhausted, returning text only",
			"failures", len(failures),
		)
		return nil, failures, nil
	}
	return nil, nil, &Error{Stage: StageSynthesize, Err: err}
}
