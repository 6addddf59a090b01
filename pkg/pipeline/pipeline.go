// Package pipeline composes one end-to-end voice turn: audio (or text)
// in, transcript, AI reply, and optionally synthesized speech out.
//
// Each stage resolves through its capability's fallback chain. Stage
// failures are isolated: a failed transcription appends nothing, a
// failed reply preserves the already-appended user turn, and a failed
// synthesis still returns the text reply.
package pipeline

import (
	"fmt"
	"time"

	"github.com/voicetalk/voicegate/pkg/provider"
)

// Stage identifies which pipeline stage an error or failure belongs to.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageGenerate   Stage = "generate"
	StageSynthesize Stage = "synthesize"
)

// Error is a stage-scoped pipeline failure.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline: %s stage failed: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// StageFailure records one provider's failure during a turn that still
// produced a usable result.
type StageFailure struct {
	Stage      Stage         `json:"stage"`
	ProviderID string        `json:"provider_id"`
	Kind       provider.Kind `json:"error_kind"`
}

// Request is one turn's input. Exactly one of Audio or Text must be set;
// Text wins when both are present.
type Request struct {
	// SessionID selects the conversation. Empty means a new session.
	SessionID string

	// Audio is speech input to transcribe.
	Audio *provider.AudioBuffer

	// Text is direct text input, bypassing transcription.
	Text string

	// WantsSpeech requests a synthesized audio reply.
	WantsSpeech bool
}

// Result is one turn's output.
type Result struct {
	// SessionID is the canonical session identifier, generated when the
	// request supplied none.
	SessionID string

	// Transcript is the recognized text for audio input, empty for text
	// input.
	Transcript string

	// Reply is the AI reply text. Always present on success.
	Reply string

	// Audio is the synthesized reply, nil unless speech was requested
	// and synthesis succeeded.
	Audio *provider.AudioBuffer

	// StageFailures lists the synthesis failures behind a degraded
	// text-only result. Failures survived by fallback within a stage are
	// recorded in the health registry, not here.
	StageFailures []StageFailure
}

// MetricsRecorder receives pipeline timing observations.
type MetricsRecorder interface {
	// ObserveStage records one stage resolution.
	ObserveStage(stage Stage, duration time.Duration, err error)

	// ObserveTurn records one whole turn with its outcome
	// ("complete", "degraded", or the failed stage name).
	ObserveTurn(duration time.Duration, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveStage(Stage, time.Duration, error) {}
func (nopMetrics) ObserveTurn(time.Duration, string)        {}
