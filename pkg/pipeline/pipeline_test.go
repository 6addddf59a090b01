package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voicetalk/voicegate/pkg/ai"
	"github.com/voicetalk/voicegate/pkg/pipeline"
	"github.com/voicetalk/voicegate/pkg/provider"
	"github.com/voicetalk/voicegate/pkg/session"
	"github.com/voicetalk/voicegate/pkg/stt"
	"github.com/voicetalk/voicegate/pkg/tts"
)

func spec(id string, capability provider.Capability, priority int) *provider.Spec {
	return &provider.Spec{ID: id, Capability: capability, Priority: priority}
}

func sttChain(t *testing.T, reg *provider.Registry, p stt.Provider) *stt.Chain {
	t.Helper()
	chain, err := stt.NewChain(reg, []provider.Binding[*provider.AudioBuffer, *provider.Transcript]{
		stt.Binding(spec("stt-1", provider.CapabilitySTT, 0), p),
	})
	if err != nil {
		t.Fatalf("stt chain: %v", err)
	}
	return chain
}

func orderedSTTChain(t *testing.T, reg *provider.Registry, first, second stt.Provider) *stt.Chain {
	t.Helper()
	chain, err := stt.NewChain(reg, []provider.Binding[*provider.AudioBuffer, *provider.Transcript]{
		stt.Binding(spec("stt-a", provider.CapabilitySTT, 0), first),
		stt.Binding(spec("stt-b", provider.CapabilitySTT, 1), second),
	})
	if err != nil {
		t.Fatalf("stt chain: %v", err)
	}
	return chain
}

func aiChain(t *testing.T, reg *provider.Registry, p ai.Provider) *ai.Chain {
	t.Helper()
	chain, err := ai.NewChain(reg, []provider.Binding[*ai.Request, *ai.Reply]{
		ai.Binding(spec("ai-1", provider.CapabilityAI, 0), p),
	})
	if err != nil {
		t.Fatalf("ai chain: %v", err)
	}
	return chain
}

func ttsChain(t *testing.T, reg *provider.Registry, p tts.Provider) *tts.Chain {
	t.Helper()
	chain, err := tts.NewChain(reg, []provider.Binding[string, *provider.AudioBuffer]{
		tts.Binding(spec("tts-1", provider.CapabilityTTS, 0), p),
	})
	if err != nil {
		t.Fatalf("tts chain: %v", err)
	}
	return chain
}

func newManager(t *testing.T, opts ...session.Option) *session.Manager {
	t.Helper()
	m := session.NewManager(opts...)
	t.Cleanup(func() { m.Close() })
	return m
}

func pcmBuffer(n int) *provider.AudioBuffer {
	return &provider.AudioBuffer{
		Data:       make([]byte, n),
		Encoding:   provider.EncodingPCM16,
		SampleRate: 16000,
		Channels:   1,
	}
}

func TestRunTextTurn(t *testing.T) {
	ctx := context.Background()
	sessions := newManager(t)
	orch, err := pipeline.NewOrchestrator(
		nil,
		aiChain(t, provider.NewRegistry(), ai.NewMock("Hi there!")),
		nil,
		sessions,
	)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	result, err := orch.Run(ctx, &pipeline.Request{SessionID: "s1", Text: "Hello"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Reply != "Hi there!" {
		t.Errorf("unexpected reply: %q", result.Reply)
	}
	if result.Audio != nil {
		t.Errorf("expected no audio, got %d bytes", len(result.Audio.Data))
	}
	if len(result.StageFailures) != 0 {
		t.Errorf("expected no stage failures, got %+v", result.StageFailures)
	}

	history, err := sessions.History("s1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(history))
	}
	if history[0].Role != session.RoleUser || history[0].Text != "Hello" {
		t.Errorf("unexpected user turn: %+v", history[0])
	}
	if history[1].Role != session.RoleAssistant || history[1].Text != "Hi there!" {
		t.Errorf("unexpected assistant turn: %+v", history[1])
	}
}

func TestRunAudioTurn(t *testing.T) {
	ctx := context.Background()
	sessions := newManager(t)
	orch, _ := pipeline.NewOrchestrator(
		sttChain(t, provider.NewRegistry(), stt.NewMock("Hello")),
		aiChain(t, provider.NewRegistry(), ai.NewMock("Hi there!")),
		ttsChain(t, provider.NewRegistry(), tts.NewMock()),
		sessions,
	)

	result, err := orch.Run(ctx, &pipeline.Request{SessionID: "s1", Audio: pcmBuffer(3200), WantsSpeech: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Transcript != "Hello" {
		t.Errorf("unexpected transcript: %q", result.Transcript)
	}
	if result.Reply != "Hi there!" {
		t.Errorf("unexpected reply: %q", result.Reply)
	}
	if result.Audio == nil || len(result.Audio.Data) == 0 {
		t.Error("expected synthesized audio")
	}
}

func TestRunEmptyInput(t *testing.T) {
	sessions := newManager(t)
	orch, _ := pipeline.NewOrchestrator(nil, aiChain(t, provider.NewRegistry(), ai.NewMock("x")), nil, sessions)

	_, err := orch.Run(context.Background(), &pipeline.Request{SessionID: "s1"})
	var ve *provider.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestRunSTTExhaustion(t *testing.T) {
	ctx := context.Background()
	sessions := newManager(t)
	orch, _ := pipeline.NewOrchestrator(
		orderedSTTChain(t, provider.NewRegistry(),
			stt.NewMockError(context.DeadlineExceeded),
			stt.NewMockError(context.DeadlineExceeded),
		),
		aiChain(t, provider.NewRegistry(), ai.NewMock("never reached")),
		nil,
		sessions,
	)

	_, err := orch.Run(ctx, &pipeline.Request{SessionID: "s1", Audio: pcmBuffer(3200)})

	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected pipeline.Error, got %v", err)
	}
	if pe.Stage != pipeline.StageTranscribe {
		t.Errorf("expected transcribe stage, got %s", pe.Stage)
	}
	exhausted, ok := provider.IsExhausted(err)
	if !ok {
		t.Fatalf("expected exhaustion underneath, got %v", err)
	}
	if len(exhausted.Failures) != 2 {
		t.Errorf("expected 2 provider failures, got %+v", exhausted.Failures)
	}

	// No history mutation before a transcript exists.
	history, _ := sessions.History("s1")
	if len(history) != 0 {
		t.Errorf("expected unchanged history, got %+v", history)
	}
}

func TestRunSTTFallback(t *testing.T) {
	ctx := context.Background()
	reg := provider.NewRegistry()
	sessions := newManager(t)
	orch, _ := pipeline.NewOrchestrator(
		orderedSTTChain(t, reg,
			stt.NewMockError(context.DeadlineExceeded),
			stt.NewMock("Hello"),
		),
		aiChain(t, provider.NewRegistry(), ai.NewMock("Hi there!")),
		nil,
		sessions,
	)

	result, err := orch.Run(ctx, &pipeline.Request{SessionID: "s1", Audio: pcmBuffer(3200)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Transcript != "Hello" {
		t.Errorf("expected fallback transcript, got %q", result.Transcript)
	}
	if got := reg.Failures("stt-a"); got != 1 {
		t.Errorf("expected 1 failure recorded for stt-a, got %d", got)
	}
}

func TestRunAIExhaustion(t *testing.T) {
	ctx := context.Background()
	sessions := newManager(t)
	orch, _ := pipeline.NewOrchestrator(
		nil,
		aiChain(t, provider.NewRegistry(), ai.NewMockError(errors.New("model overloaded"))),
		nil,
		sessions,
	)

	_, err := orch.Run(ctx, &pipeline.Request{SessionID: "s1", Text: "Hello"})

	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected pipeline.Error, got %v", err)
	}
	if pe.Stage != pipeline.StageGenerate {
		t.Errorf("expected generate stage, got %s", pe.Stage)
	}

	// The user's message was real; it stays. The session must not be
	// wedged in awaiting_reply.
	history, _ := sessions.History("s1")
	if len(history) != 1 || history[0].Role != session.RoleUser {
		t.Fatalf("expected preserved user turn, got %+v", history)
	}
	state, _ := sessions.State("s1")
	if state != session.StateIdle {
		t.Errorf("expected idle session after failure, got %s", state)
	}
}

func TestRunTTSDegradedSuccess(t *testing.T) {
	ctx := context.Background()
	sessions := newManager(t)
	orch, _ := pipeline.NewOrchestrator(
		nil,
		aiChain(t, provider.NewRegistry(), ai.NewMock("Hi there!")),
		ttsChain(t, provider.NewRegistry(), tts.NewMockError(errors.New("voice service down"))),
		sessions,
	)

	result, err := orch.Run(ctx, &pipeline.Request{SessionID: "s1", Text: "Hello", WantsSpeech: true})
	if err != nil {
		t.Fatalf("expected degraded success, got %v", err)
	}

	if result.Reply != "Hi there!" {
		t.Errorf("unexpected reply: %q", result.Reply)
	}
	if result.Audio != nil {
		t.Error("expected no audio after synthesis exhaustion")
	}
	if len(result.StageFailures) != 1 {
		t.Fatalf("expected 1 stage failure, got %+v", result.StageFailures)
	}
	if result.StageFailures[0].Stage != pipeline.StageSynthesize {
		t.Errorf("unexpected failure stage: %s", result.StageFailures[0].Stage)
	}
	if result.StageFailures[0].ProviderID != "tts-1" {
		t.Errorf("unexpected failure provider: %s", result.StageFailures[0].ProviderID)
	}

	// The assistant turn is recorded even though speech failed.
	history, _ := sessions.History("s1")
	if len(history) != 2 || history[1].Role != session.RoleAssistant {
		t.Errorf("expected assistant turn recorded, got %+v", history)
	}
}

func TestRunSessionBusy(t *testing.T) {
	ctx := context.Background()
	sessions := newManager(t)

	release := make(chan struct{})
	started := make(chan struct{})
	slow := &ai.Mock{GenerateFunc: func(ctx context.Context, req *ai.Request) (*ai.Reply, error) {
		close(started)
		<-release
		return &ai.Reply{Text: "done", Provider: "mock"}, nil
	}}

	orch, _ := pipeline.NewOrchestrator(nil, aiChain(t, provider.NewRegistry(), slow), nil, sessions)

	done := make(chan error, 1)
	go func() {
		_, err := orch.Run(ctx, &pipeline.Request{SessionID: "s1", Text: "first"})
		done <- err
	}()

	<-started
	_, err := orch.Run(ctx, &pipeline.Request{SessionID: "s1", Text: "second"})
	if !errors.Is(err, session.ErrSessionBusy) {
		t.Errorf("expected ErrSessionBusy, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first turn failed: %v", err)
	}

	history, _ := sessions.History("s1")
	if len(history) != 2 {
		t.Errorf("expected only the first exchange recorded, got %+v", history)
	}
}

func TestRunContextWindow(t *testing.T) {
	ctx := context.Background()
	sessions := newManager(t, session.WithMaxTurns(3))

	mock := ai.NewMock("reply")
	orch, _ := pipeline.NewOrchestrator(nil, aiChain(t, provider.NewRegistry(), mock), nil, sessions)

	for _, text := range []string{"one", "two", "three"} {
		if _, err := orch.Run(ctx, &pipeline.Request{SessionID: "s1", Text: text}); err != nil {
			t.Fatalf("Run %q: %v", text, err)
		}
	}

	req := mock.LastRequest()
	if req == nil {
		t.Fatal("expected recorded AI request")
	}
	if len(req.Messages) != 3 {
		t.Fatalf("expected window of 3 messages, got %d", len(req.Messages))
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != ai.RoleUser || last.Content != "three" {
		t.Errorf("expected newest user message last, got %+v", last)
	}
}

func TestRunConcurrentSessions(t *testing.T) {
	ctx := context.Background()
	sessions := newManager(t)
	orch, _ := pipeline.NewOrchestrator(
		nil,
		aiChain(t, provider.NewRegistry(), ai.NewMock("hi")),
		nil,
		sessions,
		pipeline.WithMaxConcurrentTurns(4),
	)

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			_, err := orch.Run(ctx, &pipeline.Request{
				SessionID: string(rune('a' + i)),
				Text:      "hello",
			})
			errs <- err
		}(i)
	}

	deadline := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			if err != nil {
				t.Errorf("concurrent turn failed: %v", err)
			}
		case <-deadline:
			t.Fatal("concurrent turns did not finish")
		}
	}
	if sessions.Len() != n {
		t.Errorf("expected %d sessions, got %d", n, sessions.Len())
	}
}

func TestRunGeneratedSessionID(t *testing.T) {
	sessions := newManager(t)
	orch, _ := pipeline.NewOrchestrator(nil, aiChain(t, provider.NewRegistry(), ai.NewMock("hi")), nil, sessions)

	result, err := orch.Run(context.Background(), &pipeline.Request{Text: "hello"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.SessionID == "" {
		t.Error("expected generated session ID")
	}
}
