package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/voicetalk/voicegate/pkg/session"
)

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("generates ID when none supplied", func(t *testing.T) {
		m := session.NewManager()
		defer m.Close()

		id := m.GetOrCreate(ctx, "")
		if id == "" {
			t.Fatal("expected generated session ID")
		}
		if m.Len() != 1 {
			t.Errorf("expected 1 session, got %d", m.Len())
		}
	})

	t.Run("returns existing session", func(t *testing.T) {
		m := session.NewManager()
		defer m.Close()

		m.GetOrCreate(ctx, "s1")
		m.GetOrCreate(ctx, "s1")
		if m.Len() != 1 {
			t.Errorf("expected 1 session, got %d", m.Len())
		}
	})

	t.Run("hydrates history from store", func(t *testing.T) {
		store := session.NewMemoryStore()
		store.Append(ctx, "s1", session.Turn{Role: session.RoleUser, Text: "Hello", At: time.Now()})
		store.Append(ctx, "s1", session.Turn{Role: session.RoleAssistant, Text: "Hi there!", At: time.Now()})

		m := session.NewManager(session.WithStore(store))
		defer m.Close()

		m.GetOrCreate(ctx, "s1")
		history, err := m.History("s1")
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("expected 2 hydrated turns, got %d", len(history))
		}
		if history[0].Text != "Hello" || history[1].Text != "Hi there!" {
			t.Errorf("unexpected history: %+v", history)
		}
	})

	t.Run("hydration keeps turns appended while loading", func(t *testing.T) {
		store := &interleavingStore{MemoryStore: session.NewMemoryStore()}
		store.Append(ctx, "s1", session.Turn{Role: session.RoleUser, Text: "Hello", At: time.Now()})
		store.Append(ctx, "s1", session.Turn{Role: session.RoleAssistant, Text: "Hi there!", At: time.Now()})

		m := session.NewManager(session.WithStore(store))
		defer m.Close()
		store.mgr = m

		m.GetOrCreate(ctx, "s1")
		history, err := m.History("s1")
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history) != 3 {
			t.Fatalf("expected stored history merged with the live turn, got %+v", history)
		}
		if history[0].Text != "Hello" || history[1].Text != "Hi there!" {
			t.Errorf("stored history must come first, got %+v", history)
		}
		if history[2].Text != "meanwhile" {
			t.Errorf("live turn must survive hydration, got %+v", history)
		}
	})
}

// interleavingStore appends a live turn from inside Load, reproducing a
// caller that reaches the session while hydration is still in flight.
type interleavingStore struct {
	*session.MemoryStore
	mgr  *session.Manager
	once sync.Once
}

func (s *interleavingStore) Load(ctx context.Context, sessionID string) ([]session.Turn, error) {
	turns, err := s.MemoryStore.Load(ctx, sessionID)
	s.once.Do(func() {
		if s.mgr != nil {
			s.mgr.AppendTurn(ctx, sessionID, session.RoleUser, "meanwhile")
		}
	})
	return turns, err
}

func TestAppendTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("user then assistant in order", func(t *testing.T) {
		m := session.NewManager()
		defer m.Close()
		m.GetOrCreate(ctx, "s1")

		if err := m.AppendTurn(ctx, "s1", session.RoleUser, "Hello"); err != nil {
			t.Fatalf("append user: %v", err)
		}
		state, _ := m.State("s1")
		if state != session.StateAwaitingReply {
			t.Errorf("expected awaiting_reply, got %s", state)
		}

		if err := m.AppendTurn(ctx, "s1", session.RoleAssistant, "Hi there!"); err != nil {
			t.Fatalf("append assistant: %v", err)
		}
		state, _ = m.State("s1")
		if state != session.StateIdle {
			t.Errorf("expected idle, got %s", state)
		}

		history, _ := m.History("s1")
		if len(history) != 2 {
			t.Fatalf("expected 2 turns, got %d", len(history))
		}
		if history[0].Role != session.RoleUser || history[1].Role != session.RoleAssistant {
			t.Errorf("unexpected order: %+v", history)
		}
	})

	t.Run("second user turn while awaiting is busy", func(t *testing.T) {
		m := session.NewManager()
		defer m.Close()
		m.GetOrCreate(ctx, "s1")

		m.AppendTurn(ctx, "s1", session.RoleUser, "first")
		err := m.AppendTurn(ctx, "s1", session.RoleUser, "second")
		if !errors.Is(err, session.ErrSessionBusy) {
			t.Fatalf("expected ErrSessionBusy, got %v", err)
		}

		history, _ := m.History("s1")
		if len(history) != 1 {
			t.Errorf("rejected turn must not be recorded, history: %+v", history)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		m := session.NewManager()
		defer m.Close()

		err := m.AppendTurn(ctx, "ghost", session.RoleUser, "hello")
		if !errors.Is(err, session.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("concurrent user turns admit exactly one", func(t *testing.T) {
		m := session.NewManager()
		defer m.Close()
		m.GetOrCreate(ctx, "s1")

		const attempts = 8
		var wg sync.WaitGroup
		errs := make([]error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = m.AppendTurn(ctx, "s1", session.RoleUser, "hello")
			}(i)
		}
		wg.Wait()

		ok, busy := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, session.ErrSessionBusy):
				busy++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if ok != 1 || busy != attempts-1 {
			t.Errorf("expected 1 success and %d busy, got %d/%d", attempts-1, ok, busy)
		}
	})
}

func TestAbort(t *testing.T) {
	ctx := context.Background()
	m := session.NewManager()
	defer m.Close()
	m.GetOrCreate(ctx, "s1")

	m.AppendTurn(ctx, "s1", session.RoleUser, "Hello")
	m.Abort("s1")

	state, _ := m.State("s1")
	if state != session.StateIdle {
		t.Errorf("expected idle after abort, got %s", state)
	}

	// History survives the abort; only the turn-taking state resets.
	history, _ := m.History("s1")
	if len(history) != 1 {
		t.Errorf("expected user turn preserved, history: %+v", history)
	}
	if err := m.AppendTurn(ctx, "s1", session.RoleUser, "again"); err != nil {
		t.Errorf("expected new turn accepted after abort, got %v", err)
	}
}

func TestBuildContext(t *testing.T) {
	ctx := context.Background()

	t.Run("truncates oldest first", func(t *testing.T) {
		m := session.NewManager(session.WithMaxTurns(4))
		defer m.Close()
		m.GetOrCreate(ctx, "s1")

		for i := 0; i < 5; i++ {
			m.AppendTurn(ctx, "s1", session.RoleUser, fmt.Sprintf("q%d", i))
			m.AppendTurn(ctx, "s1", session.RoleAssistant, fmt.Sprintf("a%d", i))
		}

		window, err := m.BuildContext("s1")
		if err != nil {
			t.Fatalf("BuildContext: %v", err)
		}
		if len(window) != 4 {
			t.Fatalf("expected 4 turns, got %d", len(window))
		}
		if window[0].Text != "q3" {
			t.Errorf("expected oldest kept turn q3, got %q", window[0].Text)
		}
		if window[3].Text != "a4" {
			t.Errorf("expected newest turn a4, got %q", window[3].Text)
		}
	})

	t.Run("token budget keeps the newest turn", func(t *testing.T) {
		m := session.NewManager(session.WithMaxTurns(10), session.WithTokenBudget(1))
		defer m.Close()
		m.GetOrCreate(ctx, "s1")

		m.AppendTurn(ctx, "s1", session.RoleUser, "a rather long opening message")
		m.AppendTurn(ctx, "s1", session.RoleAssistant, "an equally long reply to it")
		m.Abort("s1")
		m.AppendTurn(ctx, "s1", session.RoleUser, "latest")

		window, err := m.BuildContext("s1")
		if err != nil {
			t.Fatalf("BuildContext: %v", err)
		}
		if len(window) == 0 {
			t.Fatal("window must never be empty")
		}
		if window[len(window)-1].Text != "latest" {
			t.Errorf("newest turn must survive trimming, got %+v", window)
		}
	})
}

func TestEviction(t *testing.T) {
	ctx := context.Background()
	m := session.NewManager(
		session.WithIdleTimeout(20*time.Millisecond),
		session.WithSweepInterval(10*time.Millisecond),
	)
	defer m.Close()

	m.GetOrCreate(ctx, "idle")
	m.GetOrCreate(ctx, "busy")
	m.AppendTurn(ctx, "busy", session.RoleUser, "still working")

	deadline := time.Now().Add(2 * time.Second)
	for m.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if m.Len() != 1 {
		t.Fatalf("expected idle session evicted, have %d sessions", m.Len())
	}
	if _, err := m.State("busy"); err != nil {
		t.Error("awaiting session must never be evicted")
	}
	if _, err := m.State("idle"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected idle session gone, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	m := session.NewManager(session.WithStore(store))
	defer m.Close()

	m.GetOrCreate(ctx, "s1")
	m.AppendTurn(ctx, "s1", session.RoleUser, "Hello")
	m.Remove(ctx, "s1")

	if m.Len() != 0 {
		t.Errorf("expected 0 sessions, got %d", m.Len())
	}
	turns, _ := store.Load(ctx, "s1")
	if len(turns) != 0 {
		t.Errorf("expected stored history deleted, got %+v", turns)
	}
}
