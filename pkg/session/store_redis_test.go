package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/voicetalk/voicegate/pkg/session"
)

func redisStore(t *testing.T, ttl time.Duration) (*session.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewRedisStore(client, ttl)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()

	t.Run("append and load round trip", func(t *testing.T) {
		store, _ := redisStore(t, 0)

		at := time.Now().UTC().Truncate(time.Second)
		store.Append(ctx, "s1", session.Turn{Role: session.RoleUser, Text: "Hello", At: at})
		store.Append(ctx, "s1", session.Turn{Role: session.RoleAssistant, Text: "Hi there!", At: at})

		turns, err := store.Load(ctx, "s1")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(turns) != 2 {
			t.Fatalf("expected 2 turns, got %d", len(turns))
		}
		if turns[0].Role != session.RoleUser || turns[0].Text != "Hello" {
			t.Errorf("unexpected first turn: %+v", turns[0])
		}
		if !turns[0].At.Equal(at) {
			t.Errorf("timestamp not preserved: %v != %v", turns[0].At, at)
		}
	})

	t.Run("unknown session loads empty", func(t *testing.T) {
		store, _ := redisStore(t, 0)

		turns, err := store.Load(ctx, "ghost")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(turns) != 0 {
			t.Errorf("expected empty history, got %+v", turns)
		}
	})

	t.Run("delete removes history", func(t *testing.T) {
		store, _ := redisStore(t, 0)

		store.Append(ctx, "s1", session.Turn{Role: session.RoleUser, Text: "Hello"})
		if err := store.Delete(ctx, "s1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		turns, _ := store.Load(ctx, "s1")
		if len(turns) != 0 {
			t.Errorf("expected empty history after delete, got %+v", turns)
		}
	})

	t.Run("history expires after the idle window", func(t *testing.T) {
		store, mr := redisStore(t, time.Minute)

		store.Append(ctx, "s1", session.Turn{Role: session.RoleUser, Text: "Hello"})
		mr.FastForward(2 * time.Minute)

		turns, err := store.Load(ctx, "s1")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(turns) != 0 {
			t.Errorf("expected expired history, got %+v", turns)
		}
	})

	t.Run("manager survives a restart", func(t *testing.T) {
		mr := miniredis.RunT(t)

		open := func() *session.Manager {
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			return session.NewManager(session.WithStore(session.NewRedisStore(client, 0)))
		}

		m := open()
		m.GetOrCreate(ctx, "s1")
		m.AppendTurn(ctx, "s1", session.RoleUser, "Hello")
		m.AppendTurn(ctx, "s1", session.RoleAssistant, "Hi there!")
		m.Close()

		m = open()
		defer m.Close()
		m.GetOrCreate(ctx, "s1")
		history, err := m.History("s1")
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history) != 2 {
			t.Errorf("expected history to survive restart, got %+v", history)
		}
	})
}
