package stt_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/voicetalk/voicegate/pkg/provider"
	"github.com/voicetalk/voicegate/pkg/stt"
)

// voskServer fakes the vosk-server websocket protocol: a partial result per
// audio frame and a final result on eof.
func voskServer(t *testing.T, final string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// Config message arrives first.
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage || !strings.Contains(string(raw), "sample_rate") {
			t.Errorf("expected config message, got %s", raw)
		}

		for {
			msgType, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.TextMessage && strings.Contains(string(raw), "eof") {
				conn.WriteMessage(websocket.TextMessage, []byte(final))
				return
			}
			conn.WriteMessage(websocket.TextMessage, []byte(`{"partial": "hel"}`))
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestVosk(t *testing.T) {
	ctx := context.Background()

	t.Run("aggregates final results with word confidence", func(t *testing.T) {
		srv := voskServer(t, `{"text": "hello world", "result": [{"word": "hello", "conf": 1.0}, {"word": "world", "conf": 0.8}]}`)
		defer srv.Close()

		p, err := stt.NewVosk(stt.WithBaseURL(wsURL(srv)))
		if err != nil {
			t.Fatalf("NewVosk: %v", err)
		}

		transcript, err := p.Transcribe(ctx, pcmBuffer(16000))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if transcript.Text != "hello world" {
			t.Errorf("unexpected text: %q", transcript.Text)
		}
		if transcript.Confidence != 0.9 {
			t.Errorf("expected averaged confidence 0.9, got %f", transcript.Confidence)
		}
		if transcript.Provider != "vosk" {
			t.Errorf("unexpected provider: %s", transcript.Provider)
		}
	})

	t.Run("heuristic confidence without word results", func(t *testing.T) {
		srv := voskServer(t, `{"text": "hello"}`)
		defer srv.Close()

		p, _ := stt.NewVosk(stt.WithBaseURL(wsURL(srv)))
		transcript, err := p.Transcribe(ctx, pcmBuffer(4000))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if transcript.Confidence != 0.9 {
			t.Errorf("expected heuristic confidence 0.9, got %f", transcript.Confidence)
		}
	})

	t.Run("empty final result is a bad response", func(t *testing.T) {
		srv := voskServer(t, `{"text": ""}`)
		defer srv.Close()

		p, _ := stt.NewVosk(stt.WithBaseURL(wsURL(srv)))
		_, err := p.Transcribe(ctx, pcmBuffer(4000))
		if provider.Classify(err) != provider.KindBadResponse {
			t.Errorf("expected bad response classification, got %v", err)
		}
	})

	t.Run("malformed JSON is a bad response", func(t *testing.T) {
		srv := voskServer(t, `{not json`)
		defer srv.Close()

		p, _ := stt.NewVosk(stt.WithBaseURL(wsURL(srv)))
		_, err := p.Transcribe(ctx, pcmBuffer(4000))
		if provider.Classify(err) != provider.KindBadResponse {
			t.Errorf("expected bad response classification, got %v", err)
		}
	})

	t.Run("rejects empty audio without dialing", func(t *testing.T) {
		p, _ := stt.NewVosk(stt.WithBaseURL("ws://127.0.0.1:1")) // nothing listens here
		_, err := p.Transcribe(ctx, &provider.AudioBuffer{})

		var ve *provider.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("health dials the server", func(t *testing.T) {
		srv := voskServer(t, `{"text": ""}`)
		defer srv.Close()

		p, _ := stt.NewVosk(stt.WithBaseURL(wsURL(srv)))
		if err := p.Health(ctx); err != nil {
			t.Errorf("unexpected error: %v", err)
		}

		down, _ := stt.NewVosk(stt.WithBaseURL("ws://127.0.0.1:1"))
		if err := down.Health(ctx); err == nil {
			t.Error("expected error for unreachable server")
		}
	})
}
