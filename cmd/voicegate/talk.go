package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/voicetalk/voicegate/pkg/pipeline"
	"github.com/voicetalk/voicegate/pkg/provider"
	"github.com/voicetalk/voicegate/pkg/session"
)

// runTalk is an interactive conversation loop on the terminal.
// Type a message, get the AI reply; "exit" or "quit" leaves.
func runTalk(args []string) error {
	fs := flag.NewFlagSet("talk", flag.ExitOnError)
	configPath, logLevel := commonFlags(fs)
	speak := fs.Bool("speak", false, "Synthesize replies and save the audio next to the session")
	fs.Parse(args)

	ctx, stop := signalContext()
	defer stop()

	g, err := setup(ctx, *configPath, *logLevel)
	if err != nil {
		return err
	}
	defer g.Close()

	fmt.Println("voicegate interactive session (exit or quit to leave)")

	var sessionID string
	replies := 0
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			break
		}

		result, err := g.orch.Run(ctx, &pipeline.Request{
			SessionID:   sessionID,
			Text:        text,
			WantsSpeech: *speak,
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, session.ErrSessionBusy) {
				fmt.Println("(still replying, try again)")
				continue
			}
			fmt.Printf("(error: %v)\n", err)
			continue
		}
		sessionID = result.SessionID

		fmt.Printf("ai>  %s\n", result.Reply)
		for _, f := range result.StageFailures {
			fmt.Printf("(degraded: %s via %s failed with %s)\n", f.Stage, f.ProviderID, f.Kind)
		}

		if result.Audio != nil {
			replies++
			path, err := saveAudio(result.Audio, sessionID, replies)
			if err != nil {
				fmt.Printf("(could not save audio: %v)\n", err)
				continue
			}
			fmt.Printf("(audio saved to %s)\n", path)
		}
	}
	return scanner.Err()
}

// saveAudio writes a reply's audio buffer to the temp dir.
func saveAudio(audio *provider.AudioBuffer, sessionID string, n int) (string, error) {
	ext := "pcm"
	switch audio.Encoding {
	case provider.EncodingMP3:
		ext = "mp3"
	case provider.EncodingOpus:
		ext = "opus"
	}
	path := filepath.Join(os.TempDir(), fmt.Sprintf("voicegate-%s-%d.%s", sessionID, n, ext))
	if err := os.WriteFile(path, audio.Data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
