// voicegate is a voice-interaction gateway: speech or text in, an AI
// reply out, optionally spoken. Providers per capability are tried in
// health-aware fallback order.
//
// Usage:
//
//	voicegate serve      -config voicegate.yaml
//	voicegate talk       -config voicegate.yaml [-speak]
//	voicegate transcribe -config voicegate.yaml [-json] <audio-file>
//	voicegate status     -config voicegate.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/voicetalk/voicegate/internal/config"
	"github.com/voicetalk/voicegate/internal/log"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "talk":
		err = runTalk(os.Args[2:])
	case "transcribe":
		err = runTranscribe(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "voicegate: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "voicegate: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `voicegate - multi-provider voice interaction gateway

Commands:
  serve       Run the HTTP API
  talk        Interactive conversation on the terminal
  transcribe  Transcribe an audio file
  status      Show provider health and session count

Run "voicegate <command> -h" for command flags.`)
}

// commonFlags registers the flags every command shares.
func commonFlags(fs *flag.FlagSet) (configPath, logLevel *string) {
	configPath = fs.String("config", "voicegate.yaml", "Path to the configuration file")
	logLevel = fs.String("log-level", "", "Override the configured log level")
	return
}

// setup loads configuration, initializes logging, and wires the gateway.
func setup(ctx context.Context, configPath, logLevel string) (*gateway, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log.Init(cfg.LogLevel)

	return buildGateway(ctx, cfg)
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
