package main

import (
	"flag"

	"github.com/voicetalk/voicegate/internal/log"
	"github.com/voicetalk/voicegate/pkg/web"
)

// runServe starts the HTTP API and blocks until a signal arrives.
func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath, logLevel := commonFlags(fs)
	listen := fs.String("listen", "", "Override the configured listen address")
	fs.Parse(args)

	ctx, stop := signalContext()
	defer stop()

	g, err := setup(ctx, *configPath, *logLevel)
	if err != nil {
		return err
	}
	defer g.Close()

	addr := g.cfg.Listen
	if *listen != "" {
		addr = *listen
	}

	server := web.NewServer(g.orch, g.registry, log.L())

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Component("main").Info("shutting down")
		return server.Shutdown()
	}
}
