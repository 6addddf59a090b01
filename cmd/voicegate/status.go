package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

const healthProbeTimeout = 5 * time.Second

// runStatus probes every configured backend and prints the health
// registry snapshot.
func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath, logLevel := commonFlags(fs)
	fs.Parse(args)

	ctx, stop := signalContext()
	defer stop()

	g, err := setup(ctx, *configPath, *logLevel)
	if err != nil {
		return err
	}
	defer g.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tREACHABLE\tSTATE\tFAILURES")

	for _, a := range g.adapters {
		probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		reachable := "yes"
		if err := a.health(probeCtx); err != nil {
			reachable = fmt.Sprintf("no (%v)", err)
		}
		cancel()

		state := g.registry.State(a.id)
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", a.id, reachable, state, g.registry.Failures(a.id))
	}
	w.Flush()

	fmt.Printf("\nsessions: %d\n", g.sessions.Len())
	return nil
}
