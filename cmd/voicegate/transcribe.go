package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/voicetalk/voicegate/pkg/provider"
)

// runTranscribe transcribes an audio file through the STT chain.
func runTranscribe(args []string) error {
	fs := flag.NewFlagSet("transcribe", flag.ExitOnError)
	configPath, logLevel := commonFlags(fs)
	encoding := fs.String("encoding", string(provider.EncodingPCM16), "Audio encoding of the input file")
	rate := fs.Int("rate", 0, "Sample rate; derived from the encoding when 0")
	asJSON := fs.Bool("json", false, "Emit the transcript as JSON")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("transcribe: exactly one audio file expected")
	}
	path := fs.Arg(0)

	ctx, stop := signalContext()
	defer stop()

	g, err := setup(ctx, *configPath, *logLevel)
	if err != nil {
		return err
	}
	defer g.Close()

	if g.sttChain == nil {
		return errors.New("transcribe: no STT providers configured")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	sampleRate := *rate
	if sampleRate == 0 {
		sampleRate = provider.SampleRateFromEncoding(provider.Encoding(*encoding))
	}

	transcript, err := g.sttChain.Resolve(ctx, &provider.AudioBuffer{
		Data:       data,
		Encoding:   provider.Encoding(*encoding),
		SampleRate: sampleRate,
		Channels:   1,
	})
	if err != nil {
		return err
	}

	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"text":       transcript.Text,
			"confidence": transcript.Confidence,
			"provider":   transcript.Provider,
		})
	}
	fmt.Println(transcript.Text)
	return nil
}
