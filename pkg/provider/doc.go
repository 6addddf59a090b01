// Package provider defines the shared contract between capability adapters
// (speech-to-text, text generation, text-to-speech) and the fallback
// resolver that orchestrates them.
//
// Adapters live in pkg/stt, pkg/ai and pkg/tts; each implements exactly one
// capability and never retries on its own. This package owns everything the
// capabilities have in common:
//
//   - the error taxonomy (Classify) that drives fallback decisions
//   - the health Registry shared by all sessions in the process
//   - the generic Chain that tries providers in health-then-priority order
//
// A Chain is built from Bindings, each pairing a Spec (identity, priority,
// per-call timeout) with the adapter call for one provider:
//
//	chain, _ := provider.NewChain(provider.CapabilityTTS, registry,
//	    []provider.Binding[string, *provider.AudioBuffer]{
//	        provider.Bind(specA, providerA.Synthesize),
//	        provider.Bind(specB, providerB.Synthesize),
//	    },
//	)
//	audio, err := chain.Resolve(ctx, "Hello world")
//
// The first success wins. Auth failures disable a provider for the process
// lifetime; repeated timeouts or malformed responses demote it behind
// currently-reliable providers without abandoning it.
package provider
