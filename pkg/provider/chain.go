package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Binding pairs a provider Spec with the adapter call that invokes it.
type Binding[I, O any] struct {
	Spec   *Spec
	Invoke func(ctx context.Context, in I) (O, error)
}

// Bind builds a Binding from a spec and an adapter method.
func Bind[I, O any](spec *Spec, fn func(ctx context.Context, in I) (O, error)) Binding[I, O] {
	return Binding[I, O]{Spec: spec, Invoke: fn}
}

// Chain resolves a capability request by trying providers in order until
// one succeeds. Ordering is recomputed on every call: healthy (and not yet
// tried) providers first, then degraded ones, disabled excluded, ties
// broken by configured priority and then configuration order.
type Chain[I, O any] struct {
	capability Capability
	registry   *Registry
	bindings   []Binding[I, O]
	logger     *slog.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*chainConfig)

type chainConfig struct {
	logger *slog.Logger
}

// WithChainLogger sets the logger used for fallback decisions.
func WithChainLogger(logger *slog.Logger) ChainOption {
	return func(c *chainConfig) { c.logger = logger }
}

// NewChain creates a fallback chain for one capability.
// At least one binding is required.
func NewChain[I, O any](capability Capability, registry *Registry, bindings []Binding[I, O], opts ...ChainOption) (*Chain[I, O], error) {
	if len(bindings) == 0 {
		return nil, ErrNoProviders
	}
	if registry == nil {
		registry = NewRegistry()
	}

	cfg := chainConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	// Configured priority order is the baseline; health reshuffles per call.
	sorted := make([]Binding[I, O], len(bindings))
	copy(sorted, bindings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Spec.Priority < sorted[j].Spec.Priority
	})

	// Every configured provider is visible to monitoring from the start,
	// not only after its first attempt.
	for _, b := range sorted {
		registry.Register(b.Spec.ID)
	}

	return &Chain[I, O]{
		capability: capability,
		registry:   registry,
		bindings:   sorted,
		logger:     cfg.logger.With("component", "provider.chain", "capability", string(capability)),
	}, nil
}

// Capability returns the capability this chain resolves.
func (c *Chain[I, O]) Capability() Capability { return c.capability }

// Registry returns the health registry backing this chain.
func (c *Chain[I, O]) Registry() *Registry { return c.registry }

// Specs returns the configured provider specs in priority order.
func (c *Chain[I, O]) Specs() []*Spec {
	specs := make([]*Spec, len(c.bindings))
	for i, b := range c.bindings {
		specs[i] = b.Spec
	}
	return specs
}

// Resolve tries each provider in health-then-priority order until one
// succeeds. The per-provider timeout from the Spec bounds each attempt; a
// parent context cancellation aborts the whole resolution.
//
// Validation errors propagate immediately without touching health state:
// the same input would be rejected by every provider.
func (c *Chain[I, O]) Resolve(ctx context.Context, in I) (O, error) {
	var zero O
	var failures []Failure

	for i, b := range c.ordered() {
		id := b.Spec.ID

		out, err := c.attempt(ctx, b, in)
		if err == nil {
			c.registry.MarkSuccess(id)
			if i > 0 {
				c.logger.Info("fallback provider succeeded", "provider", id, "attempt", i+1)
			}
			return out, nil
		}

		kind := Classify(err)
		if kind == KindValidation {
			return zero, err
		}

		c.registry.MarkFailure(id, kind)
		failures = append(failures, Failure{ProviderID: id, Kind: kind, Err: err})
		c.logger.Warn("provider failed, trying next",
			"provider", id,
			"kind", string(kind),
			"error", err,
		)

		// A dead parent context means the caller is gone, not that the
		// provider misbehaved.
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}

	return zero, &ExhaustedError{Capability: c.capability, Failures: failures}
}

// attempt invokes one provider under its configured per-call timeout.
func (c *Chain[I, O]) attempt(ctx context.Context, b Binding[I, O], in I) (O, error) {
	if b.Spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Spec.Timeout)
		defer cancel()
	}
	return b.Invoke(ctx, in)
}

// ordered returns the bindings to try this call: disabled excluded,
// healthy/unknown before degraded, ties by configured order.
func (c *Chain[I, O]) ordered() []Binding[I, O] {
	out := make([]Binding[I, O], 0, len(c.bindings))
	for _, b := range c.bindings {
		if c.registry.State(b.Spec.ID) != HealthDisabled {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return healthRank(c.registry.State(out[i].Spec.ID)) < healthRank(c.registry.State(out[j].Spec.ID))
	})
	return out
}

// healthRank orders states for resolution: unknown providers rank with
// healthy ones so fresh configs get exercised.
func healthRank(s HealthState) int {
	if s == HealthDegraded {
		return 1
	}
	return 0
}

// Failure records one provider's error during a resolution.
type Failure struct {
	ProviderID string
	Kind       Kind
	Err        error
}

// ExhaustedError is returned when every provider in a chain failed.
// Failures preserves the order in which providers were attempted.
type ExhaustedError struct {
	Capability Capability
	Failures   []Failure
}

func (e *ExhaustedError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("provider: no %s providers available", e.Capability)
	}
	last := e.Failures[len(e.Failures)-1]
	return fmt.Sprintf("provider: all %d %s providers failed, last error: %v",
		len(e.Failures), e.Capability, last.Err)
}

// Unwrap returns the last provider error.
func (e *ExhaustedError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[len(e.Failures)-1].Err
}

// IsExhausted reports whether err is an ExhaustedError, returning it.
func IsExhausted(err error) (*ExhaustedError, bool) {
	var ee *ExhaustedError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
