package provider

import (
	"sort"
	"sync"
	"time"
)

// HealthState tracks how a provider has been behaving recently.
type HealthState int

const (
	// HealthUnknown means the provider has not been tried yet.
	// It is ranked with healthy providers so new configs get exercised.
	HealthUnknown HealthState = iota

	// HealthHealthy means the most recent attempt succeeded.
	HealthHealthy

	// HealthDegraded means the provider crossed the consecutive-failure
	// threshold. Still attempted, but after all healthy providers.
	HealthDegraded

	// HealthDisabled means credentials were rejected. The provider is
	// skipped for the rest of the process lifetime.
	HealthDisabled
)

func (s HealthState) String() string {
	switch s {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Spec describes one configured provider: identity, fallback rank, and the
// per-call budget the resolver applies when invoking it.
type Spec struct {
	// ID uniquely identifies the provider within the process.
	ID string

	// Capability is what the provider does (stt, ai, tts).
	Capability Capability

	// Priority is the configured fallback rank; lower is tried first.
	Priority int

	// Endpoint overrides the adapter's default API endpoint, if set.
	Endpoint string

	// CredentialRef names where the credential comes from (an environment
	// variable or secret name). The core never stores credentials.
	CredentialRef string

	// Timeout is the per-call budget applied by the resolver.
	Timeout time.Duration
}

// Health is a read-only snapshot of one provider's state, exported for
// monitoring layers.
type Health struct {
	ProviderID          string      `json:"provider_id"`
	State               HealthState `json:"-"`
	StateName           string      `json:"state"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
}

// DefaultFailureThreshold is how many consecutive timeouts or bad responses
// demote a provider to degraded.
const DefaultFailureThreshold = 3

// Registry tracks provider health across all sessions in the process.
// It is safe for concurrent use; every update happens under one lock so
// failure counters are never lost under concurrent resolutions.
//
// The registry is injectable: tests seed arbitrary states with Set.
type Registry struct {
	mu        sync.Mutex
	entries   map[string]*healthEntry
	threshold int
	observer  Observer
}

type healthEntry struct {
	state    HealthState
	failures int
}

// Observer receives provider attempt outcomes, typically for metrics.
type Observer interface {
	ProviderOutcome(providerID string, kind Kind)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithFailureThreshold overrides the degraded threshold.
func WithFailureThreshold(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.threshold = n
		}
	}
}

// WithObserver installs an outcome observer.
func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) { r.observer = o }
}

// NewRegistry creates a health registry with the default failure threshold.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries:   make(map[string]*healthEntry),
		threshold: DefaultFailureThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current state for a provider ID.
func (r *Registry) State(id string) HealthState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e.state
	}
	return HealthUnknown
}

// Failures returns the consecutive-failure count for a provider ID.
func (r *Registry) Failures(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e.failures
	}
	return 0
}

// MarkSuccess records a successful call: the provider becomes healthy and
// its consecutive-failure counter resets. Disabled providers stay disabled.
func (r *Registry) MarkSuccess(id string) {
	r.mu.Lock()
	e := r.entry(id)
	if e.state != HealthDisabled {
		e.state = HealthHealthy
		e.failures = 0
	}
	r.mu.Unlock()
	r.notify(id, "")
}

// MarkFailure records a failed call classified as kind.
//
//   - auth: disabled for the process lifetime (credentials don't self-heal)
//   - timeout / bad response / unknown: counter increments; at the
//     threshold the provider is demoted to degraded
//   - rate limited: no penalty (transient)
func (r *Registry) MarkFailure(id string, kind Kind) {
	r.mu.Lock()
	e := r.entry(id)
	switch kind {
	case KindAuth:
		e.state = HealthDisabled
	case KindRateLimited:
		// transient, no penalty
	default:
		if e.state != HealthDisabled {
			e.failures++
			if e.failures >= r.threshold {
				e.state = HealthDegraded
			}
		}
	}
	r.mu.Unlock()
	r.notify(id, kind)
}

// Register ensures an entry exists for id so the provider shows up in
// Snapshot before its first attempt. Existing state is untouched.
func (r *Registry) Register(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(id)
}

// Set seeds a provider's state directly. Intended for tests and for
// operator tooling that re-enables a provider after a credential fix.
func (r *Registry) Set(id string, state HealthState, failures int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(id)
	e.state = state
	e.failures = failures
}

// Snapshot returns the state of every known provider, sorted by ID.
func (r *Registry) Snapshot() []Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Health, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, Health{
			ProviderID:          id,
			State:               e.state,
			StateName:           e.state.String(),
			ConsecutiveFailures: e.failures,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

// entry returns the entry for id, creating it if needed.
// Must be called with the mutex held.
func (r *Registry) entry(id string) *healthEntry {
	e, ok := r.entries[id]
	if !ok {
		e = &healthEntry{state: HealthUnknown}
		r.entries[id] = e
	}
	return e
}

func (r *Registry) notify(id string, kind Kind) {
	if r.observer != nil {
		r.observer.ProviderOutcome(id, kind)
	}
}
