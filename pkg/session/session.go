// Package session owns per-session dialogue state: turn history, the
// busy guard that serializes pipeline invocations per session, and the
// context window handed to the AI provider.
//
// Sessions live in memory; an optional Store persists turns so history
// survives a restart. Store failures are advisory — they are logged and
// never fail a turn.
package session

import (
	"errors"
	"time"
)

// Sentinel errors.
var (
	// ErrSessionBusy is returned when a turn targets a session that is
	// already awaiting a reply. Callers must retry later; requests are
	// never queued.
	ErrSessionBusy = errors.New("session: busy")

	// ErrNotFound is returned when an operation references an unknown
	// session.
	ErrNotFound = errors.New("session: not found")
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// State is the session's turn-taking state.
type State string

const (
	// StateIdle means the session accepts a new user turn.
	StateIdle State = "idle"

	// StateAwaitingReply means a user turn is in flight and no further
	// user turn is accepted until the assistant replies or the turn is
	// aborted.
	StateAwaitingReply State = "awaiting_reply"
)

// Turn is one message in a conversation. Immutable once appended.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}
