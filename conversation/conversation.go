// Package conversation defines the durable lifecycle of a Conversation, the
// long-lived container scoping items, tasks, and threads exchanged between a
// user and the orchestrator.
package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/stockbuddy/orchestrator/ident"
)

// Status represents the lifecycle state of a Conversation.
type Status string

const (
	// StatusActive indicates the conversation accepts new UserInput and the
	// Orchestrator should triage/plan/execute normally.
	StatusActive Status = "active"
	// StatusRequireUserInput indicates a Planner is paused awaiting
	// clarification; a matching ExecutionContext must exist.
	StatusRequireUserInput Status = "require_user_input"
	// StatusTerminated is a terminal state; no further UserInput is accepted.
	StatusTerminated Status = "terminated"
)

// Conversation captures durable conversation lifecycle state.
//
// Invariant: a conversation in StatusRequireUserInput must have a matching
// in-memory ExecutionContext (owned by the Orchestrator, not this package).
// Invariant: Title is set at most once, only when empty (see Store.SetTitleOnce).
type Conversation struct {
	ID        ident.ConversationID
	UserID    ident.UserID
	AgentName ident.AgentName
	Title     string
	Status    Status
	CreatedAt time.Time
}

// Store persists Conversation lifecycle state. Implementations must be safe
// for concurrent use; each conversation is effectively single-writer from the
// Orchestrator's perspective but may be read concurrently (e.g. by the REST
// cancel endpoint).
type Store interface {
	// Create creates a new conversation in StatusActive. Returns
	// ErrAlreadyExists if a conversation with the same ID already exists.
	Create(ctx context.Context, c Conversation) error
	// Load loads a conversation by ID. Returns ErrNotFound if it does not exist.
	Load(ctx context.Context, id ident.ConversationID) (Conversation, error)
	// SetStatus updates the lifecycle status of a conversation.
	SetStatus(ctx context.Context, id ident.ConversationID, status Status) error
	// SetTitleOnce sets Title on the conversation iff it is currently empty.
	// Returns the conversation's title after the call (either the newly set
	// title or the pre-existing one). Idempotent and safe to call on every
	// plan regardless of whether a title already exists.
	SetTitleOnce(ctx context.Context, id ident.ConversationID, title string) (string, error)
}

// ErrNotFound indicates no conversation exists for the given identifier.
var ErrNotFound = errors.New("conversation: not found")

// ErrAlreadyExists indicates a conversation with the given identifier
// already exists.
var ErrAlreadyExists = errors.New("conversation: already exists")
