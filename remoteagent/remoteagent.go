// Package remoteagent defines the protocol for dispatching a Task to a
// remote specialist agent and streaming its status/artifact/message events
// back, along with the registry of known agents. The wire shape mirrors the
// A2A (agent-to-agent) JSON-RPC protocol: tasks/sendSubscribe submits work, the
// stream carries TaskStatusUpdateEvent/TaskArtifactUpdateEvent-style frames
// keyed by a canonical state machine (submitted -> working -> terminal).
package remoteagent

import (
	"context"
	"encoding/json"
	"errors"
)

// State is the canonical remote task state, mirroring the A2A task
// lifecycle (TaskState in the protocol).
type State string

const (
	StateSubmitted State = "submitted"
	StateWorking   State = "working"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether a remote task state admits no further events.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// SendTaskRequest describes the work handed to a remote agent.
type SendTaskRequest struct {
	// RemoteTaskID is the identifier the caller assigns to this invocation,
	// echoed back on every streamed event for correlation.
	RemoteTaskID string
	// SessionID scopes multi-turn context on the remote agent, when the
	// agent supports it (e.g. a subagent conversation handed off from the
	// triager).
	SessionID string
	// Query is the natural-language task description.
	Query string
	// Metadata carries caller-supplied context: user profile, language,
	// timezone, upstream task dependency outputs.
	Metadata map[string]any
}

// StreamEvent is a single frame from a remote agent's task stream. Exactly
// one of MessageChunk, Reasoning, ToolCall, or Status is meaningful,
// discriminated by Kind.
type StreamEvent struct {
	Kind        StreamEventKind
	State       State
	Text        string
	ToolName    string
	ArtifactRaw json.RawMessage
	Err         error
}

// StreamEventKind discriminates StreamEvent payloads.
type StreamEventKind string

const (
	StreamEventMessageChunk    StreamEventKind = "message_chunk"
	StreamEventReasoning       StreamEventKind = "reasoning"
	StreamEventToolCallStarted StreamEventKind = "tool_call_started"
	StreamEventToolCallDone    StreamEventKind = "tool_call_completed"
	StreamEventStatus          StreamEventKind = "status"
)

// Client dispatches tasks to a single remote agent and streams back
// lifecycle events. Implementations must close the returned channel when
// the remote stream ends (successfully or not) and must stop sending once
// ctx is cancelled.
type Client interface {
	// SendTask submits req to the remote agent and returns a channel of
	// StreamEvents. The channel is closed once a terminal State event has
	// been delivered or ctx is cancelled.
	SendTask(ctx context.Context, req SendTaskRequest) (<-chan StreamEvent, error)
	// CancelTask requests cancellation of a previously submitted remote
	// task. Implementations should treat this as best-effort and
	// idempotent.
	CancelTask(ctx context.Context, remoteTaskID string) error
}

// AgentCard describes a remote agent's identity and capabilities, as
// published by its own discovery endpoint.
type AgentCard struct {
	Name        string
	Description string
	Endpoint    string
}

// Registry resolves an agent name to the Client capable of reaching it.
// Implementations are typically built once at startup from a YAML manifest
// of known agents and their endpoints.
type Registry interface {
	// Lookup returns the Client and AgentCard for name, or
	// ErrAgentNotRegistered if name is unknown.
	Lookup(name string) (Client, AgentCard, error)
	// Names returns every registered agent name, used by the Planner to
	// validate plan.tasks[].agentName against the known set.
	Names() []string
}

// ErrAgentNotRegistered indicates a plan or task referenced an agent name
// absent from the Registry.
var ErrAgentNotRegistered = errors.New("remoteagent: agent not registered")

// RegistrationError wraps a failure encountered while registering an agent
// from its manifest entry, carrying the offending agent name for
// diagnostics.
type RegistrationError struct {
	AgentName string
	Err       error
}

func (e *RegistrationError) Error() string {
	return "remoteagent: registering " + e.AgentName + ": " + e.Err.Error()
}

func (e *RegistrationError) Unwrap() error { return e.Err }
