// Package eventrouter translates a remote agent's StreamEvent stream into
// client-facing events.Event values, plus any side effects the executor
// must perform (marking the local task failed on a remote failure).
//
// The translation is 1:1 and order-preserving: message_chunk, reasoning,
// and tool_call frames map directly to their events.Kind counterparts.
// State transitions are translated once each: the first "submitted" or
// "working" state seen emits task_started; subsequent non-terminal state
// repeats are suppressed (the remote agent may re-announce "working"
// between tool calls). A terminal state never produces an event here —
// task_completed/task_failed is the executor's responsibility once the
// stream closes, since only the executor knows whether a transport error
// should also be surfaced.
package eventrouter

import (
	"github.com/stockbuddy/orchestrator/events"
	"github.com/stockbuddy/orchestrator/ident"
	"github.com/stockbuddy/orchestrator/remoteagent"
)

// SideEffectKind identifies an action the executor must take in response to
// a routed event, beyond simply forwarding it to the client.
type SideEffectKind string

const (
	// SideEffectNone indicates no action beyond emitting the event.
	SideEffectNone SideEffectKind = ""
	// SideEffectFailTask indicates the executor must transition the local
	// task to StatusFailed; the remote stream reported a terminal failure
	// or the transport itself errored.
	SideEffectFailTask SideEffectKind = "fail_task"
)

// RouteResult is the outcome of translating one remoteagent.StreamEvent.
type RouteResult struct {
	// Event is the client-facing event to emit, if any.
	Event events.Event
	// HasEvent reports whether Event is populated.
	HasEvent bool
	// SideEffect is the action the caller must additionally perform.
	SideEffect SideEffectKind
	// Done reports whether the remote stream has reached a terminal state.
	Done bool
}

// Router translates a single task's remote stream events, tracking whether
// task_started has already been emitted for that task.
type Router struct {
	factory     events.Factory
	taskID      ident.TaskID
	startedOnce bool
}

// New returns a Router bound to a single task invocation.
func New(factory events.Factory, taskID ident.TaskID) *Router {
	return &Router{factory: factory, taskID: taskID}
}

// Route translates one remote StreamEvent into a RouteResult.
func (r *Router) Route(ev remoteagent.StreamEvent) RouteResult {
	switch ev.Kind {
	case remoteagent.StreamEventMessageChunk:
		return RouteResult{Event: r.factory.MessageChunk(r.taskID, ev.Text), HasEvent: true}
	case remoteagent.StreamEventReasoning:
		return RouteResult{Event: r.factory.Reasoning(r.taskID, ev.Text), HasEvent: true}
	case remoteagent.StreamEventToolCallStarted:
		return RouteResult{Event: r.factory.ToolCallStarted(r.taskID, ev.ToolName), HasEvent: true}
	case remoteagent.StreamEventToolCallDone:
		return RouteResult{Event: r.factory.ToolCallCompleted(r.taskID, ev.ToolName), HasEvent: true}
	case remoteagent.StreamEventStatus:
		return r.routeStatus(ev)
	default:
		return RouteResult{}
	}
}

func (r *Router) routeStatus(ev remoteagent.StreamEvent) RouteResult {
	if ev.Err != nil {
		return RouteResult{SideEffect: SideEffectFailTask, Done: true}
	}

	if ev.State.IsTerminal() {
		result := RouteResult{Done: true}
		if ev.State == remoteagent.StateFailed {
			result.SideEffect = SideEffectFailTask
		}
		return result
	}

	if !r.startedOnce {
		r.startedOnce = true
		return RouteResult{Event: r.factory.TaskStarted(r.taskID), HasEvent: true}
	}
	return RouteResult{}
}
