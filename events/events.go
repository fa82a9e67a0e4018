// Package events defines the client-facing event taxonomy emitted by the
// Orchestrator: conversation lifecycle markers, task lifecycle markers,
// streaming message/reasoning/tool-call fragments, and the
// component_generator family (scheduled_task_controller,
// subagent_conversation, execution_plan, schedule_task_result).
//
// Event is a closed, spec-defined set of kinds rather than an open interface
// hierarchy: the client surface is small and stable, so a single struct with
// a Kind discriminant and kind-specific optional fields is easier to encode
// and route than a type-switch over many concrete structs.
package events

import (
	"encoding/json"
	"time"

	"github.com/stockbuddy/orchestrator/ident"
)

// Kind identifies the shape of an Event's payload.
type Kind string

const (
	KindConversationStarted  Kind = "conversation_started"
	KindThreadStarted        Kind = "thread_started"
	KindTaskStarted          Kind = "task_started"
	KindTaskCompleted        Kind = "task_completed"
	KindTaskFailed           Kind = "task_failed"
	KindMessageChunk         Kind = "message_chunk"
	KindReasoning            Kind = "reasoning"
	KindToolCallStarted      Kind = "tool_call_started"
	KindToolCallCompleted    Kind = "tool_call_completed"
	KindPlanRequireUserInput Kind = "plan_require_user_input"
	KindPlanFailed           Kind = "plan_failed"
	KindComponentGenerator   Kind = "component_generator"
	KindSystemFailed         Kind = "system_failed"
	KindDone                 Kind = "done"
)

// ComponentType discriminates component_generator payloads.
type ComponentType string

const (
	ComponentScheduledTaskController ComponentType = "scheduled_task_controller"
	ComponentSubagentConversation    ComponentType = "subagent_conversation"
	ComponentExecutionPlan           ComponentType = "execution_plan"
	ComponentScheduleTaskResult      ComponentType = "schedule_task_result"
)

// Event is a single client-facing event produced by the Orchestrator or
// EventRouter.
type Event struct {
	Kind           Kind
	ConversationID ident.ConversationID
	ThreadID       ident.ThreadID
	TaskID         ident.TaskID
	ItemID         string
	ComponentType  ComponentType
	Text           string
	Content        json.RawMessage
	Error          string
	Done           bool
	Timestamp      time.Time
}

// Factory constructs Events with the conversation/thread identifiers and
// timestamp stamped in, so call sites in the executor and orchestrator only
// supply the kind-specific payload.
type Factory struct {
	ConversationID ident.ConversationID
	ThreadID       ident.ThreadID
	Now            func() time.Time
}

// NewFactory returns a Factory bound to a conversation/thread pair, using
// time.Now for timestamps unless now is overridden (tests pass a fixed
// clock).
func NewFactory(conversationID ident.ConversationID, threadID ident.ThreadID, now func() time.Time) Factory {
	if now == nil {
		now = time.Now
	}
	return Factory{ConversationID: conversationID, ThreadID: threadID, Now: now}
}

func (f Factory) base(kind Kind) Event {
	return Event{
		Kind:           kind,
		ConversationID: f.ConversationID,
		ThreadID:       f.ThreadID,
		Timestamp:      f.Now(),
	}
}

// ConversationStarted builds a conversation_started event.
func (f Factory) ConversationStarted() Event {
	return f.base(KindConversationStarted)
}

// ThreadStarted builds a thread_started event.
func (f Factory) ThreadStarted() Event {
	return f.base(KindThreadStarted)
}

// TaskStarted builds a task_started event for a given task.
func (f Factory) TaskStarted(taskID ident.TaskID) Event {
	e := f.base(KindTaskStarted)
	e.TaskID = taskID
	return e
}

// TaskCompleted builds a task_completed event.
func (f Factory) TaskCompleted(taskID ident.TaskID) Event {
	e := f.base(KindTaskCompleted)
	e.TaskID = taskID
	return e
}

// TaskFailed builds a task_failed event with an error summary.
func (f Factory) TaskFailed(taskID ident.TaskID, errMsg string) Event {
	e := f.base(KindTaskFailed)
	e.TaskID = taskID
	e.Error = errMsg
	return e
}

// MessageChunk builds a message_chunk event carrying a fragment of
// assistant text.
func (f Factory) MessageChunk(taskID ident.TaskID, text string) Event {
	e := f.base(KindMessageChunk)
	e.TaskID = taskID
	e.Text = text
	return e
}

// Reasoning builds a reasoning event carrying a fragment of model
// thinking/reasoning text.
func (f Factory) Reasoning(taskID ident.TaskID, text string) Event {
	e := f.base(KindReasoning)
	e.TaskID = taskID
	e.Text = text
	return e
}

// ToolCallStarted builds a tool_call_started event.
func (f Factory) ToolCallStarted(taskID ident.TaskID, text string) Event {
	e := f.base(KindToolCallStarted)
	e.TaskID = taskID
	e.Text = text
	return e
}

// ToolCallCompleted builds a tool_call_completed event.
func (f Factory) ToolCallCompleted(taskID ident.TaskID, text string) Event {
	e := f.base(KindToolCallCompleted)
	e.TaskID = taskID
	e.Text = text
	return e
}

// PlanRequireUserInput builds a plan_require_user_input event carrying a
// clarification prompt.
func (f Factory) PlanRequireUserInput(text string) Event {
	e := f.base(KindPlanRequireUserInput)
	e.Text = text
	return e
}

// PlanFailed builds a plan_failed event.
func (f Factory) PlanFailed(errMsg string) Event {
	e := f.base(KindPlanFailed)
	e.Error = errMsg
	return e
}

// Component builds a component_generator event. itemID correlates with a
// later upsert of the same logical component (see itemstore.Store.Upsert).
func (f Factory) Component(componentType ComponentType, itemID string, content json.RawMessage) Event {
	e := f.base(KindComponentGenerator)
	e.ComponentType = componentType
	e.ItemID = itemID
	e.Content = content
	return e
}

// SystemFailed builds a system_failed event; always paired with Done in the
// same emission per the executor/orchestrator's error taxonomy.
func (f Factory) SystemFailed(errMsg string) Event {
	e := f.base(KindSystemFailed)
	e.Error = errMsg
	e.Done = true
	return e
}

// Done builds the terminal done marker for a turn.
func (f Factory) Done() Event {
	e := f.base(KindDone)
	e.Done = true
	return e
}
