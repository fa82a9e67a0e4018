// Package ident provides strong type identifiers used throughout the
// orchestration runtime so that conversation, thread, task, and agent
// identifiers cannot be accidentally mixed with free-form strings.
package ident

// AgentName is the strong type for a registered remote agent's name (e.g.
// "NewsAgent", "ResearchAgent", "StrategyAgent").
type AgentName string

// ConversationID identifies a Conversation.
type ConversationID string

// ThreadID identifies a single user-turn within a Conversation.
type ThreadID string

// TaskID identifies a Task within an ExecutionPlan.
type TaskID string

// PlanID identifies an ExecutionPlan.
type PlanID string

// ItemID identifies a persisted ConversationItem.
type ItemID string

// UserID identifies the end user issuing a UserInput.
type UserID string
