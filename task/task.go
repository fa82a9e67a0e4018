// Package task defines the Task domain model: a unit of work handed to a
// remote specialist agent, tracked through PENDING/RUNNING/terminal states,
// optionally recurring on a temporal schedule, optionally depending on
// sibling tasks within the same ExecutionPlan.
package task

import (
	"context"
	"errors"
	"time"

	"github.com/stockbuddy/orchestrator/ident"
)

// Status is the coarse-grained lifecycle state of a Task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether status is one from which no further transition
// is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Pattern distinguishes a single-shot task from one that re-fires on a
// recurring schedule until cancelled.
type Pattern string

const (
	PatternOnce      Pattern = "once"
	PatternRecurring Pattern = "recurring"
)

// ScheduleConfig governs when a RECURRING task next fires. Exactly one of
// IntervalMinutes or DailyTime must be set; the zero value of each means
// "unset".
type ScheduleConfig struct {
	// IntervalMinutes fires the task every N minutes, measured from the
	// previous firing.
	IntervalMinutes int
	// DailyTime fires the task once a day at this HH:MM wall-clock time (in
	// the conversation's configured timezone), rolling to tomorrow if the
	// time has already passed today.
	DailyTime string
}

// Validate checks the exactly-one-of invariant for ScheduleConfig.
func (s ScheduleConfig) Validate() error {
	hasInterval := s.IntervalMinutes > 0
	hasDaily := s.DailyTime != ""
	if hasInterval == hasDaily {
		return ErrInvalidSchedule
	}
	return nil
}

// Task is a unit of work dispatched to exactly one remote agent, optionally
// gated on sibling tasks within the same plan via DependsOn.
type Task struct {
	ID                       ident.TaskID
	ConversationID           ident.ConversationID
	ThreadID                 ident.ThreadID
	UserID                   ident.UserID
	AgentName                ident.AgentName
	Status                   Status
	Title                    string
	Query                    string
	Pattern                  Pattern
	Schedule                 ScheduleConfig
	DependsOn                []ident.TaskID
	RemoteTaskIDs            []string
	HandoffFromSuperAgent    bool
	SuperAgentConversationID ident.ConversationID
	CreatedAt                time.Time
}

// Store persists Task state for the executor's lifecycle transitions and
// the cancel endpoint's lookups.
type Store interface {
	// Create inserts a new task in StatusPending.
	Create(ctx context.Context, t Task) error
	// Load loads a task by ID. Returns ErrNotFound if absent.
	Load(ctx context.Context, id ident.TaskID) (Task, error)
	// SetStatus transitions a task's status.
	SetStatus(ctx context.Context, id ident.TaskID, status Status) error
	// AppendRemoteTaskID records a remote agent's task identifier against the
	// local task, for later cancellation/lookup.
	AppendRemoteTaskID(ctx context.Context, id ident.TaskID, remoteTaskID string) error
	// ListByConversation returns every task belonging to a conversation,
	// across all plans, in creation order.
	ListByConversation(ctx context.Context, conversationID ident.ConversationID) ([]Task, error)
}

// ErrNotFound indicates no task exists for the given identifier.
var ErrNotFound = errors.New("task: not found")

// ErrInvalidSchedule indicates a ScheduleConfig violates the exactly-one-of
// invariant between IntervalMinutes and DailyTime.
var ErrInvalidSchedule = errors.New("task: schedule must set exactly one of interval_minutes or daily_time")

// NextExecutionDelay computes the delay until the next firing of a recurring
// task's schedule, relative to now. IntervalMinutes schedules fire every N
// minutes; DailyTime schedules fire at HH:MM in loc, rolling to tomorrow if
// that time has already passed today.
func NextExecutionDelay(s ScheduleConfig, now time.Time, loc *time.Location) (time.Duration, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	if s.IntervalMinutes > 0 {
		return time.Duration(s.IntervalMinutes) * time.Minute, nil
	}
	t, err := time.ParseInLocation("15:04", s.DailyTime, loc)
	if err != nil {
		return 0, err
	}
	nowInLoc := now.In(loc)
	next := time.Date(nowInLoc.Year(), nowInLoc.Month(), nowInLoc.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	if !next.After(nowInLoc) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(nowInLoc), nil
}
