// Package plan defines the ExecutionPlan produced by the Planner: either a
// list of Tasks ready for the Executor, or a GuidanceMessage explaining why
// no adequate plan could be produced (insufficient detail, scheduling
// confirmation missing). Malformed model output is reported as an error by
// the Planner, not as a GuidanceMessage.
package plan

import (
	"time"

	"github.com/stockbuddy/orchestrator/ident"
	"github.com/stockbuddy/orchestrator/task"
)

// ExecutionPlan is the Planner's output for a single planning pass.
type ExecutionPlan struct {
	ID             ident.PlanID
	ConversationID ident.ConversationID
	UserID         ident.UserID
	OrigQuery      string
	Tasks          []task.Task
	// GuidanceMessage is set instead of Tasks when the planner judged the
	// request inadequate (ambiguous, missing schedule confirmation) and
	// the Orchestrator should relay the
	// message to the user rather than executing anything.
	GuidanceMessage string
	CreatedAt       time.Time
}

// Adequate reports whether the plan carries executable tasks.
func (p ExecutionPlan) Adequate() bool {
	return p.GuidanceMessage == "" && len(p.Tasks) > 0
}
