// Package accumulator collects the streamed output of a RECURRING task
// invocation into a single schedule_task_result component, emitted once at
// the end of the run instead of streaming message/reasoning/tool-call
// fragments to a client that is not attached (recurring tasks execute
// unattended on a timer).
package accumulator

import (
	"strings"
	"time"

	"github.com/stockbuddy/orchestrator/events"
	"github.com/stockbuddy/orchestrator/task"
)

// ScheduledTaskResultAccumulator buffers message_chunk text for a single
// task invocation and, if the task is RECURRING, replaces the stream with a
// single schedule_task_result component at the end.
//
// For ONCE tasks Consume is a no-op passthrough and Finalize never produces
// an event.
type ScheduledTaskResultAccumulator struct {
	enabled bool
	buffer  strings.Builder
}

// New returns an accumulator bound to t. Enabled iff t.Pattern is
// PatternRecurring.
func New(t task.Task) *ScheduledTaskResultAccumulator {
	return &ScheduledTaskResultAccumulator{enabled: t.Pattern == task.PatternRecurring}
}

// Consume filters a batch of events produced during the invocation,
// dropping message_chunk/reasoning/tool_call_started/tool_call_completed
// (buffering message_chunk text) and passing everything else through
// unchanged. When the accumulator is not enabled, every event passes
// through untouched.
func (a *ScheduledTaskResultAccumulator) Consume(in []events.Event) []events.Event {
	if !a.enabled {
		return in
	}

	out := make([]events.Event, 0, len(in))
	for _, e := range in {
		switch e.Kind {
		case events.KindMessageChunk:
			a.buffer.WriteString(e.Text)
		case events.KindReasoning, events.KindToolCallStarted, events.KindToolCallCompleted:
			// dropped: not useful to a client that isn't attached
		default:
			out = append(out, e)
		}
	}
	return out
}

// Finalize returns a single schedule_task_result component_generator event
// summarizing the buffered output, or the zero Event and false when the
// accumulator is not enabled.
func (a *ScheduledTaskResultAccumulator) Finalize(f events.Factory, itemID string, now func() time.Time) (events.Event, bool) {
	if !a.enabled {
		return events.Event{}, false
	}
	if now == nil {
		now = time.Now
	}

	content := strings.TrimSpace(a.buffer.String())
	if content == "" {
		content = "Task completed without output."
	}

	payload := scheduleTaskResultPayload{
		Result:     content,
		CreateTime: now().UTC().Format("2006-01-02 15:04:05"),
	}
	raw, err := marshalPayload(payload)
	if err != nil {
		return events.Event{}, false
	}

	return f.Component(events.ComponentScheduleTaskResult, itemID, raw), true
}

type scheduleTaskResultPayload struct {
	Result     string `json:"result"`
	CreateTime string `json:"create_time"`
}
