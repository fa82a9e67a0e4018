package accumulator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stockbuddy/orchestrator/events"
	"github.com/stockbuddy/orchestrator/task"
)

func newFactory() events.Factory {
	return events.NewFactory("c1", "t1", func() time.Time { return time.Unix(0, 0) })
}

func TestOnceTaskIsNoOpPassthrough(t *testing.T) {
	a := New(task.Task{Pattern: task.PatternOnce})
	in := []events.Event{
		{Kind: events.KindMessageChunk, Text: "hi"},
		{Kind: events.KindTaskCompleted},
	}
	out := a.Consume(in)
	if len(out) != len(in) {
		t.Fatalf("out = %d events, want passthrough of %d", len(out), len(in))
	}

	_, ok := a.Finalize(newFactory(), "item-1", nil)
	if ok {
		t.Fatal("a ONCE task's accumulator must never finalize a component")
	}
}

func TestRecurringTaskBuffersMessageChunksAndDropsReasoningAndToolCalls(t *testing.T) {
	a := New(task.Task{Pattern: task.PatternRecurring})
	in := []events.Event{
		{Kind: events.KindMessageChunk, Text: "Tesla "},
		{Kind: events.KindReasoning, Text: "thinking..."},
		{Kind: events.KindToolCallStarted, Text: "search"},
		{Kind: events.KindMessageChunk, Text: "up 3%"},
		{Kind: events.KindToolCallCompleted, Text: "search"},
		{Kind: events.KindTaskStarted},
	}
	out := a.Consume(in)
	if len(out) != 1 || out[0].Kind != events.KindTaskStarted {
		t.Fatalf("out = %+v, want only the pass-through task_started event", out)
	}

	ev, ok := a.Finalize(newFactory(), "item-1", func() time.Time { return time.Unix(0, 0) })
	if !ok {
		t.Fatal("expected a finalized component for a recurring task")
	}
	if ev.Kind != events.KindComponentGenerator || ev.ComponentType != events.ComponentScheduleTaskResult {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.ItemID != "item-1" {
		t.Fatalf("item id = %q", ev.ItemID)
	}

	var payload struct {
		Result     string `json:"result"`
		CreateTime string `json:"create_time"`
	}
	if err := json.Unmarshal(ev.Content, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Result != "Tesla up 3%" {
		t.Fatalf("result = %q, want joined buffered text", payload.Result)
	}
}

func TestRecurringTaskWithNoMessageOutputUsesPlaceholder(t *testing.T) {
	a := New(task.Task{Pattern: task.PatternRecurring})
	a.Consume([]events.Event{{Kind: events.KindReasoning, Text: "only reasoning"}})

	ev, ok := a.Finalize(newFactory(), "item-1", nil)
	if !ok {
		t.Fatal("expected finalize even with empty buffer")
	}
	var payload struct {
		Result string `json:"result"`
	}
	_ = json.Unmarshal(ev.Content, &payload)
	if payload.Result != "Task completed without output." {
		t.Fatalf("result = %q", payload.Result)
	}
}
