package llm

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/stockbuddy/orchestrator/task"
	"github.com/stockbuddy/orchestrator/triager"
)

type stubMessagesClient struct {
	resp *sdk.Message
	err  error
}

func (s *stubMessagesClient) New(_ context.Context, _ sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	return s.resp, s.err
}

func textMessage(text string) *sdk.Message {
	return &sdk.Message{Content: []sdk.ContentBlockUnion{{Type: "text", Text: text}}}
}

func TestTriagePropagatesTransportError(t *testing.T) {
	stub := &stubMessagesClient{err: errors.New("connection refused")}
	m, err := New(stub, "claude-test", 128)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = m.Triage(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected transport error to propagate")
	}
}

func TestTriageMalformedJSONDegradesToAnswer(t *testing.T) {
	stub := &stubMessagesClient{resp: textMessage("not json at all")}
	m, err := New(stub, "claude-test", 128)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	outcome, err := m.Triage(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Triage must never error on malformed model output, got: %v", err)
	}
	if outcome.Decision != triager.DecisionAnswer {
		t.Fatalf("decision = %v, want ANSWER", outcome.Decision)
	}
	if outcome.AnswerContent == "" {
		t.Fatal("expected a diagnostic answer content")
	}
}

func TestTriageSchemaViolationDegradesToAnswer(t *testing.T) {
	// "decision" is required by the schema; omit it.
	stub := &stubMessagesClient{resp: textMessage(`{"answer_content": "hi"}`)}
	m, err := New(stub, "claude-test", 128)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	outcome, err := m.Triage(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Triage must never error on schema violation, got: %v", err)
	}
	if outcome.Decision != triager.DecisionAnswer || outcome.AnswerContent == "" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestTriageValidResponseDecodes(t *testing.T) {
	stub := &stubMessagesClient{resp: textMessage(`{"decision":"handoff_to_planner","enriched_query":"q","recommended_agents":["NewsAgent","ResearchAgent"]}`)}
	m, err := New(stub, "claude-test", 128)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	outcome, err := m.Triage(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if outcome.Decision != triager.DecisionHandoffToPlanner {
		t.Fatalf("decision = %v", outcome.Decision)
	}
	if outcome.EnrichedQuery != "q" || len(outcome.RecommendedAgents) != 2 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestPlanValidResponseDecodesTasksAndSchedule(t *testing.T) {
	stub := &stubMessagesClient{resp: textMessage(`{
		"adequate": true,
		"tasks": [
			{"title": "Research Tesla", "query": "Research Tesla fundamentals", "agent_name": "ResearchAgent"},
			{"title": "Watch earnings", "query": "Monitor earnings", "agent_name": "NewsAgent",
			 "pattern": "recurring", "depends_on": [0],
			 "schedule": {"daily_time": "09:00", "confirmed": true}}
		]
	}`)}
	m, err := New(stub, "claude-test", 128)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := m.Plan(context.Background(), "q", "", nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !raw.Adequate || len(raw.Tasks) != 2 {
		t.Fatalf("unexpected raw plan: %+v", raw)
	}
	if raw.Tasks[1].Pattern != task.PatternRecurring {
		t.Fatalf("pattern = %v, want recurring", raw.Tasks[1].Pattern)
	}
	if !raw.Tasks[1].HasSchedule || !raw.Tasks[1].ScheduleConfirmed || raw.Tasks[1].Schedule.DailyTime != "09:00" {
		t.Fatalf("unexpected schedule: %+v", raw.Tasks[1])
	}
	if len(raw.Tasks[1].DependsOnIndex) != 1 || raw.Tasks[1].DependsOnIndex[0] != 0 {
		t.Fatalf("depends_on = %v", raw.Tasks[1].DependsOnIndex)
	}
}

func TestPlanMalformedJSONReturnsError(t *testing.T) {
	stub := &stubMessagesClient{resp: textMessage("not json")}
	m, err := New(stub, "claude-test", 128)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Unlike Triage, a malformed Plan response is expected to surface as an
	// error: CreatePlan wraps it and the orchestrator turns it into a
	// plan_failed event, matching the planner's (not the triager's)
	// error-taxonomy contract.
	_, err = m.Plan(context.Background(), "q", "", nil)
	if err == nil {
		t.Fatal("expected an error for malformed plan JSON")
	}
}
