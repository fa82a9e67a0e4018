package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stockbuddy/orchestrator/ident"
	"github.com/stockbuddy/orchestrator/remoteagent"
	"github.com/stockbuddy/orchestrator/task"
)

type fakeRegistry struct {
	names []string
}

func (r fakeRegistry) Lookup(name string) (remoteagent.Client, remoteagent.AgentCard, error) {
	return nil, remoteagent.AgentCard{}, remoteagent.ErrAgentNotRegistered
}

func (r fakeRegistry) Names() []string { return r.names }

type fakeModel struct {
	raw RawPlan
	err error
}

func (m fakeModel) Plan(ctx context.Context, query, recommendedAgent string, history []string) (RawPlan, error) {
	return m.raw, m.err
}

func newPlanner(names []string, model ModelPlanner) *Planner {
	return New(fakeRegistry{names: names}, model, nil)
}

func TestCreatePlanFromRecommendedAgentsNoSynthesis(t *testing.T) {
	p := newPlanner([]string{"ResearchAgent", "NewsAgent"}, fakeModel{})
	plan, err := p.CreatePlan(context.Background(), "c1", "u1", "Latest on OpenAI funding round", nil, []string{"ResearchAgent", "NewsAgent"}, true)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if len(plan.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(plan.Tasks))
	}
	for _, tk := range plan.Tasks {
		if len(tk.DependsOn) != 0 {
			t.Fatalf("non-synthesis task %q should have no dependencies, got %v", tk.AgentName, tk.DependsOn)
		}
		if !tk.HandoffFromSuperAgent {
			t.Fatalf("task %q should carry handoff flag", tk.AgentName)
		}
	}
}

func TestCreatePlanFromRecommendedAgentsSynthesisDependsOnAll(t *testing.T) {
	p := newPlanner([]string{"ResearchAgent", "NewsAgent", "StrategyAgent"}, fakeModel{})
	plan, err := p.CreatePlan(context.Background(), "c1", "u1", "Should I invest in OpenAI?", nil, []string{"ResearchAgent", "NewsAgent", "StrategyAgent"}, true)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if len(plan.Tasks) != 3 {
		t.Fatalf("tasks = %d, want 3 (len(tasks) == len(recommendedAgents))", len(plan.Tasks))
	}

	var independentIDs []ident.TaskID
	var synthesis *task.Task
	for i, tk := range plan.Tasks {
		if tk.AgentName == "StrategyAgent" {
			synthesis = &plan.Tasks[i]
			continue
		}
		independentIDs = append(independentIDs, tk.ID)
	}
	if synthesis == nil {
		t.Fatal("expected a StrategyAgent task")
	}
	if len(synthesis.DependsOn) != len(independentIDs) {
		t.Fatalf("synthesis task depends on %d tasks, want %d", len(synthesis.DependsOn), len(independentIDs))
	}
	for _, id := range independentIDs {
		found := false
		for _, dep := range synthesis.DependsOn {
			if dep == id {
				found = true
			}
		}
		if !found {
			t.Fatalf("synthesis task missing dependency on %v", id)
		}
	}
}

func TestCreatePlanRejectsUnregisteredRecommendedAgent(t *testing.T) {
	p := newPlanner([]string{"NewsAgent"}, fakeModel{})
	_, err := p.CreatePlan(context.Background(), "c1", "u1", "q", nil, []string{"NewsAgent", "GhostAgent"}, true)
	if !errors.Is(err, ErrMalformedPlan) {
		t.Fatalf("err = %v, want ErrMalformedPlan", err)
	}
}

func TestCreatePlanSingleRecommendationHintsModelButDoesNotBypass(t *testing.T) {
	called := false
	model := modelFunc(func(ctx context.Context, query, hint string) (RawPlan, error) {
		called = true
		if hint != "NewsAgent" {
			t.Fatalf("hint = %q, want NewsAgent", hint)
		}
		return RawPlan{Adequate: true, Tasks: []RawTask{{Title: "t", Query: "q", AgentName: "NewsAgent"}}}, nil
	})
	p := newPlanner([]string{"NewsAgent"}, model)
	plan, err := p.CreatePlan(context.Background(), "c1", "u1", "q", nil, []string{"NewsAgent"}, true)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if !called {
		t.Fatal("model should be invoked for a single recommendation")
	}
	if len(plan.Tasks) != 1 {
		t.Fatalf("tasks = %d", len(plan.Tasks))
	}
}

type modelFunc func(ctx context.Context, query, hint string) (RawPlan, error)

func (f modelFunc) Plan(ctx context.Context, query, hint string, history []string) (RawPlan, error) {
	return f(ctx, query, hint)
}

func TestCreatePlanModelInadequateProducesGuidance(t *testing.T) {
	model := fakeModel{raw: RawPlan{Adequate: false, GuidanceMessage: "please clarify"}}
	p := newPlanner([]string{"NewsAgent"}, model)
	plan, err := p.CreatePlan(context.Background(), "c1", "u1", "q", nil, nil, true)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if plan.Adequate() {
		t.Fatal("plan should not be adequate")
	}
	if plan.GuidanceMessage != "please clarify" {
		t.Fatalf("guidance = %q", plan.GuidanceMessage)
	}
}

func TestCreatePlanModelErrorPropagates(t *testing.T) {
	model := fakeModel{err: errors.New("model down")}
	p := newPlanner([]string{"NewsAgent"}, model)
	_, err := p.CreatePlan(context.Background(), "c1", "u1", "q", nil, nil, true)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestCreatePlanUnknownAgentRejected(t *testing.T) {
	model := fakeModel{raw: RawPlan{Adequate: true, Tasks: []RawTask{{Title: "t", Query: "q", AgentName: "GhostAgent"}}}}
	p := newPlanner([]string{"NewsAgent"}, model)
	_, err := p.CreatePlan(context.Background(), "c1", "u1", "q", nil, nil, true)
	if !errors.Is(err, ErrMalformedPlan) {
		t.Fatalf("err = %v, want ErrMalformedPlan", err)
	}
}

func TestCreatePlanCyclicDependencyRejected(t *testing.T) {
	model := fakeModel{raw: RawPlan{Adequate: true, Tasks: []RawTask{
		{Title: "a", Query: "qa", AgentName: "NewsAgent", DependsOnIndex: []int{1}},
		{Title: "b", Query: "qb", AgentName: "NewsAgent", DependsOnIndex: []int{0}},
	}}}
	p := newPlanner([]string{"NewsAgent"}, model)
	_, err := p.CreatePlan(context.Background(), "c1", "u1", "q", nil, nil, true)
	if !errors.Is(err, ErrMalformedPlan) {
		t.Fatalf("err = %v, want ErrMalformedPlan", err)
	}
}

func TestCreatePlanRecurringWithoutConfirmationPauses(t *testing.T) {
	model := fakeModel{raw: RawPlan{Adequate: true, Tasks: []RawTask{
		{Title: "watch", Query: "Monitor Apple earnings daily at 09:00", AgentName: "NewsAgent",
			Pattern: task.PatternRecurring, HasSchedule: true, Schedule: task.ScheduleConfig{DailyTime: "09:00"}},
	}}}
	p := newPlanner([]string{"NewsAgent"}, model)
	plan, err := p.CreatePlan(context.Background(), "c1", "u1", "Monitor Apple earnings daily at 09:00", nil, nil, true)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if plan.Adequate() {
		t.Fatal("unconfirmed schedule should not produce an adequate plan")
	}
	if plan.GuidanceMessage == "" {
		t.Fatal("expected a guidance message asking for confirmation")
	}
}

func TestCreatePlanRecurringWithConfirmationProceeds(t *testing.T) {
	model := fakeModel{raw: RawPlan{Adequate: true, Tasks: []RawTask{
		{Title: "watch", Query: "yes, daily at 09:00", AgentName: "NewsAgent",
			Pattern: task.PatternRecurring, HasSchedule: true, Schedule: task.ScheduleConfig{DailyTime: "09:00"}},
	}}}
	p := newPlanner([]string{"NewsAgent"}, model)
	plan, err := p.CreatePlan(context.Background(), "c1", "u1", "yes, daily at 09:00", nil, nil, true)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if !plan.Adequate() {
		t.Fatalf("expected adequate plan, guidance=%q", plan.GuidanceMessage)
	}
	if plan.Tasks[0].Schedule.DailyTime != "09:00" {
		t.Fatalf("schedule = %+v", plan.Tasks[0].Schedule)
	}
}

func TestCreatePlanSingleTaskInvestmentQueryExpandsToTrio(t *testing.T) {
	model := fakeModel{raw: RawPlan{Adequate: true, Tasks: []RawTask{
		{Title: "Assess OpenAI", Query: "Assess OpenAI", AgentName: "ResearchAgent"},
	}}}
	p := newPlanner([]string{"ResearchAgent", "NewsAgent", "StrategyAgent"}, model)
	plan, err := p.CreatePlan(context.Background(), "c1", "u1", "Should I invest in this IPO?", nil, nil, true)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if len(plan.Tasks) != 3 {
		t.Fatalf("tasks = %+v, want Research/News/Strategy trio", plan.Tasks)
	}
	last := plan.Tasks[2]
	if last.AgentName != "StrategyAgent" || len(last.DependsOn) != 2 {
		t.Fatalf("terminal task = %+v, want StrategyAgent depending on both others", last)
	}
	for _, first := range plan.Tasks[:2] {
		if len(first.DependsOn) != 0 {
			t.Fatalf("independent task %v must have no dependencies", first.AgentName)
		}
	}
}

func TestCreatePlanInvestmentFallbackDisabledKeepsSingleTask(t *testing.T) {
	model := fakeModel{raw: RawPlan{Adequate: true, Tasks: []RawTask{
		{Title: "Assess OpenAI", Query: "Assess OpenAI", AgentName: "ResearchAgent"},
	}}}
	p := newPlanner([]string{"ResearchAgent", "NewsAgent", "StrategyAgent"}, model)
	p.SetInvestmentFallback(false)
	plan, err := p.CreatePlan(context.Background(), "c1", "u1", "Should I invest in this IPO?", nil, nil, true)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if len(plan.Tasks) != 1 || plan.Tasks[0].AgentName != "ResearchAgent" {
		t.Fatalf("tasks = %+v, want the model's single task untouched", plan.Tasks)
	}
}

func TestCreatePlanRecommendationCountIsPreserved(t *testing.T) {
	p := newPlanner([]string{"Research", "News", "Strategy"}, fakeModel{})
	plan, err := p.CreatePlan(context.Background(), "c1", "u1", "Should I invest in this IPO?", nil, []string{"Research", "News"}, true)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if len(plan.Tasks) != 2 {
		t.Fatalf("tasks = %+v, want one task per recommended agent", plan.Tasks)
	}
}

func TestContainsConfirmation(t *testing.T) {
	cases := map[string]bool{
		"yes please":       true,
		"确认":               true,
		"好的":               true,
		"please schedule a daily check": false,
	}
	for text, want := range cases {
		if got := ContainsConfirmation(text); got != want {
			t.Errorf("ContainsConfirmation(%q) = %v, want %v", text, got, want)
		}
	}
}
