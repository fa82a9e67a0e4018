// Package planner turns a user query into a plan.ExecutionPlan, either by
// trusting a SuperAgent's recommended-agents shortlist directly (no model
// call) or by invoking an LLM to produce a structured plan, followed by
// validation, human-in-the-loop clarification, and a scheduling
// confirmation gate.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stockbuddy/orchestrator/ident"
	"github.com/stockbuddy/orchestrator/plan"
	"github.com/stockbuddy/orchestrator/remoteagent"
	"github.com/stockbuddy/orchestrator/remoteagent/policy"
	"github.com/stockbuddy/orchestrator/task"
)

// confirmationTokens are the English/CJK tokens that count as an explicit
// user confirmation of a proposed recurring schedule.
var confirmationTokens = []string{
	"confirm", "confirmed", "yes", "ok", "proceed",
	"确认", "已确认", "好的", "好", "可以", "行",
}

// ContainsConfirmation reports whether text contains an explicit
// confirmation token (case-insensitive for ASCII tokens).
func ContainsConfirmation(text string) bool {
	lower := strings.ToLower(text)
	for _, tok := range confirmationTokens {
		if strings.Contains(lower, strings.ToLower(tok)) {
			return true
		}
	}
	return false
}

// RawPlan is the planner model's structured output before validation,
// mirroring PlannerResponse: Adequate gates whether Tasks should be used at
// all, and GuidanceMessage/Reason explain an inadequate result to the user.
type RawPlan struct {
	Adequate        bool
	GuidanceMessage string
	Reason          string
	Tasks           []RawTask
}

// RawTask is a single task proposed by the planner model, prior to ID
// assignment and DAG/registry validation.
type RawTask struct {
	Title             string
	Query             string
	AgentName         string
	Pattern           task.Pattern
	Schedule          task.ScheduleConfig
	DependsOnIndex    []int
	HasSchedule       bool
	ScheduleConfirmed bool
}

// ModelPlanner invokes the planning LLM and returns its raw, unvalidated
// output for a query. history carries up to the last few prior turns of the
// conversation as plain text, newest last. The production implementation is
// llm.Model; kept as a narrow interface so the Planner's validation/HITL
// logic can be unit tested without a live model.
type ModelPlanner interface {
	Plan(ctx context.Context, query string, recommendedAgent string, history []string) (RawPlan, error)
}

// Clarifier requests a piece of missing information from the user and
// blocks until it is supplied. The Planner keeps the Clarifier it is built
// with but does not call it: clarification reaches the user only through an
// inadequate plan's GuidanceMessage, which the Orchestrator turns into a
// pause for user input.
type Clarifier interface {
	RequestClarification(ctx context.Context, prompt string) (string, error)
}

// Planner validates and assembles ExecutionPlans.
type Planner struct {
	agents    remoteagent.Registry
	model     ModelPlanner
	clarifier Clarifier
	now       func() time.Time
	newID     func() string

	investmentFallback bool
}

// New constructs a Planner. The investment fallback (expanding a single-task
// model plan for an investment-analysis query into the Research/News ->
// Strategy trio) is enabled by default; SetInvestmentFallback toggles it.
func New(agents remoteagent.Registry, model ModelPlanner, clarifier Clarifier) *Planner {
	return &Planner{
		agents:             agents,
		model:              model,
		clarifier:          clarifier,
		now:                time.Now,
		newID:              func() string { return uuid.NewString() },
		investmentFallback: true,
	}
}

// SetInvestmentFallback toggles the single-task investment-query expansion.
// The keyword heuristic behind it can fire on false positives, so deployments
// whose agent set doesn't match the Research/News/Strategy trio should turn
// it off.
func (p *Planner) SetInvestmentFallback(enabled bool) {
	p.investmentFallback = enabled
}

// ErrMalformedPlan indicates the model planner's output failed structural
// validation (unknown agent, cyclic dependency, invalid schedule, an empty
// title or query, or a title containing control characters).
var ErrMalformedPlan = errors.New("planner: malformed plan")

// CreatePlan builds an ExecutionPlan for query within conversationID/userID.
//
// recommendedAgents, when it names more than one agent, bypasses the model
// entirely and builds a direct multi-task plan from the Triager's
// shortlist — the Triager already decided routing; re-deriving it from an
// LLM risks a worse answer. A single recommended agent is passed to the
// model as a hint rather than used directly, preserving the model's
// latitude to decline or refine the request.
func (p *Planner) CreatePlan(ctx context.Context, conversationID ident.ConversationID, userID ident.UserID, query string, history []string, recommendedAgents []string, handoffFromSuperAgent bool) (plan.ExecutionPlan, error) {
	out := plan.ExecutionPlan{
		ID:             ident.PlanID(p.newID()),
		ConversationID: conversationID,
		UserID:         userID,
		OrigQuery:      query,
		CreatedAt:      p.now(),
	}

	pol := policy.FromContext(ctx)

	if len(recommendedAgents) > 1 {
		tasks, err := p.tasksFromRecommendations(conversationID, userID, query, recommendedAgents, handoffFromSuperAgent, pol)
		if err != nil {
			return plan.ExecutionPlan{}, err
		}
		out.Tasks = tasks
		return out, nil
	}

	hint := ""
	if len(recommendedAgents) == 1 {
		hint = recommendedAgents[0]
	}

	raw, err := p.model.Plan(ctx, query, hint, history)
	if err != nil {
		return plan.ExecutionPlan{}, fmt.Errorf("planner: model planning failed: %w", err)
	}

	if !raw.Adequate || len(raw.Tasks) == 0 {
		msg := raw.GuidanceMessage
		if msg == "" {
			msg = raw.Reason
		}
		out.GuidanceMessage = msg
		return out, nil
	}

	if err := p.validateSchedules(ctx, query, raw.Tasks); err != nil {
		if errors.Is(err, errNeedsScheduleConfirmation) {
			out.GuidanceMessage = err.Error()
			return out, nil
		}
		return plan.ExecutionPlan{}, err
	}

	tasks, err := p.buildTasks(conversationID, userID, query, raw.Tasks, handoffFromSuperAgent, pol)
	if err != nil {
		return plan.ExecutionPlan{}, err
	}

	// A lone task for an investment-analysis query is usually the model
	// under-decomposing; substitute the Research/News -> Strategy trio when
	// all three agents are registered.
	if p.investmentFallback && handoffFromSuperAgent && len(recommendedAgents) == 0 &&
		len(tasks) == 1 && tasks[0].Pattern == task.PatternOnce && looksLikeInvestmentQuery(query) {
		if trio, ok := p.investmentTrio(conversationID, userID, query, handoffFromSuperAgent, pol); ok {
			tasks = trio
		}
	}

	out.Tasks = tasks
	return out, nil
}

// investmentTrio builds the fixed Research + News -> Strategy plan, matching
// registered agent names case-insensitively. ok is false when any of the
// three roles has no registered (and policy-permitted) agent.
func (p *Planner) investmentTrio(conversationID ident.ConversationID, userID ident.UserID, query string, handoff bool, pol *policy.Policy) ([]task.Task, bool) {
	var research, news, strategy string
	for _, n := range policy.Filter(p.agents.Names(), pol) {
		lower := strings.ToLower(n)
		switch {
		case strings.Contains(lower, "research"):
			research = n
		case strings.Contains(lower, "news"):
			news = n
		case strings.Contains(lower, "strategy"):
			strategy = n
		}
	}
	if research == "" || news == "" || strategy == "" {
		return nil, false
	}

	researchID := ident.TaskID(p.newID())
	newsID := ident.TaskID(p.newID())
	now := p.now()
	mk := func(id ident.TaskID, agent string, deps []ident.TaskID) task.Task {
		return task.Task{
			ID:                    id,
			ConversationID:        conversationID,
			UserID:                userID,
			AgentName:             ident.AgentName(agent),
			Status:                task.StatusPending,
			Title:                 query,
			Query:                 query,
			Pattern:               task.PatternOnce,
			DependsOn:             deps,
			HandoffFromSuperAgent: handoff,
			CreatedAt:             now,
		}
	}
	return []task.Task{
		mk(researchID, research, nil),
		mk(newsID, news, nil),
		mk(ident.TaskID(p.newID()), strategy, []ident.TaskID{researchID, newsID}),
	}, true
}

var errNeedsScheduleConfirmation = errors.New("schedule requires explicit confirmation")

// validateSchedules applies the scheduling-confirmation rule: any task that
// carries an explicit schedule but was not marked confirmed by the model
// (i.e. the user's message lacked a confirmation token) must pause the plan
// rather than create a recurring task outright.
func (p *Planner) validateSchedules(_ context.Context, query string, tasks []RawTask) error {
	for _, t := range tasks {
		if !t.HasSchedule {
			continue
		}
		if t.ScheduleConfirmed || ContainsConfirmation(query) {
			continue
		}
		return fmt.Errorf("%w: please confirm the update frequency for %q (%+v)", errNeedsScheduleConfirmation, t.Title, t.Schedule)
	}
	return nil
}

func (p *Planner) buildTasks(conversationID ident.ConversationID, userID ident.UserID, query string, raw []RawTask, handoff bool, pol *policy.Policy) ([]task.Task, error) {
	names := make(map[string]bool)
	for _, n := range policy.Filter(p.agents.Names(), pol) {
		names[n] = true
	}

	ids := make([]ident.TaskID, len(raw))
	for i := range raw {
		ids[i] = ident.TaskID(p.newID())
	}

	out := make([]task.Task, 0, len(raw))
	for i, rt := range raw {
		if err := validateTitleQuery(rt.Title, rt.Query); err != nil {
			return nil, err
		}
		if !names[rt.AgentName] {
			return nil, fmt.Errorf("%w: agent %q is not registered", ErrMalformedPlan, rt.AgentName)
		}
		// A schedule is set exactly when the task recurs.
		if (rt.Pattern == task.PatternRecurring) != rt.HasSchedule {
			return nil, fmt.Errorf("%w: task %q must carry a schedule config iff it is recurring", ErrMalformedPlan, rt.Title)
		}
		if rt.HasSchedule {
			if err := rt.Schedule.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
			}
		}

		var dependsOn []ident.TaskID
		for _, depIdx := range rt.DependsOnIndex {
			if depIdx < 0 || depIdx >= len(ids) || depIdx == i {
				return nil, fmt.Errorf("%w: task %q has an invalid dependency index %d", ErrMalformedPlan, rt.Title, depIdx)
			}
			dependsOn = append(dependsOn, ids[depIdx])
		}
		if hasCycle(i, rt.DependsOnIndex, raw) {
			return nil, fmt.Errorf("%w: cyclic dependency involving task %q", ErrMalformedPlan, rt.Title)
		}

		pattern := rt.Pattern
		if pattern == "" {
			pattern = task.PatternOnce
		}

		out = append(out, task.Task{
			ID:                    ids[i],
			ConversationID:        conversationID,
			UserID:                userID,
			AgentName:             ident.AgentName(rt.AgentName),
			Status:                task.StatusPending,
			Title:                 rt.Title,
			Query:                 rt.Query,
			Pattern:               pattern,
			Schedule:              rt.Schedule,
			DependsOn:             dependsOn,
			HandoffFromSuperAgent: handoff,
			CreatedAt:             p.now(),
		})
	}
	return out, nil
}

// tasksFromRecommendations builds tasks directly from the Triager's
// shortlist, skipping the model entirely: one task per recommended agent,
// with any synthesis-class agent depending on all the others.
func (p *Planner) tasksFromRecommendations(conversationID ident.ConversationID, userID ident.UserID, query string, agents []string, handoff bool, pol *policy.Policy) ([]task.Task, error) {
	names := make(map[string]bool)
	for _, n := range policy.Filter(p.agents.Names(), pol) {
		names[n] = true
	}
	for _, a := range agents {
		if !names[a] {
			return nil, fmt.Errorf("%w: agent %q is not registered or not permitted by policy", ErrMalformedPlan, a)
		}
	}

	ids := make([]ident.TaskID, len(agents))
	for i := range agents {
		ids[i] = ident.TaskID(p.newID())
	}

	// Synthesis-class agents (StrategyAgent-like) consume every independent
	// agent's output, so by default they're placed as the terminal node
	// depending on every non-synthesis task in the shortlist.
	var independentIDs []ident.TaskID
	for i, agentName := range agents {
		if !isSynthesisClass(agentName) {
			independentIDs = append(independentIDs, ids[i])
		}
	}

	out := make([]task.Task, 0, len(agents))
	for i, agentName := range agents {
		var dependsOn []ident.TaskID
		if isSynthesisClass(agentName) {
			dependsOn = independentIDs
		}
		out = append(out, task.Task{
			ID:                    ids[i],
			ConversationID:        conversationID,
			UserID:                userID,
			AgentName:             ident.AgentName(agentName),
			Status:                task.StatusPending,
			Title:                 query,
			Query:                 query,
			Pattern:               task.PatternOnce,
			DependsOn:             dependsOn,
			HandoffFromSuperAgent: handoff,
			CreatedAt:             p.now(),
		})
	}
	return out, nil
}

// isSynthesisClass reports whether agentName is a synthesis-class agent
// (e.g. "StrategyAgent", "Strategy") that consumes other agents' outputs and
// should therefore be placed as a terminal node depending on the rest of a
// deterministically-built plan.
func isSynthesisClass(agentName string) bool {
	return strings.Contains(strings.ToLower(agentName), "strategy")
}

func looksLikeInvestmentQuery(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range []string{"invest", "investment", "ipo", "valuation", "recommend", "should i", "worth"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func validateTitleQuery(title, query string) error {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: title and query are required", ErrMalformedPlan)
	}
	if !isASCIISafe(title) {
		return fmt.Errorf("%w: title %q contains unsafe characters", ErrMalformedPlan, title)
	}
	return nil
}

// isASCIISafe rejects control characters, which would corrupt downstream
// JSON-in-JSON component payloads if left unescaped.
func isASCIISafe(s string) bool {
	for _, r := range s {
		if r < 0x20 && r != '\t' {
			return false
		}
	}
	return true
}

func hasCycle(start int, deps []int, all []RawTask) bool {
	visited := make(map[int]bool)
	var visit func(int) bool
	visit = func(i int) bool {
		if i == start && visited[i] {
			return true
		}
		if visited[i] {
			return false
		}
		visited[i] = true
		for _, d := range all[i].DependsOnIndex {
			if d == start || visit(d) {
				return true
			}
		}
		return false
	}
	for _, d := range deps {
		if visit(d) {
			return true
		}
	}
	return false
}
