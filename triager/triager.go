// Package triager implements the SuperAgent triage step: a single LLM call
// that either answers a simple query directly, hands a query off to the
// Planner with an enriched query and optional recommended-agents
// shortlist, or is bypassed entirely by the fast-track keyword rule for
// queries that are already known to need multi-step planning.
package triager

import (
	"context"
	"strings"

	"github.com/stockbuddy/orchestrator/ident"
)

// englishKeywords indicate complex multi-step analysis/investment queries.
var englishKeywords = []string{
	"analyze", "analysis", "compare", "vs", "versus", "recommend",
	"should i", "worth", "better", "invest", "investment",
	"ipo", "valuation", "trend", "outlook", "performance",
}

// chineseKeywords are the Chinese-language equivalents of englishKeywords.
var chineseKeywords = []string{
	"分析", "对比", "比较", "推荐", "建议", "值得", "投资",
	"估值", "趋势", "前景", "表现", "如何", "怎么样",
}

// superAgentName is the reserved agent name representing the SuperAgent
// itself; a request explicitly targeting it always runs the triage step.
const superAgentName = ident.AgentName("SuperAgent")

// ShouldFastTrack reports whether query should bypass the SuperAgent and go
// directly to the Planner. Fast-tracking improves latency for queries
// already known to need multi-step planning. A request explicitly
// targeting the SuperAgent is never fast-tracked.
func ShouldFastTrack(targetAgent ident.AgentName, query string) bool {
	if targetAgent == superAgentName {
		return false
	}
	if targetAgent != "" {
		// A different explicit target also bypasses triage, but that is
		// handled by the Orchestrator's routing, not this keyword rule;
		// ShouldFastTrack only applies when no explicit target was given.
		return false
	}

	lower := strings.ToLower(query)

	englishMatches := 0
	for _, kw := range englishKeywords {
		if strings.Contains(lower, kw) {
			englishMatches++
		}
	}

	chineseMatches := 0
	for _, kw := range chineseKeywords {
		if strings.Contains(query, kw) {
			chineseMatches++
		}
	}

	if englishMatches >= 2 || chineseMatches >= 2 {
		return true
	}
	if strings.Contains(lower, "vs") || strings.Contains(lower, "versus") {
		return true
	}
	if strings.Contains(query, "对比") {
		return true
	}
	return false
}

// Decision is the SuperAgent's outcome for a triaged query.
type Decision string

const (
	// DecisionAnswer means the SuperAgent answered the query directly; no
	// planning is required.
	DecisionAnswer Decision = "answer"
	// DecisionHandoffToPlanner means the query should proceed to the
	// Planner, optionally with an enriched query and recommended agents.
	DecisionHandoffToPlanner Decision = "handoff_to_planner"
)

// Outcome is the result of a single triage pass.
type Outcome struct {
	Decision          Decision
	AnswerContent     string
	EnrichedQuery     string
	RecommendedAgents []string
}

// Model performs the single LLM call that backs Triage. The production
// implementation is llm.Model, shared with planner.ModelPlanner; kept as a
// separate interface because the two prompts and output schemas differ.
type Model interface {
	Triage(ctx context.Context, query string) (Outcome, error)
}

// Triager runs the SuperAgent triage step.
type Triager struct {
	model Model
}

// New constructs a Triager.
func New(model Model) *Triager {
	return &Triager{model: model}
}

// Triage runs the SuperAgent over query. Callers should check
// ShouldFastTrack first and skip calling Triage entirely when it returns
// true for a non-SuperAgent-targeted query.
func (t *Triager) Triage(ctx context.Context, query string) (Outcome, error) {
	return t.model.Triage(ctx, query)
}
