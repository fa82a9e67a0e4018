package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/stockbuddy/orchestrator/planner"
	"github.com/stockbuddy/orchestrator/remoteagent"
	"github.com/stockbuddy/orchestrator/task"
	"github.com/stockbuddy/orchestrator/triager"
)

// plannerSystemPrompt instructs the model to decompose a query into an
// ordered set of tasks against the agent registry, or decline with a
// guidance message when the query is too vague to plan.
const plannerSystemPrompt = `You are the planning component of a multi-agent research system.
Given a user query and (optionally) a single recommended specialist agent,
produce a JSON plan: a list of tasks, each assigned to exactly one
registered specialist agent, with optional dependencies on earlier tasks in
the same plan and an optional recurring schedule.

Respond with a single JSON object matching the provided schema. If the
query is too vague or ambiguous to plan, set "adequate" to false and put a
clarifying question in "guidance_message".`

// triagerSystemPrompt instructs the model to decide whether a query can be
// answered directly or needs to be handed to the Planner, optionally
// enriching the query and recommending agents.
const triagerSystemPrompt = `You are the SuperAgent of a multi-agent research system.
For simple conversational queries, answer directly. For queries that need
research, analysis, or multi-step work, hand off to the Planner: restate
the query with any useful context ("enriched_query") and, if you are
confident which specialist agents are needed, list them in
"recommended_agents".

Respond with a single JSON object matching the provided schema.`

func planPrompt(query, recommendedAgent string, history []string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current date/time: %s\n\n", now.Format("2006-01-02 15:04 MST"))
	if len(history) > 0 {
		b.WriteString("Recent conversation context (oldest first):\n")
		for _, h := range history {
			fmt.Fprintf(&b, "- %s\n", h)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "User query: %s\n\n", query)
	if recommendedAgent == "" {
		b.WriteString("No recommended agent was supplied; choose the best fit(s) from the registry.")
	} else {
		fmt.Fprintf(&b, "Recommended agent: %s", recommendedAgent)
	}
	return b.String()
}

// capabilitiesPrompt renders the registered agents' capability cards as a
// system-prompt section. Empty when no cards were injected.
func capabilitiesPrompt(cards []remoteagent.AgentCard) string {
	if len(cards) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nRegistered specialist agents:\n")
	for _, c := range cards {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
	}
	return b.String()
}

// planResponseSchemaJSON is the JSON Schema the planner's structured output
// must satisfy.
const planResponseSchemaJSON = `{
  "type": "object",
  "required": ["adequate"],
  "properties": {
    "adequate": {"type": "boolean"},
    "guidance_message": {"type": "string"},
    "reason": {"type": "string"},
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title", "query", "agent_name"],
        "properties": {
          "title": {"type": "string"},
          "query": {"type": "string"},
          "agent_name": {"type": "string"},
          "pattern": {"type": "string", "enum": ["once", "recurring"]},
          "depends_on": {"type": "array", "items": {"type": "integer"}},
          "schedule": {
            "type": "object",
            "properties": {
              "interval_minutes": {"type": "integer"},
              "daily_time": {"type": "string"},
              "confirmed": {"type": "boolean"}
            }
          }
        }
      }
    }
  }
}`

// triageResponseSchemaJSON is the JSON Schema the triager's structured
// output must satisfy.
const triageResponseSchemaJSON = `{
  "type": "object",
  "required": ["decision"],
  "properties": {
    "decision": {"type": "string", "enum": ["answer", "handoff_to_planner"]},
    "answer_content": {"type": "string"},
    "enriched_query": {"type": "string"},
    "recommended_agents": {"type": "array", "items": {"type": "string"}}
  }
}`

type planResponseWire struct {
	Adequate        bool           `json:"adequate"`
	GuidanceMessage string         `json:"guidance_message"`
	Reason          string         `json:"reason"`
	Tasks           []planTaskWire `json:"tasks"`
}

type planTaskWire struct {
	Title     string        `json:"title"`
	Query     string        `json:"query"`
	AgentName string        `json:"agent_name"`
	Pattern   string        `json:"pattern"`
	DependsOn []int         `json:"depends_on"`
	Schedule  *scheduleWire `json:"schedule"`
}

type scheduleWire struct {
	IntervalMinutes int    `json:"interval_minutes"`
	DailyTime       string `json:"daily_time"`
	Confirmed       bool   `json:"confirmed"`
}

func (w planResponseWire) toRawPlan() planner.RawPlan {
	out := planner.RawPlan{
		Adequate:        w.Adequate,
		GuidanceMessage: w.GuidanceMessage,
		Reason:          w.Reason,
	}
	for _, t := range w.Tasks {
		rt := planner.RawTask{
			Title:          t.Title,
			Query:          t.Query,
			AgentName:      t.AgentName,
			Pattern:        task.PatternOnce,
			DependsOnIndex: t.DependsOn,
		}
		if t.Pattern == string(task.PatternRecurring) {
			rt.Pattern = task.PatternRecurring
		}
		if t.Schedule != nil {
			rt.HasSchedule = true
			rt.ScheduleConfirmed = t.Schedule.Confirmed
			rt.Schedule = task.ScheduleConfig{
				IntervalMinutes: t.Schedule.IntervalMinutes,
				DailyTime:       t.Schedule.DailyTime,
			}
		}
		out.Tasks = append(out.Tasks, rt)
	}
	return out
}

type triageResponseWire struct {
	Decision          string   `json:"decision"`
	AnswerContent     string   `json:"answer_content"`
	EnrichedQuery     string   `json:"enriched_query"`
	RecommendedAgents []string `json:"recommended_agents"`
}

func (w triageResponseWire) toOutcome() triager.Outcome {
	decision := triager.DecisionHandoffToPlanner
	if w.Decision == string(triager.DecisionAnswer) {
		decision = triager.DecisionAnswer
	}
	return triager.Outcome{
		Decision:          decision,
		AnswerContent:     w.AnswerContent,
		EnrichedQuery:     w.EnrichedQuery,
		RecommendedAgents: w.RecommendedAgents,
	}
}
