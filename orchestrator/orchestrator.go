// Package orchestrator drives a single user turn end-to-end: load or create
// the conversation, either resume a paused plan or fast-track/triage/plan a
// new request, execute the resulting plan against remote agents, and stream
// client-facing events the whole way through. Each turn runs as a detached
// producer goroutine feeding a bounded queue, so a disconnected client never
// stalls or kills an in-flight (possibly recurring) execution.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stockbuddy/orchestrator/conversation"
	"github.com/stockbuddy/orchestrator/events"
	"github.com/stockbuddy/orchestrator/executor"
	"github.com/stockbuddy/orchestrator/ident"
	"github.com/stockbuddy/orchestrator/itemstore"
	"github.com/stockbuddy/orchestrator/plan"
	"github.com/stockbuddy/orchestrator/planner"
	"github.com/stockbuddy/orchestrator/remoteagent/policy"
	"github.com/stockbuddy/orchestrator/telemetry"
	"github.com/stockbuddy/orchestrator/triager"
)

// queueCapacity bounds the per-turn event queue. The producer drops events
// once the consumer is gone (active==false), never once the queue is full:
// a slow consumer should see events delayed, not silently lost, while a
// gone consumer should never be allowed to block a recurring task's
// background execution.
const queueCapacity = 64

// UserInput is a single turn of user input routed to the orchestrator.
type UserInput struct {
	ConversationID ident.ConversationID
	UserID         ident.UserID
	TargetAgent    ident.AgentName
	Query          string
	// AgentPolicy, if set, restricts which remote agents the Planner may
	// route this turn's tasks to (e.g. a tenant scoped to a subset of the
	// registry). Nil permits every registered agent.
	AgentPolicy *policy.Policy
}

// Orchestrator coordinates conversation state, triage, planning, and
// execution for each UserInput.
type Orchestrator struct {
	conversations conversation.Store
	items         itemstore.Store
	triager       *triager.Triager
	planner       *planner.Planner
	executor      *executor.Executor
	log           telemetry.Logger
	tracer        telemetry.Tracer
	ttl           time.Duration
	now           func() time.Time

	mu       sync.Mutex
	contexts map[ident.ConversationID]*ExecutionContext
}

// New constructs an Orchestrator.
func New(conversations conversation.Store, items itemstore.Store, tr *triager.Triager, pl *planner.Planner, ex *executor.Executor, log telemetry.Logger, ttl time.Duration) *Orchestrator {
	return &Orchestrator{
		conversations: conversations,
		items:         items,
		triager:       tr,
		planner:       pl,
		executor:      ex,
		log:           log,
		tracer:        telemetry.NoopTracer{},
		ttl:           ttl,
		now:           time.Now,
		contexts:      make(map[ident.ConversationID]*ExecutionContext),
	}
}

// ProcessUserInput starts a detached producer goroutine that runs the
// triage/plan/execute pipeline and returns a channel of events decoupled
// from the caller's lifetime: closing/abandoning the returned channel's
// consumer does not stop the producer, so scheduled tasks and long-running
// plans proceed independently of a disconnected client.
func (o *Orchestrator) ProcessUserInput(ctx context.Context, in UserInput) <-chan events.Event {
	queue := make(chan events.Event, queueCapacity)
	active := &atomicBool{}
	active.set(true)

	// The session itself must outlive the caller's request context: a
	// disconnected HTTP client cancels ctx, but recurring tasks and
	// in-flight remote calls must keep running. sessionCtx carries the same
	// values (deadlines/cancellation from ctx would otherwise propagate into
	// every remote SendTask and cooperative sleep) without the cancellation.
	sessionCtx := context.WithoutCancel(ctx)

	emit := func(e events.Event) {
		// Persist before the liveness check: every event that reaches here —
		// whether the orchestrator's own or forwarded from the executor —
		// must be durable even if the client has already gone away, since a
		// recurring task keeps producing events long after this turn's
		// consumer stops reading.
		o.persist(sessionCtx, e)
		if !active.get() {
			return
		}
		queue <- e
	}

	go func() {
		defer close(queue)
		o.runSession(sessionCtx, in, emit)
	}()

	// Once ctx is done (client disconnected), mark the producer inactive and
	// keep draining the queue so a full buffer never blocks the detached
	// producer forever.
	go func() {
		<-ctx.Done()
		active.set(false)
		for range queue {
		}
	}()

	return queue
}

// SetTracer overrides the Tracer spanning each user turn (a no-op by
// default).
func (o *Orchestrator) SetTracer(t telemetry.Tracer) {
	o.tracer = t
}

func (o *Orchestrator) runSession(ctx context.Context, in UserInput, emit func(events.Event)) {
	ctx, finish := o.tracer.Start(ctx, "orchestrator.turn")
	defer finish(nil)
	defer func() {
		if r := recover(); r != nil {
			o.log.Error(ctx, "orchestrator: panic in session", "error", fmt.Sprint(r))
		}
	}()
	o.generateResponses(ctx, in, emit)
}

func (o *Orchestrator) generateResponses(ctx context.Context, in UserInput, emit func(events.Event)) {
	conv, err := o.ensureConversation(ctx, in, emit)
	if err != nil {
		f := events.NewFactory(in.ConversationID, "", o.now)
		emit(f.SystemFailed(fmt.Sprintf("error processing request: %v", err)))
		return
	}

	if conv.Status == conversation.StatusRequireUserInput {
		o.handleContinuation(ctx, in, emit)
	} else {
		o.handleNewRequest(ctx, in, emit)
	}

	f := events.NewFactory(in.ConversationID, "", o.now)
	emit(f.Done())
}

func (o *Orchestrator) ensureConversation(ctx context.Context, in UserInput, emit func(events.Event)) (conversation.Conversation, error) {
	conv, err := o.conversations.Load(ctx, in.ConversationID)
	if err == nil {
		return conv, nil
	}
	if err != conversation.ErrNotFound {
		return conversation.Conversation{}, err
	}

	conv = conversation.Conversation{
		ID:        in.ConversationID,
		UserID:    in.UserID,
		AgentName: in.TargetAgent,
		Status:    conversation.StatusActive,
		CreatedAt: o.now(),
	}
	if err := o.conversations.Create(ctx, conv); err != nil {
		return conversation.Conversation{}, err
	}
	f := events.NewFactory(in.ConversationID, "", o.now)
	emit(f.ConversationStarted())
	return conv, nil
}

// persist durably records e in the item log, keyed by a stable per-event
// item ID so a restart can replay a conversation exactly as the client saw
// it. Component events (scheduled_task_controller, subagent_conversation,
// execution_plan, schedule_task_result) are upserted by their embedded
// ItemID instead of appended, matching the component-update contract.
// Persistence failures are logged, not fatal: a slow or unavailable store
// must not abort an otherwise-healthy stream.
func (o *Orchestrator) persist(ctx context.Context, e events.Event) {
	if o.items == nil {
		return
	}
	itemID := e.ItemID
	if itemID == "" {
		itemID = uuid.NewString()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		o.log.Error(ctx, "orchestrator: marshal event for persistence", "error", err.Error())
		return
	}
	item := &itemstore.Item{
		ItemID:         itemID,
		ConversationID: e.ConversationID,
		ThreadID:       e.ThreadID,
		Kind:           string(e.Kind),
		ComponentType:  string(e.ComponentType),
		Content:        payload,
		Timestamp:      e.Timestamp,
	}
	if e.Kind == events.KindComponentGenerator {
		if err := o.items.Upsert(ctx, item); err != nil {
			o.log.Error(ctx, "orchestrator: upsert item", "error", err.Error())
		}
		return
	}
	if err := o.items.Append(ctx, item); err != nil {
		o.log.Error(ctx, "orchestrator: append item", "error", err.Error())
	}
}

func (o *Orchestrator) handleNewRequest(ctx context.Context, in UserInput, emit func(events.Event)) {
	threadID := ident.ThreadID(uuid.NewString())
	f := events.NewFactory(in.ConversationID, threadID, o.now)
	emit(f.ThreadStarted())

	var recommendedAgents []string
	handoffFromSuperAgent := in.TargetAgent == "" || in.TargetAgent == "SuperAgent"
	query := in.Query

	skipSuperAgent := triager.ShouldFastTrack(in.TargetAgent, in.Query)
	if !skipSuperAgent && handoffFromSuperAgent {
		outcome, err := o.triager.Triage(ctx, in.Query)
		if err != nil {
			emit(f.SystemFailed(fmt.Sprintf("triage failed: %v", err)))
			return
		}
		if outcome.AnswerContent != "" {
			emit(f.MessageChunk("", outcome.AnswerContent))
		}
		if outcome.Decision == triager.DecisionAnswer {
			return
		}
		if outcome.EnrichedQuery != "" {
			query = outcome.EnrichedQuery
		}
		recommendedAgents = outcome.RecommendedAgents
	}

	// An explicitly targeted agent is passed to the planner as a single
	// recommendation, which it treats as a routing hint.
	if !handoffFromSuperAgent {
		recommendedAgents = []string{string(in.TargetAgent)}
	}

	o.planAndExecute(ctx, in, threadID, query, recommendedAgents, handoffFromSuperAgent, emit)
}

func (o *Orchestrator) planAndExecute(ctx context.Context, in UserInput, threadID ident.ThreadID, query string, recommendedAgents []string, handoff bool, emit func(events.Event)) {
	f := events.NewFactory(in.ConversationID, threadID, o.now)

	if in.AgentPolicy != nil {
		ctx = policy.WithPolicy(ctx, in.AgentPolicy)
	}

	p, err := o.planner.CreatePlan(ctx, in.ConversationID, in.UserID, query, o.recentHistory(ctx, in.ConversationID), recommendedAgents, handoff)
	if err != nil {
		emit(f.PlanFailed(err.Error()))
		return
	}

	if !p.Adequate() {
		o.pauseForUserInput(in, threadID, query)
		emit(f.PlanRequireUserInput(p.GuidanceMessage))
		return
	}

	if len(p.Tasks) > 0 {
		_, _ = o.conversations.SetTitleOnce(ctx, in.ConversationID, p.Tasks[0].Title)
		emit(o.planComponent(f, p))
	}

	for ev := range o.executor.ExecutePlan(ctx, p, threadID) {
		emit(ev)
	}
}

// historyTurns bounds how many prior assistant responses are replayed to the
// planning model as conversation context.
const historyTurns = 3

// recentHistory returns the text of the last few assistant message chunks
// persisted for the conversation, oldest first, as planning context.
func (o *Orchestrator) recentHistory(ctx context.Context, id ident.ConversationID) []string {
	if o.items == nil {
		return nil
	}
	var texts []string
	cursor := ""
	for {
		page, err := o.items.List(ctx, id, cursor, 200)
		if err != nil {
			return nil
		}
		for _, item := range page.Items {
			if item.Kind != string(events.KindMessageChunk) {
				continue
			}
			var e events.Event
			if err := json.Unmarshal(item.Content, &e); err != nil || e.Text == "" {
				continue
			}
			texts = append(texts, e.Text)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if len(texts) > historyTurns {
		texts = texts[len(texts)-historyTurns:]
	}
	return texts
}

func (o *Orchestrator) pauseForUserInput(in UserInput, threadID ident.ThreadID, query string) {
	ec := &ExecutionContext{
		Stage:          "planning",
		ConversationID: in.ConversationID,
		ThreadID:       threadID,
		UserID:         in.UserID,
		CreatedAt:      o.now(),
	}
	// The (possibly triage-enriched) query is carried across the pause so the
	// continuation turn replans from the full request, not just the user's
	// one-word reply.
	ec.AddMetadata(map[string]any{"original_user_input": query})
	o.mu.Lock()
	o.contexts[in.ConversationID] = ec
	o.mu.Unlock()
	_ = o.conversations.SetStatus(context.Background(), in.ConversationID, conversation.StatusRequireUserInput)
}

// planComponent summarizes an adequate plan's DAG (agents, titles, dependency
// edges) as an execution_plan component for the client to render before the
// task streams begin.
func (o *Orchestrator) planComponent(f events.Factory, p plan.ExecutionPlan) events.Event {
	type taskSummary struct {
		TaskID    string   `json:"task_id"`
		Title     string   `json:"title"`
		AgentName string   `json:"agent_name"`
		DependsOn []string `json:"depends_on,omitempty"`
	}
	summaries := make([]taskSummary, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		s := taskSummary{TaskID: string(t.ID), Title: t.Title, AgentName: string(t.AgentName)}
		for _, dep := range t.DependsOn {
			s.DependsOn = append(s.DependsOn, string(dep))
		}
		summaries = append(summaries, s)
	}
	payload, _ := json.Marshal(map[string]any{
		"plan_id": string(p.ID),
		"tasks":   summaries,
	})
	return f.Component(events.ComponentExecutionPlan, fmt.Sprintf("plan-%s", p.ID), payload)
}

func (o *Orchestrator) handleContinuation(ctx context.Context, in UserInput, emit func(events.Event)) {
	o.mu.Lock()
	ec, ok := o.contexts[in.ConversationID]
	o.mu.Unlock()

	f := events.NewFactory(in.ConversationID, "", o.now)

	if !ok {
		emit(f.SystemFailed("no execution context found for this conversation; it may have expired"))
		return
	}
	if ec.IsExpired(o.now(), o.ttl) || !ec.ValidateUser(in.UserID) {
		emit(f.SystemFailed("invalid execution context or user mismatch"))
		o.clearContext(in.ConversationID)
		return
	}

	threadID := ident.ThreadID(uuid.NewString())
	f = events.NewFactory(in.ConversationID, threadID, o.now)
	emit(f.ThreadStarted())

	ec.AddMetadata(map[string]any{"pending_response": in.Query})
	_ = o.conversations.SetStatus(ctx, in.ConversationID, conversation.StatusActive)
	o.clearContext(in.ConversationID)

	if ec.Stage != "planning" {
		emit(f.SystemFailed("resuming execution stage is not yet supported"))
		return
	}

	// Replan from the paused turn's query plus the user's reply, so a bare
	// confirmation ("yes") still carries the original request and its
	// confirmation token through the planner's scheduling gate.
	query := in.Query
	if orig, ok := ec.Metadata["original_user_input"].(string); ok && orig != "" {
		query = orig + "\n" + in.Query
	}

	o.planAndExecute(ctx, in, threadID, query, nil, true, emit)
}

func (o *Orchestrator) clearContext(id ident.ConversationID) {
	o.mu.Lock()
	delete(o.contexts, id)
	o.mu.Unlock()
}

// SweepExpiredContexts evicts every ExecutionContext past its TTL and returns
// how many were removed. A conversation left in REQUIRE_USER_INPUT whose
// context is swept stays paused; its next UserInput surfaces system_failed
// through the normal missing-context path.
func (o *Orchestrator) SweepExpiredContexts(ctx context.Context) int {
	now := o.now()
	o.mu.Lock()
	var expired []ident.ConversationID
	for id, ec := range o.contexts {
		if ec.IsExpired(now, o.ttl) {
			expired = append(expired, id)
			delete(o.contexts, id)
		}
	}
	o.mu.Unlock()
	for _, id := range expired {
		o.log.Info(ctx, "orchestrator: expired execution context evicted", "conversation_id", string(id))
	}
	return len(expired)
}

// StartContextSweeper runs SweepExpiredContexts every interval until ctx is
// cancelled.
func (o *Orchestrator) StartContextSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.SweepExpiredContexts(ctx)
			}
		}
	}()
}

type atomicBool struct {
	mu sync.Mutex
	v  bool
}

func (a *atomicBool) set(v bool) {
	a.mu.Lock()
	a.v = v
	a.mu.Unlock()
}

func (a *atomicBool) get() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v
}
