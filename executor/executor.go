// Package executor runs an ExecutionPlan's tasks against remote specialist
// agents, translating each task's remote stream into client-facing events,
// handling DAG-aware parallel batches, subagent conversation handoff
// components, recurring-schedule re-invocation, and cooperative
// cancellation.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stockbuddy/orchestrator/accumulator"
	"github.com/stockbuddy/orchestrator/conversation"
	"github.com/stockbuddy/orchestrator/events"
	"github.com/stockbuddy/orchestrator/eventrouter"
	"github.com/stockbuddy/orchestrator/ident"
	"github.com/stockbuddy/orchestrator/plan"
	"github.com/stockbuddy/orchestrator/remoteagent"
	"github.com/stockbuddy/orchestrator/scheduler"
	"github.com/stockbuddy/orchestrator/scheduler/inmem"
	"github.com/stockbuddy/orchestrator/task"
	"github.com/stockbuddy/orchestrator/telemetry"
)

// DefaultPollInterval bounds how long the cooperative-cancellation sleep
// loop waits between checks of a recurring task's cancellation state.
const DefaultPollInterval = 100 * time.Millisecond

// Executor executes ExecutionPlans and individually scheduled recurring
// tasks. It does not persist events itself — every event it emits flows
// back through the Orchestrator's emit, which is the single point that
// durably records the client-facing stream (see orchestrator.persist).
type Executor struct {
	agents        remoteagent.Registry
	tasks         task.Store
	conversations conversation.Store
	log           telemetry.Logger
	metrics       telemetry.Metrics
	tracer        telemetry.Tracer
	pollInterval  time.Duration
	now           func() time.Time
	engine        scheduler.Engine
	newID         func() string
	loc           *time.Location
	lang          string
}

// New constructs an Executor. Recurring tasks re-invoke through an in-process
// scheduler.Engine by default (SetEngine swaps in a durable one, e.g. a
// temporal-backed engine, for deployments that must survive a restart).
func New(agents remoteagent.Registry, tasks task.Store, log telemetry.Logger) *Executor {
	return &Executor{
		agents:       agents,
		tasks:        tasks,
		log:          log,
		metrics:      telemetry.NoopMetrics{},
		tracer:       telemetry.NoopTracer{},
		pollInterval: DefaultPollInterval,
		now:          time.Now,
		engine:       inmem.New(),
		newID:        uuid.NewString,
		loc:          time.Local,
		lang:         "en",
	}
}

// SetEngine overrides the scheduler.Engine recurring tasks re-invoke
// through. Must be called before ExecutePlan starts any recurring task.
func (x *Executor) SetEngine(engine scheduler.Engine) {
	x.engine = engine
}

// SetConversations provides the conversation store used to create the child
// conversation a SuperAgent-handoff task runs under. Without one, handoff
// tasks still mint a child conversation ID but no record is created.
func (x *Executor) SetConversations(store conversation.Store) {
	x.conversations = store
}

// SetMetrics overrides the Metrics recorder (a no-op by default).
func (x *Executor) SetMetrics(m telemetry.Metrics) {
	x.metrics = m
}

// SetTracer overrides the Tracer spanning each task execution (a no-op by
// default).
func (x *Executor) SetTracer(t telemetry.Tracer) {
	x.tracer = t
}

// SetLocale sets the timezone daily-time schedules resolve against and the
// user language forwarded to remote agents in request metadata.
func (x *Executor) SetLocale(loc *time.Location, lang string) {
	if loc != nil {
		x.loc = loc
	}
	if lang != "" {
		x.lang = lang
	}
}

// artifactSet collects each completed task's consolidated text output so
// dependent tasks in later batches receive their upstream results as request
// metadata. Scoped to a single ExecutePlan call.
type artifactSet struct {
	mu     sync.Mutex
	byTask map[ident.TaskID]string
}

func newArtifactSet() *artifactSet {
	return &artifactSet{byTask: make(map[ident.TaskID]string)}
}

func (a *artifactSet) put(id ident.TaskID, text string) {
	a.mu.Lock()
	a.byTask[id] = text
	a.mu.Unlock()
}

func (a *artifactSet) collect(deps []ident.TaskID) map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]string)
	for _, dep := range deps {
		if text, ok := a.byTask[dep]; ok && text != "" {
			out[string(dep)] = text
		}
	}
	return out
}

// ExecutePlan runs every task in plan, emitting events on the returned
// channel. If the plan carries only a guidance message (no tasks), that
// message is emitted as a single message_chunk and the channel closes.
// Tasks execute in topologically-ordered batches; every task within a batch
// runs concurrently and their streams interleave freely, while batch N
// fully terminates before batch N+1 starts.
func (x *Executor) ExecutePlan(ctx context.Context, p plan.ExecutionPlan, threadID ident.ThreadID) <-chan events.Event {
	out := make(chan events.Event)
	go func() {
		defer close(out)

		f := events.NewFactory(p.ConversationID, threadID, x.now)

		if p.GuidanceMessage != "" {
			out <- f.MessageChunk("", p.GuidanceMessage)
			return
		}

		arts := newArtifactSet()
		for _, batch := range buildExecutionBatches(p.Tasks) {
			x.runBatch(ctx, batch, p, threadID, out, arts)
		}
	}()
	return out
}

// runBatch fans the batch's tasks out to one worker each and blocks until
// all of them terminate. Workers send to out directly: ordering within a
// task is each worker's own send order, interleaving between tasks is
// unspecified, and the post-Wait return is the cross-batch barrier.
func (x *Executor) runBatch(ctx context.Context, batch []task.Task, p plan.ExecutionPlan, threadID ident.ThreadID, out chan<- events.Event, arts *artifactSet) {
	batchStart := x.now()
	defer func() {
		x.metrics.Observe("executor.batch.duration", x.now().Sub(batchStart))
	}()

	// Co-members of the batch: a dependency inside the same batch only occurs
	// in the degraded cycle case, where tasks run best-effort regardless.
	peers := make(map[ident.TaskID]bool, len(batch))
	for _, t := range batch {
		peers[t.ID] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range batch {
		t := t
		g.Go(func() error {
			x.runTaskInPlan(gctx, t, p, threadID, out, arts, peers)
			return nil
		})
	}
	_ = g.Wait()
}

// runTaskInPlan handles the subagent-conversation handoff wrapping around a
// single task's execution: emit start, execute, emit end, with an
// exactly-once END emission guaranteed even on error.
// A handoff task runs under a fresh child conversation (the parent threadID
// is preserved, so the child's events remain attributable to this turn).
func (x *Executor) runTaskInPlan(ctx context.Context, t task.Task, p plan.ExecutionPlan, threadID ident.ThreadID, out chan<- events.Event, arts *artifactSet, peers map[ident.TaskID]bool) {
	f := events.NewFactory(p.ConversationID, threadID, x.now)
	componentItemID := fmt.Sprintf("subagent-%s", t.ID)
	endEmitted := false

	// A task whose dependency failed (or was skipped in turn) never starts:
	// no task_started, no terminal event, status left pending. Dependencies
	// inside the same batch are exempt — that only happens when a cycle
	// degraded the schedule to one best-effort batch.
	for _, dep := range t.DependsOn {
		if peers[dep] {
			continue
		}
		current, err := x.tasks.Load(ctx, dep)
		if err != nil || current.Status != task.StatusCompleted {
			x.log.Info(ctx, "executor: skipping task, dependency did not complete",
				"task_id", string(t.ID), "dependency", string(dep))
			return
		}
	}

	if t.HandoffFromSuperAgent {
		t.SuperAgentConversationID = t.ConversationID
		t.ConversationID = ident.ConversationID(x.newID())
		if x.conversations != nil {
			child := conversation.Conversation{
				ID:        t.ConversationID,
				UserID:    t.UserID,
				AgentName: t.AgentName,
				Status:    conversation.StatusActive,
				CreatedAt: x.now(),
			}
			if err := x.conversations.Create(ctx, child); err != nil {
				x.log.Error(ctx, "executor: create child conversation", "task_id", string(t.ID), "error", err.Error())
			}
		}
	}
	t.ThreadID = threadID

	emitEnd := func() {
		if !t.HandoffFromSuperAgent || endEmitted {
			return
		}
		endEmitted = true
		out <- x.subagentComponent(f, t, componentItemID, "end")
	}

	if t.HandoffFromSuperAgent {
		out <- x.subagentComponent(f, t, componentItemID, "start")
		out <- f.ThreadStarted()
	}

	defer emitEnd()

	if err := x.tasks.Create(ctx, t); err != nil {
		out <- f.TaskFailed(t.ID, err.Error())
		return
	}
	if err := x.tasks.SetStatus(ctx, t.ID, task.StatusRunning); err != nil {
		out <- f.TaskFailed(t.ID, err.Error())
		return
	}
	x.metrics.Count("executor.task.started", 1, "agent", string(t.AgentName))

	spanCtx, finish := x.tracer.Start(ctx, "executor.run_task")
	err := x.runTaskLifecycle(spanCtx, t, threadID, out, arts)
	finish(err)
	if err != nil {
		x.metrics.Count("executor.task.failed", 1, "agent", string(t.AgentName))
		out <- f.TaskFailed(t.ID, err.Error())
		return
	}
}

func (x *Executor) subagentComponent(f events.Factory, t task.Task, itemID, phase string) events.Event {
	payload, _ := json.Marshal(map[string]string{
		"conversation_id": string(t.ConversationID),
		"agent_name":      string(t.AgentName),
		"phase":           phase,
	})
	return f.Component(events.ComponentSubagentConversation, itemID, payload)
}

// runTaskLifecycle runs a single task to completion. A one-shot task runs
// its single invocation directly; a recurring task's re-invocation loop
// (invoke, compute next delay, cooperatively sleep, repeat) is delegated to
// the configured scheduler.Engine so the loop's durability story is
// pluggable independent of task dispatch.
func (x *Executor) runTaskLifecycle(ctx context.Context, t task.Task, threadID ident.ThreadID, out chan<- events.Event, arts *artifactSet) error {
	f := events.NewFactory(t.ConversationID, threadID, x.now)

	var err error
	if t.Pattern == task.PatternRecurring {
		err = x.engine.RunRecurring(ctx, x.recurringSpec(t, threadID, out, arts))
	} else {
		err = x.runSingleInvocation(ctx, t, threadID, out, arts)
	}
	if err != nil {
		_ = x.tasks.SetStatus(ctx, t.ID, task.StatusFailed)
		return err
	}

	// A clean RunRecurring exit can mean either "schedule exhausted" or
	// "cancelled mid-sleep" (scheduler.Engine returns nil in both cases).
	// Cancellation already committed its own terminal status via the task
	// store (transport.CancelTaskAndUpdateComponent); overwriting it with
	// COMPLETED and emitting
	// task_completed here would violate the cancellation contract (no
	// task_failed, no task_completed once a task has been cancelled).
	if current, loadErr := x.tasks.Load(ctx, t.ID); loadErr == nil && current.Status.IsTerminal() {
		return nil
	}

	if err := x.tasks.SetStatus(ctx, t.ID, task.StatusCompleted); err != nil {
		return err
	}
	x.metrics.Count("executor.task.completed", 1, "agent", string(t.AgentName))
	out <- f.TaskCompleted(t.ID)
	return nil
}

// recurringSpec builds the scheduler.RecurringSpec driving t's re-invocation
// loop: Cancelled polls the task store's own status rather than a separate
// flag, so a cancellation recorded via transport.CancelTaskAndUpdateComponent
// (or any other writer of task.StatusCancelled) stops the loop regardless of which
// scheduler.Engine is running it.
func (x *Executor) recurringSpec(t task.Task, threadID ident.ThreadID, out chan<- events.Event, arts *artifactSet) scheduler.RecurringSpec {
	return scheduler.RecurringSpec{
		ID:           string(t.ID),
		PollInterval: x.pollInterval,
		Invoke: func(ctx context.Context) error {
			x.metrics.Count("executor.task.recurring_invocation", 1, "agent", string(t.AgentName))
			return x.runSingleInvocation(ctx, t, threadID, out, arts)
		},
		NextDelay: func(now time.Time) (time.Duration, bool) {
			delay, err := task.NextExecutionDelay(t.Schedule, now, x.loc)
			if err != nil {
				return 0, false
			}
			return delay, true
		},
		Cancelled: func(ctx context.Context) bool {
			current, err := x.tasks.Load(ctx, t.ID)
			return err == nil && current.Status.IsTerminal()
		},
	}
}

// runSingleInvocation dispatches one remote agent call, translates its
// stream via eventrouter, and (for recurring tasks) folds message output
// through the accumulator instead of streaming it live. Message text is also
// teed into arts so dependent tasks receive this task's output as upstream
// metadata.
func (x *Executor) runSingleInvocation(ctx context.Context, t task.Task, threadID ident.ThreadID, out chan<- events.Event, arts *artifactSet) error {
	f := events.NewFactory(t.ConversationID, threadID, x.now)

	client, _, err := x.agents.Lookup(string(t.AgentName))
	if err != nil {
		return err
	}

	if t.Pattern == task.PatternRecurring {
		out <- x.scheduleControllerComponent(f, t)
	}

	metadata := map[string]any{
		"language": x.lang,
		"timezone": x.loc.String(),
		"user_id":  string(t.UserID),
	}
	if upstream := arts.collect(t.DependsOn); len(upstream) > 0 {
		metadata["upstream_results"] = upstream
	}

	remoteTaskID := fmt.Sprintf("%s-%d", t.ID, x.now().UnixNano())
	stream, err := client.SendTask(ctx, remoteagent.SendTaskRequest{
		RemoteTaskID: remoteTaskID,
		SessionID:    string(t.ConversationID),
		Query:        t.Query,
		Metadata:     metadata,
	})
	if err != nil {
		return err
	}
	// One entry per invocation: a recurring task accumulates an ID per cycle.
	if err := x.tasks.AppendRemoteTaskID(ctx, t.ID, remoteTaskID); err != nil {
		x.log.Warn(ctx, "executor: record remote task id", "task_id", string(t.ID), "error", err.Error())
	}

	router := eventrouter.New(f, t.ID)
	acc := accumulator.New(t)
	failed := false
	var output strings.Builder

	for ev := range stream {
		result := router.Route(ev)
		if result.HasEvent {
			if result.Event.Kind == events.KindMessageChunk {
				output.WriteString(result.Event.Text)
			}
			for _, e := range acc.Consume([]events.Event{result.Event}) {
				out <- e
			}
		}
		if result.SideEffect == eventrouter.SideEffectFailTask {
			failed = true
		}
		if result.Done {
			break
		}
	}

	if failed {
		return fmt.Errorf("remote agent %s reported task failure", t.AgentName)
	}

	arts.put(t.ID, output.String())

	// Unique per invocation: each recurring cycle persists its own result
	// component instead of overwriting the previous cycle's.
	if final, ok := acc.Finalize(f, fmt.Sprintf("schedule-result-%s-%s", t.ID, x.newID()), x.now); ok {
		out <- final
	}
	return nil
}

func (x *Executor) scheduleControllerComponent(f events.Factory, t task.Task) events.Event {
	payload, _ := json.Marshal(map[string]any{
		"task_id":     string(t.ID),
		"task_status": string(task.StatusRunning),
		"title":       t.Title,
	})
	return f.Component(events.ComponentScheduledTaskController, fmt.Sprintf("schedule-controller-%s", t.ID), payload)
}
