// Package temporal adapts scheduler.Engine to go.temporal.io/sdk, so a
// recurring task's schedule survives an orchestrator process restart:
// Temporal persists the workflow's sleep/retry state durably, and the
// workflow resumes exactly where it left off when a worker picks it back
// up.
package temporal

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/stockbuddy/orchestrator/scheduler"
)

// TaskQueue is the default queue recurring-task workflows run on.
const TaskQueue = "stockbuddy-recurring-tasks"

// cancelSignal is the workflow signal name used to stop a running recurring
// workflow cooperatively, mirroring a task store status of cancelled.
const cancelSignal = "cancel"

// workflowInput is the durable, serializable payload a recurring workflow
// execution is started with. It does not carry the Invoke/NextDelay
// closures from scheduler.RecurringSpec directly — those are Go closures
// over live orchestrator state and cannot cross a workflow replay boundary,
// so the engine keeps them in an in-process registry keyed by ID and the
// workflow calls back into them via an activity.
type workflowInput struct {
	ID string
}

// Engine implements scheduler.Engine on top of a Temporal client and an
// in-process worker registered for the recurring-task workflow/activity
// pair. Each RunRecurring call registers its spec's callbacks under the
// spec's ID before starting (or attaching to) the durable workflow, then
// blocks until the workflow completes.
type Engine struct {
	client    client.Client
	worker    worker.Worker
	taskQueue string

	specs *specRegistry
}

// New constructs a temporal-backed Engine, registering the recurring-task
// workflow and activity on a worker listening on taskQueue (TaskQueue if
// empty). Start must be called before any RunRecurring call.
func New(c client.Client, taskQueue string) *Engine {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	e := &Engine{client: c, taskQueue: taskQueue, specs: newSpecRegistry()}
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(e.recurringWorkflow, workflow.RegisterOptions{Name: "RecurringTask"})
	w.RegisterActivityWithOptions(e.invokeActivity, activityRegisterOptions("InvokeRecurringTask"))
	w.RegisterActivityWithOptions(e.nextDelayActivity, activityRegisterOptions("NextRecurringDelay"))
	e.worker = w
	return e
}

// Start begins processing the worker's task queue. Must be called once
// before RunRecurring; typically invoked from the service bundle's startup.
func (e *Engine) Start() error {
	return e.worker.Start()
}

// Stop gracefully shuts the worker down.
func (e *Engine) Stop() {
	e.worker.Stop()
}

// RunRecurring implements scheduler.Engine by starting (or re-attaching to)
// a durable RecurringTask workflow named after spec.ID and blocking until it
// completes. Cancellation observed by spec.Cancelled during the calling
// goroutine's lifetime is also forwarded as a workflow signal, so an
// in-process cancellation (task.StatusCancelled written to the task store)
// still stops the durable workflow
// promptly instead of waiting for its own poll to notice.
func (e *Engine) RunRecurring(ctx context.Context, spec scheduler.RecurringSpec) error {
	e.specs.put(spec.ID, spec)
	defer e.specs.delete(spec.ID)

	run, err := e.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                    spec.ID,
		TaskQueue:             e.taskQueue,
		WorkflowIDReusePolicy: 0,
	}, "RecurringTask", workflowInput{ID: spec.ID})
	if err != nil {
		return fmt.Errorf("scheduler/temporal: start workflow %s: %w", spec.ID, err)
	}

	go e.forwardCancellation(ctx, spec, run.GetID())

	return run.Get(ctx, nil)
}

// forwardCancellation polls spec.Cancelled at spec.PollInterval and signals
// the durable workflow as soon as cancellation is observed in-process,
// rather than waiting for the workflow's own activity-boundary checks.
func (e *Engine) forwardCancellation(ctx context.Context, spec scheduler.RecurringSpec, workflowID string) {
	poll := spec.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if spec.Cancelled(ctx) {
				_ = e.client.SignalWorkflow(context.Background(), workflowID, "", cancelSignal, nil)
				return
			}
		}
	}
}

// recurringWorkflow is the durable workflow definition: invoke, compute the
// next delay via activities (so both run in an activity's non-deterministic
// world, calling back into the in-process spec), sleep, and repeat until the
// cancel signal arrives or NextDelay reports the schedule is exhausted.
func (e *Engine) recurringWorkflow(ctx workflow.Context, input workflowInput) error {
	ao := workflow.ActivityOptions{StartToCloseTimeout: 10 * time.Minute}
	ctx = workflow.WithActivityOptions(ctx, ao)

	cancelCh := workflow.GetSignalChannel(ctx, cancelSignal)

	for {
		var invokeErr invokeResult
		if err := workflow.ExecuteActivity(ctx, "InvokeRecurringTask", input.ID).Get(ctx, &invokeErr); err != nil {
			return err
		}
		if invokeErr.Err != "" {
			return fmt.Errorf("scheduler/temporal: invocation failed: %s", invokeErr.Err)
		}

		var next delayResult
		if err := workflow.ExecuteActivity(ctx, "NextRecurringDelay", input.ID).Get(ctx, &next); err != nil {
			return err
		}
		if !next.OK {
			return nil
		}

		selector := workflow.NewSelector(ctx)
		cancelled := false
		timer := workflow.NewTimer(ctx, next.Delay)
		selector.AddFuture(timer, func(workflow.Future) {})
		selector.AddReceive(cancelCh, func(c workflow.ReceiveChannel, more bool) {
			c.Receive(ctx, nil)
			cancelled = true
		})
		selector.Select(ctx)
		if cancelled {
			return nil
		}
	}
}

type invokeResult struct{ Err string }
type delayResult struct {
	Delay time.Duration
	OK    bool
}

func (e *Engine) invokeActivity(ctx context.Context, id string) (invokeResult, error) {
	spec, ok := e.specs.get(id)
	if !ok {
		return invokeResult{}, fmt.Errorf("scheduler/temporal: no registered spec for %s", id)
	}
	if err := spec.Invoke(ctx); err != nil {
		return invokeResult{Err: err.Error()}, nil
	}
	return invokeResult{}, nil
}

func (e *Engine) nextDelayActivity(ctx context.Context, id string) (delayResult, error) {
	spec, ok := e.specs.get(id)
	if !ok {
		return delayResult{}, fmt.Errorf("scheduler/temporal: no registered spec for %s", id)
	}
	delay, ok := spec.NextDelay(time.Now())
	return delayResult{Delay: delay, OK: ok}, nil
}
