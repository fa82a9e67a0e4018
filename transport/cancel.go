// Package transport exposes the orchestrator over HTTP: the REST task
// cancellation endpoint and the SSE envelope used to stream
// events.Event values to a connected client. No web framework is used,
// matching the rest of this module's ambient stack.
package transport

import (
	"context"
	"encoding/json"

	"github.com/stockbuddy/orchestrator/events"
	"github.com/stockbuddy/orchestrator/ident"
	"github.com/stockbuddy/orchestrator/itemstore"
	"github.com/stockbuddy/orchestrator/task"
)

// CancelResult is the outcome of a cancel request.
type CancelResult struct {
	// Cancelled reports whether the in-memory task was found and cancelled.
	Cancelled bool
	// UpdatedComponentIDs lists the scheduled_task_controller items whose
	// embedded status was flipped to "cancelled".
	UpdatedComponentIDs []string
}

// Success reports whether the cancellation should be treated as having
// taken effect: either the in-memory task was cancelled, or at least one
// UI component was updated (the task may have outlived an in-memory task
// list that was reset by a process restart).
func (r CancelResult) Success() bool {
	return r.Cancelled || len(r.UpdatedComponentIDs) > 0
}

// CancelTaskAndUpdateComponent cancels taskID in tasks (best-effort — a
// missing in-memory task is not an error) and, independently, scans items
// for scheduled_task_controller components embedding taskID, flipping their
// nested content.task_status to "cancelled" regardless of whether the task
// was found in memory. This dual path keeps the UI correct even after a
// process restart wiped the in-memory task list.
func CancelTaskAndUpdateComponent(ctx context.Context, tasks task.Store, items itemstore.Store, conversationID ident.ConversationID, taskID ident.TaskID) (CancelResult, error) {
	var result CancelResult

	if t, err := tasks.Load(ctx, taskID); err == nil && !t.Status.IsTerminal() {
		if err := tasks.SetStatus(ctx, taskID, task.StatusCancelled); err == nil {
			result.Cancelled = true
		}
	}

	controllerItems, err := items.FindByComponentType(ctx, conversationID, string(events.ComponentScheduledTaskController))
	if err != nil {
		return result, err
	}

	for _, item := range controllerItems {
		content, ok := matchesTask(item, taskID)
		if !ok {
			continue
		}
		content["task_status"] = "cancelled"
		raw, err := json.Marshal(content)
		if err != nil {
			continue
		}
		item.Content = raw
		if err := items.Upsert(ctx, &item); err != nil {
			continue
		}
		result.UpdatedComponentIDs = append(result.UpdatedComponentIDs, item.ItemID)
	}

	return result, nil
}

// matchesTask parses item.Content and reports whether its embedded task_id
// matches taskID, returning the parsed content map for mutation when it
// does.
func matchesTask(item itemstore.Item, taskID ident.TaskID) (map[string]any, bool) {
	var content map[string]any
	if err := json.Unmarshal(item.Content, &content); err != nil {
		return nil, false
	}
	embedded, _ := content["task_id"].(string)
	if embedded != string(taskID) {
		return nil, false
	}
	return content, true
}
