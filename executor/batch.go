package executor

import "github.com/stockbuddy/orchestrator/task"

// buildExecutionBatches groups tasks into topologically-ordered batches:
// batch N+1 contains every task whose DependsOn are all satisfied by
// batches 0..N. Tasks within a batch have no dependency relationship and
// execute in parallel. A cycle (no task in the remaining set is ready)
// degrades to executing everything remaining in one final batch rather
// than hanging forever.
func buildExecutionBatches(tasks []task.Task) [][]task.Task {
	byID := make(map[string]task.Task, len(tasks))
	remaining := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		byID[string(t.ID)] = t
		remaining[string(t.ID)] = true
	}
	completed := make(map[string]bool, len(tasks))

	var batches [][]task.Task
	for len(remaining) > 0 {
		var ready []task.Task
		for id := range remaining {
			if dependenciesSatisfied(byID[id], completed) {
				ready = append(ready, byID[id])
			}
		}
		if len(ready) == 0 {
			// Circular dependency: execute everything still remaining as a
			// single best-effort final batch instead of hanging.
			for id := range remaining {
				ready = append(ready, byID[id])
			}
		}
		batches = append(batches, ready)
		for _, t := range ready {
			delete(remaining, string(t.ID))
			completed[string(t.ID)] = true
		}
	}
	return batches
}

func dependenciesSatisfied(t task.Task, completed map[string]bool) bool {
	for _, dep := range t.DependsOn {
		if !completed[string(dep)] {
			return false
		}
	}
	return true
}
