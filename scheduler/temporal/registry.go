package temporal

import (
	"sync"

	"go.temporal.io/sdk/activity"

	"github.com/stockbuddy/orchestrator/scheduler"
)

// specRegistry holds the live RecurringSpec callbacks for workflows
// currently executing on this worker, keyed by spec ID. Temporal activities
// run in this same process, so they look the spec back up here rather than
// trying to serialize Invoke/NextDelay across the workflow boundary.
type specRegistry struct {
	mu    sync.Mutex
	specs map[string]scheduler.RecurringSpec
}

func newSpecRegistry() *specRegistry {
	return &specRegistry{specs: make(map[string]scheduler.RecurringSpec)}
}

func (r *specRegistry) put(id string, spec scheduler.RecurringSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[id] = spec
}

func (r *specRegistry) delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.specs, id)
}

func (r *specRegistry) get(id string) (scheduler.RecurringSpec, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	spec, ok := r.specs[id]
	return spec, ok
}

// activityRegisterOptions names an activity so the workflow can call it by
// the string literal used in workflow.ExecuteActivity, independent of the
// Go function's name.
func activityRegisterOptions(name string) activity.RegisterOptions {
	return activity.RegisterOptions{Name: name}
}
