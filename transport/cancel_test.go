package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stockbuddy/orchestrator/itemstore"
	iteminmem "github.com/stockbuddy/orchestrator/itemstore/inmem"
	"github.com/stockbuddy/orchestrator/task"
	taskinmem "github.com/stockbuddy/orchestrator/task/inmem"
	"github.com/stockbuddy/orchestrator/telemetry"
)

func TestCancelTaskAndUpdateComponentCancelsInMemoryTask(t *testing.T) {
	tasks := taskinmem.New()
	items := iteminmem.New()
	ctx := context.Background()

	_ = tasks.Create(ctx, task.Task{ID: "t1", ConversationID: "c1", AgentName: "NewsAgent", Pattern: task.PatternOnce})

	result, err := CancelTaskAndUpdateComponent(ctx, tasks, items, "c1", "t1")
	if err != nil {
		t.Fatalf("CancelTaskAndUpdateComponent: %v", err)
	}
	if !result.Cancelled {
		t.Fatal("expected the in-memory task to be reported cancelled")
	}
	if !result.Success() {
		t.Fatal("expected Success() to be true")
	}

	final, err := tasks.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if final.Status != task.StatusCancelled {
		t.Fatalf("status = %v, want cancelled", final.Status)
	}
}

func TestCancelTaskAndUpdateComponentUpdatesControllerComponent(t *testing.T) {
	tasks := taskinmem.New()
	items := iteminmem.New()
	ctx := context.Background()

	content, _ := json.Marshal(map[string]any{"task_id": "t2", "task_status": "running"})
	item := itemstore.Item{
		ConversationID: "c1",
		ItemID:         "controller-1",
		Kind:           "component_generator",
		ComponentType:  "scheduled_task_controller",
		Content:        content,
	}
	if err := items.Upsert(ctx, &item); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// No in-memory task "t2" exists (simulating a process restart), but the
	// component should still be flipped.
	result, err := CancelTaskAndUpdateComponent(ctx, tasks, items, "c1", "t2")
	if err != nil {
		t.Fatalf("CancelTaskAndUpdateComponent: %v", err)
	}
	if result.Cancelled {
		t.Fatal("no in-memory task existed; Cancelled should be false")
	}
	if len(result.UpdatedComponentIDs) != 1 || result.UpdatedComponentIDs[0] != "controller-1" {
		t.Fatalf("UpdatedComponentIDs = %v", result.UpdatedComponentIDs)
	}
	if !result.Success() {
		t.Fatal("updating a component should count as success even with no in-memory task")
	}

	page, err := items.List(ctx, "c1", "", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(page.Items))
	}
	var decoded map[string]any
	if err := json.Unmarshal(page.Items[0].Content, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["task_status"] != "cancelled" {
		t.Fatalf("task_status = %v, want cancelled", decoded["task_status"])
	}
}

func TestCancelTaskAndUpdateComponentNoMatchIsNotSuccess(t *testing.T) {
	tasks := taskinmem.New()
	items := iteminmem.New()
	result, err := CancelTaskAndUpdateComponent(context.Background(), tasks, items, "c1", "missing")
	if err != nil {
		t.Fatalf("CancelTaskAndUpdateComponent: %v", err)
	}
	if result.Success() {
		t.Fatal("expected Success() to be false when nothing matched")
	}
}

func TestServerHandlesCancelRoute(t *testing.T) {
	tasks := taskinmem.New()
	items := iteminmem.New()
	ctx := context.Background()
	_ = tasks.Create(ctx, task.Task{ID: "t1", ConversationID: "c1", AgentName: "NewsAgent", Pattern: task.PatternOnce})

	s := NewServer(tasks, items, telemetry.NoopLogger{})

	req := httptest.NewRequest(http.MethodPost, "/tasks/t1/cancel?conversationId=c1", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["success"] != true {
		t.Fatalf("response = %+v, want success=true", body)
	}
}

func TestServerCancelRouteMissingConversationID(t *testing.T) {
	s := NewServer(taskinmem.New(), iteminmem.New(), telemetry.NoopLogger{})
	req := httptest.NewRequest(http.MethodPost, "/tasks/t1/cancel", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestServerCancelRouteNotFoundForNonCancelPath(t *testing.T) {
	s := NewServer(taskinmem.New(), iteminmem.New(), telemetry.NoopLogger{})
	req := httptest.NewRequest(http.MethodGet, "/tasks/t1", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
