package sqlite

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stockbuddy/orchestrator/itemstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAppendAssignsIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	item := itemstore.Item{ConversationID: "c1", Kind: "message_chunk", Content: json.RawMessage(`{"text":"hi"}`)}
	if err := s.Append(ctx, &item); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if item.ID == "" {
		t.Fatal("expected an assigned ID")
	}
	if item.Timestamp.IsZero() {
		t.Fatal("expected an assigned Timestamp")
	}
}

func TestStoreListReturnsOldestFirstWithPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		item := itemstore.Item{ConversationID: "c1", Kind: "message_chunk", Content: json.RawMessage(`{}`)}
		if err := s.Append(ctx, &item); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	page, err := s.List(ctx, "c1", "", 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("page.Items = %d, want 2", len(page.Items))
	}
	if page.NextCursor == "" {
		t.Fatal("expected a next cursor with a third item remaining")
	}

	next, err := s.List(ctx, "c1", page.NextCursor, 2)
	if err != nil {
		t.Fatalf("List (second page): %v", err)
	}
	if len(next.Items) != 1 || next.NextCursor != "" {
		t.Fatalf("second page = %+v", next)
	}
}

func TestStoreUpsertInsertsThenUpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := itemstore.Item{
		ConversationID: "c1", ItemID: "controller-1", Kind: "component_generator",
		ComponentType: "scheduled_task_controller", Content: json.RawMessage(`{"task_status":"running"}`),
	}
	if err := s.Upsert(ctx, &item); err != nil {
		t.Fatalf("Upsert (insert): %v", err)
	}

	update := itemstore.Item{
		ConversationID: "c1", ItemID: "controller-1", Kind: "component_generator",
		ComponentType: "scheduled_task_controller", Content: json.RawMessage(`{"task_status":"cancelled"}`),
	}
	if err := s.Upsert(ctx, &update); err != nil {
		t.Fatalf("Upsert (update): %v", err)
	}

	page, err := s.List(ctx, "c1", "", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected exactly 1 row after upsert-in-place, got %d", len(page.Items))
	}
	var decoded map[string]any
	if err := json.Unmarshal(page.Items[0].Content, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["task_status"] != "cancelled" {
		t.Fatalf("task_status = %v, want cancelled", decoded["task_status"])
	}
}

func TestStoreUpsertRequiresItemID(t *testing.T) {
	s := newTestStore(t)
	item := itemstore.Item{ConversationID: "c1", Kind: "message_chunk", Content: json.RawMessage(`{}`)}
	if err := s.Upsert(context.Background(), &item); err == nil {
		t.Fatal("expected an error for an empty ItemID")
	}
}

func TestStoreFindByComponentTypeFiltersAndOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_ = s.Append(ctx, &itemstore.Item{ConversationID: "c1", Kind: "component_generator", ComponentType: "execution_plan", Content: json.RawMessage(`{}`)})
	_ = s.Append(ctx, &itemstore.Item{ConversationID: "c1", ItemID: "ctrl-1", Kind: "component_generator", ComponentType: "scheduled_task_controller", Content: json.RawMessage(`{"n":1}`)})
	_ = s.Append(ctx, &itemstore.Item{ConversationID: "c1", ItemID: "ctrl-2", Kind: "component_generator", ComponentType: "scheduled_task_controller", Content: json.RawMessage(`{"n":2}`)})

	found, err := s.FindByComponentType(ctx, "c1", "scheduled_task_controller")
	if err != nil {
		t.Fatalf("FindByComponentType: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("found = %d, want 2", len(found))
	}
	if found[0].ItemID != "ctrl-1" || found[1].ItemID != "ctrl-2" {
		t.Fatalf("unexpected order: %+v", found)
	}
}

func TestStoreScopesItemsByConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_ = s.Append(ctx, &itemstore.Item{ConversationID: "c1", Kind: "message_chunk", Content: json.RawMessage(`{}`)})
	_ = s.Append(ctx, &itemstore.Item{ConversationID: "c2", Kind: "message_chunk", Content: json.RawMessage(`{}`)})

	page, err := s.List(ctx, "c1", "", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected conversation c1 to see only its own item, got %d", len(page.Items))
	}
}
