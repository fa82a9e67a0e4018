// Package itemstore provides a durable, append-only log of ConversationItems
// with upsert-by-ItemID semantics for component updates (e.g. a
// scheduled_task_controller item whose embedded status flips over time).
//
// The item log is the canonical source of conversation history. The
// Orchestrator appends items as a turn executes; callers
// (REST handlers, the cancel endpoint) list them using opaque cursors.
package itemstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stockbuddy/orchestrator/ident"
)

type (
	// Item is a single ConversationItem. Most items are append-only and
	// immutable once written; items carrying an ItemID may be upserted in
	// place to reflect a later state of the same logical component (see
	// Store.Upsert).
	Item struct {
		// ID is the store-assigned opaque identifier for this row.
		ID string
		// ConversationID is the conversation this item belongs to.
		ConversationID ident.ConversationID
		// ThreadID groups items produced within the same thread of a
		// conversation (e.g. one Triager/Planner/Executor turn).
		ThreadID ident.ThreadID
		// ItemID is the caller-assigned identifier used for upsert
		// correlation. Empty for items that are never updated in place.
		ItemID string
		// Kind is the event kind (see the events package for the full
		// taxonomy: message_chunk, tool_call_started, component_generator,
		// etc).
		Kind string
		// ComponentType further discriminates component_generator items
		// (scheduled_task_controller, subagent_conversation, execution_plan,
		// schedule_task_result). Empty for non-component items.
		ComponentType string
		// Content is the canonical JSON-encoded payload for the item.
		Content json.RawMessage
		// Timestamp is the item's creation (or last-upsert) time.
		Timestamp time.Time
	}

	// Page is a forward page of conversation items.
	Page struct {
		// Items are ordered oldest-first.
		Items []Item
		// NextCursor fetches the next page; empty when there are no further
		// items.
		NextCursor string
	}

	// Store is an append-only, upsert-capable item log.
	//
	// Implementations must provide stable ordering within a conversation.
	// Cursor values are store-owned and opaque to callers.
	Store interface {
		// Append stores a new item, assigning it an ID and Timestamp if unset.
		Append(ctx context.Context, item *Item) error
		// Upsert stores item if its ItemID has not been seen before for this
		// conversation, or overwrites the existing row's Content/Timestamp in
		// place otherwise. ItemID must be non-empty.
		Upsert(ctx context.Context, item *Item) error
		// List returns the next forward page of items for a conversation.
		List(ctx context.Context, conversationID ident.ConversationID, cursor string, limit int) (Page, error)
		// FindByComponentType returns every item of the given component type
		// within a conversation, in append order. Used by the REST cancel
		// endpoint to scan for scheduled_task_controller items referencing a
		// cancelled task, independent of in-memory task state.
		FindByComponentType(ctx context.Context, conversationID ident.ConversationID, componentType string) ([]Item, error)
	}
)
