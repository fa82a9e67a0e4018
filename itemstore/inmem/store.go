// Package inmem provides an in-memory implementation of itemstore.Store.
//
// The in-memory store is intended for tests and local development. It is not
// durable and should not be used in production.
package inmem

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/stockbuddy/orchestrator/ident"
	"github.com/stockbuddy/orchestrator/itemstore"
)

// Store implements itemstore.Store in memory.
type Store struct {
	mu sync.Mutex
	// per-conversation monotonically increasing sequence.
	nextSeq map[ident.ConversationID]int64
	// per-conversation ordered items.
	items map[ident.ConversationID][]itemstore.Item
	// itemID -> index into items[conversationID], for upsert lookup.
	byItemID map[ident.ConversationID]map[string]int
}

// New returns a new in-memory item store.
func New() *Store {
	return &Store{
		nextSeq:  make(map[ident.ConversationID]int64),
		items:    make(map[ident.ConversationID][]itemstore.Item),
		byItemID: make(map[ident.ConversationID]map[string]int),
	}
}

// Append implements itemstore.Store.
func (s *Store) Append(_ context.Context, item *itemstore.Item) error {
	if item == nil {
		return fmt.Errorf("item is required")
	}
	if item.ConversationID == "" {
		return fmt.Errorf("conversation_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.nextSeq[item.ConversationID] + 1
	s.nextSeq[item.ConversationID] = seq

	item.ID = strconv.FormatInt(seq, 10)
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now()
	}
	s.items[item.ConversationID] = append(s.items[item.ConversationID], *item)
	if item.ItemID != "" {
		s.indexItemID(item.ConversationID, item.ItemID, len(s.items[item.ConversationID])-1)
	}
	return nil
}

// Upsert implements itemstore.Store.
func (s *Store) Upsert(_ context.Context, item *itemstore.Item) error {
	if item == nil {
		return fmt.Errorf("item is required")
	}
	if item.ConversationID == "" {
		return fmt.Errorf("conversation_id is required")
	}
	if item.ItemID == "" {
		return fmt.Errorf("item_id is required for upsert")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.byItemID[item.ConversationID][item.ItemID]; ok {
		existing := s.items[item.ConversationID][idx]
		item.ID = existing.ID
		if item.Timestamp.IsZero() {
			item.Timestamp = time.Now()
		}
		s.items[item.ConversationID][idx] = *item
		return nil
	}

	seq := s.nextSeq[item.ConversationID] + 1
	s.nextSeq[item.ConversationID] = seq
	item.ID = strconv.FormatInt(seq, 10)
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now()
	}
	s.items[item.ConversationID] = append(s.items[item.ConversationID], *item)
	s.indexItemID(item.ConversationID, item.ItemID, len(s.items[item.ConversationID])-1)
	return nil
}

// List implements itemstore.Store.
func (s *Store) List(_ context.Context, conversationID ident.ConversationID, cursor string, limit int) (itemstore.Page, error) {
	if conversationID == "" {
		return itemstore.Page{}, fmt.Errorf("conversation_id is required")
	}
	if limit <= 0 {
		return itemstore.Page{}, fmt.Errorf("limit must be > 0")
	}

	var after int64
	if cursor != "" {
		id, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return itemstore.Page{}, fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		after = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.items[conversationID]
	if len(all) == 0 {
		return itemstore.Page{}, nil
	}

	start := 0
	if after > 0 {
		start = int(after)
		if start >= len(all) {
			return itemstore.Page{}, nil
		}
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	items := append([]itemstore.Item(nil), all[start:end]...)
	var next string
	if end < len(all) {
		next = items[len(items)-1].ID
	}

	return itemstore.Page{Items: items, NextCursor: next}, nil
}

// FindByComponentType implements itemstore.Store.
func (s *Store) FindByComponentType(_ context.Context, conversationID ident.ConversationID, componentType string) ([]itemstore.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []itemstore.Item
	for _, it := range s.items[conversationID] {
		if it.ComponentType == componentType {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *Store) indexItemID(conversationID ident.ConversationID, itemID string, idx int) {
	m, ok := s.byItemID[conversationID]
	if !ok {
		m = make(map[string]int)
		s.byItemID[conversationID] = m
	}
	m[itemID] = idx
}
