package inmem

import (
	"context"
	"testing"

	"github.com/stockbuddy/orchestrator/conversation"
)

func TestCreateThenLoad(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := conversation.Conversation{ID: "c1", UserID: "u1"}
	if err := s.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := s.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Status != conversation.StatusActive {
		t.Fatalf("status = %v, want active default", got.Status)
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Create(ctx, conversation.Conversation{ID: "c1"})
	err := s.Create(ctx, conversation.Conversation{ID: "c1"})
	if err != conversation.ErrAlreadyExists {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestLoadMissing(t *testing.T) {
	s := New()
	_, err := s.Load(context.Background(), "missing")
	if err != conversation.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSetStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Create(ctx, conversation.Conversation{ID: "c1"})
	if err := s.SetStatus(ctx, "c1", conversation.StatusRequireUserInput); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got, _ := s.Load(ctx, "c1")
	if got.Status != conversation.StatusRequireUserInput {
		t.Fatalf("status = %v", got.Status)
	}
}

func TestSetTitleOnceIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Create(ctx, conversation.Conversation{ID: "c1"})

	title, err := s.SetTitleOnce(ctx, "c1", "first title")
	if err != nil {
		t.Fatalf("SetTitleOnce: %v", err)
	}
	if title != "first title" {
		t.Fatalf("title = %q", title)
	}

	title, err = s.SetTitleOnce(ctx, "c1", "second title")
	if err != nil {
		t.Fatalf("SetTitleOnce: %v", err)
	}
	if title != "first title" {
		t.Fatalf("title changed on second call: %q", title)
	}
}

func TestSetTitleOnceMissingConversation(t *testing.T) {
	s := New()
	_, err := s.SetTitleOnce(context.Background(), "missing", "x")
	if err != conversation.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
