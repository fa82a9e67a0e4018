package orchestrator

import (
	"time"

	"github.com/stockbuddy/orchestrator/ident"
)

// ExecutionContext tracks an in-flight plan that has paused awaiting user
// input, so a later UserInput in the same conversation can resume it. It is
// in-memory only and expires after TTL: a conversation left in
// REQUIRE_USER_INPUT past that window is treated as abandoned.
type ExecutionContext struct {
	Stage          string
	ConversationID ident.ConversationID
	ThreadID       ident.ThreadID
	UserID         ident.UserID
	CreatedAt      time.Time
	Metadata       map[string]any
}

// IsExpired reports whether the context is older than ttl.
func (c *ExecutionContext) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.CreatedAt) > ttl
}

// ValidateUser reports whether userID matches the context's original
// requester, guarding against cross-user resume.
func (c *ExecutionContext) ValidateUser(userID ident.UserID) bool {
	return c.UserID == userID
}

// AddMetadata merges kv into the context's metadata bag.
func (c *ExecutionContext) AddMetadata(kv map[string]any) {
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	for k, v := range kv {
		c.Metadata[k] = v
	}
}
