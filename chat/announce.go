package chat

import (
	"context"
	"sync"
)

// Announcer decides whether a conversation start still has to be announced.
// MarkAnnounced must check and record in one step.
type Announcer interface {
	MarkAnnounced(ctx context.Context, conversationID string) (bool, error)
}

// MemoryAnnouncer keeps the announced set in process memory. It is never pruned and
// starts empty after a restart.
type MemoryAnnouncer struct {
	mu        sync.Mutex
	announced map[string]struct{}
}

func NewMemoryAnnouncer() *MemoryAnnouncer {
	return &MemoryAnnouncer{announced: make(map[string]struct{})}
}

func (a *MemoryAnnouncer) MarkAnnounced(_ context.Context, conversationID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.announced[conversationID]; ok {
		return false, nil
	}
	a.announced[conversationID] = struct{}{}
	return true, nil
}
