package authz

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultAuditCapacity = 1000

// AuditLogEntry records one administrative mutation with before/after
// snapshots of the touched record.
type AuditLogEntry struct {
	ID            string    `json:"id"`
	Event         string    `json:"event"`
	Actor         string    `json:"actor,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	PreviousState any       `json:"previous_state,omitempty"`
	NewState      any       `json:"new_state,omitempty"`
}

// auditRing is a fixed-capacity ring buffer. When full, the oldest
// entry is dropped. Not a durable trail.
type auditRing struct {
	mu      sync.Mutex
	entries []AuditLogEntry
	head    int
	size    int
}

func newAuditRing(capacity int) *auditRing {
	if capacity <= 0 {
		capacity = defaultAuditCapacity
	}
	return &auditRing{entries: make([]AuditLogEntry, capacity)}
}

func (r *auditRing) append(event, actor string, prev, next any) {
	entry := AuditLogEntry{
		ID:            uuid.NewString(),
		Event:         event,
		Actor:         actor,
		Timestamp:     time.Now(),
		PreviousState: prev,
		NewState:      next,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tail := (r.head + r.size) % len(r.entries)
	r.entries[tail] = entry
	if r.size < len(r.entries) {
		r.size++
	} else {
		r.head = (r.head + 1) % len(r.entries)
	}
}

// snapshot returns entries oldest first.
func (r *auditRing) snapshot() []AuditLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AuditLogEntry, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.entries[(r.head+i)%len(r.entries)])
	}
	return out
}
