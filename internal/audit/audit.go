// Package audit records one append-only entry per committed state
// transition. The sink is a port injected into the coordinator; the
// engine never logs audit state through globals.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/margex/gotrade/internal/domain"
	"github.com/margex/gotrade/internal/metrics"
)

// Sink accepts committed domain events. Append must not mutate or
// reorder previously written entries.
type Sink interface {
	Append(entry domain.AuditEntry) error
	List(userID string, limit, offset int) ([]domain.AuditEntry, int, error)
	Close() error
}

// Actor is the transport-level identity behind an audited action. The
// transport attaches it to the request context; internal callers
// (rehydrate, sweeps) leave it empty.
type Actor struct {
	IP        string
	UserAgent string
}

type actorKey struct{}

// WithActor attaches the acting client's transport identity to ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor attached to ctx, zero if none.
func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}

// NewEntry stamps id, actor and creation time on an event.
func NewEntry(ctx context.Context, userID string, action domain.AuditAction, metadata map[string]any) domain.AuditEntry {
	actor := ActorFrom(ctx)
	return domain.AuditEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		Metadata:  metadata,
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
		CreatedAt: time.Now().UTC(),
	}
}

// MemorySink keeps entries in memory. Test and dry-run sink.
type MemorySink struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	metrics.AuditAppends.Add(1)
	return nil
}

func (s *MemorySink) List(userID string, limit, offset int) ([]domain.AuditEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []domain.AuditEntry
	for _, e := range s.entries {
		if userID == "" || e.UserID == userID {
			filtered = append(filtered, e)
		}
	}
	total := len(filtered)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

func (s *MemorySink) Close() error { return nil }
