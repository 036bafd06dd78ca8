package audit

import (
	"context"

	"github.com/cashcached/auth-api/internal/domain"
)

// Capacity bounds each user's login history; older entries are evicted silently.
const Capacity = 20

// Log is a bounded, per-user, newest-first trail of login events.
type Log interface {
	Record(ctx context.Context, username string, event domain.LoginEvent) error

	// Recent returns at most min(limit, Capacity) events, newest first.
	// A user with no history yields an empty slice.
	Recent(ctx context.Context, username string, limit int) ([]domain.LoginEvent, error)
}

// ring is a fixed-capacity sequence keeping the most recently pushed entries
// newest-first. Push and eviction are O(1). Not safe for concurrent use;
// callers synchronize.
type ring struct {
	buf  []domain.LoginEvent
	head int // index of the newest entry
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]domain.LoginEvent, capacity)}
}

func (r *ring) push(e domain.LoginEvent) {
	n := len(r.buf)
	r.head = (r.head - 1 + n) % n
	r.buf[r.head] = e
	if r.size < n {
		r.size++
	}
}

func (r *ring) newest(limit int) []domain.LoginEvent {
	if limit > r.size {
		limit = r.size
	}
	if limit <= 0 {
		return []domain.LoginEvent{}
	}
	out := make([]domain.LoginEvent, limit)
	n := len(r.buf)
	for i := 0; i < limit; i++ {
		out[i] = r.buf[(r.head+i)%n]
	}
	return out
}
