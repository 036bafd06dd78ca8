package audit

import (
	"context"
	"sync"

	"github.com/cashcached/auth-api/internal/domain"
)

// MemoryLog keeps bounded per-user login histories in process memory.
// Append-then-trim is a compound operation, so each user's ring carries its
// own mutex; the outer lock only guards the map.
type MemoryLog struct {
	mu    sync.Mutex
	users map[string]*userLog
}

type userLog struct {
	mu   sync.Mutex
	ring *ring
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{users: make(map[string]*userLog)}
}

func (l *MemoryLog) Record(_ context.Context, username string, event domain.LoginEvent) error {
	u := l.user(username)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ring.push(event)
	return nil
}

func (l *MemoryLog) Recent(_ context.Context, username string, limit int) ([]domain.LoginEvent, error) {
	l.mu.Lock()
	u, ok := l.users[username]
	l.mu.Unlock()
	if !ok {
		return []domain.LoginEvent{}, nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.ring.newest(limit), nil
}

func (l *MemoryLog) user(username string) *userLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[username]
	if !ok {
		u = &userLog{ring: newRing(Capacity)}
		l.users[username] = u
	}
	return u
}
