package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cashcached/auth-api/internal/domain"
	"github.com/cashcached/auth-api/internal/infrastructure/kv"
	"github.com/cashcached/auth-api/internal/pkg/token"
)

// Key layout in the KV store. Each session owns three keys: the primary
// record (absolute TTL), a username -> sessionID mapping (same TTL), and an
// independent idle marker (sliding TTL) whose value is the last-activity
// epoch. A session is alive only while the record AND the marker both exist.
const (
	recordKeyPrefix = "session:"
	userKeyPrefix   = "session:user:"
	idleKeyPrefix   = "session:idle:"
	lockKeyPrefix   = "session:lock:"
)

const (
	lockTTL      = 5 * time.Second
	lockAttempts = 3
	lockBackoff  = 50 * time.Millisecond
)

// Service owns the authoritative notion of session liveness.
//
// Failure policy: read errors against the KV store are treated as "not found"
// (fail closed); write and delete errors are logged and never propagate to
// the login path.
type Service interface {
	// Create establishes a fresh session for the user, invalidating any
	// session the username already holds. At most one session per username
	// is reachable once concurrent calls settle.
	Create(ctx context.Context, u *domain.User) (string, error)

	// IsValid reports whether both the primary record and the idle marker
	// exist. A record whose idle marker is gone is proactively torn down:
	// idle expiry is authoritative even if the store expires the two keys
	// at slightly different physical times.
	IsValid(ctx context.Context, sessionID string) bool

	// Get fetches the session record and restarts the idle window. The
	// absolute TTL is never extended.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)

	// Invalidate removes the record, idle marker, and username mapping.
	// No-op if the session is already gone.
	Invalidate(ctx context.Context, sessionID string)

	// InvalidateAllForUser drops whatever session the username currently maps to.
	InvalidateAllForUser(ctx context.Context, username string)
}

type service struct {
	store   kv.Store
	ttl     time.Duration
	idleTTL time.Duration
}

func NewService(store kv.Store, ttl, idleTTL time.Duration) Service {
	return &service{store: store, ttl: ttl, idleTTL: idleTTL}
}

func (s *service) Create(ctx context.Context, u *domain.User) (string, error) {
	sid, err := token.NewSessionID()
	if err != nil {
		return "", err
	}

	// Short-lived per-username lock so two concurrent logins settle on a
	// single reachable session. Lock failure degrades to best effort; it
	// must never block a login.
	lockKey := lockKeyPrefix + u.Username
	locked := false
	for i := 0; i < lockAttempts; i++ {
		ok, err := s.store.SetNX(ctx, lockKey, sid, lockTTL)
		if err != nil {
			slog.Warn("session lock unavailable", "username", u.Username, "err", err)
			break
		}
		if ok {
			locked = true
			break
		}
		time.Sleep(lockBackoff)
	}
	if locked {
		defer func() {
			if err := s.store.Delete(ctx, lockKey); err != nil {
				slog.Warn("session lock release failed", "username", u.Username, "err", err)
			}
		}()
	}

	// One reachable session per username: drop the previous one first.
	if prev, err := s.store.Get(ctx, userKeyPrefix+u.Username); err == nil {
		s.Invalidate(ctx, prev)
	} else if !errors.Is(err, kv.ErrKeyNotFound) {
		slog.Warn("previous session lookup failed", "username", u.Username, "err", err)
	}

	now := time.Now().Unix()
	sess := &domain.Session{
		SessionID:    sid,
		Username:     u.Username,
		UserID:       u.UserID,
		Role:         u.Role,
		Email:        u.Email,
		CreatedAt:    now,
		LastActivity: now,
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}

	if err := s.store.SetWithTTL(ctx, recordKeyPrefix+sid, string(raw), s.ttl); err != nil {
		// The id is still returned; without a record every later check
		// fails closed rather than failing the login outright.
		slog.Error("session record write failed", "session_id", sid, "err", err)
	}
	if err := s.store.SetWithTTL(ctx, userKeyPrefix+u.Username, sid, s.ttl); err != nil {
		slog.Warn("session user mapping write failed", "username", u.Username, "err", err)
	}
	if err := s.store.SetWithTTL(ctx, idleKeyPrefix+sid, strconv.FormatInt(now, 10), s.idleTTL); err != nil {
		slog.Warn("session idle marker write failed", "session_id", sid, "err", err)
	}
	return sid, nil
}

func (s *service) IsValid(ctx context.Context, sessionID string) bool {
	if sessionID == "" {
		return false
	}
	if _, err := s.store.Get(ctx, recordKeyPrefix+sessionID); err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			slog.Warn("session record read failed", "session_id", sessionID, "err", err)
		}
		return false
	}
	if _, err := s.store.Get(ctx, idleKeyPrefix+sessionID); err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			slog.Warn("session idle marker read failed", "session_id", sessionID, "err", err)
		}
		// The idle timeout fired while the record survived; tear the
		// rest of the session down too.
		s.Invalidate(ctx, sessionID)
		return false
	}
	return true
}

func (s *service) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	raw, err := s.store.Get(ctx, recordKeyPrefix+sessionID)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			slog.Warn("session record read failed", "session_id", sessionID, "err", err)
		}
		return nil, fmt.Errorf("session: %w", domain.ErrNotFound)
	}
	var sess domain.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	markerRaw, err := s.store.Get(ctx, idleKeyPrefix+sessionID)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			slog.Warn("session idle marker read failed", "session_id", sessionID, "err", err)
		}
		s.Invalidate(ctx, sessionID)
		return nil, fmt.Errorf("session: %w", domain.ErrNotFound)
	}
	if ts, err := strconv.ParseInt(markerRaw, 10, 64); err == nil {
		sess.LastActivity = ts
	}

	// Sliding expiry: each observed access restarts the idle window without
	// touching the absolute TTL on the record.
	if err := s.store.SetWithTTL(ctx, idleKeyPrefix+sessionID, strconv.FormatInt(time.Now().Unix(), 10), s.idleTTL); err != nil {
		slog.Warn("session idle marker refresh failed", "session_id", sessionID, "err", err)
	}
	return &sess, nil
}

func (s *service) Invalidate(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	// Read the username out of the record first so its mapping can go too.
	if raw, err := s.store.Get(ctx, recordKeyPrefix+sessionID); err == nil {
		var sess domain.Session
		if json.Unmarshal([]byte(raw), &sess) == nil && sess.Username != "" {
			// Leave the mapping alone if it already points at a newer session.
			if cur, err := s.store.Get(ctx, userKeyPrefix+sess.Username); err == nil && cur == sessionID {
				if err := s.store.Delete(ctx, userKeyPrefix+sess.Username); err != nil {
					slog.Warn("session user mapping delete failed", "username", sess.Username, "err", err)
				}
			}
		}
	}
	if err := s.store.Delete(ctx, recordKeyPrefix+sessionID); err != nil {
		slog.Warn("session record delete failed", "session_id", sessionID, "err", err)
	}
	if err := s.store.Delete(ctx, idleKeyPrefix+sessionID); err != nil {
		slog.Warn("session idle marker delete failed", "session_id", sessionID, "err", err)
	}
}

func (s *service) InvalidateAllForUser(ctx context.Context, username string) {
	sid, err := s.store.Get(ctx, userKeyPrefix+username)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			slog.Warn("session mapping read failed", "username", username, "err", err)
		}
		return
	}
	s.Invalidate(ctx, sid)
}
