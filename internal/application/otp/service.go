package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/cashcached/auth-api/internal/infrastructure/kv"
)

const keyPrefix = "otp:"

// Service issues and single-use-validates numeric one-time codes. One active
// code per username; a reissue overwrites any pending code.
type Service interface {
	// Issue generates a uniformly random 6-digit code in [100000, 999999]
	// and stores it under the username with the configured TTL.
	Issue(ctx context.Context, username string) (string, error)

	// Validate reports whether code matches the pending entry. Absent,
	// expired, and mismatched codes all return false. A matching code is
	// deleted before true is returned, so it can never validate twice.
	Validate(ctx context.Context, username, code string) bool
}

type service struct {
	store kv.Store
	ttl   time.Duration
}

func NewService(store kv.Store, ttl time.Duration) Service {
	return &service{store: store, ttl: ttl}
}

func (s *service) Issue(ctx context.Context, username string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	code := strconv.FormatInt(n.Int64()+100000, 10)
	if err := s.store.SetWithTTL(ctx, keyPrefix+username, code, s.ttl); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return code, nil
}

func (s *service) Validate(ctx context.Context, username, code string) bool {
	stored, err := s.store.Get(ctx, keyPrefix+username)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			slog.Warn("otp read failed", "username", username, "err", err)
		}
		return false
	}
	if stored != code {
		return false
	}
	// Consume before reporting success; if the delete fails the code stays
	// unusable rather than becoming replayable.
	if err := s.store.Delete(ctx, keyPrefix+username); err != nil {
		slog.Warn("otp delete failed", "username", username, "err", err)
		return false
	}
	return true
}
