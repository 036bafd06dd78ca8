package otp

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cashcached/auth-api/internal/infrastructure/kv"
)

const testTTL = 5 * time.Minute

func TestIssueProducesSixDigitCode(t *testing.T) {
	svc := NewService(kv.NewMemoryStore(), testTTL)

	for i := 0; i < 50; i++ {
		code, err := svc.Issue(context.Background(), "alice")
		require.NoError(t, err)
		require.Len(t, code, 6)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestValidateConsumesCode(t *testing.T) {
	svc := NewService(kv.NewMemoryStore(), testTTL)
	ctx := context.Background()

	code, err := svc.Issue(ctx, "alice")
	require.NoError(t, err)

	assert.True(t, svc.Validate(ctx, "alice", code))
	// Single use: the same code never validates twice.
	assert.False(t, svc.Validate(ctx, "alice", code))
}

func TestValidateMismatchLeavesCodePending(t *testing.T) {
	svc := NewService(kv.NewMemoryStore(), testTTL)
	ctx := context.Background()

	code, err := svc.Issue(ctx, "alice")
	require.NoError(t, err)

	assert.False(t, svc.Validate(ctx, "alice", "000000"))
	assert.True(t, svc.Validate(ctx, "alice", code))
}

func TestValidateUnknownUser(t *testing.T) {
	svc := NewService(kv.NewMemoryStore(), testTTL)

	assert.False(t, svc.Validate(context.Background(), "ghost", "123456"))
}

func TestExpiredCodeRejected(t *testing.T) {
	store := kv.NewMemoryStore()
	now := time.Now()
	store.Now = func() time.Time { return now }
	svc := NewService(store, testTTL)
	ctx := context.Background()

	code, err := svc.Issue(ctx, "alice")
	require.NoError(t, err)

	now = now.Add(testTTL + time.Second)
	assert.False(t, svc.Validate(ctx, "alice", code))
}

func TestReissueOverwritesPendingCode(t *testing.T) {
	svc := NewService(kv.NewMemoryStore(), testTTL)
	ctx := context.Background()

	first, err := svc.Issue(ctx, "alice")
	require.NoError(t, err)
	second, err := svc.Issue(ctx, "alice")
	require.NoError(t, err)

	if first != second {
		assert.False(t, svc.Validate(ctx, "alice", first))
	}
	assert.True(t, svc.Validate(ctx, "alice", second))
}
