package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltmc/internal/apperrors"
	"ltmc/internal/config"
	"ltmc/internal/logging"
)

func TestDisabledCacheIsSafe(t *testing.T) {
	ctx := context.Background()
	c := Open(ctx, config.CacheConfig{TTLSeconds: 300}, logging.NewNoopLogger())
	t.Cleanup(func() { _ = c.Close() })

	assert.False(t, c.Enabled())

	var out []string
	assert.ErrorIs(t, c.Get(ctx, "retrieve:x:3:y", &out), ErrMiss)

	c.Set(ctx, "retrieve:x:3:y", []string{"a"})
	assert.ErrorIs(t, c.Get(ctx, "retrieve:x:3:y", &out), ErrMiss)

	assert.Zero(t, c.Invalidate(ctx, "retrieve:*"))
	assert.Zero(t, c.Flush(ctx, ScopeRetrieve))
	assert.Empty(t, c.Stats(ctx))
	assert.Equal(t, apperrors.ErrorCodeUnavailable, apperrors.Code(c.Health(ctx)))
}

func TestKeySchemes(t *testing.T) {
	k1 := RetrieveKey("what is the fox", 3, "document")
	k2 := RetrieveKey("what is the fox", 3, "document")
	k3 := RetrieveKey("what is the fox", 5, "document")
	assert.Equal(t, k1, k2, "same inputs must produce the same key")
	assert.NotEqual(t, k1, k3)
	assert.Contains(t, k1, "retrieve:")

	assert.Equal(t, "chat:c1:retrieve:10", ChatKey("c1", "retrieve", 10))
	assert.Equal(t, "todo:pending:high:5", TodoKey("pending", "high", 5))
	assert.Equal(t, "graph:42:references", GraphKey(42, "references"))
	assert.Equal(t, "graph:42:*", GraphEntityPattern(42))
	assert.Equal(t, "chat:c1:*", ChatConversationPattern("c1"))
	assert.Equal(t, "chat::claude:*", ChatToolPattern("claude"))
}

func TestRetrieveKeyLengthIsBounded(t *testing.T) {
	long := make([]byte, 1<<16)
	for i := range long {
		long[i] = 'q'
	}
	k := RetrieveKey(string(long), 3, "")
	require.Less(t, len(k), 64, "free-form query text must be hashed, not embedded")
}
