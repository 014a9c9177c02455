package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestCache(t *testing.T) (*miniredis.Miniredis, *Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := New(Config{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)

	return mr, client
}

func TestStoreAndRetrieve(t *testing.T) {
	mr, client := setupTestCache(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()

	ok := client.Store(ctx, "u1:u1_abc", []byte(`{"header":{}}`))
	assert.True(t, ok)

	value := client.Retrieve(ctx, "u1:u1_abc")
	assert.Equal(t, []byte(`{"header":{}}`), value)
}

func TestRetrieveUnknownKey(t *testing.T) {
	mr, client := setupTestCache(t)
	defer mr.Close()
	defer client.Close()

	// Unknown keys return empty, never an error.
	value := client.Retrieve(context.Background(), "nobody:nothing")
	assert.Empty(t, value)
}

func TestStoreEmptyValue(t *testing.T) {
	mr, client := setupTestCache(t)
	defer mr.Close()
	defer client.Close()

	assert.False(t, client.Store(context.Background(), "k", nil))
}

func TestDelete(t *testing.T) {
	mr, client := setupTestCache(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()
	client.Store(ctx, "k", []byte("v"))

	assert.True(t, client.Delete(ctx, "k"))
	assert.False(t, client.Delete(ctx, "k"))
}

func TestFailuresAreSwallowed(t *testing.T) {
	mr, client := setupTestCache(t)
	defer client.Close()

	// Kill the backend: every operation degrades to empty/false, no panic,
	// no error surfaced to the caller.
	mr.Close()

	ctx := context.Background()
	assert.False(t, client.Store(ctx, "k", []byte("v")))
	assert.Empty(t, client.Retrieve(ctx, "k"))
	assert.False(t, client.Delete(ctx, "k"))
}
