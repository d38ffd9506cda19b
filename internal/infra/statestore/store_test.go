package statestore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)

	_, found, err := store.Load("http://a", "calculator")
	require.NoError(t, err)
	assert.False(t, found)

	saved := UsageRecord{
		UsageCount:      7,
		AvgResponseTime: 120 * time.Millisecond,
		LastUsed:        time.Now().Truncate(time.Second),
	}
	require.NoError(t, store.Save("http://a", "calculator", saved))

	loaded, found, err := store.Load("http://a", "calculator")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, saved.UsageCount, loaded.UsageCount)
	assert.Equal(t, saved.AvgResponseTime, loaded.AvgResponseTime)
	assert.True(t, saved.LastUsed.Equal(loaded.LastUsed))
}

func TestStoreKeysByEndpointAndTool(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Save("http://a", "calculator", UsageRecord{UsageCount: 1}))
	require.NoError(t, store.Save("http://b", "calculator", UsageRecord{UsageCount: 2}))

	a, found, err := store.Load("http://a", "calculator")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), a.UsageCount)

	b, found, err := store.Load("http://b", "calculator")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), b.UsageCount)
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Save("http://a", "web_search", UsageRecord{UsageCount: 3}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	record, found, err := reopened.Load("http://a", "web_search")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(3), record.UsageCount)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
