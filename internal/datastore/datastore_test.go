package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beyproweb/beypro-notify/internal/soundsettings"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "notify.db"))
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := openTestStore(t)

	settings := soundsettings.Normalize(map[string]any{
		"volume":       0.4,
		"defaultSound": "alarm",
		"eventSounds":  map[string]any{"payment_made": "horn"},
	})
	require.NoError(t, store.SaveSnapshot("42", settings), "save should succeed")

	loaded, found, err := store.LoadSnapshot("42")
	require.NoError(t, err, "load should succeed")
	require.True(t, found, "snapshot should exist")
	assert.InDelta(t, 0.4, loaded.Volume, 1e-9, "volume should round-trip")
	assert.Equal(t, "alarm", loaded.DefaultSound, "default sound should round-trip")
	assert.Equal(t, "horn", loaded.EventSounds["payment_made"], "event mapping should round-trip")
}

func TestSnapshotUpsert(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveSnapshot("42", soundsettings.Normalize(map[string]any{"volume": 0.2})))
	require.NoError(t, store.SaveSnapshot("42", soundsettings.Normalize(map[string]any{"volume": 0.9})))

	loaded, found, err := store.LoadSnapshot("42")
	require.NoError(t, err, "load should succeed")
	require.True(t, found, "snapshot should exist")
	assert.InDelta(t, 0.9, loaded.Volume, 1e-9, "second save should win")
}

func TestSnapshotMissingTenant(t *testing.T) {
	store := openTestStore(t)

	_, found, err := store.LoadSnapshot("nobody")
	require.NoError(t, err, "a missing snapshot is not an error")
	assert.False(t, found, "missing snapshot should report absent")
}

func TestSnapshotsAreTenantScoped(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveSnapshot("1", soundsettings.Normalize(map[string]any{"volume": 0.1})))
	require.NoError(t, store.SaveSnapshot("2", soundsettings.Normalize(map[string]any{"volume": 0.7})))

	loaded, found, err := store.LoadSnapshot("2")
	require.NoError(t, err, "load should succeed")
	require.True(t, found, "snapshot should exist")
	assert.InDelta(t, 0.7, loaded.Volume, 1e-9, "tenants must not share snapshots")
}

func TestSoundEventHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	require.NoError(t, store.RecordSoundEvent(ctx, "order_ready", "success", 0.8))
	require.NoError(t, store.RecordSoundEvent(ctx, "payment_made", "cash", 0.5))

	rows, err := store.RecentSoundEvents(ctx, 10)
	require.NoError(t, err, "history query should succeed")
	require.Len(t, rows, 2, "both events should be recorded")
	assert.Equal(t, "payment_made", rows[0].Event, "newest row first")
	assert.Equal(t, "cash", rows[0].Asset, "asset should round-trip")
	assert.InDelta(t, 0.5, rows[0].Volume, 1e-9, "volume should round-trip")
}

func TestPruneSoundEvents(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	require.NoError(t, store.RecordSoundEvent(ctx, "order_ready", "success", 0.8))

	// A zero retention window prunes everything recorded so far.
	pruned, err := store.PruneSoundEvents(ctx, -time.Second)
	require.NoError(t, err, "prune should succeed")
	assert.Equal(t, int64(1), pruned, "row should be pruned")

	rows, err := store.RecentSoundEvents(ctx, 10)
	require.NoError(t, err, "history query should succeed")
	assert.Empty(t, rows, "history should be empty after prune")
}
