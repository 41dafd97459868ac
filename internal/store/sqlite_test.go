package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lost-item-finder/pkg/finder"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleRecords() []finder.HistoryRecord {
	return []finder.HistoryRecord{
		{ID: 3, Timestamp: "2024-01-02 09:00:00", ClassName: "wallet", Confidence: 0.8, Location: "center", Source: "camera"},
		{ID: 1, Timestamp: "2024-01-01 10:00:00", ClassName: "keys", Confidence: 0.4, Location: "top-left", Source: "upload", ImageURL: "/img/1.jpg"},
		{ID: 2, Timestamp: "2024-01-01 11:00:00", ClassName: "keys", Confidence: 0.9},
	}
}

func TestSQLite_LatestHistory_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	snap, err := st.LatestHistory(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSQLite_SaveAndLoad_PreservesOrder(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	saved, err := st.SaveHistory(ctx, sampleRecords())
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.WithinDuration(t, time.Now(), saved.FetchedAt, time.Minute)

	snap, err := st.LatestHistory(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, saved.ID, snap.ID)
	assert.Equal(t, sampleRecords(), snap.Records)
}

func TestSQLite_SaveEmpty(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.SaveHistory(ctx, nil)
	require.NoError(t, err)

	snap, err := st.LatestHistory(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.NotNil(t, snap.Records)
	assert.Empty(t, snap.Records)
}

func TestSQLite_LatestWins(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.SaveHistory(ctx, sampleRecords())
	require.NoError(t, err)
	newer := []finder.HistoryRecord{{ID: 9, Timestamp: "2024-02-01 08:00:00", ClassName: "phone", Confidence: 0.7}}
	second, err := st.SaveHistory(ctx, newer)
	require.NoError(t, err)

	snap, err := st.LatestHistory(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, second.ID, snap.ID)
	assert.Equal(t, newer, snap.Records)
}

func TestSQLite_PruneSnapshots(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var last *Snapshot
	for i := 0; i < 4; i++ {
		snap, err := st.SaveHistory(ctx, sampleRecords())
		require.NoError(t, err)
		last = snap
	}

	n, err := st.PruneSnapshots(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	snap, err := st.LatestHistory(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, last.ID, snap.ID)
	assert.Len(t, snap.Records, 3)

	var orphans int
	require.NoError(t, st.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM history_records WHERE snapshot_id != ?`, last.ID,
	).Scan(&orphans))
	assert.Zero(t, orphans)
}

func TestSQLite_PruneAll(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.SaveHistory(ctx, sampleRecords())
	require.NoError(t, err)

	n, err := st.PruneSnapshots(ctx, -5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap, err := st.LatestHistory(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_OpenBadPath(t *testing.T) {
	_, err := NewSQLite(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	require.Error(t, err)
}
