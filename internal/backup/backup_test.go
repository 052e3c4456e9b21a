package backup

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skald.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE memo (uuid TEXT PRIMARY KEY, title TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO memo (uuid, title) VALUES ('m1', 'Onboarding')`)
	require.NoError(t, err)
	return path
}

func countMemos(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM memo`).Scan(&n))
	return n
}

func TestSnapshot_WritesVerifiedCopy(t *testing.T) {
	dbPath := newTestDB(t)
	dir := filepath.Join(t.TempDir(), "backups")

	res, err := Snapshot(context.Background(), Config{DBPath: dbPath, Dir: dir}, zerolog.Nop())
	require.NoError(t, err)

	assert.FileExists(t, res.Path)
	assert.Equal(t, dir, filepath.Dir(res.Path))
	assert.Positive(t, res.Size)
	assert.Equal(t, 1, countMemos(t, res.Path))

	list, err := List(dir)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.Path, list[0].Path)
}

func TestSnapshot_MissingDatabase(t *testing.T) {
	_, err := Snapshot(context.Background(), Config{
		DBPath: filepath.Join(t.TempDir(), "missing.db"),
		Dir:    t.TempDir(),
	}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database not found")
}

func TestRestore_ReplacesTarget(t *testing.T) {
	dbPath := newTestDB(t)
	dir := t.TempDir()

	res, err := Snapshot(context.Background(), Config{DBPath: dbPath, Dir: dir}, zerolog.Nop())
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "restored.db")
	require.NoError(t, os.WriteFile(target+"-wal", []byte("stale"), 0o600))

	require.NoError(t, Restore(context.Background(), res.Path, target))
	assert.Equal(t, 1, countMemos(t, target))
	assert.NoFileExists(t, target+"-wal")
}

func TestRestore_RejectsCorruptSnapshot(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "skald-bad.db")
	require.NoError(t, os.WriteFile(bad, []byte("not a database"), 0o600))

	target := filepath.Join(t.TempDir(), "restored.db")
	require.Error(t, Restore(context.Background(), bad, target))
	assert.NoFileExists(t, target)
}

// writeSnapshots creates one snapshot file per age, stamped relative to now.
func writeSnapshots(t *testing.T, dir string, now time.Time, ages ...time.Duration) {
	t.Helper()
	for i, age := range ages {
		path := filepath.Join(dir, filePrefix+time.Duration(i).String()+".db")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		ts := now.Add(-age)
		require.NoError(t, os.Chtimes(path, ts, ts))
	}
}

func TestApplyRetention(t *testing.T) {
	now := time.Now()
	hour := time.Hour
	day := 24 * time.Hour

	tests := []struct {
		name     string
		policy   RetentionPolicy
		ages     []time.Duration
		wantLeft int
	}{
		{
			name:     "within limits keeps everything",
			policy:   DefaultRetention(),
			ages:     []time.Duration{hour, 2 * hour, 2 * day, 10 * day, 60 * day},
			wantLeft: 5,
		},
		{
			name:     "hourly tier trimmed to limit",
			policy:   RetentionPolicy{Hourly: 2, Daily: 7, Weekly: 4, Monthly: 12},
			ages:     []time.Duration{hour, 2 * hour, 3 * hour, 4 * hour},
			wantLeft: 2,
		},
		{
			name:     "each tier trimmed independently",
			policy:   RetentionPolicy{Hourly: 1, Daily: 1, Weekly: 1, Monthly: 1},
			ages:     []time.Duration{hour, 2 * hour, 2 * day, 3 * day, 10 * day, 11 * day, 40 * day, 50 * day},
			wantLeft: 4,
		},
		{
			name:     "older than a year always removed",
			policy:   DefaultRetention(),
			ages:     []time.Duration{hour, 400 * day},
			wantLeft: 1,
		},
		{
			name:     "zero policy uses defaults",
			policy:   RetentionPolicy{},
			ages:     []time.Duration{hour, 2 * hour},
			wantLeft: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeSnapshots(t, dir, now, tt.ages...)

			removed, err := ApplyRetention(dir, tt.policy, now)
			require.NoError(t, err)
			assert.Equal(t, len(tt.ages)-tt.wantLeft, removed)

			left, err := List(dir)
			require.NoError(t, err)
			assert.Len(t, left, tt.wantLeft)
		})
	}
}

func TestApplyRetention_KeepsNewestInTier(t *testing.T) {
	now := time.Now()
	dir := t.TempDir()
	writeSnapshots(t, dir, now, 3*time.Hour, time.Hour, 2*time.Hour)

	_, err := ApplyRetention(dir, RetentionPolicy{Hourly: 1}, now)
	require.NoError(t, err)

	left, err := List(dir)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, filepath.Join(dir, filePrefix+time.Duration(1).String()+".db"), left[0].Path)
}

func TestList_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.db"), nil, 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, filePrefix+"dir.db"), 0o700))

	list, err := List(dir)
	require.NoError(t, err)
	assert.Empty(t, list)
}
