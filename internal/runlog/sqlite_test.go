package runlog

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestRecordAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	started := time.Now().Add(-time.Minute)
	run, err := s.Record(ctx, Run{
		InPath:     "/data/nrw.osm.pbf",
		OutPath:    "/data/nrw-sevas.osm.pbf",
		Unmatched:  map[string]int{"restriktionen": 3},
		StartedAt:  started,
		FinishedAt: time.Now(),
	}, map[string]int{"splits": 4})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)

	runs, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "/data/nrw.osm.pbf", got.InPath)
	assert.Equal(t, "/data/nrw-sevas.osm.pbf", got.OutPath)
	assert.Equal(t, map[string]int{"restriktionen": 3}, got.Unmatched)

	var counts map[string]int
	require.NoError(t, json.Unmarshal(got.Counts, &counts))
	assert.Equal(t, 4, counts["splits"])
}

func TestListOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Record(ctx, Run{
			InPath:     "/in.pbf",
			OutPath:    "/out.pbf",
			StartedAt:  time.Now().Add(time.Duration(i) * time.Hour),
			FinishedAt: time.Now().Add(time.Duration(i)*time.Hour + time.Minute),
		}, nil)
		require.NoError(t, err)
	}

	runs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
}
