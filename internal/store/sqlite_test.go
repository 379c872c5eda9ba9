package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquality/odq/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(source string) *models.Run {
	return &models.Run{
		Source:     source,
		Mode:       "standard",
		Profile:    "DCAT-AP_IT",
		Score:      85,
		Blockers:   0,
		Majors:     2,
		Minors:     1,
		Verdict:    1,
		ReportJSON: `{"source":"` + source + `"}`,
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

func TestSaveRun_FillsDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := testRun("data.csv")
	err := s.SaveRun(ctx, run)
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.False(t, run.CreatedAt.IsZero())
}

func TestGetRun_Exact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := testRun("data.csv")
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Source, got.Source)
	assert.Equal(t, run.Mode, got.Mode)
	assert.Equal(t, run.Profile, got.Profile)
	assert.Equal(t, run.Score, got.Score)
	assert.Equal(t, run.Majors, got.Majors)
	assert.Equal(t, run.Verdict, got.Verdict)
	assert.Equal(t, run.ReportJSON, got.ReportJSON)
}

func TestGetRun_Prefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := testRun("data.csv")
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGetRun_AmbiguousPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testRun("a.csv")
	a.ID = "AMBIG00000000000000000001"
	b := testRun("b.csv")
	b.ID = "AMBIG00000000000000000002"
	require.NoError(t, s.SaveRun(ctx, a))
	require.NoError(t, s.SaveRun(ctx, b))

	_, err := s.GetRun(ctx, "AMBIG")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		run := testRun(fmt.Sprintf("file-%d.csv", i))
		run.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveRun(ctx, run))
	}

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "file-2.csv", runs[0].Source)
	assert.Equal(t, "file-0.csv", runs[2].Source)
}

func TestListRuns_Limit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		run := testRun(fmt.Sprintf("file-%d.csv", i))
		run.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveRun(ctx, run))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestListRuns_Empty(t *testing.T) {
	s := newTestStore(t)

	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestNewRunFromReport(t *testing.T) {
	r := models.NewReport("data.csv")
	r.Profile = "DCAT-AP_IT"
	r.Major(models.PhaseContent, "comma_decimal", "Comma decimals", "", "")
	r.Minor(models.PhaseContent, "untrimmed_values", "Whitespace", "", "")
	r.AddDimension(models.ScoreDimension{Name: models.DimContent, MaxScore: 25, Score: 20})

	run, err := models.NewRunFromReport(r)
	require.NoError(t, err)
	assert.Equal(t, "data.csv", run.Source)
	assert.Equal(t, 80, run.Score)
	assert.Equal(t, 0, run.Blockers)
	assert.Equal(t, 1, run.Majors)
	assert.Equal(t, 1, run.Minors)
	assert.Equal(t, 1, run.Verdict)
	assert.Contains(t, run.ReportJSON, `"comma_decimal"`)

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ReportJSON, got.ReportJSON)
}
