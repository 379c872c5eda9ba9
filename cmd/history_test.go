package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquality/odq/internal/models"
)

// seedRun records one finished run and returns it with the generated id.
func seedRun(t *testing.T, source string, age time.Duration) *models.Run {
	t.Helper()

	report := models.NewReport(source)
	report.Profile = "DCAT-AP_IT"
	report.OK(models.PhaseStructure, "header_ok", "Header row looks sane")
	report.Minor(models.PhaseContent, "untrimmed_values", "Whitespace around values", "", "")
	report.AddDimension(models.ScoreDimension{Name: models.DimStructure, MaxScore: 20, Score: 15})

	run, err := models.NewRunFromReport(report)
	require.NoError(t, err)
	run.CreatedAt = time.Now().UTC().Add(-age)

	s, err := getStore()
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(context.Background(), run))
	return run
}

func TestHistoryList_Empty(t *testing.T) {
	testEnv(t)
	out, _ := captureUI(t)
	historyLimit = 20

	require.NoError(t, historyListRun(context.Background()))
	assert.Contains(t, out.String(), "No runs recorded yet")
}

func TestHistoryList_ShowsRuns(t *testing.T) {
	testEnv(t)
	out, _ := captureUI(t)
	historyLimit = 20

	first := seedRun(t, "data/prices.csv", 2*time.Hour)
	second := seedRun(t, "data/stations.csv", time.Minute)

	require.NoError(t, historyListRun(context.Background()))

	assert.Contains(t, out.String(), shortID(first.ID))
	assert.Contains(t, out.String(), shortID(second.ID))
	assert.Contains(t, out.String(), "data/prices.csv")
	assert.Contains(t, out.String(), "DCAT-AP_IT")
	assert.Contains(t, out.String(), "0/0/1")
	assert.Contains(t, out.String(), "2h ago")
}

func TestHistoryList_Limit(t *testing.T) {
	testEnv(t)
	out, _ := captureUI(t)

	old := seedRun(t, "data/old.csv", 3*time.Hour)
	recent := seedRun(t, "data/recent.csv", time.Minute)

	historyLimit = 1
	require.NoError(t, historyListRun(context.Background()))

	assert.Contains(t, out.String(), shortID(recent.ID))
	assert.NotContains(t, out.String(), shortID(old.ID))
}

func TestHistoryShow_ByPrefix(t *testing.T) {
	testEnv(t)
	out, _ := captureUI(t)

	run := seedRun(t, "data/prices.csv", time.Minute)

	require.NoError(t, historyShowRun(context.Background(), run.ID[:8]))

	assert.Contains(t, out.String(), run.ID)
	assert.Contains(t, out.String(), "data/prices.csv")
	assert.Contains(t, out.String(), "untrimmed_values")
}

func TestHistoryShow_NotFound(t *testing.T) {
	testEnv(t)
	captureUI(t)

	err := historyShowRun(context.Background(), "01ZZZZZZ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestTimeAgo(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "just now", timeAgo(now.Add(-10*time.Second)))
	assert.Equal(t, "5m ago", timeAgo(now.Add(-5*time.Minute)))
	assert.Equal(t, "3h ago", timeAgo(now.Add(-3*time.Hour)))
	assert.Equal(t, "1d ago", timeAgo(now.Add(-25*time.Hour)))
	assert.Equal(t, "3d ago", timeAgo(now.Add(-72*time.Hour)))
}
