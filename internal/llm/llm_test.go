package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquality/odq/internal/models"
)

func sampleReport() *models.QualityReport {
	r := models.NewReport("data/air_quality.csv")
	r.Major(models.PhaseContent, "comma_decimal", "Column value uses comma decimals", "12,5",
		"Store numbers with a dot decimal separator")
	r.Minor(models.PhaseContent, "untrimmed_values", "Column name has surrounding whitespace", "",
		"Trim cell values before export")
	r.AddDimension(models.ScoreDimension{Name: models.DimFileFormat, MaxScore: 15, Score: 15})
	r.AddDimension(models.ScoreDimension{Name: models.DimStructure, MaxScore: 20, Score: 20})
	r.AddDimension(models.ScoreDimension{Name: models.DimContent, MaxScore: 25, Score: 19})
	return r
}

func TestBuildExplainPrompt(t *testing.T) {
	t.Run("system frames the severity model", func(t *testing.T) {
		system, _, err := buildExplainPrompt(sampleReport())
		require.NoError(t, err)

		assert.Contains(t, system, "blocker")
		assert.Contains(t, system, "major")
		assert.Contains(t, system, "minor")
		assert.Contains(t, system, "priority order")
	})

	t.Run("user carries the export document", func(t *testing.T) {
		_, user, err := buildExplainPrompt(sampleReport())
		require.NoError(t, err)

		assert.Contains(t, user, "data/air_quality.csv")
		assert.Contains(t, user, `"comma_decimal"`)
		assert.Contains(t, user, `"untrimmed_values"`)
		assert.Contains(t, user, `"score"`)
	})

	t.Run("fix hints are included", func(t *testing.T) {
		_, user, err := buildExplainPrompt(sampleReport())
		require.NoError(t, err)

		assert.Contains(t, user, "dot decimal separator")
	})
}

func TestStripFencing(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Fix the decimals.", "Fix the decimals."},
		{"surrounding space", "  Fix the decimals.\n", "Fix the decimals."},
		{"fenced", "```\nFix the decimals.\n```", "Fix the decimals."},
		{"fenced with language", "```text\nFix the decimals.\n```", "Fix the decimals."},
		{"inner backticks survive", "Use `iconv` to re-encode.", "Use `iconv` to re-encode."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFencing(tt.in))
		})
	}
}

func TestNewClient(t *testing.T) {
	c := NewClient("test-key", "claude-haiku-4-5-20251001")
	require.NotNil(t, c)
	assert.NotNil(t, c.api)
}
