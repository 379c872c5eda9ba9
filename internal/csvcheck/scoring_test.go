package csvcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquality/odq/internal/models"
)

func TestScoreDimension_DeductsAndNotes(t *testing.T) {
	fired := map[string]bool{"bom_present": true, "no_header": true}

	d := scoreDimension(models.DimFileFormat, 15, formatDeductions, fired)

	assert.Equal(t, 7, d.Score)
	assert.Equal(t, 15, d.MaxScore)
	assert.Equal(t, []string{"bom_present: -5", "no_header: -3"}, d.Notes)
}

func TestScoreDimension_ClampsAtZero(t *testing.T) {
	fired := map[string]bool{}
	for _, rule := range contentDeductions {
		fired[rule.code] = true
	}

	d := scoreDimension(models.DimContent, 25, contentDeductions, fired)

	assert.Equal(t, 0, d.Score, "30 points of deductions floor at zero")
}

func TestScoreDimension_IgnoresUnknownCodes(t *testing.T) {
	fired := map[string]bool{"crlf_endings": true, "something_else": true}

	d := scoreDimension(models.DimFileFormat, 15, formatDeductions, fired)

	assert.Equal(t, 15, d.Score, "line endings never cost points")
	assert.Empty(t, d.Notes)
}

func TestScoreFileDimensions_UsesNonOKFindingsOnly(t *testing.T) {
	r := models.NewReport("x.csv")
	r.OK(models.PhaseStructure, "encoding_utf8", "Encoding: utf-8")
	r.Major(models.PhaseStructure, "bom_present", "BOM", "", "")
	v := &Validator{report: r}

	v.scoreFileDimensions()

	require.Len(t, r.Dimensions, 3)
	assert.Equal(t, 10, r.Dimensions[0].Score)
	assert.Equal(t, 20, r.Dimensions[1].Score)
	assert.Equal(t, 25, r.Dimensions[2].Score)
	assert.Equal(t, 55, r.TotalScore())
	assert.Equal(t, 60, r.MaxScore())
}

func TestAppendZeroDimensions(t *testing.T) {
	r := models.NewReport("x.csv")
	v := &Validator{report: r}

	v.appendZeroDimensions()

	require.Len(t, r.Dimensions, 3)
	names := []string{models.DimFileFormat, models.DimStructure, models.DimContent}
	maxes := []int{15, 20, 25}
	for i, d := range r.Dimensions {
		assert.Equal(t, names[i], d.Name)
		assert.Equal(t, maxes[i], d.MaxScore)
		assert.Zero(t, d.Score)
	}
	assert.Equal(t, 0, r.ScorePct())
}
