package csvcheck

import (
	"fmt"

	"github.com/openquality/odq/internal/models"
)

// deduction is one scoring rule: a finding code and its cost.
type deduction struct {
	code   string
	points int
}

// Per-dimension deduction tables. A code costs the same whether it hit
// one column or twenty; dimensions floor at zero. Line-ending style is
// informational and never scores.
var (
	formatDeductions = []deduction{
		{"encoding_not_utf8", 10},
		{"bom_present", 5},
		{"no_header", 3},
	}
	structureDeductions = []deduction{
		{"wide_format_years", 5},
		{"wide_format_months", 5},
		{"duplicate_columns", 5},
		{"aggregate_rows", 5},
		{"bad_column_names", 3},
		{"footnote_markers", 2},
	}
	contentDeductions = []deduction{
		{"comma_decimal", 5},
		{"non_iso_date", 5},
		{"high_null_rate", 5},
		{"invalid_reference_codes", 4},
		{"units_in_cells", 3},
		{"placeholder_values", 3},
		{"numeric_as_varchar", 2},
		{"fuzzy_category_values", 2},
		{"untrimmed_values", 1},
	}
)

// scoreFileDimensions appends the three file dimensions, deducting for
// every finding code that fired.
func (v *Validator) scoreFileDimensions() {
	fired := map[string]bool{}
	for _, f := range v.report.Findings {
		if f.Severity != models.SeverityOK {
			fired[f.Code] = true
		}
	}
	v.report.AddDimension(scoreDimension(models.DimFileFormat, 15, formatDeductions, fired))
	v.report.AddDimension(scoreDimension(models.DimStructure, 20, structureDeductions, fired))
	v.report.AddDimension(scoreDimension(models.DimContent, 25, contentDeductions, fired))
}

// appendZeroDimensions keeps the score shape stable when the file never
// parsed: the same three dimensions, zero points earned.
func (v *Validator) appendZeroDimensions() {
	v.report.AddDimension(models.ScoreDimension{Name: models.DimFileFormat, MaxScore: 15})
	v.report.AddDimension(models.ScoreDimension{Name: models.DimStructure, MaxScore: 20})
	v.report.AddDimension(models.ScoreDimension{Name: models.DimContent, MaxScore: 25})
}

// AppendUncheckedDimensions appends the three file dimensions at full
// marks with a note. Dataset runs that skip the file download use it so
// their scores stay comparable with full runs.
func AppendUncheckedDimensions(r *models.QualityReport, note string) {
	for _, d := range []models.ScoreDimension{
		{Name: models.DimFileFormat, MaxScore: 15, Score: 15},
		{Name: models.DimStructure, MaxScore: 20, Score: 20},
		{Name: models.DimContent, MaxScore: 25, Score: 25},
	} {
		d.Notes = []string{note}
		r.AddDimension(d)
	}
}

func scoreDimension(name string, max int, rules []deduction, fired map[string]bool) models.ScoreDimension {
	score := max
	var notes []string
	for _, d := range rules {
		if fired[d.code] {
			score -= d.points
			notes = append(notes, fmt.Sprintf("%s: -%d", d.code, d.points))
		}
	}
	if score < 0 {
		score = 0
	}
	return models.ScoreDimension{Name: name, MaxScore: max, Score: score, Notes: notes}
}
