package csvcheck

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xrash/smetrics"

	"github.com/openquality/odq/internal/engine"
	"github.com/openquality/odq/internal/models"
)

// Content detector patterns. Comma decimals cover plain ("12,5") and
// thousand-grouped ("1.234,56") spellings.
var (
	commaDecimalRe  = regexp.MustCompile(`^(\d+|\d{1,3}(\.\d{3})+),\d+$`)
	nonISODateRe    = regexp.MustCompile(`^\d{1,2}[/.]\d{1,2}[/.]\d{4}$`)
	groupedNumberRe = regexp.MustCompile(`^\d{1,3}([.,]\d{3})+$`)
	temporalValueRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}([T ].*)?|\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}|\d{1,2}:\d{2}(:\d{2})?)$`)
)

// ── phase 3: cell content ──

func (v *Validator) phase3(ctx context.Context) {
	r, p := v.report, models.PhaseContent

	sums, err := v.eng.Summarize(ctx)
	if err != nil {
		r.Minor(p, "summarize_failed", fmt.Sprintf("Column summary failed: %v", err), "", "")
		sums = nil
	} else {
		r.OK(p, "summarize_ok", fmt.Sprintf("Summary statistics computed for %d column(s)", len(sums)))
		v.checkNullRates(sums)
	}

	cells, err := v.eng.Cells(ctx, v.sampleRows)
	if err != nil {
		r.Minor(p, "varchar_load_failed", "Could not sample cell values for content checks", "", "")
		return
	}

	v.checkCommaDecimals(cells)
	v.checkNonISODates(ctx)
	v.checkEmbeddedUnits(ctx)
	v.checkPlaceholders(cells)
	v.checkNumericText(ctx)
	v.checkWhitespace(cells)
	v.checkFuzzyCategories(ctx, sums)
}

// checkNullRates flags columns where more than 5% of sampled rows are
// NULL.
func (v *Validator) checkNullRates(sums []engine.ColumnSummary) {
	r, p := v.report, models.PhaseContent

	var high []string
	for _, s := range sums {
		if s.NullPct > 5 {
			high = append(high, fmt.Sprintf("%s(%.1f%%)", s.Column.Raw, s.NullPct))
		}
	}
	if len(high) == 0 {
		r.OK(p, "null_rates_ok", "No columns with high NULL rates")
		return
	}
	r.Major(p, "high_null_rate",
		fmt.Sprintf("%d column(s) with >5%% NULL values", len(high)),
		strings.Join(high, ", "),
		"Document the missing-data policy; consider imputation or an explicit flag column")
}

func (v *Validator) checkCommaDecimals(cells []engine.Cell) {
	r, p := v.report, models.PhaseContent

	hits := groupMatches(cells, commaDecimalRe.MatchString, 3)
	if len(hits) == 0 {
		r.OK(p, "no_comma_decimal", "No comma decimal separators detected")
		return
	}
	r.Major(p, "comma_decimal",
		fmt.Sprintf("Comma decimal separator in %d column(s): %s", len(hits), strings.Join(hitColumns(hits), ", ")),
		exampleDetail(hits, 3),
		`Convert to dot decimals, e.g. mlr --csv put '$value = sub($value, ",", ".")'`)
}

// checkNonISODates flags dd/mm/yyyy-style dates. A smaller row window
// suffices; the pattern repeats if it is present at all.
func (v *Validator) checkNonISODates(ctx context.Context) {
	r, p := v.report, models.PhaseContent

	hits := groupMatches(v.sampleCells(ctx, 500), nonISODateRe.MatchString, 2)
	if len(hits) == 0 {
		r.OK(p, "iso_dates", "No non-ISO date formats detected")
		return
	}
	r.Major(p, "non_iso_date",
		fmt.Sprintf("Non-ISO date format in %d column(s): %s", len(hits), strings.Join(hitColumns(hits), ", ")),
		exampleDetail(hits, 3),
		"Use ISO 8601 dates (YYYY-MM-DD)")
}

func (v *Validator) checkEmbeddedUnits(ctx context.Context) {
	r, p := v.report, models.PhaseContent

	hits := groupMatches(v.sampleCells(ctx, 500), v.rules.UnitValue.MatchString, 2)
	if len(hits) == 0 {
		r.OK(p, "no_units_in_cells", "No measurement units embedded in values")
		return
	}
	r.Major(p, "units_in_cells",
		fmt.Sprintf("Measurement units embedded in values in %d column(s): %s", len(hits), strings.Join(hitColumns(hits), ", ")),
		exampleDetail(hits, 3),
		"Move the unit into the column name (e.g. weight_kg) and keep values numeric")
}

// checkPlaceholders counts sentinel strings per column, worst offenders
// first.
func (v *Validator) checkPlaceholders(cells []engine.Cell) {
	r, p := v.report, models.PhaseContent

	hits := groupMatches(cells, v.rules.IsPlaceholder, 1)
	if len(hits) == 0 {
		r.OK(p, "no_placeholder_values", "No placeholder values detected")
		return
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].count > hits[j].count })
	parts := make([]string, 0, 5)
	for _, h := range hits[:min(5, len(hits))] {
		parts = append(parts, fmt.Sprintf("%s(%d)", h.col, h.count))
	}
	r.Major(p, "placeholder_values",
		fmt.Sprintf("Placeholder values ('n/a', '-', 'null', ...) in %d column(s)", len(hits)),
		strings.Join(parts, ", "),
		"Leave cells empty for missing data, and document that convention")
}

// checkNumericText finds thousand-grouped numbers stuck in text-typed
// columns, where grouping separators defeated type inference.
func (v *Validator) checkNumericText(ctx context.Context) {
	r, p := v.report, models.PhaseContent

	text := map[string]bool{}
	for _, c := range v.eng.Columns() {
		if c.Type == "TEXT" {
			text[c.Raw] = true
		}
	}
	if len(text) == 0 {
		return
	}
	var textCells []engine.Cell
	for _, c := range v.sampleCells(ctx, 200) {
		if text[c.Column] {
			textCells = append(textCells, c)
		}
	}
	hits := groupMatches(textCells, groupedNumberRe.MatchString, 5)
	if len(hits) == 0 {
		return
	}
	r.Major(p, "numeric_as_varchar",
		fmt.Sprintf("Numbers stored as text in %d column(s): %s", len(hits), strings.Join(hitColumns(hits), ", ")),
		exampleDetail(hits, 3),
		"Remove grouping separators so values load as numbers")
}

func (v *Validator) checkWhitespace(cells []engine.Cell) {
	r, p := v.report, models.PhaseContent

	untrimmed := func(s string) bool { return s != strings.TrimSpace(s) }
	hits := groupMatches(cells, untrimmed, 5)
	if len(hits) == 0 {
		return
	}
	r.Minor(p, "untrimmed_values",
		fmt.Sprintf("Leading/trailing whitespace in %d column(s): %s", len(hits), strings.Join(hitColumns(hits), ", ")),
		exampleDetail(hits, 3),
		"Trim whitespace on export")
}

// checkFuzzyCategories hunts near-duplicate spellings in low-cardinality
// text columns ("Milano"/"milano "). Timestamps and formatted numbers
// would all pair up with each other, so columns that read as temporal or
// numeric are skipped.
func (v *Validator) checkFuzzyCategories(ctx context.Context, sums []engine.ColumnSummary) {
	r, p := v.report, models.PhaseContent
	loaded := v.eng.LoadedRows()

	var found []string
	for _, s := range sums {
		if s.Column.Type != "TEXT" || s.Distinct < 2 || s.Distinct > 40 {
			continue
		}
		if s.Distinct*10 > loaded {
			continue // too many distincts for the row count to be categorical
		}
		values, err := v.eng.DistinctValues(ctx, s.Column, 50)
		if err != nil || looksTemporalOrNumeric(values) {
			continue
		}
		if pair := similarPair(values); pair != "" {
			found = append(found, fmt.Sprintf("%s: %s", s.Column.Raw, pair))
		}
	}
	if len(found) == 0 {
		return
	}
	r.Minor(p, "fuzzy_category_values",
		fmt.Sprintf("Near-duplicate category values in %d column(s)", len(found)),
		strings.Join(found[:min(3, len(found))], "; "),
		"Normalize category spellings against a reference list")
}

// sampleCells reads up to rowCap stored rows. A read failure degrades to
// an empty sample so a single detector cannot sink the phase.
func (v *Validator) sampleCells(ctx context.Context, rowCap int) []engine.Cell {
	if rowCap > v.sampleRows {
		rowCap = v.sampleRows
	}
	cells, err := v.eng.Cells(ctx, rowCap)
	if err != nil {
		return nil
	}
	return cells
}

// colHits is one column's detector matches.
type colHits struct {
	col     string
	count   int
	example string
}

// groupMatches folds matching cells per column and keeps columns with at
// least minHits matches, in first-seen column order.
func groupMatches(cells []engine.Cell, match func(string) bool, minHits int) []colHits {
	idx := map[string]int{}
	var hits []colHits
	for _, c := range cells {
		if !match(c.Value) {
			continue
		}
		i, ok := idx[c.Column]
		if !ok {
			i = len(hits)
			idx[c.Column] = i
			hits = append(hits, colHits{col: c.Column, example: c.Value})
		}
		hits[i].count++
	}
	kept := hits[:0]
	for _, h := range hits {
		if h.count >= minHits {
			kept = append(kept, h)
		}
	}
	return kept
}

func hitColumns(hits []colHits) []string {
	cols := make([]string, len(hits))
	for i, h := range hits {
		cols[i] = h.col
	}
	return cols
}

// exampleDetail renders up to n "col: e.g. 'value'" fragments.
func exampleDetail(hits []colHits, n int) string {
	parts := make([]string, 0, n)
	for _, h := range hits[:min(n, len(hits))] {
		parts = append(parts, fmt.Sprintf("%s: e.g. '%s'", h.col, h.example))
	}
	return strings.Join(parts, ", ")
}

// similarPair returns the first value pair above the similarity bar,
// rendered for a finding detail, or "".
func similarPair(values []string) string {
	for i := 0; i < len(values); i++ {
		a := strings.TrimSpace(values[i])
		if utf8.RuneCountInString(a) < 4 {
			continue
		}
		for j := i + 1; j < len(values); j++ {
			b := strings.TrimSpace(values[j])
			if utf8.RuneCountInString(b) < 4 || a == b {
				continue
			}
			if smetrics.JaroWinkler(a, b, 0.7, 4) > 0.92 {
				return fmt.Sprintf("%q ~ %q", values[i], values[j])
			}
		}
	}
	return ""
}

// looksTemporalOrNumeric reports whether at least half the values read
// as dates, times or numbers.
func looksTemporalOrNumeric(values []string) bool {
	if len(values) == 0 {
		return true
	}
	n := 0
	for _, v := range values {
		s := strings.TrimSpace(v)
		if temporalValueRe.MatchString(s) {
			n++
			continue
		}
		if _, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64); err == nil {
			n++
		}
	}
	return 2*n >= len(values)
}
