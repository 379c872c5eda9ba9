// Package csvcheck runs the file-validation pipeline: parse gate,
// structural checks, content detectors, reference-code checks and the
// file score dimensions.
package csvcheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/openquality/odq/internal/engine"
	"github.com/openquality/odq/internal/models"
	"github.com/openquality/odq/internal/probe"
	"github.com/openquality/odq/internal/ruleset"
)

var (
	yearColumnRe  = regexp.MustCompile(`^(19|20)\d{2}$`)
	footnoteRe    = regexp.MustCompile(`\(\d+\)|\(\*\)|\d+\s*\*`)
	badNameRe     = regexp.MustCompile(`[^a-zA-Z0-9_À-ÿ-]`)
	leadingDigit  = regexp.MustCompile(`^\d`)
	nutsCodeRe    = regexp.MustCompile(`^[A-Z]{2}[0-9A-Z]{1,3}$`)
	istatCodeRe   = regexp.MustCompile(`^\d{6}$`)
	istatShortRe  = regexp.MustCompile(`^\d{1,5}$`)
	countryCodeRe = regexp.MustCompile(`^[A-Z]{2}$`)
	istatHintRe   = regexp.MustCompile(`istat|comune|municipal`)
	countryHintRe = regexp.MustCompile(`country_code|iso_country|nation`)
)

// parse attempt outcomes, one per ladder step
type attemptOutcome int

const (
	attemptOK attemptOutcome = iota
	attemptRetry
	attemptFatal
)

// Options configure a Validator.
type Options struct {
	// SampleRows caps how many rows the content checks see.
	SampleRows int
	// Rules overrides the default heuristic vocabulary.
	Rules *ruleset.Rules
	// Report, when set, is extended instead of starting a fresh one.
	Report *models.QualityReport
}

// Validator runs phases 0-4 on a single CSV file.
type Validator struct {
	path       string
	sampleRows int
	rules      *ruleset.Rules
	report     *models.QualityReport

	eng        *engine.Engine
	sep        rune
	rawHeaders []string

	// workPath is what later phases read; it differs from path after
	// encoding recovery.
	workPath  string
	tempCopy  string
	lenient   bool
	reencoded bool
	sourceEnc string
	encConf   int
}

// New builds a validator for path.
func New(path string, opts Options) *Validator {
	if opts.SampleRows <= 0 {
		opts.SampleRows = engine.DefaultSampleRows
	}
	if opts.Rules == nil {
		opts.Rules = ruleset.Default()
	}
	if opts.Report == nil {
		opts.Report = models.NewReport(path)
	}
	return &Validator{
		path:       path,
		workPath:   path,
		sampleRows: opts.SampleRows,
		rules:      opts.Rules,
		report:     opts.Report,
	}
}

// Run executes the pipeline and returns the report. A phase-0 blocker
// halts everything else; the file dimensions are still appended so the
// score shape stays stable.
func (v *Validator) Run(ctx context.Context) *models.QualityReport {
	defer v.finalize()

	if !v.phase0(ctx) {
		v.appendZeroDimensions()
		return v.report
	}
	defer v.eng.Close()

	v.phase1(ctx)
	v.phase2()
	v.phase3(ctx)
	v.phase4(ctx)
	v.scoreFileDimensions()
	return v.report
}

// finalize deletes the re-encoded temp copy. It runs on every exit
// path, success or not, exactly once.
func (v *Validator) finalize() {
	if v.tempCopy != "" {
		_ = os.Remove(v.tempCopy)
		v.tempCopy = ""
	}
}

// ── phase 0: parse gate ──

func (v *Validator) phase0(ctx context.Context) bool {
	r, p := v.report, models.PhaseBlockers

	info, err := os.Stat(v.path)
	if errors.Is(err, fs.ErrNotExist) {
		r.Blocker(p, "file_not_found", "File not found: "+v.path, "", "")
		return false
	}
	if err != nil {
		r.Blocker(p, "file_not_found", fmt.Sprintf("File not readable: %v", err), "", "")
		return false
	}
	if info.Size() == 0 {
		r.Blocker(p, "file_empty", "File is empty (0 bytes)", "", "")
		return false
	}

	head := readHead(v.path, 8192)
	if bytes.IndexByte(head, 0) >= 0 {
		r.Blocker(p, "file_binary", "File appears binary (null bytes), not a CSV", "", "")
		return false
	}
	if kind := sniffMarkup(head); kind != "" {
		r.Blocker(p, "file_wrong_type",
			fmt.Sprintf("File content looks like %s, not CSV", kind), "",
			"Export the data as CSV, or fix the resource format metadata")
		return false
	}

	v.sep = probe.SniffSeparator(v.path)

	// Fallback ladder: strict, then lenient, then a re-encoded copy.
	step := "strict parse"
	outcome, parseErr := v.tryLoad(ctx, false)
	if outcome == attemptRetry {
		step = "lenient parse"
		outcome, parseErr = v.tryLoad(ctx, true)
		v.lenient = outcome == attemptOK
	}
	if outcome == attemptRetry {
		outcome, parseErr = v.tryReencode(ctx)
		step = fmt.Sprintf("re-encoded from %s", v.sourceEnc)
	}
	if outcome != attemptOK {
		r.Blocker(p, "csv_unparseable",
			fmt.Sprintf("Cannot parse file: %v", parseErr), "",
			"Check separator, quoting, and encoding")
		return false
	}

	if v.eng.RowCount() == 0 {
		r.Blocker(p, "no_data_rows", "No data rows (header only or empty)", "", "")
		return false
	}
	if cols := len(v.eng.Columns()); cols <= 1 {
		r.Blocker(p, "trivial_structure",
			fmt.Sprintf("Only %d column(s), check separator", cols), "",
			"Verify that the correct separator is used")
		return false
	}

	r.Add(models.Finding{
		Severity: models.SeverityOK,
		Phase:    p,
		Code:     "parseable",
		Message:  fmt.Sprintf("Parsed OK: %d rows × %d columns", v.eng.RowCount(), len(v.eng.Columns())),
		Detail:   step,
	})
	return true
}

// tryLoad attempts one parse into a fresh engine and classifies the
// result.
func (v *Validator) tryLoad(ctx context.Context, lenient bool) (attemptOutcome, error) {
	if v.eng != nil {
		_ = v.eng.Close()
		v.eng = nil
	}
	eng, err := engine.New()
	if err != nil {
		return attemptFatal, err
	}
	err = eng.Load(ctx, v.workPath, engine.Options{
		Separator:  v.sep,
		Lenient:    lenient,
		SampleRows: v.sampleRows,
	})
	if err == nil {
		v.eng = eng
		return attemptOK, nil
	}
	_ = eng.Close()
	if engine.IsRetryable(err) {
		return attemptRetry, err
	}
	return attemptFatal, err
}

// tryReencode transliterates the file to a UTF-8 temp copy and retries
// a strict parse on it. The copy becomes the working path for every
// later phase; finalize deletes it.
func (v *Validator) tryReencode(ctx context.Context) (attemptOutcome, error) {
	enc, conf := probe.DetectEncoding(v.path)
	v.sourceEnc, v.encConf = enc, conf
	if enc == "utf-8" || enc == "unknown" {
		return attemptFatal, fmt.Errorf("parse failed and no recoverable encoding detected (%s)", enc)
	}
	copyPath, err := probe.Reencode(v.path, enc)
	if err != nil {
		return attemptFatal, fmt.Errorf("re-encoding from %s: %w", enc, err)
	}
	v.tempCopy = copyPath
	v.workPath = copyPath

	outcome, err := v.tryLoad(ctx, false)
	v.reencoded = outcome == attemptOK
	return outcome, err
}

// ── phase 1: file structure ──

func (v *Validator) phase1(ctx context.Context) {
	_ = ctx
	r, p := v.report, models.PhaseStructure

	if v.reencoded {
		// The working copy is UTF-8 now; report the original's encoding.
		r.Major(p, "encoding_not_utf8",
			fmt.Sprintf("Encoding detected as %q (%d%% confidence), expected UTF-8", v.sourceEnc, v.encConf),
			"", fmt.Sprintf("iconv -f %s -t UTF-8 input.csv > output.csv", v.sourceEnc))
	} else if enc, conf := probe.DetectEncoding(v.workPath); enc == "utf-8" {
		r.OK(p, "encoding_utf8", fmt.Sprintf("Encoding: %s (%d%% confidence)", enc, conf))
	} else {
		r.Major(p, "encoding_not_utf8",
			fmt.Sprintf("Encoding detected as %q (%d%% confidence), expected UTF-8", enc, conf),
			"", fmt.Sprintf("iconv -f %s -t UTF-8 input.csv > output.csv", enc))
	}

	if probe.HasBOM(v.path) {
		r.Major(p, "bom_present", "UTF-8 BOM present, causes parse errors in many tools",
			"", `sed '1s/^\xef\xbb\xbf//' input.csv > output.csv`)
	} else {
		r.OK(p, "no_bom", "No BOM")
	}

	// Both conventions are fine; recorded for information only.
	if probe.HasCRLF(v.path) {
		r.OK(p, "crlf_endings", "Windows CRLF line endings")
	} else {
		r.OK(p, "lf_endings", "LF line endings (Unix-style)")
	}

	if !probe.HasHeader(v.workPath, v.sep) {
		r.Major(p, "no_header", "No header row detected",
			"", "Add a descriptive header row as the first line")
	}

	v.rawHeaders = probe.RawHeaders(v.workPath, v.sep)
	if len(v.rawHeaders) == 0 {
		for _, c := range v.eng.Columns() {
			v.rawHeaders = append(v.rawHeaders, c.Raw)
		}
	}

	r.OK(p, "separator", fmt.Sprintf("Separator: %q", v.sep))
	r.OK(p, "dimensions", fmt.Sprintf("%d rows × %d columns", v.eng.RowCount(), len(v.rawHeaders)))
}

// ── phase 2: columns & layout ──

func (v *Validator) phase2() {
	r, p := v.report, models.PhaseColumns
	names := v.rawHeaders

	counts := map[string]int{}
	for _, n := range names {
		counts[n]++
	}
	var dupes []string
	seen := map[string]bool{}
	for _, n := range names {
		if counts[n] > 1 && !seen[n] {
			dupes = append(dupes, n)
			seen[n] = true
		}
	}
	if len(dupes) > 0 {
		r.Major(p, "duplicate_columns",
			fmt.Sprintf("Duplicate column names: %s", strings.Join(dupes, ", ")),
			"", "Rename duplicates before publishing")
	} else {
		r.OK(p, "no_duplicate_columns", "No duplicate column names")
	}

	var bad []string
	for _, name := range names {
		switch {
		case strings.Contains(name, " "):
			bad = append(bad, fmt.Sprintf("%q (space)", name))
		case badNameRe.MatchString(name):
			bad = append(bad, fmt.Sprintf("%q (special chars)", name))
		case leadingDigit.MatchString(name):
			bad = append(bad, fmt.Sprintf("%q (starts with digit)", name))
		}
	}
	if len(bad) > 0 {
		detail := strings.Join(bad[:min(5, len(bad))], ", ")
		if len(bad) > 5 {
			detail += ", ..."
		}
		r.Minor(p, "bad_column_names",
			fmt.Sprintf("%d column(s) with non-SQL-friendly names", len(bad)),
			detail, "Rename to snake_case: lowercase, no spaces, no special chars")
	} else {
		r.OK(p, "column_names_ok", "All column names are SQL-friendly")
	}

	var yearCols, monthCols []string
	for _, n := range names {
		if yearColumnRe.MatchString(n) {
			yearCols = append(yearCols, n)
		}
		if v.rules.MonthPrefix.MatchString(n) {
			monthCols = append(monthCols, n)
		}
	}
	switch {
	case len(yearCols) >= 3:
		r.Major(p, "wide_format_years",
			fmt.Sprintf("Wide format: %d year columns (%s...)", len(yearCols), strings.Join(yearCols[:min(4, len(yearCols))], ", ")),
			"", "Reshape to long format: one (entity, year, value) row per period")
		// Year headers read as data and trip the header heuristic;
		// retract that false positive.
		r.Suppress("no_header")
	case len(monthCols) >= 3:
		r.Major(p, "wide_format_months",
			fmt.Sprintf("Wide format: %d month columns (%s...)", len(monthCols), strings.Join(monthCols[:min(4, len(monthCols))], ", ")),
			"", "Reshape to long format: one (entity, month, value) row per period")
		r.Suppress("no_header")
	default:
		r.OK(p, "no_wide_format", "No wide-format time-period columns")
	}

	var aggLines []string
	for _, line := range probe.TailLines(v.workPath, 10) {
		if v.rules.Aggregate.MatchString(line) {
			aggLines = append(aggLines, line)
		}
	}
	if len(aggLines) > 0 {
		r.Major(p, "aggregate_rows",
			fmt.Sprintf("%d aggregate/total row(s) at end of file", len(aggLines)),
			truncate(aggLines[0], 100),
			"Remove total rows; publish a separate summary if needed")
	} else {
		r.OK(p, "no_aggregate_rows", "No aggregate rows at end of file")
	}

	var fnLines []string
	for _, line := range probe.HeadLines(v.workPath, 200) {
		if footnoteRe.MatchString(line) {
			fnLines = append(fnLines, line)
		}
	}
	if len(fnLines) > 0 {
		r.Minor(p, "footnote_markers",
			fmt.Sprintf("Footnote markers (*), (1) in %d sampled line(s)", len(fnLines)),
			truncate(fnLines[0], 80),
			"Remove markers; document notes in the description or a separate column")
	}
}

// ── phase 4: reference codes ──

func (v *Validator) phase4(ctx context.Context) {
	r, p := v.report, models.PhaseCodes

	var codeCols []string
	for _, n := range v.rawHeaders {
		if v.rules.CodeColumn.MatchString(strings.ToLower(n)) {
			codeCols = append(codeCols, n)
		}
	}
	if len(codeCols) == 0 {
		r.OK(p, "no_code_columns", "No administrative code columns detected")
		return
	}

	var issues []string
	for _, raw := range codeCols[:min(10, len(codeCols))] {
		col, ok := v.eng.ColumnByRaw(raw)
		if !ok {
			continue
		}
		values, err := v.eng.ColumnValues(ctx, col, 5000)
		if err != nil {
			continue
		}
		lower := strings.ToLower(raw)

		if strings.Contains(lower, "nuts") {
			if bad := reject(values, nutsCodeRe); len(bad) > 0 {
				issues = append(issues, fmt.Sprintf("%s: %d values don't match NUTS (e.g. %q)", raw, len(bad), bad[0]))
			}
		}
		if istatHintRe.MatchString(lower) {
			short := keep(values, istatShortRe)
			bad := reject(values, istatCodeRe)
			if len(short) > 0 {
				issues = append(issues, fmt.Sprintf("%s: %d values look like ISTAT missing leading zeros (e.g. %q)", raw, len(short), short[0]))
			} else if len(bad) > 0 {
				issues = append(issues, fmt.Sprintf("%s: %d values not 6-digit ISTAT (e.g. %q)", raw, len(bad), bad[0]))
			}
		}
		if countryHintRe.MatchString(lower) {
			if bad := reject(values, countryCodeRe); len(bad) > 0 {
				issues = append(issues, fmt.Sprintf("%s: %d values not 2-letter ISO country code (e.g. %q)", raw, len(bad), bad[0]))
			}
		}
	}

	if len(issues) > 0 {
		r.Major(p, "invalid_reference_codes",
			fmt.Sprintf("Potential issues in %d code column(s)", len(issues)),
			strings.Join(issues[:min(3, len(issues))], "; "),
			"Validate against reference tables; use LPAD() to restore leading zeros")
	} else {
		r.OK(p, "reference_codes_ok",
			fmt.Sprintf("Reference code columns look well-formed: %s", strings.Join(codeCols[:min(5, len(codeCols))], ", ")))
	}
}

func keep(values []string, re *regexp.Regexp) []string {
	var out []string
	for _, v := range values {
		if re.MatchString(v) {
			out = append(out, v)
		}
	}
	return out
}

func reject(values []string, re *regexp.Regexp) []string {
	var out []string
	for _, v := range values {
		if !re.MatchString(v) {
			out = append(out, v)
		}
	}
	return out
}

func readHead(path string, n int) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil
	}
	return buf[:read]
}

// sniffMarkup names the format a structured-text export looks like, or
// returns "" for plausible CSV.
func sniffMarkup(head []byte) string {
	trimmed := bytes.TrimLeft(head, " \t\r\n\xef\xbb\xbf")
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '{', '[':
		return "JSON"
	case '<':
		return "XML or HTML"
	}
	return ""
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
