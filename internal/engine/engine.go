// Package engine loads CSV files into an in-memory SQLite database and
// serves the columnar queries the content detectors run on. Values are
// stored as text; empty fields become NULL.
//
// SQLite identifiers cannot carry every header spelling, so Load
// sanitizes column names (and renames empty or digit-leading headers to
// column<i>). Structural checks must therefore never trust Column.Name
// for header identity; Column.Raw keeps the original spelling.
package engine

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "modernc.org/sqlite"
)

// DefaultSampleRows caps how many rows Load stores for content checks.
const DefaultSampleRows = 50_000

// Column describes one loaded column.
type Column struct {
	Name string // sanitized SQL identifier
	Raw  string // original header spelling from the file
	Type string // TEXT, INTEGER or REAL, inferred from stored values
}

// ColumnSummary carries the per-column statistics of Summarize.
type ColumnSummary struct {
	Column   Column
	NullPct  float64
	Distinct int
}

// Cell is one (column, value) pair from the stored sample. NULLs are
// skipped.
type Cell struct {
	Column string // raw header spelling
	Value  string
}

// Options tune a single Load.
type Options struct {
	Separator  rune // field separator; ',' when zero
	Lenient    bool // tolerate ragged rows and loose quoting
	SampleRows int  // rows stored for content checks; DefaultSampleRows when zero
}

// LoadError classifies a failed Load. Retryable failures (malformed
// records, invalid UTF-8) are worth another attempt with a more lenient
// mode or a re-encoded copy; the rest are terminal.
type LoadError struct {
	Retryable bool
	Err       error
}

func (e *LoadError) Error() string { return e.Err.Error() }
func (e *LoadError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a LoadError worth a fallback parse.
func IsRetryable(err error) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Retryable
}

// Engine is one in-memory analytics database. Not safe for concurrent
// use; a validation run owns exactly one.
type Engine struct {
	db       *sql.DB
	columns  []Column
	rowCount int // data rows in the whole file
	loaded   int // rows stored in the table
}

// New opens an empty in-memory database.
func New() (*Engine, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open analytics database: %w", err)
	}
	// An in-memory database exists per connection; more than one open
	// connection would scatter the data across empty databases.
	db.SetMaxOpenConns(1)
	return &Engine{db: db}, nil
}

// Close releases the database.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Columns returns the loaded schema in file order.
func (e *Engine) Columns() []Column { return e.columns }

// RowCount returns the number of data rows in the whole file, including
// rows beyond the stored sample.
func (e *Engine) RowCount() int { return e.rowCount }

// LoadedRows returns the number of rows stored for content checks.
func (e *Engine) LoadedRows() int { return e.loaded }

// ColumnByRaw finds a column by its original header spelling.
func (e *Engine) ColumnByRaw(raw string) (Column, bool) {
	for _, c := range e.columns {
		if c.Raw == raw {
			return c, true
		}
	}
	return Column{}, false
}

// Load parses the file and fills the data table. In strict mode every
// record must have the header's field count and default quoting; lenient
// mode pads or truncates ragged rows and accepts loose quotes. Both
// modes require valid UTF-8 so that encoding recovery stays a distinct
// fallback step.
func (e *Engine) Load(ctx context.Context, path string, opts Options) error {
	if opts.Separator == 0 {
		opts.Separator = ','
	}
	if opts.SampleRows <= 0 {
		opts.SampleRows = DefaultSampleRows
	}

	f, err := os.Open(path)
	if err != nil {
		return &LoadError{Err: fmt.Errorf("opening %s: %w", path, err)}
	}
	defer f.Close()

	rd := csv.NewReader(skipBOM(f))
	rd.Comma = opts.Separator
	if opts.Lenient {
		rd.LazyQuotes = true
		rd.FieldsPerRecord = -1
	}

	header, err := rd.Read()
	if err != nil {
		return classifyParseErr(fmt.Errorf("reading header: %w", err))
	}
	if err := requireUTF8(header, 0); err != nil {
		return err
	}

	if err := e.createTable(ctx, header); err != nil {
		return &LoadError{Err: err}
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return &LoadError{Err: fmt.Errorf("begin load: %w", err)}
	}
	defer tx.Rollback()

	insert, err := tx.PrepareContext(ctx, e.insertSQL())
	if err != nil {
		return &LoadError{Err: fmt.Errorf("prepare insert: %w", err)}
	}
	defer insert.Close()

	inference := newTypeInference(len(e.columns))
	for {
		record, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return classifyParseErr(fmt.Errorf("row %d: %w", e.rowCount+1, err))
		}
		if err := requireUTF8(record, e.rowCount+1); err != nil {
			return err
		}
		e.rowCount++
		if e.loaded >= opts.SampleRows {
			continue // keep counting, stop storing
		}

		values := make([]any, len(e.columns))
		for i := range e.columns {
			var cell string
			if i < len(record) {
				cell = record[i]
			}
			if cell == "" {
				values[i] = nil
				continue
			}
			values[i] = cell
		}
		if _, err := insert.ExecContext(ctx, values...); err != nil {
			return &LoadError{Err: fmt.Errorf("storing row %d: %w", e.rowCount, err)}
		}
		if e.loaded < typeInferenceRows {
			inference.observe(values)
		}
		e.loaded++
	}

	if err := tx.Commit(); err != nil {
		return &LoadError{Err: fmt.Errorf("commit load: %w", err)}
	}
	inference.apply(e.columns)
	return nil
}

// Summarize computes null rate and distinct count per column over the
// stored sample.
func (e *Engine) Summarize(ctx context.Context) ([]ColumnSummary, error) {
	out := make([]ColumnSummary, 0, len(e.columns))
	for _, c := range e.columns {
		var nonNull, distinct int
		q := fmt.Sprintf(`SELECT COUNT(%[1]s), COUNT(DISTINCT %[1]s) FROM data`, quoteIdent(c.Name))
		if err := e.db.QueryRowContext(ctx, q).Scan(&nonNull, &distinct); err != nil {
			return nil, fmt.Errorf("summarize %s: %w", c.Raw, err)
		}
		s := ColumnSummary{Column: c, Distinct: distinct}
		if e.loaded > 0 {
			s.NullPct = float64(e.loaded-nonNull) / float64(e.loaded) * 100
		}
		out = append(out, s)
	}
	return out, nil
}

// Cells returns the stored sample reshaped into (column, value) pairs,
// reading at most rowLimit rows. Column names are raw header spellings.
func (e *Engine) Cells(ctx context.Context, rowLimit int) ([]Cell, error) {
	idents := make([]string, len(e.columns))
	for i, c := range e.columns {
		idents[i] = quoteIdent(c.Name)
	}
	rows, err := e.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM data LIMIT ?", strings.Join(idents, ", ")), rowLimit)
	if err != nil {
		return nil, fmt.Errorf("sampling cells: %w", err)
	}
	defer rows.Close()

	var cells []Cell
	scan := make([]sql.NullString, len(e.columns))
	ptrs := make([]any, len(e.columns))
	for i := range scan {
		ptrs[i] = &scan[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning cells: %w", err)
		}
		for i, v := range scan {
			if v.Valid {
				cells = append(cells, Cell{Column: e.columns[i].Raw, Value: v.String})
			}
		}
	}
	return cells, rows.Err()
}

// ColumnValues returns up to limit non-null values of one column.
func (e *Engine) ColumnValues(ctx context.Context, col Column, limit int) ([]string, error) {
	return e.stringQuery(ctx, fmt.Sprintf(
		"SELECT %[1]s FROM data WHERE %[1]s IS NOT NULL LIMIT ?", quoteIdent(col.Name)), limit)
}

// DistinctValues returns up to limit distinct non-null values of one
// column.
func (e *Engine) DistinctValues(ctx context.Context, col Column, limit int) ([]string, error) {
	return e.stringQuery(ctx, fmt.Sprintf(
		"SELECT DISTINCT %[1]s FROM data WHERE %[1]s IS NOT NULL LIMIT ?", quoteIdent(col.Name)), limit)
}

func (e *Engine) stringQuery(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("column query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("column scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (e *Engine) createTable(ctx context.Context, header []string) error {
	e.columns = make([]Column, len(header))
	seen := map[string]struct{}{}
	defs := make([]string, len(header))
	for i, raw := range header {
		name := sanitizeHeader(raw, i, seen)
		e.columns[i] = Column{Name: name, Raw: raw, Type: "TEXT"}
		defs[i] = quoteIdent(name) + " TEXT"
	}
	_, err := e.db.ExecContext(ctx, "CREATE TABLE data ("+strings.Join(defs, ", ")+")")
	if err != nil {
		return fmt.Errorf("create data table: %w", err)
	}
	return nil
}

func (e *Engine) insertSQL() string {
	idents := make([]string, len(e.columns))
	marks := make([]string, len(e.columns))
	for i, c := range e.columns {
		idents[i] = quoteIdent(c.Name)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO data (%s) VALUES (%s)",
		strings.Join(idents, ", "), strings.Join(marks, ", "))
}

// sanitizeHeader turns a raw header into a safe SQL identifier. This is
// the renaming the structural checks must not see: '2020' becomes
// 'column1', 'unit price' becomes 'unit_price'.
func sanitizeHeader(raw string, index int, seen map[string]struct{}) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = fmt.Sprintf("column%d", index)
	}
	base := name
	for n := 1; ; n++ {
		if _, dup := seen[name]; !dup {
			break
		}
		name = fmt.Sprintf("%s_%d", base, n)
	}
	seen[name] = struct{}{}
	return name
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

func requireUTF8(record []string, row int) error {
	for _, field := range record {
		if !utf8.ValidString(field) {
			return &LoadError{
				Retryable: true,
				Err:       fmt.Errorf("row %d: invalid UTF-8", row),
			}
		}
	}
	return nil
}

func classifyParseErr(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &LoadError{Retryable: true, Err: err}
	}
	return &LoadError{Err: err}
}

// skipBOM strips a UTF-8 byte-order mark so it never leaks into the
// first header name.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if peek, err := br.Peek(3); err == nil && peek[0] == 0xEF && peek[1] == 0xBB && peek[2] == 0xBF {
		br.Discard(3)
	}
	return br
}

const typeInferenceRows = 1000

type typeInference struct {
	nonNull []int
	intOK   []bool
	realOK  []bool
}

func newTypeInference(cols int) *typeInference {
	t := &typeInference{
		nonNull: make([]int, cols),
		intOK:   make([]bool, cols),
		realOK:  make([]bool, cols),
	}
	for i := 0; i < cols; i++ {
		t.intOK[i], t.realOK[i] = true, true
	}
	return t
}

func (t *typeInference) observe(values []any) {
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		t.nonNull[i]++
		if t.intOK[i] {
			if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
				t.intOK[i] = false
			}
		}
		if t.realOK[i] {
			if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
				t.realOK[i] = false
			}
		}
	}
}

func (t *typeInference) apply(columns []Column) {
	for i := range columns {
		switch {
		case t.nonNull[i] == 0:
		case t.intOK[i]:
			columns[i].Type = "INTEGER"
		case t.realOK[i]:
			columns[i].Type = "REAL"
		}
	}
}
