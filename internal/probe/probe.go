// Package probe inspects raw file bytes: encoding, BOM, line endings,
// separator, header layout. Everything here reads bounded windows and
// never loads whole files. Structural checks must use these raw-byte
// views because the analytics engine sanitizes column names and would
// hide the very defects being searched for.
package probe

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

const probeWindow = 64 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectEncoding names the character encoding of the first 64 KiB and a
// confidence percentage. Valid UTF-8 short-circuits the statistical
// detector. Returns ("unknown", 0) when nothing can be determined.
func DetectEncoding(path string) (string, int) {
	raw, atCap := readWindow(path, probeWindow)
	if raw == nil {
		return "unknown", 0
	}
	if validUTF8Window(raw, atCap) {
		return "utf-8", 100
	}
	best, err := chardet.NewTextDetector().DetectBest(raw)
	if err != nil || best == nil || best.Charset == "" {
		return "unknown", 0
	}
	return strings.ToLower(best.Charset), best.Confidence
}

// validUTF8Window tolerates a multibyte rune split at the window boundary.
func validUTF8Window(raw []byte, atCap bool) bool {
	if utf8.Valid(raw) {
		return true
	}
	if !atCap {
		return false
	}
	for i := 1; i <= utf8.UTFMax-1 && i < len(raw); i++ {
		if utf8.Valid(raw[:len(raw)-i]) {
			return true
		}
	}
	return false
}

// HasBOM reports whether the file starts with a UTF-8 byte-order mark.
func HasBOM(path string) bool {
	raw, _ := readWindow(path, 3)
	return bytes.Equal(raw, utf8BOM)
}

// HasCRLF reports whether Windows line endings appear in the first 16 KiB.
func HasCRLF(path string) bool {
	raw, _ := readWindow(path, 16*1024)
	return bytes.Contains(raw, []byte("\r\n"))
}

// SniffSeparator picks the field separator by counting candidate bytes
// outside quotes on the first line. Comma wins ties.
func SniffSeparator(path string) rune {
	line := firstLineBytes(path)
	counts := map[byte]int{}
	inQuotes := false
	for _, b := range line {
		switch {
		case b == '"':
			inQuotes = !inQuotes
		case inQuotes:
		case b == ',' || b == ';' || b == '\t' || b == '|':
			counts[b]++
		}
	}
	best, bestN := byte(','), 0
	for _, c := range []byte{',', ';', '\t', '|'} {
		if counts[c] > bestN {
			best, bestN = c, counts[c]
		}
	}
	return rune(best)
}

// RawHeaders reads column names directly from the file's first line,
// skipping any BOM. These are the original spellings, before any engine
// renaming. Returns nil when the line cannot be split.
func RawHeaders(path string, sep rune) []string {
	line := firstLineBytes(path)
	if len(line) == 0 {
		return nil
	}
	rd := csv.NewReader(strings.NewReader(strings.ToValidUTF8(string(line), "�")))
	rd.Comma = sep
	rd.LazyQuotes = true
	rec, err := rd.Read()
	if err != nil {
		return nil
	}
	return rec
}

// HasHeader reports whether the first row looks like a header. A row
// where at least half the cells are numeric or empty, in a file with
// more rows below it, is treated as data. Year headers like "2020" are
// deliberately counted as numeric; wide-format detection retracts the
// resulting false positive.
func HasHeader(path string, sep rune) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	rd := csv.NewReader(skipBOMReader(f))
	rd.Comma = sep
	rd.LazyQuotes = true
	rd.FieldsPerRecord = -1

	first, err := rd.Read()
	if err != nil || len(first) == 0 {
		return true
	}
	dataRows := 0
	for dataRows < 20 {
		if _, err := rd.Read(); err != nil {
			break
		}
		dataRows++
	}
	if dataRows == 0 {
		return true
	}
	dataLike := 0
	for _, cell := range first {
		if cellLooksNumeric(cell) {
			dataLike++
		}
	}
	return dataLike*2 < len(first)
}

func cellLooksNumeric(cell string) bool {
	s := strings.TrimSpace(cell)
	if s == "" {
		return true
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// HeadLines returns up to n leading lines, trailing CR stripped.
func HeadLines(path string, n int) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	sc := bufio.NewScanner(skipBOMReader(f))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	for len(lines) < n && sc.Scan() {
		lines = append(lines, strings.TrimSuffix(sc.Text(), "\r"))
	}
	return lines
}

// TailLines returns up to n final lines, read from a bounded window at
// the end of the file.
func TailLines(path string, n int) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil
	}
	offset := info.Size() - probeWindow
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil
	}
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil
	}
	text := strings.ToValidUTF8(string(raw), "�")
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if offset > 0 && len(lines) > 0 {
		// first line of the window is likely partial
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// Reencode writes a UTF-8 copy of path decoded from the named encoding
// into a temporary file and returns its path. A leading U+FEFF is
// dropped. The caller owns deletion of the copy.
func Reencode(path, encoding string) (string, error) {
	enc, err := ianaindex.IANA.Encoding(encoding)
	if err != nil || enc == nil {
		return "", fmt.Errorf("unsupported encoding %q", encoding)
	}

	in, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer in.Close()

	out, err := os.CreateTemp("", "odq-reencoded-*.csv")
	if err != nil {
		return "", fmt.Errorf("creating temp copy: %w", err)
	}

	br := bufio.NewReader(transform.NewReader(in, enc.NewDecoder()))
	if r, _, err := br.ReadRune(); err == nil {
		if r != '\uFEFF' {
			if err := br.UnreadRune(); err != nil {
				out.Close()
				os.Remove(out.Name())
				return "", fmt.Errorf("rewinding decoded stream: %w", err)
			}
		}
	}
	if _, err := io.Copy(out, br); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("re-encoding from %s: %w", encoding, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("closing temp copy: %w", err)
	}
	return out.Name(), nil
}

// readWindow reads up to limit bytes and reports whether the limit was
// reached. Returns nil on any error.
func readWindow(path string, limit int) ([]byte, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	raw := make([]byte, limit)
	n, err := io.ReadFull(f, raw)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, false
	}
	return raw[:n], n == limit
}

func firstLineBytes(path string) []byte {
	raw, _ := readWindow(path, probeWindow)
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		raw = raw[:i]
	}
	return bytes.TrimSuffix(raw, []byte("\r"))
}

func skipBOMReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if peek, err := br.Peek(3); err == nil && bytes.Equal(peek, utf8BOM) {
		br.Discard(3)
	}
	return br
}
