package probe

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestDetectEncoding_UTF8(t *testing.T) {
	path := writeFile(t, "utf8.csv", []byte("città,popolazione\nMilano,1366180\n"))

	enc, conf := DetectEncoding(path)
	assert.Equal(t, "utf-8", enc)
	assert.Equal(t, 100, conf)
}

func TestDetectEncoding_ASCII(t *testing.T) {
	path := writeFile(t, "ascii.csv", []byte("id,value\n1,2\n"))

	enc, _ := DetectEncoding(path)
	assert.Equal(t, "utf-8", enc, "plain ASCII is valid UTF-8")
}

func TestDetectEncoding_Latin1(t *testing.T) {
	// "città,però" in ISO-8859-1: 0xE0 and 0xF2 are invalid UTF-8
	data := []byte("citt\xe0,per\xf2,regione\nMilano,x,Lombardia\nTorino,y,Piemonte\n")
	path := writeFile(t, "latin1.csv", data)

	enc, conf := DetectEncoding(path)
	assert.NotEqual(t, "utf-8", enc)
	assert.NotEqual(t, "unknown", enc)
	assert.Greater(t, conf, 0)
}

func TestDetectEncoding_MissingFile(t *testing.T) {
	enc, conf := DetectEncoding(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Equal(t, "unknown", enc)
	assert.Zero(t, conf)
}

func TestHasBOM(t *testing.T) {
	with := writeFile(t, "bom.csv", []byte("\xef\xbb\xbfid,value\n1,2\n"))
	without := writeFile(t, "nobom.csv", []byte("id,value\n1,2\n"))

	assert.True(t, HasBOM(with))
	assert.False(t, HasBOM(without))
}

func TestHasCRLF(t *testing.T) {
	crlf := writeFile(t, "crlf.csv", []byte("id,value\r\n1,2\r\n"))
	lf := writeFile(t, "lf.csv", []byte("id,value\n1,2\n"))

	assert.True(t, HasCRLF(crlf))
	assert.False(t, HasCRLF(lf))
}

func TestSniffSeparator(t *testing.T) {
	tests := []struct {
		name string
		data string
		want rune
	}{
		{"comma", "a,b,c\n1,2,3\n", ','},
		{"semicolon", "a;b;c\n1;2;3\n", ';'},
		{"tab", "a\tb\tc\n1\t2\t3\n", '\t'},
		{"pipe", "a|b|c\n1|2|3\n", '|'},
		{"quoted separators ignored", `a;"x,y,z,w";c` + "\n", ';'},
		{"single column defaults to comma", "value\n1\n", ','},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "sniff.csv", []byte(tt.data))
			assert.Equal(t, tt.want, SniffSeparator(path))
		})
	}
}

func TestRawHeaders(t *testing.T) {
	path := writeFile(t, "h.csv", []byte("\xef\xbb\xbfid,2019,2020,Valore Totale\n1,2,3,4\n"))

	got := RawHeaders(path, ',')
	assert.Equal(t, []string{"id", "2019", "2020", "Valore Totale"}, got, "BOM skipped, digit headers preserved")
}

func TestRawHeaders_Semicolon(t *testing.T) {
	path := writeFile(t, "h.csv", []byte("codice istat;comune\n001;Torino\n"))

	got := RawHeaders(path, ';')
	assert.Equal(t, []string{"codice istat", "comune"}, got)
}

func TestHasHeader(t *testing.T) {
	header := writeFile(t, "h.csv", []byte("region,population\nLombardia,10000000\n"))
	headerless := writeFile(t, "nh.csv", []byte("1,2,3\n4,5,6\n7,8,9\n"))
	years := writeFile(t, "y.csv", []byte("id,2019,2020,2021,2022\nIT,1,2,3,4\n"))

	assert.True(t, HasHeader(header, ','))
	assert.False(t, HasHeader(headerless, ','))
	assert.False(t, HasHeader(years, ','), "year headers look numeric; retracted later by wide-format detection")
}

func TestHasHeader_SingleRow(t *testing.T) {
	path := writeFile(t, "one.csv", []byte("a,b,c\n"))
	assert.True(t, HasHeader(path, ','), "nothing to compare against, assume header")
}

func TestHeadAndTailLines(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("id,value\r\n")
	for i := 0; i < 50; i++ {
		sb.WriteString("1,2\r\n")
	}
	sb.WriteString("Totale,100\r\n")
	path := writeFile(t, "lines.csv", []byte(sb.String()))

	head := HeadLines(path, 3)
	require.Len(t, head, 3)
	assert.Equal(t, "id,value", head[0], "CR stripped")

	tail := TailLines(path, 2)
	require.Len(t, tail, 2)
	assert.Equal(t, "Totale,100", tail[1])
}

func TestTailLines_ShortFile(t *testing.T) {
	path := writeFile(t, "short.csv", []byte("a,b\n1,2\n"))

	tail := TailLines(path, 10)
	assert.Equal(t, []string{"a,b", "1,2"}, tail)
}

func TestReencode_Latin1(t *testing.T) {
	data := []byte("citt\xe0,popolazione\nForl\xec,118000\n")
	path := writeFile(t, "latin1.csv", data)

	copyPath, err := Reencode(path, "ISO-8859-1")
	require.NoError(t, err)
	defer os.Remove(copyPath)

	out, err := os.ReadFile(copyPath)
	require.NoError(t, err)
	assert.Equal(t, "città,popolazione\nForlì,118000\n", string(out))
}

func TestReencode_UTF16LE_StripsBOM(t *testing.T) {
	// "a,b\n1,2\n" in UTF-16LE with BOM
	text := "a,b\n1,2\n"
	data := []byte{0xFF, 0xFE}
	for _, r := range text {
		data = append(data, byte(r), 0x00)
	}
	path := writeFile(t, "utf16.csv", data)

	copyPath, err := Reencode(path, "UTF-16LE")
	require.NoError(t, err)
	defer os.Remove(copyPath)

	out, err := os.ReadFile(copyPath)
	require.NoError(t, err)
	assert.Equal(t, text, string(out))
}

func TestReencode_UnknownEncoding(t *testing.T) {
	path := writeFile(t, "x.csv", []byte("a,b\n"))

	_, err := Reencode(path, "no-such-encoding")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported encoding")
}
