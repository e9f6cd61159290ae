package linecodec

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r *Reader) ([]string, []error) {
	t.Helper()
	var lines []string
	var errs []error
	for {
		line, err := r.ReadLine()
		if errors.Is(err, io.EOF) {
			return lines, errs
		}
		if err != nil {
			errs = append(errs, err)
			lines = append(lines, "<err>")
			continue
		}
		lines = append(lines, string(line))
	}
}

func TestReader_SkipsBlankLinesAndBOM(t *testing.T) {
	in := "\xEF\xBB\xBF{\"a\":1}\n\n   \n\t\r\n{\"b\":2}\r\n{\"c\":3}"
	lines, errs := readAll(t, NewReader(strings.NewReader(in), 0))
	require.Empty(t, errs)
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}, lines)
}

func TestReader_BOMOnlyAtStart(t *testing.T) {
	in := "{}\n\xEF\xBB\xBF{}\n"
	lines, _ := readAll(t, NewReader(strings.NewReader(in), 0))
	require.Len(t, lines, 2)
	assert.Equal(t, "\xEF\xBB\xBF{}", lines[1])
}

func TestReader_LineTooLongIsRejectedAndSkipped(t *testing.T) {
	long := strings.Repeat("x", 100)
	in := "short\n" + long + "\nafter\n"
	lines, errs := readAll(t, NewReader(strings.NewReader(in), 16))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrLineTooLong)
	assert.Equal(t, []string{"short", "<err>", "after"}, lines)
}

func TestReader_LineTooLongBeyondBuffer(t *testing.T) {
	long := strings.Repeat("y", 200*1024)
	in := long + "\nnext\n"
	lines, errs := readAll(t, NewReader(strings.NewReader(in), 1024))
	require.Len(t, errs, 1)
	assert.Equal(t, []string{"<err>", "next"}, lines)
}

func TestReader_ExactlyAtCap(t *testing.T) {
	exact := strings.Repeat("z", 16)
	lines, errs := readAll(t, NewReader(strings.NewReader(exact+"\n"+exact+"z\n"), 16))
	require.Len(t, errs, 1)
	assert.Equal(t, []string{exact, "<err>"}, lines)
}

func TestReader_CapExcludesCRAndBOM(t *testing.T) {
	exact := strings.Repeat("z", 16)
	in := "\xEF\xBB\xBF" + exact + "\r\n" + exact + "\r\n" + exact + "z\r\n" + exact + "zz\r\n"
	lines, errs := readAll(t, NewReader(strings.NewReader(in), 16))
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrLineTooLong)
	}
	assert.Equal(t, []string{exact, exact, "<err>", "<err>"}, lines)
}

func TestReader_LongLineAcrossBufferAllowed(t *testing.T) {
	long := strings.Repeat("q", 150*1024)
	lines, errs := readAll(t, NewReader(strings.NewReader(long+"\n"), 0))
	require.Empty(t, errs)
	require.Len(t, lines, 1)
	assert.Len(t, lines[0], len(long))
}

func TestReader_EmptyStream(t *testing.T) {
	_, err := NewReader(strings.NewReader(""), 0).ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriter_OneLinePerDocument(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.WriteLine([]byte(`{"k":"value"}`)))
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 50)
	for _, l := range lines {
		assert.Equal(t, `{"k":"value"}`, l)
	}
}
