package corpus

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/gomlx/go-bpe/tokenizers/bpe"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestSegments_TextFiles(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "a.txt", "line one\nline two\nline three\n")
	second := writeFile(t, dir, "b.txt", "no trailing newline")

	c, err := New([]string{first, second}, Options{SegmentSize: 10})
	require.NoError(t, err)
	segments := slices.Collect(c.Segments())
	require.NoError(t, c.Err())
	assert.Equal(t, []string{"line one\nline two\n", "line three\n", "no trailing newline"}, segments)

	n, size := c.Stats()
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(len("line one\nline two\nline three\n")+len("no trailing newline")), size)

	// Default segment size keeps the small file whole, and the corpus can be read again.
	c, err = New([]string{first}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"line one\nline two\nline three\n"}, slices.Collect(c.Segments()))
	assert.Equal(t, []string{"line one\nline two\nline three\n"}, slices.Collect(c.Segments()))
}

func TestSegments_EmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.txt", "")
	c, err := New([]string{path}, Options{})
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(c.Segments()))
	assert.NoError(t, c.Err())
}

func TestSegments_Parquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.parquet")
	rows := []Row{{Text: "first document"}, {Text: "second document"}, {Text: ""}}
	require.NoError(t, parquet.WriteFile(path, rows))

	c, err := New([]string{path}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first document", "second document", ""}, slices.Collect(c.Segments()))
	require.NoError(t, c.Err())
}

func TestSegments_Normalize(t *testing.T) {
	path := writeFile(t, t.TempDir(), "n.txt", "café ﬁne")

	c, err := New([]string{path}, Options{Normalize: NormalizeNFC})
	require.NoError(t, err)
	assert.Equal(t, []string{"café ﬁne"}, slices.Collect(c.Segments()))

	c, err = New([]string{path}, Options{Normalize: "NFKC"})
	require.NoError(t, err)
	assert.Equal(t, []string{"café fine"}, slices.Collect(c.Segments()))

	_, err = New([]string{path}, Options{Normalize: "nfx"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, bpe.ErrConfiguration))

	got, err := Normalize("ﬁ", NormalizeNone)
	require.NoError(t, err)
	assert.Equal(t, "ﬁ", got)
	got, err = Normalize("ﬁ", NormalizeNFKC)
	require.NoError(t, err)
	assert.Equal(t, "fi", got)
}

func TestSegments_Errors(t *testing.T) {
	dir := t.TempDir()
	ok := writeFile(t, dir, "ok.txt", "hello")
	c, err := New([]string{ok, filepath.Join(dir, "missing.txt")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, slices.Collect(c.Segments()))
	require.Error(t, c.Err())
	assert.True(t, errors.Is(c.Err(), os.ErrNotExist))

	notParquet := writeFile(t, dir, "bad.parquet", "this is not parquet")
	c, err = New([]string{notParquet}, Options{})
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(c.Segments()))
	assert.Error(t, c.Err())
}

func TestSegments_EarlyStop(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "lines.txt", "a\nb\nc\n")
	c, err := New([]string{path, path}, Options{SegmentSize: 1})
	require.NoError(t, err)
	var got []string
	for segment := range c.Segments() {
		got = append(got, segment)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a\n", "b\n"}, got)
	assert.NoError(t, c.Err())
}

func TestTrainFromCorpus(t *testing.T) {
	text := strings.Repeat("the cat sat on the mat\n", 20)
	path := writeFile(t, t.TempDir(), "cats.txt", text)
	c, err := New([]string{path}, Options{SegmentSize: 64})
	require.NoError(t, err)

	tok, report, err := bpe.NewTrainer().TrainFromIterator(c.Segments(), 270)
	require.NoError(t, err)
	require.NoError(t, c.Err())
	// The few distinct words run out of pairs before 270 tokens.
	assert.Equal(t, bpe.StopNoMorePairs, report.Stop)
	assert.Equal(t, 256+len(tok.Merges()), report.VocabSize)
	assert.Less(t, report.VocabSize, 270)

	fromStrings, _, err := bpe.NewTrainer().TrainFromIterator(Strings(slices.Collect(c.Segments())...), 270)
	require.NoError(t, err)
	assert.Equal(t, tok.Merges(), fromStrings.Merges())

	decoded, err := tok.DecodeString(tok.Encode(text))
	require.NoError(t, err)
	assert.Equal(t, text, decoded)
}
