package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gomlx/go-bpe/tokenizers/bpe"
	"github.com/gomlx/go-bpe/tokenizers/bytelevel"
	"github.com/gomlx/go-bpe/tokenizers/tiktokenfile"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with args and returns its output.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNewRootCmd_HasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()
	var names []string
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	for _, name := range []string{"train", "encode", "decode", "vocab"} {
		assert.Contains(t, names, name)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("v"), "klog verbosity flag")
}

func TestTrainEncodeDecode(t *testing.T) {
	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "corpus.txt")
	text := strings.Repeat("hello world, hello tokenizer. the world is made of tokens.\n", 30)
	require.NoError(t, os.WriteFile(corpusPath, []byte(text), 0644))
	vocabPath := filepath.Join(dir, "vocab.tiktoken")
	common := []string{"--vocab-path", vocabPath}

	out, err := run(t, "", append([]string{"train", "--train-vocab-size", "280", corpusPath}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Training report")
	assert.Contains(t, out, "280 of 280 requested")
	assert.FileExists(t, vocabPath)

	out, err = run(t, "", append([]string{"encode", "hello", "world"}, common...)...)
	require.NoError(t, err)
	ids := strings.TrimSpace(out)
	assert.NotEmpty(t, ids)
	assert.Less(t, len(strings.Fields(ids)), len("hello world"))

	out, err = run(t, "", append([]string{"decode", ids}, common...)...)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)

	// Text from stdin, ids as comma separated list.
	out, err = run(t, "the world", append([]string{"encode"}, common...)...)
	require.NoError(t, err)
	commaIDs := strings.Join(strings.Fields(out), ",")
	out, err = run(t, "", append([]string{"decode", commaIDs}, common...)...)
	require.NoError(t, err)
	assert.Equal(t, "the world", out)

	out, err = run(t, "", append([]string{"encode", "--spans", "hello world"}, common...)...)
	require.NoError(t, err)
	var rendered strings.Builder
	for _, line := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
		fields := strings.Split(line, "\t")
		require.Len(t, fields, 4, "line %q", line)
		rendered.WriteString(fields[3])
	}
	assert.Equal(t, bytelevel.Render([]byte("hello world")), rendered.String())

	out, err = run(t, "", append([]string{"vocab", "--limit", "5"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "MERGE")
	assert.Contains(t, out, "256")
	assert.NotContains(t, out, "261")

	_, err = run(t, "", append([]string{"decode", "99999"}, common...)...)
	require.Error(t, err)
	assert.True(t, errors.Is(err, bpe.ErrInvalidToken))

	_, err = run(t, "", append([]string{"decode", "abc"}, common...)...)
	assert.Error(t, err)
}

func TestTrain_SavesPattern(t *testing.T) {
	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "corpus.txt")
	require.NoError(t, os.WriteFile(corpusPath, []byte(strings.Repeat("hello world\n", 30)), 0644))
	vocabPath := filepath.Join(dir, "vocab.tiktoken")

	// The whole segment is one chunk, so merges may cross spaces.
	const pattern = `[\s\S]+`
	_, err := run(t, "", "train", "--vocab-path", vocabPath, "--train-vocab-size", "270", "--train-pattern", pattern, corpusPath)
	require.NoError(t, err)
	saved, err := os.ReadFile(tiktokenfile.PatternPath(vocabPath))
	require.NoError(t, err)
	assert.Equal(t, pattern+"\n", string(saved))

	// encode doesn't need the pattern again.
	out, err := run(t, "", "encode", "--vocab-path", vocabPath, "hello world")
	require.NoError(t, err)
	tok, err := tiktokenfile.Load(vocabPath, pattern)
	require.NoError(t, err)
	var want []string
	for _, id := range tok.Encode("hello world") {
		want = append(want, strconv.Itoa(int(id)))
	}
	assert.Equal(t, want, strings.Fields(out))
}

func TestTrain_Errors(t *testing.T) {
	dir := t.TempDir()
	vocabPath := filepath.Join(dir, "vocab.tiktoken")

	_, err := run(t, "", "train", "--vocab-path", vocabPath)
	assert.Error(t, err, "files are required")

	_, err = run(t, "", "train", "--vocab-path", vocabPath, filepath.Join(dir, "missing.txt"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.NoFileExists(t, vocabPath)

	_, err = run(t, "", "train", "--vocab-path", vocabPath, "--train-vocab-size", "10", filepath.Join(dir, "missing.txt"))
	assert.True(t, errors.Is(err, bpe.ErrConfiguration))

	_, err = run(t, "", "encode", "--vocab-path", vocabPath, "hello")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1,2", "3 4", "5"})
	require.NoError(t, err)
	assert.Len(t, ids, 5)
	assert.EqualValues(t, 4, ids[3])

	_, err = parseIDs([]string{"-1"})
	assert.Error(t, err)
}
