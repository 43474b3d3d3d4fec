// Package tiktokenfile reads and writes vocabularies in the "tiktoken" text format, one token per line:
//
//	<base64 of the token bytes> <token id>
//
// It's the format used by OpenAI's tiktoken (e.g. cl100k_base.tiktoken) and by most BPE tooling, so
// vocabularies trained here can be loaded by other tokenizers and vice versa.
package tiktokenfile

import (
	"bufio"
	"context"
	"encoding/base64"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/go-bpe/internal/files"
	"github.com/gomlx/go-bpe/tokenizers/api"
	"github.com/gomlx/go-bpe/tokenizers/bpe"
	"github.com/pkg/errors"
	"github.com/pkoukk/tiktoken-go"
	"k8s.io/klog/v2"
)

// maxLineSize is large enough for tokens of tens of KB.
const maxLineSize = 1 << 20

// Encode writes ranks to w, one "base64 id" line per entry.
func Encode(w io.Writer, ranks []bpe.Rank) error {
	buf := make([]byte, 0, 64)
	for _, r := range ranks {
		buf = base64.StdEncoding.AppendEncode(buf[:0], r.Bytes)
		buf = append(buf, ' ')
		buf = strconv.AppendUint(buf, uint64(r.ID), 10)
		buf = append(buf, '\n')
		if _, err := w.Write(buf); err != nil {
			return errors.Wrap(err, "writing vocabulary entry")
		}
	}
	return nil
}

// Parse reads entries written by Encode, in file order. Empty lines are skipped.
// Malformed lines fail with bpe.ErrCorruptVocabulary; the id order is checked by bpe.FromMergeableRanks.
func Parse(r io.Reader) ([]bpe.Rank, error) {
	var ranks []bpe.Rank
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, errors.Wrapf(bpe.ErrCorruptVocabulary, "line %d: want \"<base64> <id>\", got %q", lineNum, line)
		}
		tokenBytes, err := base64.StdEncoding.DecodeString(fields[0])
		if err != nil {
			return nil, errors.Wrapf(bpe.ErrCorruptVocabulary, "line %d: invalid base64 %q: %v", lineNum, fields[0], err)
		}
		id, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(bpe.ErrCorruptVocabulary, "line %d: invalid token id %q: %v", lineNum, fields[1], err)
		}
		ranks = append(ranks, bpe.Rank{Bytes: tokenBytes, ID: api.TokenID(id)})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading vocabulary after line %d", lineNum)
	}
	return ranks, nil
}

// PatternPath returns the path of the file holding the boundary pattern saved along with the vocabulary
// at filePath. The tiktoken format has no room for it.
func PatternPath(filePath string) string {
	return filePath + ".pattern"
}

// Save writes the vocabulary of tok to filePath, and its boundary pattern to PatternPath(filePath).
// Files are replaced atomically, and concurrent writers of the same path, in this or other processes,
// are serialized.
func Save(ctx context.Context, filePath string, tok *bpe.Tokenizer) error {
	ranks := tok.MergeableRanks()
	err := files.WriteAtomically(ctx, filePath, func(w io.Writer) error {
		return Encode(w, ranks)
	})
	if err != nil {
		return err
	}
	err = files.WriteAtomically(ctx, PatternPath(filePath), func(w io.Writer) error {
		_, err := io.WriteString(w, tok.Pattern()+"\n")
		return err
	})
	if err != nil {
		return err
	}
	klog.V(1).Infof("tiktokenfile: saved %d tokens to %q", len(ranks), filePath)
	return nil
}

// Load reads a vocabulary file and creates the Tokenizer for it, using the given boundary pattern.
// An empty pattern selects the one saved in PatternPath(filePath) if that file exists, and
// bpe.GPT4Pattern otherwise.
func Load(filePath, pattern string) (*bpe.Tokenizer, error) {
	if pattern == "" {
		var err error
		if pattern, err = LoadPattern(filePath); err != nil {
			return nil, err
		}
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening vocabulary file %q", filePath)
	}
	defer func() { _ = f.Close() }()
	ranks, err := Parse(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "while parsing %q", filePath)
	}
	tok, err := bpe.FromMergeableRanks(ranks, pattern)
	if err != nil {
		return nil, errors.WithMessagef(err, "while loading %q", filePath)
	}
	klog.V(1).Infof("tiktokenfile: loaded %d tokens from %q", tok.VocabSize(), filePath)
	return tok, nil
}

// LoadPattern returns the boundary pattern saved with the vocabulary at filePath, or "" if there is none.
func LoadPattern(filePath string) (string, error) {
	patternPath := PatternPath(filePath)
	if !files.Exists(patternPath) {
		return "", nil
	}
	contents, err := os.ReadFile(patternPath)
	if err != nil {
		return "", errors.Wrapf(err, "reading boundary pattern %q", patternPath)
	}
	return strings.TrimSuffix(string(contents), "\n"), nil
}

// NewTiktoken builds a github.com/pkoukk/tiktoken-go encoder holding the same vocabulary and pattern as
// tok, without special tokens. Use its EncodeOrdinary and Decode methods.
func NewTiktoken(tok *bpe.Tokenizer, name string) (*tiktoken.Tiktoken, error) {
	mergeableRanks := make(map[string]int, tok.VocabSize())
	for _, r := range tok.MergeableRanks() {
		mergeableRanks[string(r.Bytes)] = int(r.ID)
	}
	specialTokens := map[string]int{}
	core, err := tiktoken.NewCoreBPE(mergeableRanks, specialTokens, tok.Pattern())
	if err != nil {
		return nil, errors.Wrapf(err, "creating tiktoken encoder %q", name)
	}
	encoding := &tiktoken.Encoding{
		Name:           name,
		PatStr:         tok.Pattern(),
		MergeableRanks: mergeableRanks,
		SpecialTokens:  specialTokens,
		ExplicitNVocab: tok.VocabSize(),
	}
	return tiktoken.NewTiktoken(core, encoding, map[string]any{}), nil
}
