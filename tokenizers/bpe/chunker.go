package bpe

import (
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"
)

// GPT4Pattern is the default boundary pattern, the GPT-4 split pattern.
// regexp2 has no possessive quantifiers, so they are written as atomic groups.
//
// Alternatives, first match wins:
//
//   - '(?i:[sdmt]|ll|ve|re): contraction suffixes.
//   - (?>[^\r\n\p{L}\p{N}]?)\p{L}+: a run of letters, optionally preceded by one non-letter/number.
//   - \p{N}{1,3}: at most 3 digits, so long numbers are split.
//   - ' ?(?>[^\s\p{L}\p{N}]+)[\r\n]*': a symbol run with an optional leading space and trailing newlines.
//   - \s*[\r\n]: whitespace ending in a newline.
//   - \s+(?!\S): whitespace not followed by a word, so the word keeps its leading space.
//   - \s+: any remaining whitespace.
const GPT4Pattern = `'(?i:[sdmt]|ll|ve|re)|(?>[^\r\n\p{L}\p{N}]?)\p{L}+|\p{N}{1,3}| ?(?>[^\s\p{L}\p{N}]+)[\r\n]*|\s*[\r\n]|\s+(?!\S)|\s+`

// Piece is the byte range [Start, End) of one chunk in the text it was split from.
type Piece struct {
	Start, End int
}

// Chunker splits text into chunks that merges are never allowed to cross.
// It is safe for concurrent use.
type Chunker struct {
	pattern string
	re      *regexp2.Regexp
}

// NewChunker compiles the boundary pattern. An empty pattern selects GPT4Pattern.
func NewChunker(pattern string) (*Chunker, error) {
	if pattern == "" {
		pattern = GPT4Pattern
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, errors.Wrapf(ErrConfiguration, "can't compile boundary pattern %q: %v", pattern, err)
	}
	return &Chunker{pattern: pattern, re: re}, nil
}

// Pattern returns the boundary pattern used by the Chunker.
func (c *Chunker) Pattern() string {
	return c.pattern
}

// Pieces returns the byte ranges of the chunks of text, in order.
//
// Text not matched by the pattern is skipped. GPT4Pattern matches every character, so with it the pieces
// tile the whole text.
func (c *Chunker) Pieces(text string) ([]Piece, error) {
	if text == "" {
		return nil, nil
	}
	var pieces []Piece

	// regexp2 reports positions in runes. Invalid UTF-8 bytes are one rune each for both regexp2 and
	// utf8.DecodeRuneInString, so walking the text keeps both cursors aligned.
	runePos, bytePos := 0, 0
	advance := func(target int) {
		for runePos < target && bytePos < len(text) {
			_, size := utf8.DecodeRuneInString(text[bytePos:])
			bytePos += size
			runePos++
		}
	}

	m, err := c.re.FindStringMatch(text)
	for {
		if err != nil {
			return nil, errors.Wrapf(err, "while splitting text at byte %d", bytePos)
		}
		if m == nil {
			break
		}
		advance(m.Index)
		start := bytePos
		advance(m.Index + m.Length)
		if bytePos > start {
			pieces = append(pieces, Piece{Start: start, End: bytePos})
		}
		m, err = c.re.FindNextMatch(m)
	}
	return pieces, nil
}

// Split returns the chunks of text as strings, in order.
func (c *Chunker) Split(text string) ([]string, error) {
	pieces, err := c.Pieces(text)
	if err != nil {
		return nil, err
	}
	chunks := make([]string, len(pieces))
	for i, p := range pieces {
		chunks[i] = text[p.Start:p.End]
	}
	return chunks, nil
}
