// Package bpe implements a byte-level Byte Pair Encoding tokenizer: training a merge table from text, and
// encoding/decoding text with it.
//
// Text is first split into chunks by a boundary pattern (see Chunker); merges never cross chunk
// boundaries. Every chunk starts as its raw bytes (ids 0-255), and each learned merge gets the next id
// from 256 on. Encoding applies merges in the order they were learned.
package bpe

import (
	"github.com/gomlx/go-bpe/tokenizers/api"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// MergeTable is the ordered list of merge rules: the k-th rule (0-indexed) produced token 256+k.
// It is append-only while training, and read-only afterwards.
type MergeTable struct {
	pairs []Pair
	ids   map[Pair]api.TokenID
}

func newMergeTable() *MergeTable {
	return &MergeTable{ids: make(map[Pair]api.TokenID)}
}

// add records a new merge rule and returns the id assigned to it.
func (m *MergeTable) add(pair Pair) api.TokenID {
	id := api.TokenID(api.NumByteTokens + len(m.pairs))
	m.pairs = append(m.pairs, pair)
	m.ids[pair] = id
	return id
}

// Len returns the number of merge rules.
func (m *MergeTable) Len() int {
	return len(m.pairs)
}

// Lookup returns the token id the pair merges into.
func (m *MergeTable) Lookup(pair Pair) (api.TokenID, bool) {
	id, ok := m.ids[pair]
	return id, ok
}

// Operands returns the pair merged into the given id. It returns false for byte tokens and unknown ids.
func (m *MergeTable) Operands(id api.TokenID) (Pair, bool) {
	if id < api.NumByteTokens || int(id-api.NumByteTokens) >= len(m.pairs) {
		return Pair{}, false
	}
	return m.pairs[id-api.NumByteTokens], true
}

// Pairs returns a copy of the merge rules in learned order.
func (m *MergeTable) Pairs() []Pair {
	return append([]Pair(nil), m.pairs...)
}

// apply merges ids down to a fixed point: it repeatedly takes the applicable merge with the lowest id,
// i.e. the one learned first, and applies it to all its non-overlapping occurrences.
func (m *MergeTable) apply(ids []api.TokenID) []api.TokenID {
	for len(ids) >= 2 {
		var (
			bestPair Pair
			bestID   api.TokenID
			found    bool
		)
		for i := 0; i+1 < len(ids); i++ {
			pair := Pair{ids[i], ids[i+1]}
			if id, ok := m.ids[pair]; ok && (!found || id < bestID) {
				bestPair, bestID, found = pair, id, true
			}
		}
		if !found {
			break
		}
		ids = mergeInPlace(ids, bestPair, bestID)
	}
	return ids
}

// vocabulary resolves the byte sequence of every token. Operands always have lower ids than the merge
// they form, so one pass in id order is enough.
func (m *MergeTable) vocabulary() [][]byte {
	vocab := make([][]byte, api.NumByteTokens+len(m.pairs))
	for b := range api.NumByteTokens {
		vocab[b] = []byte{byte(b)}
	}
	for k, pair := range m.pairs {
		left, right := vocab[pair.Left], vocab[pair.Right]
		merged := make([]byte, 0, len(left)+len(right))
		merged = append(merged, left...)
		merged = append(merged, right...)
		vocab[api.NumByteTokens+k] = merged
	}
	return vocab
}

// Tokenizer holds a trained merge table and the vocabulary derived from it.
// It is immutable and safe for concurrent use, so any number of independently trained tokenizers can
// coexist.
type Tokenizer struct {
	chunker *Chunker
	merges  *MergeTable
	vocab   [][]byte

	// cache memoizes encoded chunks, nil if disabled. Cached slices are never handed out directly.
	cache *lru.Cache
}

// Compile time assert that Tokenizer implements api.TokenizerWithSpans interface.
var _ api.TokenizerWithSpans = &Tokenizer{}

func newTokenizer(chunker *Chunker, merges *MergeTable) *Tokenizer {
	return &Tokenizer{
		chunker: chunker,
		merges:  merges,
		vocab:   merges.vocabulary(),
	}
}

// New creates a Tokenizer from merge rules given in learned order: rule k produces token 256+k.
// Each rule's operands must already be defined when it's added, otherwise ErrCorruptVocabulary is
// returned. An empty pattern selects GPT4Pattern.
func New(pattern string, merges []Pair) (*Tokenizer, error) {
	chunker, err := NewChunker(pattern)
	if err != nil {
		return nil, err
	}
	table := newMergeTable()
	for k, pair := range merges {
		next := api.TokenID(api.NumByteTokens + k)
		if pair.Left >= next || pair.Right >= next {
			return nil, errors.Wrapf(ErrCorruptVocabulary, "merge #%d (%d, %d) -> %d uses an undefined operand",
				k, pair.Left, pair.Right, next)
		}
		if prev, found := table.Lookup(pair); found {
			return nil, errors.Wrapf(ErrCorruptVocabulary, "merge #%d (%d, %d) duplicates token %d",
				k, pair.Left, pair.Right, prev)
		}
		table.add(pair)
	}
	return newTokenizer(chunker, table), nil
}

// WithCache returns a copy of the Tokenizer that memoizes the encoding of up to size distinct chunks.
// A size <= 0 returns a copy without cache.
func (t *Tokenizer) WithCache(size int) *Tokenizer {
	clone := *t
	clone.cache = nil
	if size > 0 {
		// lru.New only fails for non-positive sizes.
		clone.cache, _ = lru.New(size)
	}
	return &clone
}

// Pattern returns the boundary pattern used to split text into chunks.
func (t *Tokenizer) Pattern() string {
	return t.chunker.Pattern()
}

// Chunker returns the Chunker used by the Tokenizer.
func (t *Tokenizer) Chunker() *Chunker {
	return t.chunker
}

// Merges returns the merge rules in learned order.
func (t *Tokenizer) Merges() []Pair {
	return t.merges.Pairs()
}

// MergeTable returns the merge table. It must be treated as read-only.
func (t *Tokenizer) MergeTable() *MergeTable {
	return t.merges
}

// VocabSize returns the number of tokens: 256 byte tokens plus one per merge.
func (t *Tokenizer) VocabSize() int {
	return len(t.vocab)
}

// TokenBytes returns the byte sequence represented by id. The returned slice must not be modified.
func (t *Tokenizer) TokenBytes(id api.TokenID) ([]byte, bool) {
	if int64(id) >= int64(len(t.vocab)) {
		return nil, false
	}
	return t.vocab[id], true
}

// pieces splits text with the tokenizer's chunker.
// regexp2 only fails on match timeouts, and the chunker never sets one.
func (t *Tokenizer) pieces(text string) []Piece {
	pieces, err := t.chunker.Pieces(text)
	if err != nil {
		panic(errors.WithMessage(err, "boundary pattern failed without a timeout set"))
	}
	return pieces
}

// encodeChunk returns the tokens of one chunk. The result may be shared with the cache: don't modify it.
func (t *Tokenizer) encodeChunk(chunk string) []api.TokenID {
	if t.cache != nil {
		if cached, found := t.cache.Get(chunk); found {
			return cached.([]api.TokenID)
		}
	}
	ids := t.merges.apply(ByteTokens(chunk))
	if t.cache != nil {
		t.cache.Add(chunk, ids)
	}
	return ids
}

// Encode converts text to a sequence of token IDs.
//
// Each chunk is encoded on its own, applying the earliest-learned applicable merge until none applies,
// and the results are concatenated in order. The result only depends on the text and the merge table.
func (t *Tokenizer) Encode(text string) []api.TokenID {
	var ids []api.TokenID
	for _, p := range t.pieces(text) {
		ids = append(ids, t.encodeChunk(text[p.Start:p.End])...)
	}
	return ids
}

// EncodeWithSpans returns the tokens of text along with their byte spans.
// It implements api.TokenizerWithSpans.
func (t *Tokenizer) EncodeWithSpans(text string) api.EncodingResult {
	var result api.EncodingResult
	for _, p := range t.pieces(text) {
		pos := p.Start
		for _, id := range t.encodeChunk(text[p.Start:p.End]) {
			end := pos + len(t.vocab[id])
			result.IDs = append(result.IDs, id)
			result.Spans = append(result.Spans, api.TokenSpan{Start: pos, End: end})
			pos = end
		}
	}
	return result
}

// Decode concatenates the byte sequences of the given tokens.
// It returns an *InvalidTokenError, matching ErrInvalidToken, if an id has no vocabulary entry.
func (t *Tokenizer) Decode(ids []api.TokenID) ([]byte, error) {
	total := 0
	for i, id := range ids {
		if int64(id) >= int64(len(t.vocab)) {
			return nil, &InvalidTokenError{ID: id, Position: i}
		}
		total += len(t.vocab[id])
	}
	out := make([]byte, 0, total)
	for _, id := range ids {
		out = append(out, t.vocab[id]...)
	}
	return out, nil
}

// DecodeString is like Decode, but returns a string. Invalid UTF-8 in the decoded bytes is kept as is.
func (t *Tokenizer) DecodeString(ids []api.TokenID) (string, error) {
	out, err := t.Decode(ids)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
