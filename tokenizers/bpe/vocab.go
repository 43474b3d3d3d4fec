package bpe

import (
	"bytes"

	"github.com/gomlx/go-bpe/tokenizers/api"
	"github.com/pkg/errors"
)

// Rank is one vocabulary entry in interchange form: the bytes a token represents and its id.
type Rank struct {
	Bytes []byte
	ID    api.TokenID
}

// MergeableRanks exports the vocabulary ordered by id: the 256 byte tokens, then one entry per merge.
// The byte slices are copies, free to be modified by the caller.
func (t *Tokenizer) MergeableRanks() []Rank {
	ranks := make([]Rank, len(t.vocab))
	for id, b := range t.vocab {
		ranks[id] = Rank{Bytes: bytes.Clone(b), ID: api.TokenID(id)}
	}
	return ranks
}

// FromMergeableRanks imports a vocabulary exported by MergeableRanks (or read from a file), using the
// given boundary pattern (empty selects GPT4Pattern).
//
// The entries must come in ascending id order, starting with the 256 identity byte tokens. The operands
// of each merged token are recovered by encoding its bytes with the merges that precede it: this must
// yield exactly two tokens, otherwise the token could not have been learned by merging two lower ids.
// Any violation fails with ErrCorruptVocabulary.
func FromMergeableRanks(ranks []Rank, pattern string) (*Tokenizer, error) {
	chunker, err := NewChunker(pattern)
	if err != nil {
		return nil, err
	}
	if len(ranks) < api.NumByteTokens {
		return nil, errors.Wrapf(ErrCorruptVocabulary, "vocabulary has %d entries, at least the %d byte tokens are required",
			len(ranks), api.NumByteTokens)
	}
	for i, r := range ranks {
		if int64(r.ID) != int64(i) {
			return nil, errors.Wrapf(ErrCorruptVocabulary, "entry #%d has id %d: ids must be ascending and dense", i, r.ID)
		}
	}
	for b := range api.NumByteTokens {
		if len(ranks[b].Bytes) != 1 || ranks[b].Bytes[0] != byte(b) {
			return nil, errors.Wrapf(ErrCorruptVocabulary, "byte token %d is %q, want the single byte 0x%02x",
				b, ranks[b].Bytes, b)
		}
	}

	table := newMergeTable()
	for _, r := range ranks[api.NumByteTokens:] {
		if len(r.Bytes) < 2 {
			return nil, errors.Wrapf(ErrCorruptVocabulary, "merged token %d has %d bytes, at least 2 are required",
				r.ID, len(r.Bytes))
		}
		parts := table.apply(ByteTokens(string(r.Bytes)))
		if len(parts) != 2 {
			return nil, errors.Wrapf(ErrCorruptVocabulary,
				"token %d (%q) doesn't split into two previously defined tokens (got %d parts)", r.ID, r.Bytes, len(parts))
		}
		// parts can't be an already known pair: apply would have merged it.
		table.add(Pair{parts[0], parts[1]})
	}
	return newTokenizer(chunker, table), nil
}
