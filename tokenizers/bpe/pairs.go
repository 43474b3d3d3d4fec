package bpe

import (
	"github.com/gomlx/go-bpe/tokenizers/api"
	"github.com/sourcegraph/conc/pool"
)

// Pair is an ordered pair of adjacent token ids, the key of both pair counts and merge rules.
type Pair struct {
	Left, Right api.TokenID
}

// Less orders pairs lexicographically, by Left then Right.
func (p Pair) Less(other Pair) bool {
	if p.Left != other.Left {
		return p.Left < other.Left
	}
	return p.Right < other.Right
}

// ByteTokens maps a chunk to its initial token sequence: one token per byte, with the byte value as id.
func ByteTokens(chunk string) []api.TokenID {
	ids := make([]api.TokenID, len(chunk))
	for i := 0; i < len(chunk); i++ {
		ids[i] = api.TokenID(chunk[i])
	}
	return ids
}

// CountPairs counts every adjacent pair inside each chunk, summed over all chunks.
// Pairs spanning two chunks are never counted, and chunks with fewer than 2 tokens contribute nothing.
func CountPairs(chunks [][]api.TokenID) map[Pair]int {
	counts := make(map[Pair]int)
	for _, ids := range chunks {
		countInto(counts, ids, 1)
	}
	return counts
}

func countInto(counts map[Pair]int, ids []api.TokenID, weight int) {
	for i := 0; i+1 < len(ids); i++ {
		counts[Pair{ids[i], ids[i+1]}] += weight
	}
}

// word is a distinct chunk and the number of times it occurs in the training data.
type word struct {
	ids   []api.TokenID
	count int
}

// minWordsPerShard keeps tiny inputs off the worker pool.
const minWordsPerShard = 1024

// countWords counts pairs of all words, weighted by their multiplicity.
//
// With more than one worker the words are split in contiguous shards counted concurrently; the partial
// maps are then summed by key, so the result doesn't depend on scheduling.
func countWords(words []word, workers int) map[Pair]int {
	if workers <= 1 || len(words) < 2*minWordsPerShard {
		counts := make(map[Pair]int)
		for _, w := range words {
			countInto(counts, w.ids, w.count)
		}
		return counts
	}

	shardSize := max((len(words)+workers-1)/workers, minWordsPerShard)
	p := pool.NewWithResults[map[Pair]int]().WithMaxGoroutines(workers)
	for start := 0; start < len(words); start += shardSize {
		shard := words[start:min(start+shardSize, len(words))]
		p.Go(func() map[Pair]int {
			local := make(map[Pair]int)
			for _, w := range shard {
				countInto(local, w.ids, w.count)
			}
			return local
		})
	}

	var counts map[Pair]int
	for _, local := range p.Wait() {
		if counts == nil {
			counts = local
			continue
		}
		for pair, c := range local {
			counts[pair] += c
		}
	}
	if counts == nil {
		counts = make(map[Pair]int)
	}
	return counts
}

// mostFrequent returns the pair with the highest count. Ties go to the lexicographically smallest pair.
// It returns false if there are no pairs.
func mostFrequent(counts map[Pair]int) (best Pair, bestCount int, found bool) {
	for pair, c := range counts {
		if c <= 0 {
			continue
		}
		if !found || c > bestCount || (c == bestCount && pair.Less(best)) {
			best, bestCount, found = pair, c, true
		}
	}
	return
}

// mergeInPlace replaces every non-overlapping occurrence of pair, scanning left to right, with newID.
// It reuses the storage of ids and returns the shortened slice.
func mergeInPlace(ids []api.TokenID, pair Pair, newID api.TokenID) []api.TokenID {
	w := 0
	for r := 0; r < len(ids); w++ {
		if r+1 < len(ids) && ids[r] == pair.Left && ids[r+1] == pair.Right {
			ids[w] = newID
			r += 2
		} else {
			ids[w] = ids[r]
			r++
		}
	}
	return ids[:w]
}
