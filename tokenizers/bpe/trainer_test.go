package bpe

import (
	"strings"
	"testing"

	"github.com/gomlx/go-bpe/tokenizers/api"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trainingText is a small English corpus with enough repetition to learn a few dozen merges.
var trainingText = strings.Repeat(`The quick brown fox jumps over the lazy dog. The dog wasn't amused;
it barked 3 times at 12:45 and then went back to sleep. Hello world! hello rust! hello bpe!
Tokenizers learn the most frequent pairs first, then the next ones, and so on.
`, 4)

// Same scenario as minbpe's quick start: 3 merges over "aaabdaaabac".
func TestTrain_Simple(t *testing.T) {
	tok, report, err := NewTrainer().Train("aaabdaaabac", 256+3)
	require.NoError(t, err)

	assert.Equal(t, []Pair{{97, 97}, {97, 98}, {256, 257}}, tok.Merges())
	assert.Equal(t, 3, report.Merges)
	assert.Equal(t, 259, report.VocabSize)
	assert.Equal(t, StopReachedTarget, report.Stop)

	// "aaab" occurs twice, so each merge fires twice: 11 bytes become 5 tokens, not 11-3.
	encoded := tok.Encode("aaabdaaabac")
	assert.Equal(t, []api.TokenID{258, 100, 258, 97, 99}, encoded)
	assert.LessOrEqual(t, len(encoded), 11-3, "each merge removes at least one token")

	decoded, err := tok.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "aaabdaaabac", decoded)
}

func TestTrain_InvalidVocabSize(t *testing.T) {
	_, report, err := NewTrainer().Train("some text", 255)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Equal(t, 0, report.Merges)

	// The size is checked before the pattern is even compiled.
	_, _, err = NewTrainer().WithPattern("(unclosed").Train("some text", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smaller than the 256 byte tokens")

	_, _, err = NewTrainer().TrainChunks([][]api.TokenID{{1, 2}}, 0)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestTrain_EmptyText(t *testing.T) {
	tok, report, err := NewTrainer().Train("", 300)
	require.NoError(t, err)
	assert.Empty(t, tok.Merges())
	assert.Equal(t, 256, tok.VocabSize())
	assert.Equal(t, StopNoMorePairs, report.Stop)
	assert.Equal(t, 0, report.Chunks)

	encoded := tok.Encode("hello, world")
	assert.Len(t, encoded, len("hello, world"))
	for i, id := range encoded {
		assert.Less(t, id, api.TokenID(256))
		assert.Equal(t, api.TokenID("hello, world"[i]), id)
	}
}

func TestTrain_StopReasons(t *testing.T) {
	// Only one pair exists, training stops early without error.
	tok, report, err := NewTrainer().Train("ab", 1000)
	require.NoError(t, err)
	assert.Equal(t, []Pair{{97, 98}}, tok.Merges())
	assert.Equal(t, StopNoMorePairs, report.Stop)
	assert.Equal(t, 257, report.VocabSize)
	assert.Equal(t, 1000, report.RequestedVocabSize)

	// Merge cap.
	tok, report, err = NewTrainer().WithMaxMerges(2).Train(trainingText, 1000)
	require.NoError(t, err)
	assert.Len(t, tok.Merges(), 2)
	assert.Equal(t, StopMergeLimit, report.Stop)

	// Target reached exactly at the cap.
	_, report, err = NewTrainer().WithMaxMerges(2).Train(trainingText, 258)
	require.NoError(t, err)
	assert.Equal(t, StopReachedTarget, report.Stop)
	assert.Equal(t, "reached_target", report.Stop.String())
}

func TestTrain_MergeOrderIsStableAcrossSizes(t *testing.T) {
	sizes := []int{256, 260, 280, 300, 330}
	var previous []Pair
	for _, size := range sizes {
		tok, _, err := NewTrainer().Train(trainingText, size)
		require.NoError(t, err)
		merges := tok.Merges()
		require.GreaterOrEqual(t, len(merges), len(previous))
		if len(previous) > 0 {
			assert.Equal(t, previous, merges[:len(previous)], "merges for size %d must extend the smaller table", size)
		}
		previous = merges
	}
	assert.Len(t, previous, 330-256)
}

func TestTrain_Deterministic(t *testing.T) {
	first, _, err := NewTrainer().Train(trainingText, 320)
	require.NoError(t, err)
	for range 3 {
		again, _, err := NewTrainer().Train(trainingText, 320)
		require.NoError(t, err)
		assert.Equal(t, first.Merges(), again.Merges())
	}
}

func TestTrain_WorkersDontChangeMerges(t *testing.T) {
	var sb strings.Builder
	for i := range 4000 {
		sb.WriteString(letterWord(i))
		sb.WriteByte(' ')
	}
	text := sb.String()

	sequential, _, err := NewTrainer().WithWorkers(1).Train(text, 300)
	require.NoError(t, err)
	parallel, report, err := NewTrainer().WithWorkers(8).Train(text, 300)
	require.NoError(t, err)
	assert.Greater(t, report.UniqueChunks, 2*minWordsPerShard)
	assert.Equal(t, sequential.Merges(), parallel.Merges())
}

func TestTrainFromIterator_SegmentsAreIndependent(t *testing.T) {
	segments := func(yield func(string) bool) {
		for _, s := range []string{"ab", "cd", "ab", "cd"} {
			if !yield(s) {
				return
			}
		}
	}
	tok, report, err := NewTrainer().TrainFromIterator(segments, 1000)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Chunks)
	assert.Equal(t, 2, report.UniqueChunks)
	assert.ElementsMatch(t, []Pair{{97, 98}, {99, 100}}, tok.Merges())
	_, found := tok.MergeTable().Lookup(Pair{98, 99})
	assert.False(t, found, "no pair may span two segments")
}

func TestTrain_ReportCountsChunks(t *testing.T) {
	_, report, err := NewTrainer().Train("the the the", 260)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Chunks) // "the", " the", " the"
	assert.Equal(t, 2, report.UniqueChunks)
}

func TestTrainChunks(t *testing.T) {
	chunks := [][]api.TokenID{
		ByteTokens("aaab"),
		ByteTokens("aa"),
		ByteTokens("b"),
		{},
	}
	table, report, err := NewTrainer().TrainChunks(chunks, 1000)
	require.NoError(t, err)
	assert.Equal(t, StopNoMorePairs, report.Stop)
	// After "aa", (a, b) and (aa, a) tie and the smaller pair wins.
	assert.Equal(t, []Pair{{97, 97}, {97, 98}, {256, 257}}, table.Pairs())

	// Chunks hold their final tokens.
	assert.Equal(t, []api.TokenID{258}, chunks[0])
	assert.Equal(t, []api.TokenID{256}, chunks[1])
	assert.Equal(t, []api.TokenID{98}, chunks[2])
	assert.Empty(t, chunks[3])
}
