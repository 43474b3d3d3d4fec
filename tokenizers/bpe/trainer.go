package bpe

import (
	"iter"
	"math"
	"runtime"
	"strings"

	"github.com/gomlx/go-bpe/tokenizers/api"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// StopReason tells why training stopped.
type StopReason int

const (
	// StopReachedTarget means the requested vocabulary size was reached.
	StopReachedTarget StopReason = iota

	// StopNoMorePairs means every chunk was reduced to a single token before reaching the requested size.
	// It is not an error: the vocabulary is just smaller than requested.
	StopNoMorePairs

	// StopMergeLimit means the limit set with Trainer.WithMaxMerges was hit first.
	StopMergeLimit
)

// String implements fmt.Stringer.
func (s StopReason) String() string {
	switch s {
	case StopReachedTarget:
		return "reached_target"
	case StopNoMorePairs:
		return "no_more_pairs"
	case StopMergeLimit:
		return "merge_limit"
	default:
		return "unknown"
	}
}

// TrainReport summarizes a training run.
type TrainReport struct {
	RequestedVocabSize int
	VocabSize          int // 256 + Merges
	Merges             int
	Chunks             int // chunks in the training data, counting repetitions
	UniqueChunks       int
	Stop               StopReason
}

// Trainer learns merge tables. Configure it with the With* methods before training; a Trainer is not
// modified by training and can be reused.
type Trainer struct {
	pattern       string
	workers       int
	maxMerges     int
	progressEvery int
}

// NewTrainer creates a Trainer using GPT4Pattern, one pair counting worker per CPU and no merge limit.
func NewTrainer() *Trainer {
	return &Trainer{
		pattern:       GPT4Pattern,
		workers:       runtime.NumCPU(),
		progressEvery: 1000,
	}
}

// WithPattern sets the boundary pattern used to split the training text. Empty selects GPT4Pattern.
func (tr *Trainer) WithPattern(pattern string) *Trainer {
	tr.pattern = pattern
	return tr
}

// WithWorkers sets the number of goroutines counting pairs. Values <= 1 count sequentially.
// The learned merges don't depend on it.
func (tr *Trainer) WithWorkers(workers int) *Trainer {
	tr.workers = workers
	return tr
}

// WithMaxMerges caps the number of merges learned, regardless of the target vocabulary size.
// Values <= 0 mean no cap.
func (tr *Trainer) WithMaxMerges(maxMerges int) *Trainer {
	tr.maxMerges = maxMerges
	return tr
}

// WithProgressEvery sets how often (in merges) progress is logged at verbosity 2.
func (tr *Trainer) WithProgressEvery(n int) *Trainer {
	tr.progressEvery = n
	return tr
}

// checkVocabSize validates the requested vocabulary size before any work is done.
func checkVocabSize(vocabSize int) error {
	if vocabSize < api.NumByteTokens {
		return errors.Wrapf(ErrConfiguration, "target vocabulary size %d is smaller than the %d byte tokens",
			vocabSize, api.NumByteTokens)
	}
	if int64(vocabSize)-1 > math.MaxUint32 {
		return errors.Wrapf(ErrConfiguration, "target vocabulary size %d doesn't fit 32 bits token ids", vocabSize)
	}
	return nil
}

// Train learns merges from text until the vocabulary has vocabSize tokens or no pair is left.
//
// It fails with ErrConfiguration if vocabSize < 256. Empty text is not an error: it yields a tokenizer
// with no merges.
func (tr *Trainer) Train(text string, vocabSize int) (*Tokenizer, TrainReport, error) {
	return tr.TrainFromIterator(func(yield func(string) bool) {
		yield(text)
	}, vocabSize)
}

// TrainFromIterator is like Train, but reads the training text as a sequence of segments.
//
// Segments are split into chunks independently: no chunk spans two segments. Identical chunks are
// counted once with their multiplicity, which learns the same merges as keeping every copy.
func (tr *Trainer) TrainFromIterator(segments iter.Seq[string], vocabSize int) (*Tokenizer, TrainReport, error) {
	report := TrainReport{RequestedVocabSize: vocabSize}
	if err := checkVocabSize(vocabSize); err != nil {
		return nil, report, err
	}
	chunker, err := NewChunker(tr.pattern)
	if err != nil {
		return nil, report, err
	}

	counts := make(map[string]int)
	var order []string
	total, segmentIdx := 0, 0
	for segment := range segments {
		pieces, err := chunker.Pieces(segment)
		if err != nil {
			return nil, report, errors.WithMessagef(err, "while chunking training segment #%d", segmentIdx)
		}
		segmentIdx++
		for _, p := range pieces {
			chunk := segment[p.Start:p.End]
			if _, seen := counts[chunk]; !seen {
				chunk = strings.Clone(chunk)
				order = append(order, chunk)
			}
			counts[chunk]++
		}
		total += len(pieces)
	}
	words := make([]word, len(order))
	for i, chunk := range order {
		words[i] = word{ids: ByteTokens(chunk), count: counts[chunk]}
	}

	table := tr.train(words, vocabSize, &report)
	report.Chunks = total
	report.UniqueChunks = len(words)
	return newTokenizer(chunker, table), report, nil
}

// TrainChunks learns merges directly from chunks already mapped to tokens (e.g. with ByteTokens).
//
// The chunks are rewritten in place: on return chunks[i] holds the final token sequence of chunk i.
func (tr *Trainer) TrainChunks(chunks [][]api.TokenID, vocabSize int) (*MergeTable, TrainReport, error) {
	report := TrainReport{RequestedVocabSize: vocabSize}
	if err := checkVocabSize(vocabSize); err != nil {
		return nil, report, err
	}
	words := make([]word, len(chunks))
	for i, ids := range chunks {
		words[i] = word{ids: ids, count: 1}
	}
	table := tr.train(words, vocabSize, &report)
	for i := range words {
		chunks[i] = words[i].ids
	}
	report.Chunks = len(chunks)
	report.UniqueChunks = len(chunks)
	return table, report, nil
}

// train runs the greedy merge loop over words, recording the outcome in report.
func (tr *Trainer) train(words []word, vocabSize int, report *TrainReport) *MergeTable {
	table := newMergeTable()
	report.Stop = StopReachedTarget
	for next := api.NumByteTokens; next < vocabSize; next++ {
		if tr.maxMerges > 0 && table.Len() >= tr.maxMerges {
			report.Stop = StopMergeLimit
			break
		}
		pair, count, found := mostFrequent(countWords(words, tr.workers))
		if !found {
			report.Stop = StopNoMorePairs
			break
		}
		id := table.add(pair)
		for i := range words {
			if len(words[i].ids) >= 2 {
				words[i].ids = mergeInPlace(words[i].ids, pair, id)
			}
		}
		if tr.progressEvery > 0 && table.Len()%tr.progressEvery == 0 {
			klog.V(2).Infof("bpe: merge %d/%d: (%d, %d) -> %d, count=%d",
				table.Len(), vocabSize-api.NumByteTokens, pair.Left, pair.Right, id, count)
		}
	}
	report.Merges = table.Len()
	report.VocabSize = api.NumByteTokens + table.Len()
	klog.V(1).Infof("bpe: trained %d merges (vocabulary %d of %d requested, stop=%s)",
		report.Merges, report.VocabSize, vocabSize, report.Stop)
	return table
}
