// Package corpus reads training text from files, as a sequence of segments for bpe.Trainer.TrainFromIterator.
//
// Plain text files are memory-mapped and split into segments of whole lines. Parquet files (".parquet"
// extension) contribute one segment per row of their "text" column, the layout used by most Hugging Face
// text datasets.
package corpus

import (
	"iter"
	"path/filepath"
	"strings"

	"github.com/gomlx/go-bpe/tokenizers/bpe"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
	"golang.org/x/text/unicode/norm"
	"k8s.io/klog/v2"
)

// DefaultSegmentSize is the default size limit of segments read from text files.
const DefaultSegmentSize = 1 << 20

// Normalization forms accepted by Options.Normalize.
const (
	NormalizeNone = ""
	NormalizeNFC  = "nfc"
	NormalizeNFKC = "nfkc"
)

// Options configure how a Corpus reads its files.
type Options struct {
	// Normalize applies a Unicode normalization form to every segment: NormalizeNone, NormalizeNFC or NormalizeNFKC.
	Normalize string

	// SegmentSize is the size (in bytes) above which a text file is split in a new segment, always after a
	// newline. Lines longer than SegmentSize are not split. Defaults to DefaultSegmentSize if <= 0.
	SegmentSize int
}

// Row is the parquet schema read from ".parquet" files: only the "text" column is used.
type Row struct {
	Text string `parquet:"text"`
}

// Corpus iterates over the segments of a list of files.
//
// Errors stop the iteration and are reported by Err, in the style of bufio.Scanner.
type Corpus struct {
	paths []string
	opts  Options
	form  *norm.Form

	err      error
	segments int
	bytes    int64
}

// New creates a Corpus over the given files. It fails with bpe.ErrConfiguration if the options are invalid.
func New(paths []string, opts Options) (*Corpus, error) {
	form, err := normalizationForm(opts.Normalize)
	if err != nil {
		return nil, err
	}
	if opts.SegmentSize <= 0 {
		opts.SegmentSize = DefaultSegmentSize
	}
	return &Corpus{paths: paths, opts: opts, form: form}, nil
}

func normalizationForm(name string) (*norm.Form, error) {
	var form norm.Form
	switch strings.ToLower(name) {
	case NormalizeNone:
		return nil, nil
	case NormalizeNFC:
		form = norm.NFC
	case NormalizeNFKC:
		form = norm.NFKC
	default:
		return nil, errors.Wrapf(bpe.ErrConfiguration, "unknown normalization %q, valid values are %q, %q or %q",
			name, NormalizeNone, NormalizeNFC, NormalizeNFKC)
	}
	return &form, nil
}

// Normalize returns text normalized with the named form (see Options.Normalize).
func Normalize(text, form string) (string, error) {
	f, err := normalizationForm(form)
	if err != nil {
		return "", err
	}
	if f == nil {
		return text, nil
	}
	return f.String(text), nil
}

// Segments returns the iterator over the segments of all files, in order.
// It can be iterated more than once, each time re-reading the files.
func (c *Corpus) Segments() iter.Seq[string] {
	return func(yield func(string) bool) {
		c.err = nil
		c.segments, c.bytes = 0, 0
		emit := func(segment string) bool {
			if c.form != nil {
				segment = c.form.String(segment)
			}
			c.segments++
			c.bytes += int64(len(segment))
			return yield(segment)
		}
		for _, path := range c.paths {
			var (
				cont bool
				err  error
			)
			if strings.EqualFold(filepath.Ext(path), ".parquet") {
				cont, err = readParquet(path, emit)
			} else {
				cont, err = readText(path, c.opts.SegmentSize, emit)
			}
			if err != nil {
				c.err = err
				return
			}
			if !cont {
				return
			}
			klog.V(2).Infof("corpus: read %q (%d segments, %d bytes so far)", path, c.segments, c.bytes)
		}
		klog.V(1).Infof("corpus: read %d files: %d segments, %d bytes", len(c.paths), c.segments, c.bytes)
	}
}

// Err returns the error that stopped the last iteration over Segments, if any.
func (c *Corpus) Err() error {
	return c.err
}

// Stats returns the number of segments and bytes (after normalization) produced by the last iteration.
func (c *Corpus) Stats() (segments int, bytes int64) {
	return c.segments, c.bytes
}

// readText yields the segments of a text file. It returns false if yield asked to stop.
func readText(path string, segmentSize int, yield func(string) bool) (bool, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return false, errors.Wrapf(err, "opening corpus file %q", path)
	}
	defer func() { _ = r.Close() }()

	size := r.Len()
	for start := 0; start < size; {
		end := min(start+segmentSize, size)
		if end < size {
			// Extend the segment up to the end of the current line.
			for end < size && r.At(end-1) != '\n' {
				end++
			}
		}
		buf := make([]byte, end-start)
		if _, err := r.ReadAt(buf, int64(start)); err != nil {
			return false, errors.Wrapf(err, "reading %q at offset %d", path, start)
		}
		if !yield(string(buf)) {
			return false, nil
		}
		start = end
	}
	return true, nil
}

// readParquet yields the "text" column of each row of a parquet file. It returns false if yield asked to stop.
func readParquet(path string, yield func(string) bool) (bool, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return false, errors.Wrapf(err, "reading parquet file %q", path)
	}
	for _, row := range rows {
		if !yield(row.Text) {
			return false, nil
		}
	}
	return true, nil
}

// Strings returns an iterator over the given texts, for training from in-memory segments.
func Strings(texts ...string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, text := range texts {
			if !yield(text) {
				return
			}
		}
	}
}
