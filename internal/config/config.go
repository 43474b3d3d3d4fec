// Package config loads the gobpe command line configuration from defaults, an optional config file,
// GOBPE_* environment variables and flags, in increasing order of precedence.
package config

import (
	"runtime"
	"strings"

	"github.com/gomlx/go-bpe/corpus"
	"github.com/gomlx/go-bpe/tokenizers/api"
	"github.com/gomlx/go-bpe/tokenizers/bpe"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the environment variables overriding configuration keys,
// e.g. GOBPE_TRAIN_VOCAB_SIZE for train.vocab_size.
const EnvPrefix = "GOBPE"

type Config struct {
	Train  TrainConfig  `mapstructure:"train"`
	Corpus CorpusConfig `mapstructure:"corpus"`
	Vocab  VocabConfig  `mapstructure:"vocab"`
	Encode EncodeConfig `mapstructure:"encode"`
}

type TrainConfig struct {
	VocabSize int `mapstructure:"vocab_size"`
	MaxMerges int `mapstructure:"max_merges"`
	Workers   int `mapstructure:"workers"`

	// Pattern is the boundary pattern. Empty selects bpe.GPT4Pattern when training, and the pattern saved
	// with the vocabulary when loading it.
	Pattern string `mapstructure:"pattern"`
}

type CorpusConfig struct {
	Normalize   string `mapstructure:"normalize"`
	SegmentSize int    `mapstructure:"segment_size"`
}

type VocabConfig struct {
	Path string `mapstructure:"path"`
}

type EncodeConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Train: TrainConfig{
			VocabSize: 1024,
			MaxMerges: 0,
			Workers:   runtime.NumCPU(),
		},
		Corpus: CorpusConfig{
			Normalize:   corpus.NormalizeNone,
			SegmentSize: corpus.DefaultSegmentSize,
		},
		Vocab: VocabConfig{
			Path: "vocab.tiktoken",
		},
		Encode: EncodeConfig{
			CacheSize: 4096,
		},
	}
}

// keys maps each configuration key to its flag name.
var keys = [][2]string{
	{"train.vocab_size", "train-vocab-size"},
	{"train.max_merges", "train-max-merges"},
	{"train.workers", "train-workers"},
	{"train.pattern", "train-pattern"},
	{"corpus.normalize", "corpus-normalize"},
	{"corpus.segment_size", "corpus-segment-size"},
	{"vocab.path", "vocab-path"},
	{"encode.cache_size", "encode-cache-size"},
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.Int("train-vocab-size", defaults.Train.VocabSize, "Target vocabulary size, including the 256 byte tokens")
	fs.Int("train-max-merges", defaults.Train.MaxMerges, "Maximum number of merges to learn (0 for no limit)")
	fs.Int("train-workers", defaults.Train.Workers, "Goroutines counting pairs during training")
	fs.String("train-pattern", defaults.Train.Pattern, "Boundary pattern splitting text into chunks (default: GPT-4's when training, the one saved with the vocabulary otherwise)")
	fs.String("corpus-normalize", defaults.Corpus.Normalize, "Unicode normalization of the training text: \"\", nfc or nfkc")
	fs.Int("corpus-segment-size", defaults.Corpus.SegmentSize, "Size in bytes of the segments read from text files")
	fs.String("vocab-path", defaults.Vocab.Path, "Vocabulary file, in tiktoken format")
	fs.Int("encode-cache-size", defaults.Encode.CacheSize, "Number of encoded chunks cached (0 disables the cache)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		fs := opts.Cmd.Flags()
		for _, k := range keys {
			flag := fs.Lookup(k[1])
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(k[0], flag); err != nil {
				return Config{}, errors.Wrapf(err, "bind flag --%s", k[1])
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "read config file")
		}
	} else {
		v.SetConfigName("gobpe")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, errors.Wrap(err, "read config file")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("train.vocab_size", c.Train.VocabSize)
	v.SetDefault("train.max_merges", c.Train.MaxMerges)
	v.SetDefault("train.workers", c.Train.Workers)
	v.SetDefault("train.pattern", c.Train.Pattern)
	v.SetDefault("corpus.normalize", c.Corpus.Normalize)
	v.SetDefault("corpus.segment_size", c.Corpus.SegmentSize)
	v.SetDefault("vocab.path", c.Vocab.Path)
	v.SetDefault("encode.cache_size", c.Encode.CacheSize)
}

// Validate checks the values that can be checked without running anything.
// Errors match bpe.ErrConfiguration.
func (c Config) Validate() error {
	if c.Train.VocabSize < api.NumByteTokens {
		return errors.Wrapf(bpe.ErrConfiguration, "train.vocab_size=%d must be at least %d",
			c.Train.VocabSize, api.NumByteTokens)
	}
	if c.Train.MaxMerges < 0 {
		return errors.Wrapf(bpe.ErrConfiguration, "train.max_merges=%d can't be negative", c.Train.MaxMerges)
	}
	if c.Encode.CacheSize < 0 {
		return errors.Wrapf(bpe.ErrConfiguration, "encode.cache_size=%d can't be negative", c.Encode.CacheSize)
	}
	if _, err := corpus.Normalize("", c.Corpus.Normalize); err != nil {
		return errors.WithMessage(err, "corpus.normalize")
	}
	if c.Vocab.Path == "" {
		return errors.Wrap(bpe.ErrConfiguration, "vocab.path is empty")
	}
	return nil
}

// CorpusOptions returns the options to read training files with.
func (c Config) CorpusOptions() corpus.Options {
	return corpus.Options{Normalize: c.Corpus.Normalize, SegmentSize: c.Corpus.SegmentSize}
}

// Trainer returns a bpe.Trainer configured from the train.* keys.
func (c Config) Trainer() *bpe.Trainer {
	return bpe.NewTrainer().
		WithPattern(c.Train.Pattern).
		WithWorkers(c.Train.Workers).
		WithMaxMerges(c.Train.MaxMerges)
}
