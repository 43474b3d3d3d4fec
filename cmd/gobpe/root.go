package main

import (
	"flag"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/go-bpe/internal/config"
	"github.com/gomlx/go-bpe/tokenizers/bpe"
	"github.com/gomlx/go-bpe/tokenizers/tiktokenfile"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var (
	cfgFile   string
	activeCfg *config.Config
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(16)
	valueStyle = lipgloss.NewStyle().Bold(true)
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:          "gobpe",
		Short:        "Byte-level BPE tokenizer: train vocabularies, encode and decode text",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = &loaded
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	// klog flags: -v, -logtostderr, etc.
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cmd.AddCommand(newTrainCmd())
	cmd.AddCommand(newEncodeCmd())
	cmd.AddCommand(newDecodeCmd())
	cmd.AddCommand(newVocabCmd())

	return cmd
}

func requireConfig() (config.Config, error) {
	if activeCfg == nil {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return *activeCfg, nil
}

// loadTokenizer loads the vocabulary configured with vocab.path, with the configured encoding cache.
// Unless train.pattern is set, the boundary pattern saved by train is used.
func loadTokenizer() (*bpe.Tokenizer, error) {
	cfg, err := requireConfig()
	if err != nil {
		return nil, err
	}
	tok, err := tiktokenfile.Load(cfg.Vocab.Path, cfg.Train.Pattern)
	if err != nil {
		return nil, err
	}
	return tok.WithCache(cfg.Encode.CacheSize), nil
}

// keyValue renders one "key: value" line of a report.
func keyValue(key string, value any) string {
	return keyStyle.Render(key) + valueStyle.Render(fmt.Sprint(value))
}
