package main

import (
	"fmt"
	"time"

	"github.com/gomlx/go-bpe/corpus"
	"github.com/gomlx/go-bpe/tokenizers/tiktokenfile"
	"github.com/spf13/cobra"
)

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train FILE...",
		Short: "Learn a vocabulary from text or parquet files and save it to vocab.path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			c, err := corpus.New(args, cfg.CorpusOptions())
			if err != nil {
				return err
			}

			start := time.Now()
			tok, report, err := cfg.Trainer().TrainFromIterator(c.Segments(), cfg.Train.VocabSize)
			if err != nil {
				return err
			}
			if err := c.Err(); err != nil {
				return err
			}
			elapsed := time.Since(start)
			if err := tiktokenfile.Save(cmd.Context(), cfg.Vocab.Path, tok); err != nil {
				return err
			}

			segments, size := c.Stats()
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, titleStyle.Render("Training report"))
			for _, line := range []string{
				keyValue("files", len(args)),
				keyValue("segments", segments),
				keyValue("bytes", size),
				keyValue("chunks", fmt.Sprintf("%d (%d unique)", report.Chunks, report.UniqueChunks)),
				keyValue("merges", report.Merges),
				keyValue("vocab size", fmt.Sprintf("%d of %d requested", report.VocabSize, report.RequestedVocabSize)),
				keyValue("stop", report.Stop),
				keyValue("elapsed", elapsed.Round(time.Millisecond)),
				keyValue("saved to", cfg.Vocab.Path),
			} {
				if _, err := fmt.Fprintln(out, line); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}
