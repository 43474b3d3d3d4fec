package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/go-bpe/tokenizers/api"
	"github.com/gomlx/go-bpe/tokenizers/bytelevel"
	"github.com/spf13/cobra"
)

func newVocabCmd() *cobra.Command {
	var from, limit int

	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "List vocabulary tokens with the merge that produced them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, err := loadTokenizer()
			if err != nil {
				return err
			}
			if from < 0 {
				from = 0
			}
			end := tok.VocabSize()
			if limit > 0 {
				end = min(end, from+limit)
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("ID", "TOKEN", "BYTES", "MERGE").
				StyleFunc(func(row, _ int) lipgloss.Style {
					if row == table.HeaderRow {
						return titleStyle.Padding(0, 1)
					}
					return lipgloss.NewStyle().Padding(0, 1)
				})
			for id := from; id < end; id++ {
				tokenBytes, _ := tok.TokenBytes(api.TokenID(id))
				merge := "-"
				if pair, ok := tok.MergeTable().Operands(api.TokenID(id)); ok {
					merge = fmt.Sprintf("%d + %d", pair.Left, pair.Right)
				}
				t.Row(strconv.Itoa(id), bytelevel.Render(tokenBytes), strconv.Itoa(len(tokenBytes)), merge)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), keyValue("vocab size", tok.VocabSize()))
			return err
		},
	}

	cmd.Flags().IntVar(&from, "from", api.NumByteTokens, "First token id to list")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of tokens to list (0 for all)")

	return cmd
}
