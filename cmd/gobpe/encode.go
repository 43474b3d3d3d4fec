package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gomlx/go-bpe/tokenizers/bytelevel"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newEncodeCmd() *cobra.Command {
	var spans bool

	cmd := &cobra.Command{
		Use:   "encode [TEXT...]",
		Short: "Print the token ids of the text given as arguments, or read from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := loadTokenizer()
			if err != nil {
				return err
			}
			var text string
			if len(args) > 0 {
				text = strings.Join(args, " ")
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, "reading text from stdin")
				}
				text = string(data)
			}

			out := cmd.OutOrStdout()
			if !spans {
				ids := tok.Encode(text)
				parts := make([]string, len(ids))
				for i, id := range ids {
					parts[i] = strconv.FormatUint(uint64(id), 10)
				}
				_, err = fmt.Fprintln(out, strings.Join(parts, " "))
				return err
			}

			result := tok.EncodeWithSpans(text)
			for i, id := range result.IDs {
				span := result.Spans[i]
				_, err = fmt.Fprintf(out, "%d\t%d\t%d\t%s\n", id, span.Start, span.End,
					bytelevel.Render([]byte(text[span.Start:span.End])))
				if err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&spans, "spans", false, "Print one token per line: id, byte offsets and token text")

	return cmd
}
