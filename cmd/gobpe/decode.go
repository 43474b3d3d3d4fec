package main

import (
	"strconv"
	"strings"

	"github.com/gomlx/go-bpe/tokenizers/api"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode ID...",
		Short: "Print the text of the given token ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := loadTokenizer()
			if err != nil {
				return err
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			decoded, err := tok.Decode(ids)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(decoded)
			return err
		},
	}
	return cmd
}

// parseIDs parses token ids separated by spaces or commas, possibly spread over several arguments.
func parseIDs(args []string) ([]api.TokenID, error) {
	var ids []api.TokenID
	for _, arg := range args {
		for _, field := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' }) {
			id, err := strconv.ParseUint(field, 10, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid token id %q", field)
			}
			ids = append(ids, api.TokenID(id))
		}
	}
	return ids, nil
}
