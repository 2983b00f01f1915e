package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lvcoi/igfetch/internal/downloader"
)

func newConvertCookiesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "convert-cookies <file>",
		Short: "Print a browser cookie export in Netscape cookie-file format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			netscape, err := downloader.ConvertCookies(string(data))
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), netscape)
			return nil
		},
	}
}
