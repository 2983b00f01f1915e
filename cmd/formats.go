package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lvcoi/igfetch/internal/downloader"
)

func newFormatsCommand() *cobra.Command {
	var noMerge bool
	cmd := &cobra.Command{
		Use:   "formats <quality>",
		Short: "Print the format selector cascade for a quality tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for i, selector := range downloader.FormatCandidates(args[0], !noMerge) {
				fmt.Fprintf(out, "%d. %s\n", i+1, selector)
			}
			fmt.Fprintf(out, "sort: %s\n", downloader.FormatSort(!noMerge))
			return nil
		},
	}
	cmd.Flags().BoolVar(&noMerge, "no-merge", false, "assume no transcoder is available to merge streams")
	return cmd
}
