package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lvcoi/igfetch/internal/db"
)

const errorColumnWidth = 60

func newDatasetCommand() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "List the records stored by local runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			path := cfg.Storage.Database
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no local dataset at %s, run with --local first", path)
			}
			database, err := db.Open(path)
			if err != nil {
				return err
			}
			defer database.Close()

			ctx := cmd.Context()
			rows, err := database.ListItems(ctx, limit, offset)
			if err != nil {
				return err
			}
			total, err := database.CountItems(ctx, "")
			if err != nil {
				return err
			}
			failed, err := database.CountItems(ctx, db.StatusFailed)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Status", "Video ID", "URL", "Error"})
			for _, row := range rows {
				detail := row.Error
				if r := []rune(detail); len(r) > errorColumnWidth {
					detail = string(r[:errorColumnWidth-3]) + "..."
				}
				if row.ErrorKind != "" {
					detail = row.ErrorKind + ": " + detail
				}
				t.AppendRow(table.Row{row.ID, row.Status, row.VideoID, row.URL, detail})
			}
			t.AppendFooter(table.Row{"", "", "", "TOTAL", fmt.Sprintf("%d (%d failed)", total, failed)})
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of records to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of records to skip")
	return cmd
}
