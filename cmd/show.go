package cmd

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gpsjus-scraper/internal/storage"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print id, name and backlog of every stored unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			store, err := storage.New(cmd.Context(), app.Config.Storage, app.Logger.Named("storage"))
			if err != nil {
				return fmt.Errorf("open dataset store: %w", err)
			}
			defer func() {
				if cerr := store.Close(); cerr != nil {
					app.Logger.Warn("close dataset store", zap.Error(cerr))
				}
			}()

			d, err := store.Load(cmd.Context())
			if errors.Is(err, storage.ErrNoDataset) {
				fmt.Fprintln(cmd.OutOrStdout(), "no data")
				return nil
			}
			if err != nil {
				return fmt.Errorf("load dataset: %w", err)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"ID", "Unidade", "Acervo"})
			for _, rec := range d {
				t.AppendRow(table.Row{rec.ID, rec.Name, rec.TotalBacklog})
			}
			t.AppendFooter(table.Row{"", "Total", len(d)})
			t.SetStyle(table.StyleRounded)
			t.Render()
			return nil
		},
	}
}
