package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/gpsjus-scraper/internal/await"
	"github.com/JakeFAU/gpsjus-scraper/internal/dataset"
	"github.com/JakeFAU/gpsjus-scraper/internal/htmldom"
	"github.com/JakeFAU/gpsjus-scraper/internal/scraper"
)

func newExtractCmd() *cobra.Command {
	var (
		id   int
		name string
	)
	cmd := &cobra.Command{
		Use:   "extract <file.html>",
		Short: "Extract one saved dashboard page without a browser",
		Long: `Runs the table extractors against a page saved from the dashboard and
prints the resulting record as JSON. Useful to check the layout anchors
after the dashboard markup changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			doc, err := htmldom.Open(args[0])
			if err != nil {
				return err
			}
			// A saved page never changes, so there is nothing to wait for.
			poller := await.Poller{Timeout: time.Millisecond, Interval: time.Millisecond}
			ex := scraper.NewExtractor(doc, app.Config.Layout, poller, app.Logger.Named("extract"))
			rec := ex.Record(cmd.Context(), id, name)
			if err := dataset.Encode(cmd.OutOrStdout(), dataset.Dataset{rec}); err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&id, "id", 1, "id to give the extracted record")
	cmd.Flags().StringVar(&name, "name", "", "unit name to give the extracted record")
	return cmd
}
