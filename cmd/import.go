package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var importOpts struct {
	file        string
	operator    string
	notFoundOut string
}

var importCmd = &cobra.Command{
	Use:   "import-deliveries",
	Short: "Mark the codes of a delivery scanner CSV as delivered",
	Long:  `Read a delivery scanner export and mark every matched code as ENTREGADO with its scan time`,
	RunE:  runImport,
}

func init() {
	importCmd.Flags().StringVar(&importOpts.file, "file", "", "delivery scanner CSV")
	importCmd.Flags().StringVar(&importOpts.operator, "operator", "", "operator recorded on the KPI row")
	importCmd.Flags().StringVar(&importOpts.notFoundOut, "not-found-out", "", "write the unmatched codes to this CSV")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("operator")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()

	app, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	f, err := os.Open(importOpts.file)
	if err != nil {
		return errors.Wrap(err, "failed to open delivery CSV")
	}
	defer f.Close()

	stats, err := app.service.ImportDeliveries(ctx, importOpts.operator, filepath.Base(importOpts.file), f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Total: %d  Found: %d  Not found: %d  Updated: %d  Elapsed: %s\n",
		stats.Total, stats.Found, stats.NotFound, stats.Updated, stats.Elapsed)

	if importOpts.notFoundOut != "" && len(stats.Missing) > 0 {
		content, err := app.service.NotFoundCSV(stats.Missing)
		if err != nil {
			return err
		}
		if err := os.WriteFile(importOpts.notFoundOut, content, 0o644); err != nil {
			return errors.Wrap(err, "failed to write not-found CSV")
		}
		log.Info().Str("file", importOpts.notFoundOut).Int("codes", len(stats.Missing)).Msg("Unmatched codes written")
	}
	return nil
}
