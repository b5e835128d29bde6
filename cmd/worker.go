package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/CzarCx/qr-brain/internal/scheduler"
	"github.com/CzarCx/qr-brain/internal/search"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker to project lote changes from Azure Service Bus and write the daily report`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	app, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ledger, err := scheduler.OpenLedger(cfg.Scheduler.LedgerPath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	runner, err := scheduler.NewRunner(app.service, ledger, cfg.Scheduler, cfg.Location(), app.metrics)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	switch {
	case app.bus == nil:
		log.Warn().Msg("Service Bus not configured, lote changes will not be projected")
	case app.elastic == nil:
		log.Warn().Msg("Elasticsearch not enabled, lote changes will not be projected")
	default:
		projector := &search.LoteProjector{Source: app.service.LoteView, Index: app.elastic}
		g.Go(func() error {
			log.Info().Str("queue", cfg.Azure.QueueName).Msg("Starting Azure Service Bus consumer")
			return app.bus.Consume(ctx, projector.Handle)
		})
	}

	g.Go(func() error {
		return runner.StartReports(ctx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
