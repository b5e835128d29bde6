package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/CzarCx/qr-brain/internal/api"
	"github.com/CzarCx/qr-brain/internal/scheduler"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server for the scan stations, the lote change feed, check-in alerts and the idle session sweep`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
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

	server := api.NewServer(cfg.Server, api.Dependencies{
		Service:  app.service,
		Hub:      app.hub,
		Snapshot: app.notifier,
		Health:   app.healthChecks(),
		Metrics:  app.metrics,
		Tracer:   app.tracer,
	})

	ledger, err := scheduler.OpenLedger(cfg.Scheduler.CheckinLedgerPath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	checkins, err := scheduler.NewRunner(app.service, ledger, cfg.Scheduler, cfg.Location(), app.metrics)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	g.Go(func() error {
		log.Info().Dur("idle_timeout", cfg.Sessions.IdleTimeout).Msg("Starting session sweep")
		return scheduler.Sweep(ctx, cfg.Sessions, app.service.SweepSessions)
	})

	g.Go(func() error {
		return checkins.StartCheckins(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("API server error")
		return err
	}

	log.Info().Msg("Shutting down API server")
	return nil
}
