package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/CzarCx/qr-brain/internal/scan"
	"github.com/CzarCx/qr-brain/internal/service"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var scanOpts struct {
	workflow string
	operator string
	area     string
	skipArea bool
	mass     bool
	commitTo string
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Read a keyboard-wedge scanner from stdin",
	Long: `Read scanner keystrokes from stdin and run every completed code through a scan session,
printing the outcome of each scan. With --commit-to the pending list is assigned to that
person when input ends.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanOpts.workflow, "workflow", "assign", "station workflow (assign, qualify, deliver, print)")
	scanCmd.Flags().StringVar(&scanOpts.operator, "operator", "", "operator running the station")
	scanCmd.Flags().StringVar(&scanOpts.area, "area", "", "work area recorded on assignments")
	scanCmd.Flags().BoolVar(&scanOpts.skipArea, "skip-area", false, "commit without an area")
	scanCmd.Flags().BoolVar(&scanOpts.mass, "mass", false, "mass mode for the qualify and print stations")
	scanCmd.Flags().StringVar(&scanOpts.commitTo, "commit-to", "", "assign the pending list to this person at end of input")
	_ = scanCmd.MarkFlagRequired("operator")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
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

	view, err := app.service.StartSession(service.StartSessionRequest{
		Operator: scanOpts.operator,
		Workflow: scanOpts.workflow,
		Area:     scanOpts.area,
		SkipArea: scanOpts.skipArea,
		Mass:     scanOpts.mass,
	})
	if err != nil {
		return err
	}
	defer app.service.EndSession(view.ID)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s ready (%s), scan labels...\n", view.ID, view.Workflow)

	err = scan.ReadCodes(ctx, cmd.InOrStdin(), func(code string) error {
		result, err := app.service.ProcessScan(ctx, view.ID, service.ScanRequest{Raw: code})
		if err != nil {
			log.Error().Err(err).Str("code", code).Msg("Scan failed")
			fmt.Fprintf(out, "%-20s %s\n", "error", err)
			return nil
		}
		fmt.Fprintf(out, "%-20s %-16s %s\n", result.Outcome, result.Code, result.Message)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return err
	}

	if scanOpts.commitTo == "" {
		current, err := app.service.GetSession(view.ID)
		if err == nil {
			fmt.Fprintf(out, "%d labels pending, nothing committed\n", current.Total)
		}
		return nil
	}

	commit, err := app.service.CommitToPerson(context.Background(), view.ID, service.AssignRequest{
		Name:     scanOpts.commitTo,
		Area:     scanOpts.area,
		SkipArea: scanOpts.skipArea,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d labels assigned to %s, %s - %s\n", commit.Count, commit.Name,
		commit.Start.In(cfg.Location()).Format("15:04"), commit.Finish.In(cfg.Location()).Format("15:04"))
	return nil
}
