package cmd

import (
	"os"
	"strings"

	"github.com/CzarCx/qr-brain/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "qr-brain",
	Short: "Warehouse label scanning service",
	Long:  `Scan stations, status transitions, lote reconciliation and delivery imports for packaging labels`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			config.SetConfigFile(cfgFile)
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or ./app.env)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetLogLevel applies a debug|info|warn|error level; unknown values are ignored
func SetLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}
}

// loadConfig reads the configuration and applies its logging settings
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return config.Config{}, err
	}

	if cfg.Environment == "development" || cfg.Logging.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if os.Getenv("LOG_LEVEL") == "" {
		SetLogLevel(cfg.Logging.Level)
	}

	return cfg, nil
}
