package commands

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"ewarn/internal/config"
	"ewarn/internal/logger"
)

var (
	// Global flags
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ewarn",
	Short: "Early warning detection for malaria, DBD and leptospirosis",
	Long: `ewarn evaluates predicted surveillance records against per-disease
alert rules and publishes the resulting early warnings.

Examples:
  ewarn serve --config config.yaml
  ewarn detect --disease dbd --input records.json --month 1 --year 2024
  ewarn rules --disease malaria --format yaml
  ewarn import --disease dbd --input rows.json`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug|info|warn|error)")
}

// loadConfig loads the config and initializes the logger. Commands that
// print results to stdout log to stderr.
func loadConfig(logOutput io.Writer) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if logOutput == nil {
		logOutput = os.Stdout
	}
	logger.InitWithOptions(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: logOutput,
	})
	return cfg, nil
}

// commandContext returns the command's context, or Background when the
// command was executed without one
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
