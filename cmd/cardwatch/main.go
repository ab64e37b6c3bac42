package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cardwatch/internal/cli"
	"cardwatch/internal/config"
	"cardwatch/internal/log"
)

var (
	envFile   string
	logLevel  string
	logFormat string

	// set by the root PersistentPreRunE; the logger travels in the command context
	appConfig *config.Config
)

// rootCmd is the base command for the cardwatch CLI
var rootCmd = &cobra.Command{
	Use:   "cardwatch",
	Short: "Sliding-window card spending monitor",
	Long: `cardwatch flags cards whose total spending inside any 24 hour window
exceeds a threshold. Windows are centered every --step across the scan range
and include both bounds.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			cli.LoadEnvFile(envFile)
		} else {
			cli.LoadEnvFile()
		}

		overrides := []func(*config.Config){func(c *config.Config) {
			if cmd.Flags().Changed("log-level") {
				c.LogLevel = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				c.LogFormat = logFormat
			}
		}}
		if cmd == scanCmd {
			overrides = append(overrides, func(c *config.Config) { applyScanFlags(cmd, c) })
		}

		cfg, err := cli.LoadAndValidateConfig(overrides...)
		if err != nil {
			return err
		}
		appConfig = cfg

		logger := cli.SetupLogger(appConfig, cmd.ErrOrStderr())
		cmd.SetContext(log.WithContext(cmd.Context(), logger))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment from this file (default: .env if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
}

func main() {
	ctx, stop := cli.SignalContext(context.Background(), log.Discard())
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.ExitCode(err))
}
