// Package otell wires otell's command-line front end: a serve command and
// a version command, nothing more.
package otell

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/otell-io/otell/internal/logging"
	"github.com/otell-io/otell/internal/otelsink/app"
	"github.com/otell-io/otell/internal/otelsink/config"
	"github.com/otell-io/otell/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "otell",
	Short: "otell - a single-host OpenTelemetry sink and query engine",
	Long: `otell ingests OTLP logs, traces, and metrics over gRPC and HTTP,
stores them in an embedded columnar database, and serves search, trace
reconstruction, and metric queries over a local query protocol.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newServeCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the otell ingest and query server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger := logging.NewWithComponent(logging.Config{
				Level:  logLevel,
				Pretty: true,
			}, "otell")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return app.Run(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file (default: $OTELL_CONFIG or $XDG_CONFIG_HOME/otell/config.toml)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("otell version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}
