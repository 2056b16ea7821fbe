// Package cmd provides the CLI commands for Vitrina.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vitrina-search/vitrina/internal/config"
	verrors "github.com/vitrina-search/vitrina/internal/errors"
	"github.com/vitrina-search/vitrina/internal/logging"
	"github.com/vitrina-search/vitrina/internal/profiling"
	"github.com/vitrina-search/vitrina/pkg/version"
)

// Global flags shared by every subcommand.
var (
	configPath     string
	debugMode      bool
	loggingCleanup func()

	profileCPU     string
	profileMem     string
	profileTrace   string
	profileSession *profiling.Session
)

// NewRootCmd creates the root command for the vitrina CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vitrina",
		Short: "Multi-tenant product search for e-commerce widgets",
		Long: `Vitrina serves typo-tolerant product search over YML/XML shop feeds.

Each project gets an isolated index keyed by its API key. Feeds are
parsed into Redis-backed n-gram indexes and refreshed on a schedule.

Run 'vitrina serve' to start the HTTP API, or 'vitrina feed load' to
ingest a feed from the command line.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("vitrina version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default configs/vitrina.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.vitrina/logs/")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newFeedCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts debug logging and any requested
// pprof session before the command body runs. Serve installs its own
// config-driven logger later, which takes precedence.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Debug("debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}

	sess, err := profiling.Start(profiling.Options{
		CPUPath:   profileCPU,
		HeapPath:  profileMem,
		TracePath: profileTrace,
	})
	if err != nil {
		return err
	}
	profileSession = sess

	return nil
}

// stopProfilingAndLogging flushes the pprof session and the debug log
// file if they were opened.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if profileSession != nil {
		if err := profileSession.Stop(); err != nil {
			return err
		}
		profileSession = nil
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// setupCLILogging routes component logs to the log file so they do
// not interleave with command output. With --debug the root hook
// already set up stderr logging, which stays in place. Logging is not
// worth failing a command over, so errors leave the default logger.
func setupCLILogging(level string) func() {
	if debugMode {
		return func() {}
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logCfg.WriteToStderr = false
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return func() {}
	}
	slog.SetDefault(logger)
	return cleanup
}

// loadConfig reads the config file named by --config, falling back to
// the default search path. --debug overrides the configured log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debugMode {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// Execute runs the root command. Failures print through the service
// error formatter so coded errors surface their hint alongside the
// message.
func Execute() error {
	root := NewRootCmd()
	root.SilenceErrors = true
	err := root.Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, verrors.FormatForCLI(err))
	}
	return err
}
