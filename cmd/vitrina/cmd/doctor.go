package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vitrina-search/vitrina/internal/kv"
	"github.com/vitrina-search/vitrina/internal/logging"
	"github.com/vitrina-search/vitrina/internal/preflight"
	"github.com/vitrina-search/vitrina/internal/store"
)

type doctorOptions struct {
	jsonOutput bool
}

func newDoctorCmd() *cobra.Command {
	opts := &doctorOptions{}

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment and diagnose setup issues",
		Long: `Runs environment checks and reports anything that would keep vitrina
from serving: a broken config file, an unreachable Redis, a missing
PostgreSQL, an unwritable log directory, low disk space or a tight
file descriptor limit.

A Redis problem is fatal since every index lives there. A PostgreSQL
problem only degrades accounts, API keys and index backups.`,
		Example: `  # Run diagnostics
  vitrina doctor

  # Machine-readable output for scripting
  vitrina doctor --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, opts *doctorOptions) error {
	stopLogs := setupCLILogging("warn")
	defer stopLogs()

	results := collectChecks(ctx)

	if opts.jsonOutput {
		if err := printDoctorJSON(cmd, results); err != nil {
			return err
		}
	} else {
		printDoctorText(cmd, results)
	}

	if preflight.HasCriticalFailures(results) {
		return fmt.Errorf("environment check failed")
	}
	return nil
}

// collectChecks runs every check that makes sense for the current
// state. Without a loadable config there is nothing to ping, so only
// the local checks run.
func collectChecks(ctx context.Context) []preflight.Result {
	var results []preflight.Result

	cfg, cfgErr := loadConfig()
	results = append(results, preflight.CheckConfig(configPath, cfg, cfgErr))

	if cfgErr == nil {
		kvStore := kv.NewRedis(kv.RedisOptions{
			Addr:     cfg.KV.Addr(),
			Password: cfg.KV.Password,
			DB:       cfg.KV.DB,
			PoolSize: cfg.KV.PoolSize,
		})
		results = append(results, preflight.CheckRedis(ctx, cfg.KV.Addr(), kvStore))
		_ = kvStore.Close()

		registry, err := store.New(ctx, cfg.DB.URL(), store.WithPoolSize(cfg.DB.PoolSize))
		if err != nil {
			results = append(results, preflight.Result{
				Name:    "postgres",
				Status:  preflight.StatusWarn,
				Message: err.Error(),
			})
		} else {
			results = append(results, preflight.CheckPostgres(ctx, cfg.DB.Host, registry))
			registry.Close()
		}
	}

	logDir := logging.DefaultLogDir()
	if cfg != nil && cfg.Logging.File != "" {
		logDir = filepath.Dir(cfg.Logging.File)
	}
	results = append(results,
		preflight.CheckLogDir(logDir),
		preflight.CheckDiskSpace(logDir),
		preflight.CheckFileDescriptors())

	return results
}

func printDoctorText(cmd *cobra.Command, results []preflight.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Vitrina Environment Check")
	fmt.Fprintln(out, "=========================")
	fmt.Fprintln(out)

	for _, r := range results {
		fmt.Fprintf(out, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if r.Status != preflight.StatusPass && r.Details != "" {
			fmt.Fprintf(out, "       %s\n", r.Details)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Status: %s\n", strings.ToUpper(preflight.Summary(results)))
}

// doctorReport is the --json shape.
type doctorReport struct {
	Status   string        `json:"status"`
	Checks   []doctorCheck `json:"checks"`
	Warnings []string      `json:"warnings,omitempty"`
	Errors   []string      `json:"errors,omitempty"`
}

type doctorCheck struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func printDoctorJSON(cmd *cobra.Command, results []preflight.Result) error {
	report := doctorReport{
		Status: preflight.Summary(results),
		Checks: make([]doctorCheck, len(results)),
	}

	for i, r := range results {
		report.Checks[i] = doctorCheck{
			Name:     r.Name,
			Status:   strings.ToLower(r.Status.String()),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}
		if r.Critical() {
			report.Errors = append(report.Errors, r.Name+": "+r.Message)
		} else if r.Status == preflight.StatusWarn {
			report.Warnings = append(report.Warnings, r.Name+": "+r.Message)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
