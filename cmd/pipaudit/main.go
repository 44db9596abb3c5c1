package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/pipaudit/pipaudit/internal/config"
	"github.com/pipaudit/pipaudit/internal/conflict"
	"github.com/pipaudit/pipaudit/internal/graph"
	"github.com/pipaudit/pipaudit/internal/index"
	"github.com/pipaudit/pipaudit/internal/lockfile"
	"github.com/pipaudit/pipaudit/internal/planexec"
	"github.com/pipaudit/pipaudit/internal/report"
	"github.com/pipaudit/pipaudit/internal/resolve"
	"github.com/pipaudit/pipaudit/internal/tree"
)

var buildVersion = "0.0.0"

// Exit codes, per the core's external interface contract.
const (
	exitOK            = 0
	exitGeneralError  = 1
	exitConflictsLeft = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := &cobra.Command{
		Use:           "pipaudit",
		Short:         "Diagnose and resolve Python dependency version conflicts",
		Version:       buildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("tree-file", "", "Path to the dependency tree enumerator's JSON output (default: stdin)")
	rootCmd.PersistentFlags().String("index-url", "", "Package index base URL (default: https://pypi.org/pypi)")
	rootCmd.PersistentFlags().Duration("index-interval", 0, "Minimum spacing between index requests (default: 200ms)")
	rootCmd.PersistentFlags().String("cache-dir", "", "On-disk cache directory for index responses")
	rootCmd.PersistentFlags().String("format", "text", "Report format: text or json")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(
		newScanCmd(),
		newResolveCmd(),
		newApplyCmd(),
		newLockCmd(),
		newRestoreCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)

		return exitGeneralError
	}

	return exitCode
}

// exitCode is set by whichever subcommand ran, since cobra's RunE
// contract only distinguishes "error" from "no error" and this core
// needs the three-way exit contract from the external interface.
var exitCode = exitOK

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig(cmd *cobra.Command) config.Config {
	cfg := config.Default()

	if url, _ := cmd.Flags().GetString("index-url"); url != "" {
		cfg.IndexBaseURL = url
	}

	if interval, _ := cmd.Flags().GetDuration("index-interval"); interval > 0 {
		cfg.IndexMinInterval = interval
	}

	if dir, _ := cmd.Flags().GetString("cache-dir"); dir != "" {
		cfg.IndexCacheDir = dir
	}

	return cfg
}

func newIndexClient(cfg config.Config, logger *slog.Logger) *index.Service {
	opts := []index.Option{index.WithLogger(logger)}

	if cfg.IndexBaseURL != "" {
		opts = append(opts, index.WithBaseURL(cfg.IndexBaseURL))
	}

	if cfg.IndexMinInterval > 0 {
		opts = append(opts, index.WithMinInterval(cfg.IndexMinInterval))
	}

	if cfg.IndexCacheDir != "" {
		opts = append(opts, index.WithDiskCache(cfg.IndexCacheDir))
	}

	return index.New(opts...)
}

func readTreeInput(cmd *cobra.Command) ([]byte, error) {
	path, _ := cmd.Flags().GetString("tree-file")
	if path == "" {
		return io.ReadAll(cmd.InOrStdin())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tree file %s: %w", path, err)
	}

	return data, nil
}

func buildGraph(cmd *cobra.Command, logger *slog.Logger) (graph.DependencyMap, error) {
	data, err := readTreeInput(cmd)
	if err != nil {
		return nil, err
	}

	m, err := tree.Normalize(data, logger)
	if err != nil {
		return nil, fmt.Errorf("normalizing dependency tree: %w", err)
	}

	return m, nil
}

func printReport(cmd *cobra.Command, doc report.Document) error {
	format, _ := cmd.Flags().GetString("format")

	if format == "json" {
		data, err := report.MarshalJSON(doc)
		if err != nil {
			return err
		}

		_, err = cmd.OutOrStdout().Write(data)

		return err
	}

	_, err := fmt.Fprint(cmd.OutOrStdout(), report.RenderText(doc))

	return err
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Detect version conflicts in an installed environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(mustBool(cmd, "verbose"))

			m, err := buildGraph(cmd, logger)
			if err != nil {
				exitCode = exitGeneralError

				return err
			}

			conflicts := conflict.Detect(m)

			doc := report.Build(conflicts, resolve.Plan{})
			if err := printReport(cmd, doc); err != nil {
				exitCode = exitGeneralError

				return err
			}

			exitCode = exitOK
			if len(conflicts) > 0 {
				exitCode = exitConflictsLeft
			}

			return nil
		},
	}
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Compute a minimally disruptive upgrade plan for detected conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			logger := newLogger(mustBool(cmd, "verbose"))
			cfg := loadConfig(cmd)

			m, err := buildGraph(cmd, logger)
			if err != nil {
				exitCode = exitGeneralError

				return err
			}

			conflicts := conflict.Detect(m)

			client := newIndexClient(cfg, logger)
			resolver := resolve.New(client, resolve.WithLogger(logger))

			plan, err := resolver.Resolve(ctx, m, conflicts)
			if err != nil {
				exitCode = exitGeneralError

				return err
			}

			doc := report.Build(conflicts, plan)
			if err := printReport(cmd, doc); err != nil {
				exitCode = exitGeneralError

				return err
			}

			exitCode = exitOK
			if len(plan.Unsolvable) > 0 || len(plan.Items) < len(conflicts) {
				exitCode = exitConflictsLeft
			}

			return nil
		},
	}
}

func newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Resolve conflicts and apply the plan via the package manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			logger := newLogger(mustBool(cmd, "verbose"))
			cfg := loadConfig(cmd)

			dryRun, _ := cmd.Flags().GetBool("dry-run")
			cfg.DryRun = dryRun || cfg.DryRun

			pipBinary, _ := cmd.Flags().GetString("pip")
			if pipBinary != "" {
				cfg.PipBinary = pipBinary
			}

			m, err := buildGraph(cmd, logger)
			if err != nil {
				exitCode = exitGeneralError

				return err
			}

			conflicts := conflict.Detect(m)

			client := newIndexClient(cfg, logger)
			resolver := resolve.New(client, resolve.WithLogger(logger))

			plan, err := resolver.Resolve(ctx, m, conflicts)
			if err != nil {
				exitCode = exitGeneralError

				return err
			}

			executor := planexec.New(planexec.NewPipAdapter(cfg.PipBinary),
				planexec.WithLogger(logger),
				planexec.WithDryRun(cfg.DryRun),
			)

			result := executor.Apply(ctx, plan)

			doc := report.Build(conflicts, plan)
			if err := printReport(cmd, doc); err != nil {
				exitCode = exitGeneralError

				return err
			}

			exitCode = exitOK

			if len(plan.Unsolvable) > 0 || !result.Completed {
				exitCode = exitConflictsLeft
			}

			for _, item := range result.Items {
				if !item.Succeeded() {
					exitCode = exitConflictsLeft
				}
			}

			return nil
		},
	}

	cmd.Flags().Bool("dry-run", false, "Log intended package-manager invocations (shown with --verbose) without applying them")
	cmd.Flags().String("pip", "", "pip-compatible executable to invoke (default: pip)")

	return cmd
}

func newLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Snapshot the current environment to a canonical lock file",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(mustBool(cmd, "verbose"))
			cfg := loadConfig(cmd)

			outPath, _ := cmd.Flags().GetString("out")
			if outPath == "" {
				outPath = cfg.LockFilePath
			}

			m, err := buildGraph(cmd, logger)
			if err != nil {
				exitCode = exitGeneralError

				return err
			}

			f := lockfile.Lock(m, time.Now().UTC().Format(time.RFC3339))

			data, err := lockfile.Marshal(f)
			if err != nil {
				exitCode = exitGeneralError

				return err
			}

			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				exitCode = exitGeneralError

				return fmt.Errorf("writing lock file %s: %w", outPath, err)
			}

			exitCode = exitOK

			return nil
		},
	}

	cmd.Flags().String("out", "", "Lock file output path (default: requirements.lock.json)")

	return cmd
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore the environment to match a lock file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			logger := newLogger(mustBool(cmd, "verbose"))
			cfg := loadConfig(cmd)

			inPath, _ := cmd.Flags().GetString("in")
			if inPath == "" {
				inPath = cfg.LockFilePath
			}

			dryRun, _ := cmd.Flags().GetBool("dry-run")
			cfg.DryRun = dryRun || cfg.DryRun

			uninstallExtra, _ := cmd.Flags().GetBool("uninstall-extra")
			if !cmd.Flags().Changed("uninstall-extra") {
				uninstallExtra = cfg.UninstallExtraOnRestore
			}

			pipBinary, _ := cmd.Flags().GetString("pip")
			if pipBinary != "" {
				cfg.PipBinary = pipBinary
			}

			data, err := os.ReadFile(inPath)
			if err != nil {
				exitCode = exitGeneralError

				return fmt.Errorf("reading lock file %s: %w", inPath, err)
			}

			f, err := lockfile.Unmarshal(data)
			if err != nil {
				exitCode = exitGeneralError

				return err
			}

			m, err := buildGraph(cmd, logger)
			if err != nil {
				exitCode = exitGeneralError

				return err
			}

			policy := lockfile.KeepExtra
			if uninstallExtra {
				policy = lockfile.UninstallExtra
			}

			plan := lockfile.Restore(f, m, policy)

			executor := planexec.New(planexec.NewPipAdapter(cfg.PipBinary),
				planexec.WithLogger(logger),
				planexec.WithDryRun(cfg.DryRun),
			)

			result := executor.Apply(ctx, plan)

			doc := report.Build(nil, plan)
			if err := printReport(cmd, doc); err != nil {
				exitCode = exitGeneralError

				return err
			}

			exitCode = exitOK

			if !result.Completed {
				exitCode = exitConflictsLeft
			}

			for _, item := range result.Items {
				if !item.Succeeded() {
					exitCode = exitConflictsLeft
				}
			}

			return nil
		},
	}

	cmd.Flags().String("in", "", "Lock file input path (default: requirements.lock.json)")
	cmd.Flags().Bool("dry-run", false, "Log intended package-manager invocations (shown with --verbose) without applying them")
	cmd.Flags().Bool("uninstall-extra", false, "Uninstall packages present in the environment but absent from the lock file")
	cmd.Flags().String("pip", "", "pip-compatible executable to invoke (default: pip)")

	return cmd
}

func mustBool(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)

	return v
}
