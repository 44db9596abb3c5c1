// Package planexec translates a resolved Plan into ordered subprocess
// calls against an external package manager, handling dry-run and
// best-effort per-item continuation on failure.
package planexec

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pipaudit/pipaudit/internal/resolve"
)

// InstalledPackage is one entry returned by Adapter.ListInstalled.
type InstalledPackage struct {
	Name    string
	Version string
}

// Adapter is the minimum surface the plan executor needs from the
// external package manager. The core never shells out to pip (or any
// other manager) directly; callers supply a concrete Adapter, commonly
// one that wraps exec.CommandContext.
type Adapter interface {
	Uninstall(ctx context.Context, name string) (Outcome, error)
	Install(ctx context.Context, name, version string) (Outcome, error)
	ListInstalled(ctx context.Context) ([]InstalledPackage, error)
}

// Outcome captures a single subprocess invocation's exit status and
// captured output, regardless of whether the invocation itself
// returned a Go error.
type Outcome struct {
	Command  string
	ExitCode int
	Output   string
}

// ItemResult records what happened when the executor applied one
// Plan item.
type ItemResult struct {
	PackageName string
	FromVersion string
	ToVersion   string
	DryRun      bool
	Uninstall   Outcome
	Install     Outcome
	Err         error
}

// Succeeded reports whether both subprocess calls for this item, if
// run, exited zero and produced no Go-level error.
func (r ItemResult) Succeeded() bool {
	if r.Err != nil {
		return false
	}

	if r.DryRun {
		return true
	}

	return r.Uninstall.ExitCode == 0 && r.Install.ExitCode == 0
}

// Report is the outcome of executing an entire Plan.
type Report struct {
	Items     []ItemResult
	Completed bool // false if the context was canceled partway through
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDryRun makes Apply log the intended invocations at Info level
// and return without calling the adapter.
func WithDryRun(dryRun bool) Option {
	return func(e *Executor) {
		e.dryRun = dryRun
	}
}

// Executor applies a resolve.Plan by driving an Adapter, one item at a
// time, in the plan's order.
type Executor struct {
	adapter Adapter
	logger  *slog.Logger
	dryRun  bool
}

// New creates an Executor backed by adapter.
func New(adapter Adapter, opts ...Option) *Executor {
	e := &Executor{
		adapter: adapter,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Apply executes every item in plan in order. It never aborts on a
// single item's failure — each item's outcome is recorded and the
// executor proceeds to the next — except when ctx is canceled between
// items, in which case Apply stops and returns a Report with
// Completed set to false.
func (e *Executor) Apply(ctx context.Context, plan resolve.Plan) Report {
	report := Report{Items: make([]ItemResult, 0, len(plan.Items)), Completed: true}

	for _, item := range plan.Items {
		if err := ctx.Err(); err != nil {
			e.logger.Debug("plan execution canceled", slog.String("error", err.Error()))

			report.Completed = false

			return report
		}

		report.Items = append(report.Items, e.applyItem(ctx, item))
	}

	return report
}

func (e *Executor) applyItem(ctx context.Context, item resolve.Item) ItemResult {
	result := ItemResult{
		PackageName: item.PackageName,
		FromVersion: item.CurrentVersion.String(),
		ToVersion:   item.TargetVersion.String(),
		DryRun:      e.dryRun,
	}

	if e.dryRun {
		e.logger.Info("dry run: would uninstall then install",
			slog.String("package", item.PackageName),
			slog.String("from", result.FromVersion),
			slog.String("to", result.ToVersion),
		)

		return result
	}

	uninstall, err := e.adapter.Uninstall(ctx, item.PackageName)
	result.Uninstall = uninstall

	if err != nil {
		result.Err = fmt.Errorf("uninstalling %s: %w", item.PackageName, err)
		e.logger.Debug("uninstall failed", slog.String("package", item.PackageName), slog.String("error", err.Error()))

		return result
	}

	// A target of the zero-value Version sentinel (ToVersion == "")
	// means this item is an uninstall with no reinstall — restore's
	// --uninstall-extra path produces these for packages absent from
	// the lock file. Calling Install with an empty version would shell
	// out "pip install name==" and fail.
	if result.ToVersion == "" {
		return result
	}

	install, err := e.adapter.Install(ctx, item.PackageName, result.ToVersion)
	result.Install = install

	if err != nil {
		result.Err = fmt.Errorf("installing %s %s: %w", item.PackageName, result.ToVersion, err)
		e.logger.Debug("install failed", slog.String("package", item.PackageName), slog.String("error", err.Error()))

		return result
	}

	if install.ExitCode != 0 {
		e.logger.Debug("install exited non-zero",
			slog.String("package", item.PackageName), slog.Int("exit_code", install.ExitCode))
	}

	return result
}
