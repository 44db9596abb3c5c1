package planexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// PipAdapter drives a pip-compatible command-line package manager as
// the Adapter. It shells out rather than linking against any Python
// machinery, matching the package-manager invocation being an external
// collaborator, not something this core reimplements.
type PipAdapter struct {
	binary string // e.g. "pip" or "/path/to/venv/bin/pip"
}

var _ Adapter = (*PipAdapter)(nil)

// NewPipAdapter creates an Adapter that invokes binary (a pip-compatible
// executable) for uninstall, install, and list operations.
func NewPipAdapter(binary string) *PipAdapter {
	if binary == "" {
		binary = "pip"
	}

	return &PipAdapter{binary: binary}
}

func (p *PipAdapter) Uninstall(ctx context.Context, name string) (Outcome, error) {
	return p.run(ctx, "uninstall", "--yes", name)
}

func (p *PipAdapter) Install(ctx context.Context, name, version string) (Outcome, error) {
	return p.run(ctx, "install", "--no-deps", fmt.Sprintf("%s==%s", name, version))
}

func (p *PipAdapter) ListInstalled(ctx context.Context) ([]InstalledPackage, error) {
	outcome, err := p.run(ctx, "list", "--format", "freeze")
	if err != nil {
		return nil, err
	}

	return parseFreeze(outcome.Output), nil
}

func (p *PipAdapter) run(ctx context.Context, args ...string) (Outcome, error) {
	cmd := exec.CommandContext(ctx, p.binary, args...)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	runErr := cmd.Run()

	outcome := Outcome{
		Command: p.binary + " " + strings.Join(args, " "),
		Output:  buf.String(),
	}

	var exitErr *exec.ExitError
	if runErr != nil {
		if asExitError(runErr, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()

			return outcome, nil
		}

		return outcome, fmt.Errorf("running %s: %w", outcome.Command, runErr)
	}

	return outcome, nil
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee

		return true
	}

	return false
}

// parseFreeze parses `pip list --format freeze` output, one
// "name==version" pair per line.
func parseFreeze(output string) []InstalledPackage {
	var pkgs []InstalledPackage

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, version, found := strings.Cut(line, "==")
		if !found {
			continue
		}

		pkgs = append(pkgs, InstalledPackage{Name: name, Version: version})
	}

	return pkgs
}
