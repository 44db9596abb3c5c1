// Package markerenv parses PEP 508 requirement strings and evaluates
// environment markers against a marker environment, which Detector can
// probe from a host Python interpreter.
package markerenv

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// hostScript is the single Python command that collects the marker
// inputs this package understands. It intentionally mirrors only the
// fields EvalMarker consumes, not a full PEP 508 environment.
const hostScript = `import sys
print(f'{sys.version_info.major}.{sys.version_info.minor}')
print(sys.platform)
print('posix' if sys.platform != 'win32' else 'nt')`

const expectedOutputLines = 3

// CommandRunner executes a command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Env holds the PEP 508 marker environment variables this package
// evaluates: python_version, sys_platform, os_name.
type Env struct {
	PythonVersion string
	SysPlatform   string
	OsName        string
}

// Option configures a Detector.
type Option func(*Detector)

// WithPythonBin sets the python binary path used to probe the host.
// Defaults to "python3".
func WithPythonBin(bin string) Option {
	return func(d *Detector) {
		if bin != "" {
			d.pythonBin = bin
		}
	}
}

// WithCommandRunner overrides how the probe command is executed.
// Defaults to exec.CommandContext.
func WithCommandRunner(fn CommandRunner) Option {
	return func(d *Detector) {
		if fn != nil {
			d.runCmd = fn
		}
	}
}

// Detector probes a host Python interpreter for the marker
// environment variables EvalMarker needs. With a zero-value Env every
// marker variable resolves to the empty string, so EvalMarker compares
// against "" and terms such as python_version < "3.10" or
// sys_platform == "linux" evaluate false.
type Detector struct {
	pythonBin string
	runCmd    CommandRunner
}

// New creates a marker-environment detector.
func New(opts ...Option) *Detector {
	d := &Detector{
		pythonBin: "python3",
		runCmd:    defaultRunCmd,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Detect probes the configured Python binary and returns the marker
// environment it reports. Callers that have no live interpreter
// available (e.g. restoring a lock file with no Python on PATH)
// should skip calling Detect and pass the zero Env instead.
func (d *Detector) Detect(ctx context.Context) (Env, error) {
	output, err := d.runCmd(ctx, d.pythonBin, "-c", hostScript)
	if err != nil {
		return Env{}, fmt.Errorf("probing marker environment via %s: %w", d.pythonBin, err)
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) != expectedOutputLines {
		return Env{}, fmt.Errorf("unexpected output from %s: expected %d lines, got %d",
			d.pythonBin, expectedOutputLines, len(lines))
	}

	return Env{
		PythonVersion: strings.TrimSpace(lines[0]),
		SysPlatform:   strings.TrimSpace(lines[1]),
		OsName:        strings.TrimSpace(lines[2]),
	}, nil
}

func defaultRunCmd(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
