// Package system abstracts external command execution so that callers can be
// tested with fakes, and maps Go's runtime identifiers onto the names the
// distribution and release artifacts use.
package system

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner executes external commands. Implementations must honor context
// cancellation and deadlines.
type Runner interface {
	// Run executes a command, discarding its output on success. On failure
	// the returned error carries the trailing command output.
	Run(ctx context.Context, name string, args ...string) error

	// Output executes a command and returns its standard output. On failure
	// the returned error carries the trailing standard error output.
	Output(ctx context.Context, name string, args ...string) (string, error)

	// LookPath reports the absolute path of a binary, or an error if it is
	// not installed.
	LookPath(name string) (string, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	slog.Debug("exec_run", "command", name, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, TailLines(string(out), 5))
	}
	return nil
}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	slog.Debug("exec_output", "command", name, "args", strings.Join(args, " "))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, TailLines(stderr.String(), 5))
	}
	return string(out), nil
}

func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// TailLines returns the last n non-empty lines of output, joined by "; ".
// Package-manager and service failures print their diagnosis last, so the
// tail is what belongs in an error message.
func TailLines(output string, n int) string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
