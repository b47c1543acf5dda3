package provision

import (
	"context"
	"time"

	"github.com/containerbox/boxprov/pkg/release"
	"github.com/containerbox/boxprov/pkg/system"
)

// VerificationError reports a tool that failed its post-provisioning check.
type VerificationError struct {
	Tool string
	Err  error
}

func (e *VerificationError) Error() string {
	return e.Tool + " verification failed: " + e.Err.Error()
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// Check is the verified version of one tool.
type Check struct {
	Tool    string
	Version release.Release
}

var verifyCommands = []struct {
	tool string
	args []string
}{
	{tool: "docker", args: []string{"--version"}},
	{tool: "docker-compose", args: []string{"version"}},
}

// Verifier confirms the container tooling answers with a parseable version.
type Verifier struct {
	runner  system.Runner
	timeout time.Duration
}

// NewVerifier builds a Verifier on top of the given runner.
func NewVerifier(runner system.Runner, timeout time.Duration) *Verifier {
	return &Verifier{runner: runner, timeout: timeout}
}

// Verify runs every tool's version command. It stops at the first failure
// so the error names the offending tool.
func (v *Verifier) Verify(ctx context.Context) ([]Check, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	checks := make([]Check, 0, len(verifyCommands))
	for _, command := range verifyCommands {
		out, err := v.runner.Output(ctx, command.tool, command.args...)
		if err != nil {
			return checks, &VerificationError{Tool: command.tool, Err: err}
		}

		version, err := release.Extract(out)
		if err != nil {
			return checks, &VerificationError{Tool: command.tool, Err: err}
		}

		checks = append(checks, Check{Tool: command.tool, Version: version})
	}
	return checks, nil
}
