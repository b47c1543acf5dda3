// Package toolsync keeps auxiliary tools that live outside the package
// manager aligned with their latest published release.
package toolsync

import (
	"context"
	"log/slog"

	"github.com/containerbox/boxprov/pkg/release"
)

// Tool is one synchronizable tool: it knows its installed version, its
// latest published version, and how to install a given version.
type Tool interface {
	Name() string
	Installed(ctx context.Context) (release.Release, error)
	Latest(ctx context.Context) (release.Release, error)
	Install(ctx context.Context, version release.Release) error
}

// Result records the outcome of synchronizing one tool.
type Result struct {
	Tool    string
	Before  release.Release
	Latest  release.Release
	Updated bool
	Err     error
}

// Synchronizer aligns a set of tools with their upstream releases.
type Synchronizer struct {
	tools []Tool
}

// NewSynchronizer builds a Synchronizer over the given tools.
func NewSynchronizer(tools ...Tool) *Synchronizer {
	return &Synchronizer{tools: tools}
}

// Sync checks every tool and installs the latest version where the
// installed one differs at any component. Per-tool failures are recorded in
// the result, never fatal; the next run retries.
func (s *Synchronizer) Sync(ctx context.Context) []Result {
	results := make([]Result, 0, len(s.tools))
	for _, tool := range s.tools {
		results = append(results, s.syncOne(ctx, tool))
	}
	return results
}

func (s *Synchronizer) syncOne(ctx context.Context, tool Tool) Result {
	result := Result{Tool: tool.Name()}

	latest, err := tool.Latest(ctx)
	if err != nil {
		slog.Warn("toolsync_latest_failed", "tool", tool.Name(), "error", err)
		result.Err = err
		return result
	}
	result.Latest = latest

	installed, err := tool.Installed(ctx)
	if err != nil {
		slog.Warn("toolsync_installed_failed", "tool", tool.Name(), "error", err)
		result.Err = err
		return result
	}
	result.Before = installed

	if installed == latest {
		slog.Info("toolsync_up_to_date", "tool", tool.Name(), "version", installed)
		return result
	}

	slog.Info("toolsync_installing", "tool", tool.Name(), "installed", installed, "latest", latest)
	if err := tool.Install(ctx, latest); err != nil {
		slog.Warn("toolsync_install_failed", "tool", tool.Name(), "version", latest, "error", err)
		result.Err = err
		return result
	}

	result.Updated = true
	return result
}
