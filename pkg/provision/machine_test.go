package provision

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/superfly/fsm"

	"github.com/containerbox/boxprov/pkg/apk"
	"github.com/containerbox/boxprov/pkg/persist"
	"github.com/containerbox/boxprov/pkg/reboot"
	"github.com/containerbox/boxprov/pkg/release"
	"github.com/containerbox/boxprov/pkg/repos"
	"github.com/containerbox/boxprov/pkg/state"
	"github.com/containerbox/boxprov/pkg/toolsync"
)

const initialRepoList = "https://dl-cdn.alpinelinux.org/alpine/v3.19/main\n" +
	"https://dl-cdn.alpinelinux.org/alpine/v3.19/community\n"

type fakeRunner struct {
	commands []string
	outputs  map[string]string
	failures map[string]error
	missing  map[string]bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs: map[string]string{
			"docker --version":       "Docker version 27.2.0, build 3ab4256",
			"docker-compose version": "Docker Compose version v2.29.7",
		},
		failures: map[string]error{},
		missing:  map[string]bool{},
	}
}

func commandKey(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	k := commandKey(name, args...)
	f.commands = append(f.commands, k)
	return f.failures[k]
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) (string, error) {
	k := commandKey(name, args...)
	f.commands = append(f.commands, k)
	return f.outputs[k], f.failures[k]
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.missing[name] {
		return "", os.ErrNotExist
	}
	return "/sbin/" + name, nil
}

func (f *fakeRunner) ran(key string) bool {
	for _, command := range f.commands {
		if command == key {
			return true
		}
	}
	return false
}

type fakeTool struct {
	installed  release.Release
	latest     release.Release
	latestErr  error
	installErr error
}

func (f *fakeTool) Name() string { return "docker-compose" }

func (f *fakeTool) Installed(context.Context) (release.Release, error) {
	return f.installed, nil
}

func (f *fakeTool) Latest(context.Context) (release.Release, error) {
	return f.latest, f.latestErr
}

func (f *fakeTool) Install(context.Context, release.Release) error {
	return f.installErr
}

type fixture struct {
	machine   *Machine
	runner    *fakeRunner
	tool      *fakeTool
	switcher  *repos.Switcher
	tracker   *state.Tracker
	scheduler *reboot.Scheduler
	listing   string
}

func setupMachine(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	releaseFile := filepath.Join(dir, "alpine-release")
	require.NoError(t, os.WriteFile(releaseFile, []byte("3.19.1\n"), 0o644))

	repoFile := filepath.Join(dir, "repositories")
	require.NoError(t, os.WriteFile(repoFile, []byte(initialRepoList), 0o644))

	f := &fixture{
		runner:  newFakeRunner(),
		tool:    &fakeTool{installed: release.Release{Major: 2, Minor: 29, Patch: 7}, latest: release.Release{Major: 2, Minor: 29, Patch: 7}},
		listing: "- title: Virtual\n  branch: v3.20\n  version: 3.20.3\n",
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.listing == "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(f.listing))
	}))
	t.Cleanup(server.Close)

	f.switcher = repos.NewSwitcher(repoFile, "https://dl-cdn.alpinelinux.org/alpine")
	f.tracker = state.NewTracker(filepath.Join(dir, "provisioned"))
	f.scheduler = reboot.NewScheduler(filepath.Join(dir, "reboot-pending"), time.Millisecond, f.runner)

	f.machine = NewMachine(Deps{
		Inspector:    release.NewInspector(releaseFile, server.URL, time.Second),
		Switcher:     f.switcher,
		Apk:          apk.NewExecutor(f.runner, time.Minute),
		Committer:    persist.NewCommitter(f.runner, time.Minute),
		Tracker:      f.tracker,
		Synchronizer: toolsync.NewSynchronizer(f.tool),
		Scheduler:    f.scheduler,
		Verifier:     NewVerifier(f.runner, time.Minute),
		Runner:       f.runner,
		Packages:     []string{"docker"},
		Service:      "docker",
		SetupTimeout: time.Minute,
		MaxRetries:   5,
	})
	return f
}

func newRequest(out *ProvisionResponse) *fsm.Request[ProvisionRequest, ProvisionResponse] {
	return fsm.NewRequest(&ProvisionRequest{Trigger: "test"}, out)
}

func (f *fixture) repoContents(t *testing.T) string {
	t.Helper()
	current, err := f.switcher.Current()
	require.NoError(t, err)
	return current
}
