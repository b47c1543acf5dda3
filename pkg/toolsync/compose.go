package toolsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/containerbox/boxprov/pkg/release"
	"github.com/containerbox/boxprov/pkg/system"
)

// ComposeConfig locates the compose release feed and the install target.
type ComposeConfig struct {
	// ReleaseAPI is the endpoint describing the latest published release.
	ReleaseAPI string
	// DownloadURL is the base URL binaries are published under.
	DownloadURL string
	// BinPath is where the binary is installed.
	BinPath string
	// MaxBytes bounds the downloaded binary size.
	MaxBytes int64

	APITimeout      time.Duration
	DownloadTimeout time.Duration
}

// Compose synchronizes the standalone compose binary, which is distributed
// as a direct download rather than through the package manager.
type Compose struct {
	runner   system.Runner
	cfg      ComposeConfig
	api      *http.Client
	download *http.Client
}

// NewCompose builds a Compose tool from the given configuration.
func NewCompose(runner system.Runner, cfg ComposeConfig) *Compose {
	return &Compose{
		runner:   runner,
		cfg:      cfg,
		api:      &http.Client{Timeout: cfg.APITimeout},
		download: &http.Client{Timeout: cfg.DownloadTimeout},
	}
}

// Name implements Tool.
func (c *Compose) Name() string {
	return "docker-compose"
}

// Installed reports the version of the installed binary. A missing or
// broken binary yields Unknown, which triggers a fresh install.
func (c *Compose) Installed(ctx context.Context) (release.Release, error) {
	if _, err := c.runner.LookPath("docker-compose"); err != nil {
		return release.Unknown, nil
	}

	out, err := c.runner.Output(ctx, "docker-compose", "version")
	if err != nil {
		slog.Warn("compose_version_failed", "error", err)
		return release.Unknown, nil
	}

	version, err := release.Extract(out)
	if err != nil {
		slog.Warn("compose_version_unparseable", "output", out)
		return release.Unknown, nil
	}
	return version, nil
}

// Latest queries the release feed for the newest published tag.
func (c *Compose) Latest(ctx context.Context) (release.Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ReleaseAPI, nil)
	if err != nil {
		return release.Unknown, fmt.Errorf("building release request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "boxprov")

	resp, err := c.api.Do(req)
	if err != nil {
		return release.Unknown, fmt.Errorf("fetching latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return release.Unknown, fmt.Errorf("release endpoint returned status %d", resp.StatusCode)
	}

	var payload struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return release.Unknown, fmt.Errorf("decoding release response: %w", err)
	}

	version, err := release.Parse(payload.TagName)
	if err != nil {
		return release.Unknown, fmt.Errorf("parsing release tag: %w", err)
	}
	return version, nil
}

// Install downloads the binary for this platform and moves it into place
// atomically, executable bit set.
func (c *Compose) Install(ctx context.Context, version release.Release) error {
	url := fmt.Sprintf("%s/v%s/docker-compose-%s-%s",
		c.cfg.DownloadURL, version, system.OS(), system.Arch())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building download request: %w", err)
	}
	req.Header.Set("User-Agent", "boxprov")

	resp, err := c.download.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned status %d for %s", resp.StatusCode, url)
	}

	dir := filepath.Dir(c.cfg.BinPath)
	tmp, err := os.CreateTemp(dir, ".docker-compose-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	digest := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, digest), io.LimitReader(resp.Body, c.cfg.MaxBytes+1))
	if err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if written > c.cfg.MaxBytes {
		tmp.Close()
		return fmt.Errorf("download exceeds %d bytes", c.cfg.MaxBytes)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}

	if err := os.Chmod(tmpName, 0o755); err != nil {
		return fmt.Errorf("marking %s executable: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, c.cfg.BinPath); err != nil {
		return fmt.Errorf("installing %s: %w", c.cfg.BinPath, err)
	}

	slog.Info("compose_installed",
		"version", version,
		"bin_path", c.cfg.BinPath,
		"bytes", written,
		"sha256", hex.EncodeToString(digest.Sum(nil)))
	return nil
}
