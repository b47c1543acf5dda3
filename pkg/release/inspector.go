package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoRelease is returned when the release listing contains no parseable
// version entry.
var ErrNoRelease = errors.New("release listing has no usable entries")

const maxListingBytes = 1 << 20

// Inspector reads the local release file and queries the distribution's
// published release listing.
type Inspector struct {
	releaseFile string
	listingURL  string
	client      *http.Client
}

// NewInspector builds an Inspector over the given release file path and
// listing URL. The timeout bounds the listing fetch.
func NewInspector(releaseFile, listingURL string, timeout time.Duration) *Inspector {
	return &Inspector{
		releaseFile: releaseFile,
		listingURL:  listingURL,
		client:      &http.Client{Timeout: timeout},
	}
}

// Current reads the installed release from the local release file. Any
// failure to read or parse yields Unknown; an undetermined version is a
// valid state, not an error.
func (i *Inspector) Current() Release {
	raw, err := os.ReadFile(i.releaseFile)
	if err != nil {
		return Unknown
	}
	current, err := Parse(string(raw))
	if err != nil {
		return Unknown
	}
	return current
}

type listingEntry struct {
	Title   string `yaml:"title"`
	Branch  string `yaml:"branch"`
	Version string `yaml:"version"`
}

// Latest fetches the release listing and returns the highest version it
// advertises. Entries without a parseable version are skipped.
func (i *Inspector) Latest(ctx context.Context) (Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.listingURL, nil)
	if err != nil {
		return Unknown, fmt.Errorf("building listing request: %w", err)
	}
	req.Header.Set("User-Agent", "boxprov")

	resp, err := i.client.Do(req)
	if err != nil {
		return Unknown, fmt.Errorf("fetching release listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Unknown, fmt.Errorf("release listing returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBytes))
	if err != nil {
		return Unknown, fmt.Errorf("reading release listing: %w", err)
	}

	var entries []listingEntry
	if err := yaml.Unmarshal(body, &entries); err != nil {
		return Unknown, fmt.Errorf("parsing release listing: %w", err)
	}

	latest := Unknown
	for _, entry := range entries {
		version, err := Parse(entry.Version)
		if err != nil {
			continue
		}
		if latest.IsUnknown() || version.Compare(latest) > 0 {
			latest = version
		}
	}
	if latest.IsUnknown() {
		return Unknown, ErrNoRelease
	}
	return latest, nil
}
