// Package release models distribution release versions and determines the
// current and latest available release of the guest OS.
package release

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Release is an ordered major.minor.patch triple. The zero value is the
// Unknown sentinel, reported when the local release file cannot be read.
type Release struct {
	Major int
	Minor int
	Patch int
}

// Unknown is the sentinel for an undetermined release.
var Unknown = Release{}

// Parse converts a version string such as "3.20.3" or "v2.29.7" into a
// Release. An optional leading "v" is accepted; exactly three numeric
// components are required.
func Parse(raw string) (Release, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	parts := strings.Split(trimmed, ".")
	if len(parts) != 3 {
		return Unknown, fmt.Errorf("invalid release %q: want major.minor.patch", raw)
	}

	var numbers [3]int
	for i, part := range parts {
		value, err := strconv.Atoi(part)
		if err != nil {
			return Unknown, fmt.Errorf("invalid release %q: component %q: %w", raw, part, err)
		}
		if value < 0 {
			return Unknown, fmt.Errorf("invalid release %q: negative component", raw)
		}
		numbers[i] = value
	}

	return Release{Major: numbers[0], Minor: numbers[1], Patch: numbers[2]}, nil
}

var releasePattern = regexp.MustCompile(`v?(\d+)\.(\d+)\.(\d+)`)

// Extract finds the first major.minor.patch triple embedded in free-form
// text, such as the output of a tool's version command.
func Extract(text string) (Release, error) {
	match := releasePattern.FindStringSubmatch(text)
	if match == nil {
		return Unknown, fmt.Errorf("no release triple in %q", strings.TrimSpace(text))
	}
	return Parse(strings.TrimPrefix(match[0], "v"))
}

// String renders the triple as "major.minor.patch", or "unknown" for the
// sentinel.
func (r Release) String() string {
	if r.IsUnknown() {
		return "unknown"
	}
	return fmt.Sprintf("%d.%d.%d", r.Major, r.Minor, r.Patch)
}

// MajorMinor renders the two leading components, the granularity used for
// upgrade decisions and mirror selection.
func (r Release) MajorMinor() string {
	return fmt.Sprintf("%d.%d", r.Major, r.Minor)
}

// IsUnknown reports whether r is the Unknown sentinel.
func (r Release) IsUnknown() bool {
	return r == Unknown
}

// Compare returns -1, 0, or 1 as r is older than, equal to, or newer than
// other, ordering by the full triple.
func (r Release) Compare(other Release) int {
	pairs := [3][2]int{
		{r.Major, other.Major},
		{r.Minor, other.Minor},
		{r.Patch, other.Patch},
	}
	for _, pair := range pairs {
		if pair[0] < pair[1] {
			return -1
		}
		if pair[0] > pair[1] {
			return 1
		}
	}
	return 0
}

// SameMajorMinor reports whether r and other share the two leading
// components. Patch-level differences do not trigger a release upgrade.
func (r Release) SameMajorMinor(other Release) bool {
	return r.Major == other.Major && r.Minor == other.Minor
}
