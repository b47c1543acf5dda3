package system

import "runtime"

// Arch returns the distribution's name for the current CPU architecture.
// Release listings and binary artifacts are keyed by these names rather
// than by Go's GOARCH values.
func Arch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "x86"
	case "arm":
		return "armv7"
	default:
		return runtime.GOARCH
	}
}

// OS returns the operating-system name used in artifact file names.
func OS() string {
	return runtime.GOOS
}
