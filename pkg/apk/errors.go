package apk

import "errors"

// IsNetworkError reports whether err stems from a failed index refresh.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsUpgradeError reports whether err stems from a failed upgrade or
// install.
func IsUpgradeError(err error) bool {
	var upErr *UpgradeError
	return errors.As(err, &upErr)
}
