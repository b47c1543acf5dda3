package repos

import "errors"

// IsWriteError reports whether err stems from a failed repository list
// mutation.
func IsWriteError(err error) bool {
	var writeErr *WriteError
	return errors.As(err, &writeErr)
}
