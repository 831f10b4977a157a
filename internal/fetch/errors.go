package fetch

import (
	"errors"
	"fmt"
)

// Error represents a failed fetch. Callers never retry within the same tick;
// the next scheduled poll is the retry mechanism.
type Error struct {
	SourceID   string
	StatusCode int  // Non-zero for HTTP error responses
	Timeout    bool // True when the request exceeded its deadline
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("fetch %s: timed out", e.SourceID)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.SourceID, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %s: %v", e.SourceID, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a fetch timeout.
func IsTimeout(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Timeout
}
