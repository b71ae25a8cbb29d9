package source

import (
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by UpstreamError when a page or feed cannot be
// parsed into a snapshot.
var ErrMalformed = errors.New("malformed payload")

// UpstreamError reports a failed fetch: transport error, non-2xx status or
// unparsable payload.
type UpstreamError struct {
	Source string
	URL    string
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: GET %s: status %d", e.Source, e.URL, e.Status)
	}
	return fmt.Sprintf("%s: GET %s: %v", e.Source, e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...)
}
