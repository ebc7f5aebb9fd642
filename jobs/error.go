package jobs

import "github.com/filehaven/filehaven/errors"

// ErrInvalidState is returned when an operation targets a job whose
// current status does not permit it, e.g. cancelling a Running job or
// completing one that is not Running.
var ErrInvalidState = errors.New("job is not in a valid state for this operation")

// IsInvalidState reports whether err stems from a disallowed status
// transition.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}
