package analyses

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("analysis not found")
	// ErrInvalidTransition indicates a status update was refused
	// because the record is not in a state the update may leave.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidUpload indicates the submission itself is malformed
	// (missing file, wrong type, empty content) and should surface as
	// a client error rather than a server failure.
	ErrInvalidUpload = errors.New("invalid upload")
)
