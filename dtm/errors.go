package dtm

import "errors"

var (
	// ErrInvalidVector reports a nil, empty or otherwise malformed vector.
	ErrInvalidVector = errors.New("invalid vector")

	// ErrMismatchedLinks reports paired vectors that do not reference the same links.
	ErrMismatchedLinks = errors.New("mismatched link sets")

	// ErrUnsupportedLinkID reports a link identifier of a kind this deployment does not handle.
	ErrUnsupportedLinkID = errors.New("unsupported link identifier")

	// ErrNotFound reports a missing directory entry.
	ErrNotFound = errors.New("not found")

	// ErrDispatcherClosed is returned by Submit after Close or context cancellation.
	ErrDispatcherClosed = errors.New("dispatcher closed")

	// ErrDispatcherNotStarted is returned by Submit before Start.
	ErrDispatcherNotStarted = errors.New("dispatcher not started")
)
