package domain

import "errors"

// Error taxonomy shared by the cart engine, the stores and the HTTP boundary.
// Wrap with fmt.Errorf("%w: reason") and match with errors.Is.
var (
	// ErrNotFound marks a referenced cart/purchase/SKU/tag that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an operation that would violate a uniqueness or
	// settlement precondition (duplicate tag, duplicate burn transaction,
	// second loyalty card, unsettled points).
	ErrConflict = errors.New("conflict")
	// ErrRejected marks a close-time business rule violation. The wrapped
	// message carries the reason shown to the caller.
	ErrRejected = errors.New("rejected")
	// ErrBadRequest marks malformed input from the boundary, typically an
	// identifier that does not parse.
	ErrBadRequest = errors.New("bad request")
)
