package ledger

import "errors"

var (
	// ErrInsufficientFunds rejects an open or transfer whose amount
	// exceeds the available sub-balance. Not retryable.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrTradeNotFound rejects a close for an unknown trade id.
	ErrTradeNotFound = errors.New("trade not found")

	// ErrNotOwner rejects a close attempted by a user other than the
	// trade's owner.
	ErrNotOwner = errors.New("trade does not belong to user")

	// ErrAlreadyClosed rejects a second close on the same trade. The
	// active -> closed transition succeeds exactly once; callers racing
	// the monitor sweep see this error and must not treat it as fatal.
	ErrAlreadyClosed = errors.New("trade already closed")

	// ErrInvalidRequest rejects malformed open/transfer parameters.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrTransientStorage wraps storage failures that survived the
	// bounded retry loop. Callers may retry the whole operation.
	ErrTransientStorage = errors.New("transient storage error")
)

// domainError reports whether err is one of the ledger's terminal
// errors, which must never be retried.
func domainError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrTradeNotFound) ||
		errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrAlreadyClosed) ||
		errors.Is(err, ErrInvalidRequest)
}
