package submit

import "errors"

var (
	// ErrRejected is returned when the chain rejects a transaction for a
	// non-recoverable reason. The submission must not be retried.
	ErrRejected = errors.New("transaction rejected")

	// ErrMaxAttempts is returned when retries are exhausted without the
	// transaction being accepted.
	ErrMaxAttempts = errors.New("max submission attempts exhausted")

	// ErrNoMessages is returned for a submission without messages.
	ErrNoMessages = errors.New("no messages to submit")
)
