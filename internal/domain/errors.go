package domain

import (
	"errors"
)

// Common domain errors
var (
	ErrInvalidSource    = errors.New("invalid source url")
	ErrCancelled        = errors.New("transfer cancelled")
	ErrNoActiveTransfer = errors.New("no active transfer")
	ErrNothingToStart   = errors.New("no url supplied and nothing to resume")
	ErrFinalizeFailed   = errors.New("failed to move payload to final destination")
)

// Failure kinds produced when transport errors are classified at the
// session boundary. Observers never see raw transport errors, only these.
const (
	FailureCancelled     = "cancelled"
	FailureResumable     = "resumable"
	FailureUnrecoverable = "unrecoverable"
)

// TransferError wraps a transport-layer error with its classification.
type TransferError struct {
	Kind string
	Err  error
}

// Error returns the error message
func (e *TransferError) Error() string {
	if e.Err != nil {
		return e.Kind + ": " + e.Err.Error()
	}
	return e.Kind
}

// Unwrap returns the underlying error
func (e *TransferError) Unwrap() error {
	return e.Err
}

// NewTransferError creates a classified transfer error
func NewTransferError(kind string, err error) *TransferError {
	return &TransferError{Kind: kind, Err: err}
}

// IsCancelled returns true for user-initiated cancellations, which are
// never surfaced as errors.
func IsCancelled(err error) bool {
	if errors.Is(err, ErrCancelled) {
		return true
	}
	var te *TransferError
	return errors.As(err, &te) && te.Kind == FailureCancelled
}

// IsResumable returns true if the failure carried a resume token.
func IsResumable(err error) bool {
	var te *TransferError
	return errors.As(err, &te) && te.Kind == FailureResumable
}
