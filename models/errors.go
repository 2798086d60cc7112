package models

import "errors"

// Error taxonomy for lifecycle operations. Callers branch with errors.Is;
// controllers map these onto HTTP statuses.
var (
	// ErrValidation: missing or malformed input, reported immediately.
	ErrValidation = errors.New("validation failed")

	// ErrVerificationFailed: one or more oracle checks failed. The caller may
	// resubmit after correcting the invoice.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrDuplicateInvoice: the invoice hash already exists. Permanent.
	ErrDuplicateInvoice = errors.New("invoice already minted")

	// ErrAlreadyRegistered: the invoice is already past minted.
	ErrAlreadyRegistered = errors.New("invoice already registered")

	// ErrInvalidState: operation attempted against the wrong lifecycle state.
	ErrInvalidState = errors.New("invalid invoice state")

	// ErrInvalidAmount: purchase price outside (0, face value].
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUnauthorized: caller identity does not match the required party.
	ErrUnauthorized = errors.New("caller not authorized")

	// ErrBlacklisted: the identity's reputation crossed the blacklist threshold.
	ErrBlacklisted = errors.New("identity is blacklisted")

	// ErrTransferFailed: the external asset transfer was rejected. The
	// transition was rolled back, so retrying is safe.
	ErrTransferFailed = errors.New("asset transfer failed")

	// ErrTransferTimeout: the external asset transfer did not confirm in time.
	// The transition was aborted with no partial state.
	ErrTransferTimeout = errors.New("asset transfer timed out")

	// ErrNotFound: unknown token id or identity.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientBalance: the payer's account cannot cover the transfer.
	ErrInsufficientBalance = errors.New("insufficient balance")
)
