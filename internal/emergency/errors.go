// Package emergency implements guardian emergency access: token issuance
// and validation, permission-scoped document disclosure, and the guardian
// HTTP endpoints.
package emergency

import "errors"

var (
	// ErrInvalidOrExpiredToken covers unknown, deactivated and expired tokens.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrVerificationRequired asks the caller to prompt for the code. Not terminal.
	ErrVerificationRequired = errors.New("verification code required")
	// ErrInvalidVerificationCode means the code did not match.
	ErrInvalidVerificationCode = errors.New("invalid verification code")
	// ErrNotFound is a missing guardian, document, or storage object.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the guardian's permissions do not cover the document.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidStoragePath is a server-side fault in a document's file URL.
	ErrInvalidStoragePath = errors.New("invalid storage path")
	// ErrInternal wraps infrastructure failures.
	ErrInternal = errors.New("internal error")
)
