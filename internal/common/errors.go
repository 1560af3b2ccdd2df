// Package common defines shared constants and sentinel errors used across
// the device and mirror server layers of clipkeeper. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Entity invariants.
	ErrFolderCycle   = errors.New("folder cycle")
	ErrInvalidParent = errors.New("parent is not a folder")
	ErrUnknownTag    = errors.New("unknown tag")
	ErrUnknownKind   = errors.New("unknown entity kind")

	// Remote mirror errors. Both are retryable.
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrRemoteRejected     = errors.New("remote rejected")

	// Sync coordination.
	ErrSyncInProgress = errors.New("sync already in progress")

	// Import errors.
	ErrMalformedImport = errors.New("malformed import")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// IsRetryable reports whether err is a remote failure that the caller may
// retry later without losing data.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable) || errors.Is(err, ErrRemoteRejected)
}
