package backup

import "errors"

// Error taxonomy for backup and restore operations. Provider and
// workspace implementations map their own failures onto these
// sentinels; callers test with errors.Is.
var (
	// ErrInvalidIdentifier indicates a malformed owner/name or a name
	// that would escape the backup root. Caller error, never retried.
	ErrInvalidIdentifier = errors.New("invalid repository identifier")

	// ErrAuth indicates invalid or expired credentials. Never retried.
	ErrAuth = errors.New("authentication failed")

	// ErrNetwork indicates a transient transport failure. Retryable.
	ErrNetwork = errors.New("network error")

	// ErrSourceUnavailable indicates the remote resource is gone (404
	// or equivalent). Not retried.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrTargetNotEmpty is the restore pre-flight guard: the target
	// directory already has content and overwrite was not requested.
	ErrTargetNotEmpty = errors.New("restore target not empty")

	// ErrNotFound indicates a snapshot the catalog does not know about.
	ErrNotFound = errors.New("snapshot not found")

	// ErrAborted indicates an operator-cancelled or catastrophic run.
	// The snapshot directory was left without a manifest and is
	// therefore invisible to the catalog.
	ErrAborted = errors.New("backup aborted")
)
