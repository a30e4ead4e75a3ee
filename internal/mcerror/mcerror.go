// Package mcerror defines the error-kind taxonomy from the core's error
// handling design: a single wrapped-error type distinguishing business
// errors the caller should surface verbatim from transport errors that the
// fetch layer retries, with kinds named after those in the original McPatch2
// error.rs / BusinessError types.
package mcerror

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which category of failure an Error represents.
type Kind string

const (
	// KindConfigMissing indicates a required configuration file was absent.
	KindConfigMissing Kind = "config-missing"
	// KindConfigInvalid indicates a configuration file failed to parse or
	// validate.
	KindConfigInvalid Kind = "config-invalid"
	// KindNoServerVersions indicates the server's index contains no
	// versions at all.
	KindNoServerVersions Kind = "no-server-versions"
	// KindUnknownLocalVersion indicates the client's local version label is
	// not present in the server's index.
	KindUnknownLocalVersion Kind = "unknown-local-version"
	// KindNoChanges indicates a pack operation found nothing to record.
	KindNoChanges Kind = "no-changes"
	// KindLabelExists indicates a pack operation's label already exists in
	// the index.
	KindLabelExists Kind = "label-exists"
	// KindNetworkTransport indicates a connect/read/write failure that the
	// fetch layer may retry or fail over past.
	KindNetworkTransport Kind = "network-transport"
	// KindNetworkBusiness indicates a well-formed request the server
	// refused (404, bad range, wrong content length); never retried or
	// failed over.
	KindNetworkBusiness Kind = "network-business"
	// KindHashMismatch indicates a staged or tested file's content hash did
	// not match its declared hash.
	KindHashMismatch Kind = "hash-mismatch"
	// KindCorruptArchive indicates a metadata sequence violated a replay
	// invariant, or the archive tester found a mismatch.
	KindCorruptArchive Kind = "corrupt-archive"
	// KindIO indicates a local filesystem operation failed.
	KindIO Kind = "io-error"
)

// Error is the core's single error type. It carries a Kind so that callers
// (particularly the fetch layer and the client pipeline) can branch on
// failure category without string matching, plus a human-readable reason
// and, for wrapped errors, an underlying cause.
type Error struct {
	Kind   Kind
	Reason string
	cause  error
}

// New creates an Error of the given kind with a formatted reason.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind, wrapping cause with a reason,
// mirroring the teacher's use of github.com/pkg/errors.Wrap to attach
// context while preserving the original error for inspection.
func Wrap(cause error, kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:   kind,
		Reason: errors.Wrap(cause, fmt.Sprintf(format, args...)).Error(),
		cause:  cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Reason
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsBusiness reports whether err is a business-level error (one that the
// fetch layer must surface immediately rather than retry or fail over).
func IsBusiness(err error) bool {
	return Is(err, KindNetworkBusiness)
}

// IsTransport reports whether err is a transport-level error (one that the
// fetch layer may retry within a source, then fail over to the next).
func IsTransport(err error) bool {
	return Is(err, KindNetworkTransport)
}
