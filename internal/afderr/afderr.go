// Package afderr classifies errors into the fixed kinds of the
// error-handling design (§7): configuration, transient/permanent network,
// filesystem, shared-memory staleness, protocol-parse, and programmer
// errors. Callers use errors.As to recover the Kind and decide whether to
// skip a file, retry a cycle, advance a host's error counter, or escalate
// to the supervisor.
package afderr

import (
	"errors"
	"fmt"
)

// Kind is one of the closed error kinds from §7.
type Kind int

// The kinds of §7, in the order they are introduced there.
const (
	Configuration Kind = iota
	TransientNetwork
	PermanentNetwork
	Filesystem
	SharedMemoryStale
	ProtocolParse
	Programmer
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case TransientNetwork:
		return "transient-network"
	case PermanentNetwork:
		return "permanent-network"
	case Filesystem:
		return "filesystem"
	case SharedMemoryStale:
		return "shared-memory-stale"
	case ProtocolParse:
		return "protocol-parse"
	case Programmer:
		return "programmer"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a classification Kind and the
// subject it happened against (a host alias, directory alias, or file name).
type Error struct {
	Kind    Kind
	Subject string
	Err     error
}

func (e *Error) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Subject, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a Kind and subject. Returns nil if err is nil.
func New(kind Kind, subject string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Subject: subject, Err: err}
}

// Newf is New with a formatted message instead of a wrapped error.
func Newf(kind Kind, subject, format string, args ...interface{}) error {
	return &Error{Kind: kind, Subject: subject, Err: fmt.Errorf(format, args...)}
}

// KindOf recovers the Kind of err, defaulting to Programmer if err was
// never classified by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Programmer
}

// Retryable reports whether an error of this kind should trigger a retry
// next cycle rather than a skip or a fatal escalation.
func Retryable(err error) bool {
	switch KindOf(err) {
	case TransientNetwork, SharedMemoryStale:
		return true
	default:
		return false
	}
}

// Fatal reports whether an error of this kind is fatal for the calling
// worker (escalates to the supervisor) rather than being contained.
func Fatal(err error) bool {
	switch KindOf(err) {
	case Filesystem:
		var e *Error
		if errors.As(err, &e) {
			return false // per-file filesystem errors are never fatal by default
		}
	case Programmer:
		return true
	}
	return false
}

// ErrStale is returned by shared-status accessors when a cached version
// word no longer matches the live mapping and a re-attach is required.
var ErrStale = New(SharedMemoryStale, "", errors.New("mapping is stale, re-attach required"))

// ErrIncorrectVersion is returned by attach when the on-disk record header
// doesn't match the version this binary expects.
var ErrIncorrectVersion = New(Configuration, "", errors.New("incorrect version"))
