// Package boxerr defines the typed error kinds surfaced at the BoxFS
// public API boundary.
package boxerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the ten failure classes BoxFS can return.
type Kind int

const (
	// NotFound means a path did not resolve, or the container file is missing.
	NotFound Kind = iota
	// AlreadyExists means the target path is already occupied.
	AlreadyExists
	// NotDirectory means a directory-shape invariant was violated (parent is not a directory).
	NotDirectory
	// DirectoryNotEmpty means a non-empty directory was the target of an operation requiring emptiness.
	DirectoryNotEmpty
	// Invalid means a bad argument or a forbidden operation was requested.
	Invalid
	// NoSpace means the allocator could not satisfy a request.
	NoSpace
	// ReadOnly means a mutator was attempted on a read-only filesystem.
	ReadOnly
	// Closed means an operation was attempted on a closed filesystem or channel.
	Closed
	// InvalidFormat means the superblock or metadata region failed validation.
	InvalidFormat
	// IoFailure means the host file I/O failed.
	IoFailure
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case NotDirectory:
		return "NotDirectory"
	case DirectoryNotEmpty:
		return "DirectoryNotEmpty"
	case Invalid:
		return "Invalid"
	case NoSpace:
		return "NoSpace"
	case ReadOnly:
		return "ReadOnly"
	case Closed:
		return "Closed"
	case InvalidFormat:
		return "InvalidFormat"
	case IoFailure:
		return "IoFailure"
	default:
		return "Unknown"
	}
}

// Error is a BoxFS error: a Kind, the offending path or identifier, and an
// optional wrapped cause.
type Error struct {
	Kind   Kind
	Path   string
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %q", msg, e.Path)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, so callers can
// write errors.Is(err, boxerr.New(boxerr.NotFound, "")).
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return o.Kind == e.Kind
	}
	return false
}

// New creates an *Error of the given kind for the given path.
func New(kind Kind, path string) *Error {
	return &Error{Kind: kind, Path: path}
}

// Newf creates an *Error of the given kind for the given path, with a
// formatted detail message.
func Newf(kind Kind, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Detail: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error of the given kind wrapping cause.
func Wrap(kind Kind, path string, cause error) *Error {
	return &Error{Kind: kind, Path: path, Cause: cause}
}

// Of returns the Kind of err if it is (or wraps) a *Error, and ok=true.
func Of(err error) (Kind, bool) {
	var o *Error
	if errors.As(err, &o) {
		return o.Kind, true
	}
	return 0, false
}

// Is reports whether err is of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}

// Sentinels for use with errors.Is(err, boxerr.ErrNotFound) etc. These carry
// no path; use boxerr.Is(err, boxerr.NotFound) when a path-free comparison
// is more natural.
var (
	ErrNotFound          = New(NotFound, "")
	ErrAlreadyExists     = New(AlreadyExists, "")
	ErrNotDirectory      = New(NotDirectory, "")
	ErrDirectoryNotEmpty = New(DirectoryNotEmpty, "")
	ErrInvalid           = New(Invalid, "")
	ErrNoSpace           = New(NoSpace, "")
	ErrReadOnly          = New(ReadOnly, "")
	ErrClosed            = New(Closed, "")
	ErrInvalidFormat     = New(InvalidFormat, "")
	ErrIoFailure         = New(IoFailure, "")
)
