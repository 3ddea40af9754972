package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an Error.
type Kind string

const (
	KindInvalidInput       Kind = "invalid input"
	KindPackageRejected    Kind = "package rejected"
	KindUnexpectedFormat   Kind = "unexpected format"
	KindUnsupportedFeature Kind = "unsupported feature"
	KindPathOutsideRoot    Kind = "path outside root"
)

// Error is an error meant to be shown to the person running lockscan.
type Error struct {
	Kind     Kind
	Reason   string
	Solution string
	Docs     string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// FriendlyMessage renders the error with its solution and docs link.
func (e *Error) FriendlyMessage() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", titleCase(string(e.Kind)), e.Error())
	if e.Solution != "" {
		b.WriteString("\n  ")
		b.WriteString(strings.ReplaceAll(e.Solution, "\n", "\n  "))
	}
	if e.Docs != "" {
		fmt.Fprintf(&b, "\n  Docs: %s", e.Docs)
	}
	return b.String()
}

// ExitCode returns the exit code for this error's kind.
func (e *Error) ExitCode() int {
	switch e.Kind {
	case KindUnexpectedFormat:
		return 3
	case KindInvalidInput, KindPackageRejected, KindUnsupportedFeature, KindPathOutsideRoot:
		return 2
	}
	return 1
}

// Option customises an Error built by one of the constructors.
type Option func(*Error)

// WithSolution attaches a suggested fix.
func WithSolution(s string) Option { return func(e *Error) { e.Solution = s } }

// WithDocs attaches a documentation link.
func WithDocs(url string) Option { return func(e *Error) { e.Docs = url } }

// Wrap records the underlying cause.
func Wrap(err error) Option { return func(e *Error) { e.Err = err } }

func newError(kind Kind, reason string, opts []Option) *Error {
	e := &Error{Kind: kind, Reason: reason}
	for _, o := range opts {
		o(e)
	}
	return e
}

// InvalidInput reports a malformed request or flag.
func InvalidInput(reason string, opts ...Option) *Error {
	return newError(KindInvalidInput, reason, opts)
}

// PackageRejected reports a package that does not meet lockscan's requirements.
func PackageRejected(reason string, opts ...Option) *Error {
	return newError(KindPackageRejected, reason, opts)
}

// UnexpectedFormat reports a file whose content could not be understood.
func UnexpectedFormat(reason string, opts ...Option) *Error {
	return newError(KindUnexpectedFormat, reason, opts)
}

// UnsupportedFeature reports a valid input that lockscan does not handle.
func UnsupportedFeature(reason string, opts ...Option) *Error {
	return newError(KindUnsupportedFeature, reason, opts)
}

// PathOutsideRoot reports a path that escapes the source directory.
func PathOutsideRoot(reason string, opts ...Option) *Error {
	return newError(KindPathOutsideRoot, reason, opts)
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ExitCode returns the exit code for any error: the kind's code for *Error,
// 1 for everything else and 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.ExitCode()
	}
	return 1
}

// Message renders err for the terminal.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.FriendlyMessage()
	}
	return "Error: " + err.Error()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
