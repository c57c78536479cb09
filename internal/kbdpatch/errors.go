package kbdpatch

import (
	"errors"
	"fmt"
)

// Kind tags an error with the taxonomy the CLI uses to pick an exit code
// and a short human message, independent of the underlying Go error chain.
type Kind string

const (
	KindInput               Kind = "input-error"
	KindTargetMissing       Kind = "target-missing"
	KindNoCandidates        Kind = "no-candidates"
	KindNoMatch             Kind = "no-match"
	KindCapacityExceeded    Kind = "capacity-exceeded"
	KindPaddingTooSmall     Kind = "padding-too-small"
	KindPostWriteValidation Kind = "post-write-validation"
	KindIO                  Kind = "io-error"
)

// PatchError wraps an underlying cause with a taxonomy Kind so that callers
// can branch on Kind() without string-matching messages, while errors.Is and
// errors.As still see through to the wrapped cause.
type PatchError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *PatchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *PatchError) Unwrap() error { return e.Err }

// wrap builds a PatchError, short-circuiting to nil so call sites can write
// `return wrap(...)` unconditionally inside helper functions without an
// extra if-err-nil branch at each call site.
func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &PatchError{Kind: kind, Op: op, Err: err}
}

// wrapf is wrap with an inline-formatted cause, for call sites that have no
// underlying error to wrap but still want a PatchError with a message.
func wrapf(kind Kind, op, format string, args ...any) error {
	return &PatchError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

var (
	errNoCandidates = errors.New("no candidate frame decoded to a JSON object")
	errNoMatch      = errors.New("no candidate matched the requested locale's signature")
)

// errKind extracts the taxonomy Kind from err, or "" if err is nil or does
// not wrap a *PatchError.
func errKind(err error) Kind {
	var pe *PatchError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
