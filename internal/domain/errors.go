package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the machine-readable classification of a pipeline error.
type Kind string

const (
	// KindValidation marks malformed or missing caller input. Never retried.
	KindValidation Kind = "validation"
	// KindConflict marks concurrent-write contention or an illegal state
	// transition. Retried a bounded number of times where it makes sense.
	KindConflict Kind = "conflict"
	// KindNotFound marks a referenced entity that does not exist.
	KindNotFound Kind = "not_found"
	// KindProcessorInvocation marks a transient processor failure at the
	// tick level. The next scheduled tick is the retry.
	KindProcessorInvocation Kind = "processor_invocation"
)

// Error pairs a Kind with a human-readable message so callers can branch on
// classification without parsing strings.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// ProcessorErr wraps a processor invocation failure.
func ProcessorErr(err error, msg string) error {
	return &Error{Kind: KindProcessorInvocation, Msg: msg, Err: err}
}

// KindOf extracts the classification from anywhere in the chain; unclassified
// errors report an empty Kind.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
