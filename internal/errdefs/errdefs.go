// Package errdefs defines the error taxonomy shared across the pipeline.
// Kinds split into fatal (configuration, validation, directory) and
// recoverable (run failure, parse, io) categories; recoverable errors mark
// a single run as failed and are excluded from aggregation without
// aborting the batch.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation decisions.
type Kind int

const (
	// KindConfiguration covers a missing or unusable engine binary or
	// required support file. Fatal before any run executes.
	KindConfiguration Kind = iota
	// KindValidation covers malformed mutation lists and inconsistent
	// structures across inputs. Fatal.
	KindValidation
	// KindDirectory covers failures creating or cleaning working and
	// result directories. Fatal for the phase that hit it.
	KindDirectory
	// KindRunFailure covers a child process that exited non-zero, was
	// signaled, or timed out. Recoverable per run.
	KindRunFailure
	// KindParse covers malformed engine output after a reported success.
	// Recoverable per run.
	KindParse
	// KindIO covers expected output missing after a reported success.
	// Recoverable per run.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindDirectory:
		return "directory"
	case KindRunFailure:
		return "run failure"
	case KindParse:
		return "parse"
	case KindIO:
		return "io"
	}
	return "unknown"
}

// Error is a kinded error. It wraps an optional cause.
type Error struct {
	Knd   Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Knd, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Knd, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports kind equality, so errors.Is(err, errdefs.Validation("", nil))
// style sentinels work through wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Knd == e.Knd
	}
	return false
}

// Configuration returns a fatal configuration error.
func Configuration(msg string, cause error) error {
	return &Error{Knd: KindConfiguration, Msg: msg, Cause: cause}
}

// Validation returns a fatal validation error.
func Validation(msg string, cause error) error {
	return &Error{Knd: KindValidation, Msg: msg, Cause: cause}
}

// Directory returns a fatal directory error.
func Directory(msg string, cause error) error {
	return &Error{Knd: KindDirectory, Msg: msg, Cause: cause}
}

// RunFailure returns a recoverable run failure.
func RunFailure(msg string, cause error) error {
	return &Error{Knd: KindRunFailure, Msg: msg, Cause: cause}
}

// Parse returns a recoverable parse error.
func Parse(msg string, cause error) error {
	return &Error{Knd: KindParse, Msg: msg, Cause: cause}
}

// IO returns a recoverable io error.
func IO(msg string, cause error) error {
	return &Error{Knd: KindIO, Msg: msg, Cause: cause}
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Knd == k
	}
	return false
}

// IsFatal reports whether err should abort the batch.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		switch e.Knd {
		case KindConfiguration, KindValidation, KindDirectory:
			return true
		}
	}
	return false
}

// IsRecoverable reports whether err should only fail its own run.
func IsRecoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		switch e.Knd {
		case KindRunFailure, KindParse, KindIO:
			return true
		}
	}
	return false
}
