// Package errors defines the typed error kinds the servicing core
// distinguishes, per the propagation policy in the design notes: InvalidInput
// and ExecutionEnvironment and Internal errors are fatal and never retried;
// Servicing errors leave the prior HostStatus as the latest and may be
// retried by re-invoking the same operation; BootValidation and HealthCheck
// errors drive the automatic rollback branch.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which of the error taxonomies in an error
// belongs to.
type Kind string

const (
	KindInvalidInput Kind = "InvalidInput"
	KindExecutionEnvironment Kind = "ExecutionEnvironment"
	KindServicing Kind = "Servicing"
	KindInternal Kind = "Internal"
	KindBootValidation Kind = "BootValidation"
	KindHealthCheck Kind = "HealthCheck"
)

// TridentError is the common shape of every error the core returns from a
// public operation. Callers type-assert on Kind() to decide whether a
// failure is retryable.
type TridentError struct {
	kind Kind
	reason string
	wrapped error
}

func newError(kind Kind, reason string, wrapped error) *TridentError {
	return &TridentError{kind: kind, reason: reason, wrapped: wrapped}
}

func (e *TridentError) Kind() Kind { return e.kind }

func (e *TridentError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.reason, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.reason)
}

func (e *TridentError) Unwrap() error { return e.wrapped }

// InvalidInput wraps a configuration that violates a validation invariant.
// Never retried; surfaced verbatim to the caller.
func InvalidInput(reason string) *TridentError {
	return newError(KindInvalidInput, reason, nil)
}

// InvalidInputf is the formatted variant of InvalidInput, used by the graph
// validator to cite the specific rule that was violated.
func InvalidInputf(format string, args ...any) *TridentError {
	return newError(KindInvalidInput, fmt.Sprintf(format, args...), nil)
}

// ExecutionEnvironment wraps a fatal host-environment problem: missing
// privileges, unreachable TPM, container misconfiguration.
func ExecutionEnvironment(reason string, cause error) *TridentError {
	return newError(KindExecutionEnvironment, reason, cause)
}

// Servicing wraps a failed external command. The phase that produced it
// fails without advancing HostStatus; retrying the same operation is safe.
func Servicing(reason string, cause error) *TridentError {
	return newError(KindServicing, reason, cause)
}

// Internal wraps a broken invariant inside the agent itself.
func Internal(reason string) *TridentError {
	return newError(KindInternal, reason, nil)
}

// BootValidation wraps a boot that did not land on the expected entry.
func BootValidation(reason string) *TridentError {
	return newError(KindBootValidation, reason, nil)
}

// HealthCheck wraps a failed post-boot health probe.
func HealthCheck(reason string) *TridentError {
	return newError(KindHealthCheck, reason, nil)
}

// Wrap attaches additional context to an existing error the way
// github.com/pkg/errors does, preserving the original Kind if err is a
// *TridentError, and otherwise producing a plain wrapped error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var te *TridentError
	if AsTridentError(err, &te) {
		return newError(te.kind, message, err)
	}
	return errors.Wrap(err, message)
}

// AsTridentError is a small helper around errors.As to keep call sites
// terse; it returns false (rather than panicking) when err is nil.
func AsTridentError(err error, target **TridentError) bool {
	if err == nil {
		return false
	}
	return errors.As(err, target)
}

// KindOf returns the Kind of err if it is (or wraps) a *TridentError, and
// ("", false) otherwise.
func KindOf(err error) (Kind, bool) {
	var te *TridentError
	if AsTridentError(err, &te) {
		return te.kind, true
	}
	return "", false
}
