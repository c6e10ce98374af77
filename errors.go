package berth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/go-utils/errs"
)

// =============================================================================
// ERROR CODES
// =============================================================================

const (
	// CodeInvalidConstructor indicates a constructor passed to Provide is unusable
	CodeInvalidConstructor = "INVALID_CONSTRUCTOR"

	// CodeServiceAlreadyExists indicates a type key is already provided
	CodeServiceAlreadyExists = "SERVICE_ALREADY_EXISTS"

	// CodeServiceNotFound indicates the container has no provider for a key
	CodeServiceNotFound = "SERVICE_NOT_FOUND"

	// CodeCircularDependency indicates a circular dependency was detected
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"

	// CodeNotConstructible indicates a type has no usable constructor
	CodeNotConstructible = "NOT_CONSTRUCTIBLE"

	// CodeActivationFailed indicates neither direct nor concrete activation worked
	CodeActivationFailed = "ACTIVATION_FAILED"

	// CodeServiceUnavailable indicates a scope could not obtain a declared service
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"

	// CodeDisposalFailed indicates one or more release calls returned an error
	CodeDisposalFailed = "DISPOSAL_FAILED"

	// CodeScopeEnded indicates operation on an ended scope
	CodeScopeEnded = "SCOPE_ENDED"

	// CodeInvalidScopeID indicates the nil scope id was used where a real one is required
	CodeInvalidScopeID = "INVALID_SCOPE_ID"

	// CodeRegistryDisposed indicates the registry has already been disposed
	CodeRegistryDisposed = "REGISTRY_DISPOSED"

	// CodeInvariantViolation indicates the registry's internal bookkeeping is corrupt
	CodeInvariantViolation = "INVARIANT_VIOLATION"

	// CodeTypeMismatch indicates a type mismatch during resolution
	CodeTypeMismatch = "TYPE_MISMATCH"

	// CodeServiceError indicates a constructor returned an error
	CodeServiceError = "SERVICE_ERROR"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

// Sentinels match any error carrying the same code through errors.Is.
var (
	ErrInvalidConstructorSentinel   = &errs.Error{Code: CodeInvalidConstructor}
	ErrServiceAlreadyExistsSentinel = &errs.Error{Code: CodeServiceAlreadyExists}
	ErrServiceNotFoundSentinel      = &errs.Error{Code: CodeServiceNotFound}
	ErrCircularDependencySentinel   = &errs.Error{Code: CodeCircularDependency}
	ErrNotConstructibleSentinel     = &errs.Error{Code: CodeNotConstructible}
	ErrActivationFailedSentinel     = &errs.Error{Code: CodeActivationFailed}
	ErrServiceUnavailableSentinel   = &errs.Error{Code: CodeServiceUnavailable}
	ErrDisposalFailedSentinel       = &errs.Error{Code: CodeDisposalFailed}
	ErrInvariantViolationSentinel   = &errs.Error{Code: CodeInvariantViolation}
	ErrTypeMismatchSentinel         = &errs.Error{Code: CodeTypeMismatch}
)

// ErrScopeEnded is returned when operations are attempted on an ended scope.
var ErrScopeEnded = errs.NewError(CodeScopeEnded, "scope has ended", nil)

// ErrInvalidScopeID is returned when the nil scope id is used to begin a scope.
var ErrInvalidScopeID = errs.NewError(CodeInvalidScopeID, "scope id must not be nil", nil)

// ErrRegistryDisposed is reported when work is requested from a disposed registry.
var ErrRegistryDisposed = errs.NewError(CodeRegistryDisposed, "registry has been disposed", nil)

// =============================================================================
// ERROR CONSTRUCTORS
// =============================================================================

// ErrInvalidConstructor creates an error for a constructor Provide cannot use.
func ErrInvalidConstructor(reason string, cause error) *errs.Error {
	return errs.NewError(CodeInvalidConstructor, "invalid constructor: "+reason, cause)
}

// ErrServiceAlreadyExists creates an error for a key that is already provided.
func ErrServiceAlreadyExists(key TypeKey) *errs.Error {
	return errs.NewError(
		CodeServiceAlreadyExists,
		fmt.Sprintf("service '%s' already exists", key),
		nil,
	)
}

// ErrServiceNotFound creates an error for a key the container cannot supply.
func ErrServiceNotFound(key TypeKey) *errs.Error {
	return errs.NewError(
		CodeServiceNotFound,
		fmt.Sprintf("service '%s' not found", key),
		nil,
	)
}

// ErrCircularDependency creates an error for circular dependency detection.
func ErrCircularDependency(cycle []string) *errs.Error {
	return errs.NewError(
		CodeCircularDependency,
		"circular dependency detected: "+strings.Join(cycle, " -> "),
		nil,
	)
}

// ErrNotConstructible creates an error for a type with no usable constructor.
func ErrNotConstructible(typeName, reason string) *errs.Error {
	return errs.NewError(
		CodeNotConstructible,
		fmt.Sprintf("type '%s' is not constructible: %s", typeName, reason),
		nil,
	)
}

// ErrActivationFailed wraps the causes of a failed activation.
func ErrActivationFailed(key TypeKey, cause error) *errs.Error {
	return errs.NewError(
		CodeActivationFailed,
		fmt.Sprintf("cannot activate '%s'", key),
		cause,
	)
}

// ErrServiceUnavailable is returned by BeginScope when a declared service is absent.
func ErrServiceUnavailable(key TypeKey, cause error) *errs.Error {
	return errs.NewError(
		CodeServiceUnavailable,
		fmt.Sprintf("service '%s' unavailable for scope", key),
		cause,
	)
}

// ErrDisposal wraps the aggregated failures of a release pass.
func ErrDisposal(operation string, cause error) *errs.Error {
	return errs.NewError(CodeDisposalFailed, "disposal failed during "+operation, cause)
}

// ErrInvariantViolation reports corrupt registry bookkeeping. It is raised by panic.
func ErrInvariantViolation(id ScopeID, key TypeKey, detail string) *errs.Error {
	return errs.NewError(
		CodeInvariantViolation,
		fmt.Sprintf("registry invariant violated for (%s, %s): %s", id, key, detail),
		nil,
	)
}

// ErrTypeMismatch creates an error for type mismatch during resolution.
func ErrTypeMismatch(key TypeKey, actual any) *errs.Error {
	return errs.NewError(
		CodeTypeMismatch,
		fmt.Sprintf("service '%s' type mismatch: got %T", key, actual),
		nil,
	)
}

// NewServiceError wraps an error returned by a service constructor.
func NewServiceError(key TypeKey, cause error) *errs.Error {
	return errs.NewError(
		CodeServiceError,
		fmt.Sprintf("service '%s' constructor failed", key),
		cause,
	)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsServiceNotFound checks if the error is a service not found error.
func IsServiceNotFound(err error) bool {
	return errors.Is(err, ErrServiceNotFoundSentinel)
}

// IsActivationFailed checks if the error is an activation failure.
func IsActivationFailed(err error) bool {
	return errors.Is(err, ErrActivationFailedSentinel)
}

// IsDisposalFailed checks if the error carries disposal failures.
func IsDisposalFailed(err error) bool {
	return errors.Is(err, ErrDisposalFailedSentinel)
}

// IsInvariantViolation checks if the error reports corrupt registry state.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolationSentinel)
}
