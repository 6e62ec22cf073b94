// Package meterrors provides the error kinds surfaced by the blob metadata
// store. This is a leaf package with no internal dependencies, designed to be
// imported by the lease package and store implementations without causing
// circular imports.
//
// The code names match the error codes of the Azure Blob Storage REST API so
// upper layers can translate a StoreError to the wire without a mapping table.
package meterrors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the kind of error that occurred.
type ErrorCode int

const (
	// ErrContainerNotFound indicates the target container does not exist.
	ErrContainerNotFound ErrorCode = iota + 1

	// ErrContainerAlreadyExists indicates a container with the same name exists.
	ErrContainerAlreadyExists

	// ErrBlobNotFound indicates the target blob or snapshot does not exist.
	ErrBlobNotFound

	// ErrBlobArchived indicates an archive-tier blob rejected the operation.
	ErrBlobArchived

	// ErrSnapshotsPresent indicates a base blob cannot be deleted while
	// snapshots exist and no snapshot disposition was given.
	ErrSnapshotsPresent

	// ErrBlobSnapshotsPresent indicates the operation is not valid against a
	// blob snapshot.
	ErrBlobSnapshotsPresent

	// ErrInvalidOperation indicates the request is structurally valid but not
	// permitted against the current state.
	ErrInvalidOperation

	// ErrInvalidBlobType indicates the operation does not apply to the blob's
	// type.
	ErrInvalidBlobType

	// ErrInvalidLeaseDuration indicates an acquire duration outside -1 or
	// [15, 60] seconds.
	ErrInvalidLeaseDuration

	// ErrInvalidLeaseBreakPeriod indicates a break period outside [0, 60]
	// seconds.
	ErrInvalidLeaseBreakPeriod

	// ErrLeaseAlreadyPresent indicates an acquire against a held or breaking
	// lease.
	ErrLeaseAlreadyPresent

	// ErrLeaseIsBrokenAndCannotBeRenewed indicates a renew against a breaking
	// or broken lease.
	ErrLeaseIsBrokenAndCannotBeRenewed

	// ErrLeaseIsBreakingAndCannotBeChanged indicates a change against a
	// breaking lease.
	ErrLeaseIsBreakingAndCannotBeChanged

	// ErrLeaseNotPresent indicates a lease operation that requires a held
	// lease found none.
	ErrLeaseNotPresent

	// ErrLeaseIdMissing indicates a write against a locked resource without a
	// lease id.
	ErrLeaseIdMissing

	// ErrLeaseIdMismatchWithBlobOperation indicates a blob operation supplied
	// a lease id that does not match the held lease.
	ErrLeaseIdMismatchWithBlobOperation

	// ErrLeaseIdMismatchWithContainerOperation indicates a container operation
	// supplied a lease id that does not match the held lease.
	ErrLeaseIdMismatchWithContainerOperation

	// ErrLeaseIdMismatchWithLeaseOperation indicates a lease operation
	// supplied a lease id that does not match the held lease.
	ErrLeaseIdMismatchWithLeaseOperation

	// ErrLeaseLost indicates a lease id was supplied but the resource holds no
	// lease.
	ErrLeaseLost

	// ErrNotImplemented indicates the operation is declared but not
	// implemented by this store.
	ErrNotImplemented
)

// String returns the Azure error code name for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrContainerNotFound:
		return "ContainerNotFound"
	case ErrContainerAlreadyExists:
		return "ContainerAlreadyExists"
	case ErrBlobNotFound:
		return "BlobNotFound"
	case ErrBlobArchived:
		return "BlobArchived"
	case ErrSnapshotsPresent:
		return "SnapshotsPresent"
	case ErrBlobSnapshotsPresent:
		return "BlobSnapshotsPresent"
	case ErrInvalidOperation:
		return "InvalidOperation"
	case ErrInvalidBlobType:
		return "InvalidBlobType"
	case ErrInvalidLeaseDuration:
		return "InvalidLeaseDuration"
	case ErrInvalidLeaseBreakPeriod:
		return "InvalidLeaseBreakPeriod"
	case ErrLeaseAlreadyPresent:
		return "LeaseAlreadyPresent"
	case ErrLeaseIsBrokenAndCannotBeRenewed:
		return "LeaseIsBrokenAndCannotBeRenewed"
	case ErrLeaseIsBreakingAndCannotBeChanged:
		return "LeaseIsBreakingAndCannotBeChanged"
	case ErrLeaseNotPresent:
		return "LeaseNotPresent"
	case ErrLeaseIdMissing:
		return "LeaseIdMissing"
	case ErrLeaseIdMismatchWithBlobOperation:
		return "LeaseIdMismatchWithBlobOperation"
	case ErrLeaseIdMismatchWithContainerOperation:
		return "LeaseIdMismatchWithContainerOperation"
	case ErrLeaseIdMismatchWithLeaseOperation:
		return "LeaseIdMismatchWithLeaseOperation"
	case ErrLeaseLost:
		return "LeaseLost"
	case ErrNotImplemented:
		return "NotImplemented"
	default:
		return fmt.Sprintf("Unknown(%d)", int(e))
	}
}

// StoreError represents a metadata store error with a tagged code and the
// request-correlation id supplied by the caller.
type StoreError struct {
	Code      ErrorCode
	Message   string
	RequestID string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s: %s (request %s)", e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is a StoreError with the same code, so that
// errors.Is(err, &StoreError{Code: ErrBlobNotFound}) works regardless of
// message or request id.
func (e *StoreError) Is(target error) bool {
	var se *StoreError
	if !errors.As(target, &se) {
		return false
	}
	return e.Code == se.Code
}

// CodeOf returns the error code carried by err, or 0 when err is not a
// StoreError.
func CodeOf(err error) ErrorCode {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// New creates a StoreError with the given code, message and request id.
func New(code ErrorCode, message, requestID string) *StoreError {
	return &StoreError{Code: code, Message: message, RequestID: requestID}
}

// ============================================================================
// Factory Functions
// ============================================================================

// NewContainerNotFound creates a ContainerNotFound error.
func NewContainerNotFound(requestID string) *StoreError {
	return New(ErrContainerNotFound, "the specified container does not exist", requestID)
}

// NewContainerAlreadyExists creates a ContainerAlreadyExists error.
func NewContainerAlreadyExists(requestID string) *StoreError {
	return New(ErrContainerAlreadyExists, "the specified container already exists", requestID)
}

// NewBlobNotFound creates a BlobNotFound error.
func NewBlobNotFound(requestID string) *StoreError {
	return New(ErrBlobNotFound, "the specified blob does not exist", requestID)
}

// NewBlobArchived creates a BlobArchived error.
func NewBlobArchived(requestID string) *StoreError {
	return New(ErrBlobArchived, "this operation is not permitted on an archived blob", requestID)
}

// NewSnapshotsPresent creates a SnapshotsPresent error.
func NewSnapshotsPresent(requestID string) *StoreError {
	return New(ErrSnapshotsPresent, "this operation is not permitted because the blob has snapshots", requestID)
}

// NewBlobSnapshotsPresent creates a BlobSnapshotsPresent error.
func NewBlobSnapshotsPresent(requestID string) *StoreError {
	return New(ErrBlobSnapshotsPresent, "this operation is not permitted on a blob snapshot", requestID)
}

// NewInvalidOperation creates an InvalidOperation error.
func NewInvalidOperation(requestID, message string) *StoreError {
	if message == "" {
		message = "invalid operation against the resource"
	}
	return New(ErrInvalidOperation, message, requestID)
}

// NewInvalidBlobType creates an InvalidBlobType error.
func NewInvalidBlobType(requestID string) *StoreError {
	return New(ErrInvalidBlobType, "the blob type is invalid for this operation", requestID)
}

// NewInvalidLeaseDuration creates an InvalidLeaseDuration error.
func NewInvalidLeaseDuration(requestID string) *StoreError {
	return New(ErrInvalidLeaseDuration, "the lease duration must be -1 or between 15 and 60 seconds", requestID)
}

// NewInvalidLeaseBreakPeriod creates an InvalidLeaseBreakPeriod error.
func NewInvalidLeaseBreakPeriod(requestID string) *StoreError {
	return New(ErrInvalidLeaseBreakPeriod, "the lease break period must be between 0 and 60 seconds", requestID)
}

// NewLeaseAlreadyPresent creates a LeaseAlreadyPresent error.
func NewLeaseAlreadyPresent(requestID string) *StoreError {
	return New(ErrLeaseAlreadyPresent, "there is already a lease present", requestID)
}

// NewLeaseIsBrokenAndCannotBeRenewed creates a LeaseIsBrokenAndCannotBeRenewed error.
func NewLeaseIsBrokenAndCannotBeRenewed(requestID string) *StoreError {
	return New(ErrLeaseIsBrokenAndCannotBeRenewed, "the lease is broken and cannot be renewed", requestID)
}

// NewLeaseIsBreakingAndCannotBeChanged creates a LeaseIsBreakingAndCannotBeChanged error.
func NewLeaseIsBreakingAndCannotBeChanged(requestID string) *StoreError {
	return New(ErrLeaseIsBreakingAndCannotBeChanged, "the lease is breaking and cannot be changed", requestID)
}

// NewLeaseNotPresent creates a LeaseNotPresent error.
func NewLeaseNotPresent(requestID string) *StoreError {
	return New(ErrLeaseNotPresent, "there is currently no lease on the resource", requestID)
}

// NewLeaseIdMissing creates a LeaseIdMissing error.
func NewLeaseIdMissing(requestID string) *StoreError {
	return New(ErrLeaseIdMissing, "there is currently a lease on the resource and no lease id was specified", requestID)
}

// NewLeaseIdMismatchWithBlobOperation creates a LeaseIdMismatchWithBlobOperation error.
func NewLeaseIdMismatchWithBlobOperation(requestID string) *StoreError {
	return New(ErrLeaseIdMismatchWithBlobOperation, "the lease id specified did not match the lease id for the blob", requestID)
}

// NewLeaseIdMismatchWithContainerOperation creates a LeaseIdMismatchWithContainerOperation error.
func NewLeaseIdMismatchWithContainerOperation(requestID string) *StoreError {
	return New(ErrLeaseIdMismatchWithContainerOperation, "the lease id specified did not match the lease id for the container", requestID)
}

// NewLeaseIdMismatchWithLeaseOperation creates a LeaseIdMismatchWithLeaseOperation error.
func NewLeaseIdMismatchWithLeaseOperation(requestID string) *StoreError {
	return New(ErrLeaseIdMismatchWithLeaseOperation, "the lease id specified did not match the lease id for the resource", requestID)
}

// NewLeaseLost creates a LeaseLost error.
func NewLeaseLost(requestID string) *StoreError {
	return New(ErrLeaseLost, "a lease id was specified but the resource's lease has expired or been released", requestID)
}

// NewNotImplemented creates a NotImplemented error.
func NewNotImplemented(requestID, operation string) *StoreError {
	return New(ErrNotImplemented, fmt.Sprintf("operation %s is not implemented", operation), requestID)
}
