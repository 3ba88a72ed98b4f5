package domain

import (
	"context"
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	// Request errors
	ErrCancelled    = errors.New("request cancelled")
	ErrInvalidRange = errors.New("invalid byte range")
	ErrShortRead    = errors.New("short read from cache store")

	// Resource errors
	ErrInvalidResourceURL     = errors.New("invalid resource url")
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrResourceActive         = errors.New("resource has a live session")

	// Lifecycle errors
	ErrSessionClosed  = errors.New("session closed")
	ErrRegistryClosed = errors.New("session registry closed")
)

// StoreError reports a failed disk operation on the cache store
type StoreError struct {
	Op    string
	Range ByteRange
	Err   error
}

// Error returns the error message
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache store %s %s: %v", e.Op, e.Range, e.Err)
	}
	return fmt.Sprintf("cache store %s %s failed", e.Op, e.Range)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new store error
func NewStoreError(op string, r ByteRange, err error) *StoreError {
	return &StoreError{Op: op, Range: r, Err: err}
}

// IsStoreError returns true if err is or wraps a StoreError
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// NetworkError reports a failed transfer.
// A cancelled transfer is a NetworkError with Cancelled set; it matches
// ErrCancelled and context.Canceled.
type NetworkError struct {
	URL       string
	Range     ByteRange
	Err       error
	Cancelled bool
}

// Error returns the error message
func (e *NetworkError) Error() string {
	if e.Cancelled {
		return fmt.Sprintf("fetch %s %s: cancelled", e.URL, e.Range)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s %s: %v", e.URL, e.Range, e.Err)
	}
	return fmt.Sprintf("fetch %s %s failed", e.URL, e.Range)
}

// Unwrap returns the underlying error
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is makes a cancelled NetworkError match ErrCancelled and context.Canceled
func (e *NetworkError) Is(target error) bool {
	return e.Cancelled && (target == ErrCancelled || target == context.Canceled)
}

// NewNetworkError creates a network error, flagging context cancellation
func NewNetworkError(url string, r ByteRange, err error) *NetworkError {
	return &NetworkError{
		URL:       url,
		Range:     r,
		Err:       err,
		Cancelled: errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled),
	}
}

// IsNetworkError returns true if err is or wraps a NetworkError
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// ResourceBusyError is returned when a download is already running for a resource
type ResourceBusyError struct {
	ResourceID string
}

// Error returns the error message
func (e *ResourceBusyError) Error() string {
	return fmt.Sprintf("resource %s is already downloading", e.ResourceID)
}

// NewResourceBusyError creates a new busy error
func NewResourceBusyError(resourceID string) *ResourceBusyError {
	return &ResourceBusyError{ResourceID: resourceID}
}

// IsResourceBusy returns true if err is or wraps a ResourceBusyError
func IsResourceBusy(err error) bool {
	var be *ResourceBusyError
	return errors.As(err, &be)
}

// UnsatisfiableRangeError is returned when the server refuses a range that
// starts at or past the end of the resource
type UnsatisfiableRangeError struct {
	Range ByteRange
	// Total is the resource length from the refusal, or UnknownContentLength
	Total int64
}

// Error returns the error message
func (e *UnsatisfiableRangeError) Error() string {
	return fmt.Sprintf("%s: %s (length %d)", ErrInvalidRange, e.Range, e.Total)
}

// Is matches ErrInvalidRange
func (e *UnsatisfiableRangeError) Is(target error) bool {
	return target == ErrInvalidRange
}

// NewUnsatisfiableRangeError creates a new unsatisfiable range error
func NewUnsatisfiableRangeError(r ByteRange, total int64) *UnsatisfiableRangeError {
	return &UnsatisfiableRangeError{Range: r, Total: total}
}

// UnsatisfiableTotal returns the resource length carried by an unsatisfiable
// range error in err's chain
func UnsatisfiableTotal(err error) (int64, bool) {
	var ue *UnsatisfiableRangeError
	if !errors.As(err, &ue) {
		return UnknownContentLength, false
	}
	return ue.Total, true
}

// PlanningError reports a download plan that violates its coverage invariant.
// It indicates a programming error, not a runtime condition.
type PlanningError struct {
	Reason string
}

// Error returns the error message
func (e *PlanningError) Error() string {
	return "invalid download plan: " + e.Reason
}

// NewPlanningError creates a new planning error
func NewPlanningError(reason string) *PlanningError {
	return &PlanningError{Reason: reason}
}

// IsPlanningError returns true if err is or wraps a PlanningError
func IsPlanningError(err error) bool {
	var pe *PlanningError
	return errors.As(err, &pe)
}

// IsCancelled returns true for cancellation, whether by context or supersession
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// ErrorKind returns a short label for the error kind, used in logs and metrics
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsCancelled(err):
		return "cancelled"
	case IsStoreError(err):
		return "store"
	case IsResourceBusy(err):
		return "busy"
	case IsPlanningError(err):
		return "planning"
	case IsNetworkError(err):
		return "network"
	default:
		return "other"
	}
}
