package shared

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a domain error independently of its code
type ErrorKind string

const (
	KindNotFound       ErrorKind = "not_found"
	KindDuplicate      ErrorKind = "duplicate"
	KindValidation     ErrorKind = "validation"
	KindPersistence    ErrorKind = "persistence"
	KindPartialCascade ErrorKind = "partial_cascade"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Kind    ErrorKind `json:"-"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying cause
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches two domain errors of the same kind, so that
// errors.Is(err, ErrNotFound) holds for every not-found error.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if t.Kind != "" && e.Kind != "" {
		return t.Kind == e.Kind
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewNotFoundError reports a referenced entity, link, tag or group that is absent
func NewNotFoundError(message string) *DomainError {
	return &DomainError{Code: "NOT_FOUND", Message: message, Kind: KindNotFound}
}

// NewDuplicateError reports a uniqueness violation
func NewDuplicateError(code, message string) *DomainError {
	if code == "" {
		code = "ALREADY_EXISTS"
	}
	return &DomainError{Code: code, Message: message, Kind: KindDuplicate}
}

// NewValidationError reports malformed input
func NewValidationError(code, message string) *DomainError {
	if code == "" {
		code = "VALIDATION_ERROR"
	}
	return &DomainError{Code: code, Message: message, Kind: KindValidation}
}

// NewPersistenceError wraps an unexpected store failure
func NewPersistenceError(message string, cause error) *DomainError {
	return &DomainError{Code: "PERSISTENCE_ERROR", Message: message, Kind: KindPersistence, Cause: cause}
}

// Common domain errors
var (
	ErrNotFound       = &DomainError{Code: "NOT_FOUND", Message: "Resource not found", Kind: KindNotFound}
	ErrDuplicate      = &DomainError{Code: "ALREADY_EXISTS", Message: "Resource already exists", Kind: KindDuplicate}
	ErrValidation     = &DomainError{Code: "VALIDATION_ERROR", Message: "Invalid input provided", Kind: KindValidation}
	ErrPersistence    = &DomainError{Code: "PERSISTENCE_ERROR", Message: "Record store failure", Kind: KindPersistence}
	ErrPartialCascade = &DomainError{Code: "PARTIAL_CASCADE", Message: "Cascade partially applied", Kind: KindPartialCascade}
)

// KindOf returns the kind of a domain error anywhere in err's chain
func KindOf(err error) ErrorKind {
	var partial *PartialCascadeError
	if errors.As(err, &partial) {
		return KindPartialCascade
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return ""
}

// CascadeFailure is one sub-write of a cascade that did not commit
type CascadeFailure struct {
	Target string `json:"target"`
	Err    error  `json:"-"`
	Reason string `json:"reason"`
}

// PartialCascadeError is returned when a multi-row operation committed some
// but not all of its sub-writes. Writes listed in Succeeded are committed and
// are not rolled back.
type PartialCascadeError struct {
	Operation string           `json:"operation"`
	Succeeded []string         `json:"succeeded"`
	Failed    []CascadeFailure `json:"failed"`
}

// Error implements the error interface
func (e *PartialCascadeError) Error() string {
	targets := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		targets = append(targets, f.Target)
	}
	return fmt.Sprintf("%s: %d of %d sub-writes failed (%s)",
		e.Operation, len(e.Failed), len(e.Failed)+len(e.Succeeded), strings.Join(targets, ", "))
}

// Is lets errors.Is(err, ErrPartialCascade) match
func (e *PartialCascadeError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Kind == KindPartialCascade
}

// Unwrap returns the failure causes
func (e *PartialCascadeError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// CascadeReport accumulates the outcome of a cascade
type CascadeReport struct {
	Operation string           `json:"operation"`
	Succeeded []string         `json:"succeeded"`
	Failed    []CascadeFailure `json:"failed"`
}

// NewCascadeReport starts an empty report for the named operation
func NewCascadeReport(operation string) *CascadeReport {
	return &CascadeReport{
		Operation: operation,
		Succeeded: make([]string, 0),
		Failed:    make([]CascadeFailure, 0),
	}
}

// Ok records a committed sub-write
func (r *CascadeReport) Ok(target string) {
	r.Succeeded = append(r.Succeeded, target)
}

// Fail records a sub-write that did not commit
func (r *CascadeReport) Fail(target string, err error) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	r.Failed = append(r.Failed, CascadeFailure{Target: target, Err: err, Reason: reason})
}

// Err returns a *PartialCascadeError when any sub-write failed, nil otherwise
func (r *CascadeReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &PartialCascadeError{
		Operation: r.Operation,
		Succeeded: append([]string(nil), r.Succeeded...),
		Failed:    append([]CascadeFailure(nil), r.Failed...),
	}
}
