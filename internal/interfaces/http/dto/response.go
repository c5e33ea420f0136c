package dto

import (
	"time"

	"github.com/erp/crm/internal/domain/shared"
)

// Response represents a standard API response
type Response struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ErrorInfo   `json:"error,omitempty"`
	Cascade *CascadeInfo `json:"cascade,omitempty"`
	Meta    *Meta        `json:"meta,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	RequestID string             `json:"request_id,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Details   []ValidationDetail `json:"details,omitempty"`
}

// ValidationDetail describes one rejected field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Tag     string `json:"tag,omitempty"`
}

// CascadeInfo is the outcome of a multi-row write, one entry per target
type CascadeInfo struct {
	Operation string                  `json:"operation"`
	Succeeded []string                `json:"succeeded"`
	Failed    []shared.CascadeFailure `json:"failed"`
}

// Meta represents list metadata
type Meta struct {
	Total int64 `json:"total"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewListResponse creates a success response carrying the item count
func NewListResponse(data any, total int) Response {
	return Response{
		Success: true,
		Data:    data,
		Meta:    &Meta{Total: int64(total)},
	}
}

// NewCascadeResponse creates a success response for a fully applied cascade
func NewCascadeResponse(data any, report *shared.CascadeReport) Response {
	resp := NewSuccessResponse(data)
	if report != nil {
		resp.Cascade = cascadeInfo(report.Operation, report.Succeeded, report.Failed)
	}
	return resp
}

// NewPartialCascadeResponse reports a cascade that committed only some of
// its writes. Data holds whatever the operation produced before failing.
func NewPartialCascadeResponse(data any, partial *shared.PartialCascadeError, requestID string) Response {
	return Response{
		Success: false,
		Data:    data,
		Error: &ErrorInfo{
			Code:      ErrCodePartialCascade,
			Message:   partial.Error(),
			RequestID: requestID,
			Timestamp: time.Now().UTC(),
		},
		Cascade: cascadeInfo(partial.Operation, partial.Succeeded, partial.Failed),
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return NewErrorResponseWithRequestID(code, message, "")
}

// NewErrorResponseWithRequestID creates an error response tagged with the request ID
func NewErrorResponseWithRequestID(code, message, requestID string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      NormalizeErrorCode(code),
			Message:   message,
			RequestID: requestID,
			Timestamp: time.Now().UTC(),
		},
	}
}

// NewValidationErrorResponse creates a 400 response listing the rejected fields
func NewValidationErrorResponse(message, requestID string, details []ValidationDetail) Response {
	resp := NewErrorResponseWithRequestID(ErrCodeValidation, message, requestID)
	resp.Error.Details = details
	return resp
}

func cascadeInfo(operation string, succeeded []string, failed []shared.CascadeFailure) *CascadeInfo {
	info := &CascadeInfo{
		Operation: operation,
		Succeeded: succeeded,
		Failed:    failed,
	}
	if info.Succeeded == nil {
		info.Succeeded = []string{}
	}
	if info.Failed == nil {
		info.Failed = []shared.CascadeFailure{}
	}
	return info
}
