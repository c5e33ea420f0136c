package handler

import "github.com/erp/crm/internal/interfaces/http/dto"

// APIResponse represents a generic API response for OpenAPI documentation
// @Description Standard API response wrapper with typed data field
type APIResponse[T any] struct {
	Success bool             `json:"success"`
	Data    T                `json:"data,omitempty"`
	Error   *dto.ErrorInfo   `json:"error,omitempty"`
	Cascade *dto.CascadeInfo `json:"cascade,omitempty"`
	Meta    *dto.Meta        `json:"meta,omitempty"`
}

// ErrorResponse represents an error API response for OpenAPI documentation
// @Description Standard error response
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}
