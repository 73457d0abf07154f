package mcp

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agungkristd/session-switcher/session"
	"github.com/agungkristd/session-switcher/site"
)

type ErrorCode string

const (
	ErrNotFound   ErrorCode = "not_found"
	ErrValidation ErrorCode = "validation"
	ErrNoSite     ErrorCode = "no_site"
	ErrInternal   ErrorCode = "internal"
)

type ToolError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e ToolError) ToResult() *mcp.CallToolResult {
	data, _ := json.Marshal(e)
	return mcp.NewToolResultError(string(data))
}

func NotFound(resource, name string) *mcp.CallToolResult {
	return ToolError{
		Code:    ErrNotFound,
		Message: resource + " not found",
		Details: map[string]any{resource: name},
	}.ToResult()
}

func ValidationError(msg string) *mcp.CallToolResult {
	return ToolError{
		Code:    ErrValidation,
		Message: msg,
	}.ToResult()
}

func InternalError(err error) *mcp.CallToolResult {
	return ToolError{
		Code:    ErrInternal,
		Message: err.Error(),
	}.ToResult()
}

// sessionError maps errors returned by session.Manager.
func sessionError(name string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return NotFound("session", name)
	case errors.Is(err, session.ErrInvalidName):
		return ValidationError("name is required")
	case errors.Is(err, site.ErrNoSite):
		return ToolError{Code: ErrNoSite, Message: "no browser tab open for this domain"}.ToResult()
	default:
		return InternalError(err)
	}
}
