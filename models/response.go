package models

// ErrorResponse is a generic error response structure for API
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message" example:"Error message describing the issue"`
}

// APIResponse wraps successful API payloads the way the upstream gateway does.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
