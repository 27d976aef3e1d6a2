package models

// APIResponse is the uniform envelope for every HTTP response. Failures are
// reported as data (Success=false plus a message), never as a panic or a bare
// 500 crossing the handler boundary.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// OK wraps data in a successful envelope.
func OK(data any) APIResponse {
	return APIResponse{Success: true, Data: data}
}

// OKMessage wraps data in a successful envelope with a message.
func OKMessage(message string, data any) APIResponse {
	return APIResponse{Success: true, Message: message, Data: data}
}

// Fail builds a failure envelope.
func Fail(message string) APIResponse {
	return APIResponse{Success: false, Message: message}
}
