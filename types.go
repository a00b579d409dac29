package oauth

// ErrorResponse is the JSON body rendered for a failed login
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription is the operator-facing message
	ErrorDescription string `json:"error_description,omitempty"`

	// RequestID correlates the response with server logs
	RequestID string `json:"request_id,omitempty"`
}
