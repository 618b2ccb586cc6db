package mpesa

import "fmt"

// AuthError is a rejected token request, usually bad consumer credentials.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daraja auth: status %d", e.StatusCode)
	}
	return fmt.Sprintf("daraja auth: status %d: %s", e.StatusCode, e.Message)
}

// APIError is a rejected STK push.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daraja: status %d: %s (%s)", e.StatusCode, e.Message, e.Code)
}
