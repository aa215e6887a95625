package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTimeout marks a poll that exhausted its attempts while the remote job
// was still pending. Retryable, unlike ProcessingError.
var ErrTimeout = errors.New("timed out waiting for remote processing")

// ValidationError is raised before any network call for requests that can
// never succeed as constructed.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Message
}

// AuthError covers rejected or expired credentials. The orchestrator responds
// with one token refresh and retry; a second auth failure deactivates the
// account.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth rejected (%s): %s", e.Code, e.Message)
	}
	return "auth rejected: " + e.Message
}

// ApiError is a definitive platform-side rejection (4xx).
type ApiError struct {
	StatusCode int
	Message    string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// GatewayError covers transport failures and 5xx responses.
type GatewayError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return "gateway: " + e.Err.Error()
	}
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ProcessingError means the platform accepted the media but its processing
// job terminally failed. Not retryable with the same payload.
type ProcessingError struct {
	Message string
}

func (e *ProcessingError) Error() string {
	return "processing failed: " + e.Message
}

// classifyStatus maps an HTTP status to the shared taxonomy. Platform
// adapters layer provider-specific codes (TikTok auth codes, LinkedIn
// serviceErrorCode) on top of this.
func classifyStatus(statusCode int, message string) error {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &AuthError{Message: message}
	case statusCode >= 500:
		return &GatewayError{StatusCode: statusCode, Message: message}
	case statusCode >= 400:
		return &ApiError{StatusCode: statusCode, Message: message}
	}
	return nil
}

// IsAuthError reports whether any error in the chain is an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
