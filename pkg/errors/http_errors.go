package errors

import (
	stderrors "errors"
	"net/http"
)

// FromError converts a standard error to an AppError
// If the error is already an AppError, it is returned as-is
// Otherwise, it is wrapped as an internal server error whose message
// never leaks the underlying error text
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	return NewInternalServerError(
		"INTERNAL_ERROR",
		"An unexpected error occurred",
	).WithCause(err)
}

// GetStatusCode extracts the HTTP status code from an AppError, returns 500 if not an AppError
func GetStatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// GetErrorCode extracts the error code from an AppError, returns "UNKNOWN_ERROR" if not an AppError
func GetErrorCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}

// Body renders the JSON body for an AppError. The human-readable message is
// always under "error"; map details are flattened into the top level so
// callers can surface machine-readable hints such as retryAfter.
func Body(appErr *AppError) map[string]any {
	body := map[string]any{
		"error": appErr.Message,
		"code":  appErr.Code,
	}
	switch details := appErr.Details.(type) {
	case nil:
	case map[string]any:
		for k, v := range details {
			if k == "error" || k == "code" {
				continue
			}
			body[k] = v
		}
	default:
		body["details"] = details
	}
	return body
}
