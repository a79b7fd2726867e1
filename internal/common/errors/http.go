package errors

import (
	"encoding/json"
	"net/http"
)

// HTTPStatus maps an error onto the status code the API responds with.
func HTTPStatus(err error) int {
	stdErr := Normalize(err)
	if stdErr == nil {
		return http.StatusOK
	}
	switch stdErr.Code {
	case ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodePrincipalNotFound:
		return http.StatusNotFound
	case ErrCodePersistenceFailed, ErrCodeExternalService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// WriteHTTPError logs err and writes it as a JSON error body.
func WriteHTTPError(w http.ResponseWriter, logger Logger, err error) {
	stdErr := Normalize(err)
	status := HTTPStatus(stdErr)

	if logger != nil {
		logger.Error("Request failed", map[string]interface{}{
			"errorCode":     string(stdErr.Code),
			"details":       stdErr.Details,
			"status":        status,
			"errorCategory": GetErrorCategory(stdErr.Code),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:      stdErr.Code,
		Message:   stdErr.Message,
		Retryable: stdErr.Retryable,
	})
}
