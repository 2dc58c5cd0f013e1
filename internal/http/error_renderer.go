package httpx

import (
	"net/http"

	apperrors "github.com/wanderplan/planner-api/internal/errors"
)

// RenderError maps an application error onto the HTTP response. Internal
// errors are rendered with a generic message so causes never leak to
// clients.
func RenderError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeForbidden:
		status = http.StatusForbidden
	case apperrors.ErrCodeConflict:
		status = http.StatusConflict
	case apperrors.ErrCodeValidation:
		status = http.StatusBadRequest
	case apperrors.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	case apperrors.ErrCodeCanceled:
		status = http.StatusServiceUnavailable
	case apperrors.ErrCodeInternal:
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		WriteJSON(w, status, map[string]string{
			"error":   string(apperrors.ErrCodeInternal),
			"message": "internal error",
		})
		return
	}

	WriteError(w, ErrorParams{Code: status, ErrCode: string(code), Err: err})
}
