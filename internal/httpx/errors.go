package httpx

import (
	"net/http"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

// Error codes written in the "error" field of an ErrorResponse.
const (
	CodeNotFound       = "not_found"
	CodeGone           = "gone"
	CodeConflict       = "conflict"
	CodeInvalidInput   = "invalid_input"
	CodeInvalidRequest = "invalid_request"
	CodeUnauthorized   = "unauthorized"
	CodeForbidden      = "forbidden"
	CodeUnavailable    = "unavailable"
	CodeInternal       = "internal_error"
)

// ErrorKindToStatus maps errx.Kind to HTTP status codes.
func ErrorKindToStatus(kind errx.Kind) int {
	switch kind {
	case errx.NotFound:
		return http.StatusNotFound
	case errx.Gone:
		return http.StatusGone
	case errx.Conflict:
		return http.StatusConflict
	case errx.Invalid:
		return http.StatusBadRequest
	case errx.Unauthorized:
		return http.StatusUnauthorized
	case errx.Forbidden:
		return http.StatusForbidden
	case errx.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorKindToCode maps errx.Kind to error codes for JSON responses.
func ErrorKindToCode(kind errx.Kind) string {
	switch kind {
	case errx.NotFound:
		return CodeNotFound
	case errx.Gone:
		return CodeGone
	case errx.Conflict:
		return CodeConflict
	case errx.Invalid:
		return CodeInvalidInput
	case errx.Unauthorized:
		return CodeUnauthorized
	case errx.Forbidden:
		return CodeForbidden
	case errx.Unavailable:
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// WriteKindError writes an error response whose status and code follow the
// kind of err. The message is supplied by the caller so internal error text
// never reaches the client.
func WriteKindError(w http.ResponseWriter, r *http.Request, err error, message string) {
	kind := errx.KindOf(err)
	WriteError(w, r, ErrorKindToStatus(kind), ErrorKindToCode(kind), message)
}
