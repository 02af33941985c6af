package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error   string        `json:"error"`
	Message string        `json:"message,omitempty"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// ErrorDetails identifies the request an error belongs to.
type ErrorDetails struct {
	RequestedURL string    `json:"requested_url"`
	Timestamp    time.Time `json:"timestamp"`
}

// now is replaced in tests.
var now = time.Now

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		// headers are already sent
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// WriteError writes a JSON error response. When r is non-nil the body
// carries the requested URL and the time of the failure.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	resp := ErrorResponse{
		Error:   code,
		Message: message,
	}
	if r != nil {
		resp.Details = &ErrorDetails{
			RequestedURL: RequestedURL(r),
			Timestamp:    now().UTC(),
		}
	}
	WriteJSON(w, status, resp)
}

// RequestedURL reconstructs the absolute URL the client asked for.
func RequestedURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
