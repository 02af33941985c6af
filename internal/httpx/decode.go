package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

const (
	// MaxRequestBodySize caps JSON request bodies. Link creation bodies are tiny.
	MaxRequestBodySize = 64 << 10
)

// ErrUnsupportedMediaType is returned when a body is sent with a
// Content-Type other than application/json.
var ErrUnsupportedMediaType = errors.New("content type must be application/json")

// DecodeJSON decodes a single JSON object from the request body into T.
// Unknown fields and trailing data are rejected. A missing Content-Type is
// accepted.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var v, zero T

	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return zero, ErrUnsupportedMediaType
		}
	}

	body := http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	defer func() {
		_ = body.Close()
	}()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&v); err != nil {
		var syntaxErr *json.SyntaxError
		var unmarshalErr *json.UnmarshalTypeError
		var maxBytesErr *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxErr):
			return zero, fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return zero, errors.New("malformed JSON: unexpected end of body")
		case errors.As(err, &unmarshalErr):
			return zero, fmt.Errorf("invalid value for field %q", unmarshalErr.Field)
		case errors.As(err, &maxBytesErr):
			return zero, fmt.Errorf("request body too large (max %d bytes)", MaxRequestBodySize)
		case errors.Is(err, io.EOF):
			return zero, errors.New("request body is empty")
		default:
			return zero, fmt.Errorf("failed to decode JSON: %w", err)
		}
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return zero, errors.New("request body must contain a single JSON object")
	}

	return v, nil
}
