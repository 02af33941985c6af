package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type linkBody struct {
	URL      string `json:"url"`
	TTLHours *int   `json:"ttl_hours,omitempty"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		errContains string
		validate    func(*testing.T, linkBody)
	}{
		{
			name:        "valid body",
			body:        `{"url":"https://example.com","ttl_hours":24}`,
			contentType: "application/json",
			validate: func(t *testing.T, b linkBody) {
				if b.URL != "https://example.com" {
					t.Errorf("expected url https://example.com, got %q", b.URL)
				}
				if b.TTLHours == nil || *b.TTLHours != 24 {
					t.Errorf("expected ttl_hours 24, got %v", b.TTLHours)
				}
			},
		},
		{
			name:        "charset parameter accepted",
			body:        `{"url":"https://example.com"}`,
			contentType: "application/json; charset=utf-8",
			validate: func(t *testing.T, b linkBody) {
				if b.TTLHours != nil {
					t.Errorf("expected nil ttl_hours, got %v", *b.TTLHours)
				}
			},
		},
		{
			name: "missing content type accepted",
			body: `{"url":"https://example.com"}`,
		},
		{
			name:        "wrong content type",
			body:        `url=https://example.com`,
			contentType: "application/x-www-form-urlencoded",
			errContains: "content type must be application/json",
		},
		{
			name:        "empty body",
			body:        "",
			contentType: "application/json",
			errContains: "request body is empty",
		},
		{
			name:        "malformed JSON",
			body:        `{"url":"https://example.com",}`,
			contentType: "application/json",
			errContains: "malformed JSON",
		},
		{
			name:        "truncated JSON",
			body:        `{"url":"https://exa`,
			contentType: "application/json",
			errContains: "malformed JSON",
		},
		{
			name:        "wrong field type",
			body:        `{"url":"https://example.com","ttl_hours":"soon"}`,
			contentType: "application/json",
			errContains: `invalid value for field "ttl_hours"`,
		},
		{
			name:        "unknown field",
			body:        `{"url":"https://example.com","custom_slug":"x"}`,
			contentType: "application/json",
			errContains: "unknown field",
		},
		{
			name:        "multiple objects",
			body:        `{"url":"https://a.com"}{"url":"https://b.com"}`,
			contentType: "application/json",
			errContains: "single JSON object",
		},
		{
			name:        "body too large",
			body:        `{"url":"https://example.com/` + strings.Repeat("a", MaxRequestBodySize) + `"}`,
			contentType: "application/json",
			errContains: "request body too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/links", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rr := httptest.NewRecorder()

			got, err := DecodeJSON[linkBody](rr, req)

			if tt.errContains != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errContains)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error containing %q, got %q", tt.errContains, err.Error())
				}
				if got.URL != "" {
					t.Errorf("expected zero value on error, got %+v", got)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.validate != nil {
				tt.validate(t, got)
			}
		})
	}
}
