package shortener

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sundayezeilo/shortlink/codec"
	"github.com/sundayezeilo/shortlink/internal/anonymize"
	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/httpx"
)

// HTTPCreateLinkRequest represents the JSON request body for creating a link.
type HTTPCreateLinkRequest struct {
	URL      string `json:"url"`
	TTLHours *int   `json:"ttl_hours,omitempty"`
}

// CreateLinkResponse represents the JSON response for a created link.
type CreateLinkResponse struct {
	ShortCode   string     `json:"short_code"`
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// StatsResponse represents the JSON response for link statistics.
type StatsResponse struct {
	ShortCode      string     `json:"short_code"`
	OriginalURL    string     `json:"original_url"`
	AccessCount    int64      `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	IsExpired      bool       `json:"is_expired"`
}

// Handler provides HTTP handlers for the link service.
type Handler struct {
	service Service
	logger  *slog.Logger
	baseURL string
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Service Service
	Logger  *slog.Logger
	BaseURL string // e.g. "https://sho.rt"; short URLs are BaseURL + "/" + code
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service: cfg.Service,
		logger:  logger,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With(
		"request_id", httpx.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
}

// ShortURL returns the public URL for code.
func (h *Handler) ShortURL(code string) string {
	return h.baseURL + "/" + code
}

// CreateLink handles POST /api/links.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[HTTPCreateLinkRequest](w, r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		status := http.StatusBadRequest
		if errors.Is(err, httpx.ErrUnsupportedMediaType) {
			status = http.StatusUnsupportedMediaType
		}
		httpx.WriteError(w, r, status, httpx.CodeInvalidRequest, err.Error())
		return
	}

	if err := validateCreateRequest(req); err != nil {
		logger.WarnContext(ctx, "request validation failed",
			"error", err.Error(),
			"ttl_hours", req.TTLHours,
		)
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	created, err := h.service.Create(ctx, CreateRequest{
		OriginalURL: req.URL,
		TTLHours:    req.TTLHours,
	})
	if err != nil {
		h.handleCreateError(ctx, logger, w, r, err)
		return
	}

	shortURL := h.ShortURL(created.ShortCode)

	logger.InfoContext(ctx, "link created",
		"short_code", created.ShortCode,
		"expires", created.ExpiresAt != nil,
	)

	w.Header().Set("Location", shortURL)
	httpx.WriteJSON(w, http.StatusCreated, CreateLinkResponse{
		ShortCode:   created.ShortCode,
		ShortURL:    shortURL,
		OriginalURL: created.OriginalURL,
		ExpiresAt:   utc(created.ExpiresAt),
	})
}

// Redirect handles GET /{code}. It answers 302 to the original URL, 404 for
// unknown codes and 410 for expired ones.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)
	code := r.PathValue("code")

	originalURL, err := h.service.Resolve(ctx, code)
	if err != nil {
		h.handleLookupError(ctx, logger, w, r, err, code)
		return
	}

	logger.DebugContext(ctx, "short code resolved", "short_code", code)
	http.Redirect(w, r, originalURL, http.StatusFound)
}

// Stats handles GET /api/links/{code}/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)
	code := r.PathValue("code")

	stats, err := h.service.Stats(ctx, code)
	if err != nil {
		h.handleLookupError(ctx, logger, w, r, err, code)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, StatsResponse{
		ShortCode:      stats.ShortCode,
		OriginalURL:    stats.OriginalURL,
		AccessCount:    stats.AccessCount,
		LastAccessedAt: utc(stats.LastAccessedAt),
		ExpiresAt:      utc(stats.ExpiresAt),
		IsExpired:      stats.IsExpired,
	})
}

// Delete handles DELETE /api/links/{code}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)
	code := r.PathValue("code")

	if err := h.service.Delete(ctx, code); err != nil {
		h.handleLookupError(ctx, logger, w, r, err, code)
		return
	}

	logger.InfoContext(ctx, "link deleted", "short_code", code)
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateError handles errors from the Create service method.
func (h *Handler) handleCreateError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind,
		"operation", errx.OpOf(err),
	}

	switch kind {
	case errx.Invalid:
		logger.WarnContext(ctx, "invalid link request", logAttrs...)
		httpx.WriteKindError(w, r, err, invalidMessage(err))

	case errx.Unavailable:
		logger.ErrorContext(ctx, "store unavailable", logAttrs...)
		httpx.WriteKindError(w, r, err, "Unable to create short link at this time. Please try again.")

	default:
		logger.ErrorContext(ctx, "unexpected error creating link", logAttrs...)
		httpx.WriteError(w, r, http.StatusInternalServerError, httpx.CodeInternal,
			"Unable to create short link at this time. Please try again.")
	}
}

// handleLookupError handles errors from operations addressed by short code.
// Misses are logged with the anonymized client token only.
func (h *Handler) handleLookupError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error, code string) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind,
		"operation", errx.OpOf(err),
		"short_code", code,
		"well_formed", codec.Valid(code),
	}

	switch kind {
	case errx.NotFound:
		logger.WarnContext(ctx, "short code not found",
			append(logAttrs, "client", anonymize.FromRequest(r))...)
		httpx.WriteKindError(w, r, err, "short link doesn't exist")

	case errx.Gone:
		logger.WarnContext(ctx, "short code expired",
			append(logAttrs, "client", anonymize.FromRequest(r))...)
		httpx.WriteKindError(w, r, err, "short link has expired")

	case errx.Unavailable:
		logger.ErrorContext(ctx, "store unavailable", logAttrs...)
		httpx.WriteKindError(w, r, err, "Unable to process this link at this time")

	default:
		logger.ErrorContext(ctx, "unexpected error handling link", logAttrs...)
		httpx.WriteError(w, r, http.StatusInternalServerError, httpx.CodeInternal,
			"Unable to process this link at this time")
	}
}

// validateCreateRequest performs boundary checks before the service runs
// its own validation.
func validateCreateRequest(req HTTPCreateLinkRequest) error {
	if strings.TrimSpace(req.URL) == "" {
		return errors.New("url is required")
	}
	if req.TTLHours != nil {
		if err := ValidateTTL(*req.TTLHours); err != nil {
			return err
		}
	}
	return ValidateURL(req.URL)
}

// invalidMessage returns the innermost error text, which is written for clients.
func invalidMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
