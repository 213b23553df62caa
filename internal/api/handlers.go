package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"content_aggregator/internal/domain"
)

const maxRequestBody = 8 << 20

// Catalog is the content use-case layer behind the HTTP handlers.
type Catalog interface {
	List(ctx context.Context, filter domain.ContentFilter, page domain.Pagination) ([]domain.ContentWithAuthor, error)
	Stats(ctx context.Context, filter domain.ContentFilter) (*domain.ContentStats, error)
	Save(ctx context.Context, inputs []domain.ContentInput) ([]domain.ContentWithAuthor, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	catalog         Catalog
	db              Pinger
	validate        *validator.Validate
	logger          *slog.Logger
	defaultPageSize int
	maxPageSize     int
}

func NewHandler(catalog Catalog, db Pinger, logger *slog.Logger, defaultPageSize, maxPageSize int) *Handler {
	return &Handler{
		catalog:         catalog,
		db:              db,
		validate:        validator.New(),
		logger:          logger.With("component", "api"),
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

func (h *Handler) ListContents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.parsePagination(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.catalog.List(r.Context(), filter, page)
	if err != nil {
		h.logger.Error("failed to list contents", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list contents")
		return
	}

	response := make([]ContentItem, 0, len(items))
	for _, item := range items {
		response = append(response, toContentItem(item))
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) ContentStats(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.catalog.Stats(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to aggregate contents", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to aggregate contents")
		return
	}

	h.writeJSON(w, http.StatusOK, toStatsResponse(stats))
}

// CreateContents accepts a single content object or an array of them.
func (h *Handler) CreateContents(w http.ResponseWriter, r *http.Request) {
	requests, err := decodeContentRequests(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(requests) == 0 {
		h.writeError(w, http.StatusBadRequest, "no contents in request")
		return
	}

	inputs := make([]domain.ContentInput, 0, len(requests))
	for i, req := range requests {
		if err := h.validate.Struct(req); err != nil {
			h.writeValidationError(w, i, err)
			return
		}
		inputs = append(inputs, req.toDomain())
	}

	saved, err := h.catalog.Save(r.Context(), inputs)
	if err != nil {
		h.logger.Error("failed to save contents", "count", len(inputs), "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to save contents")
		return
	}

	response := make([]ContentItem, 0, len(saved))
	for _, item := range saved {
		response = append(response, toContentItem(item))
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeContentRequests(body io.Reader) ([]ContentRequest, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty request body")
	}

	if trimmed[0] == '[' {
		var requests []ContentRequest
		if err := json.Unmarshal(trimmed, &requests); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return requests, nil
	}

	var single ContentRequest
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return []ContentRequest{single}, nil
}

func parseFilter(r *http.Request) (domain.ContentFilter, error) {
	q := r.URL.Query()
	filter := domain.ContentFilter{
		AuthorUsername: q.Get("author_username"),
		Tag:            q.Get("tag"),
		Title:          q.Get("title"),
	}

	authorID, err := optionalInt(q.Get("author_id"), "author_id")
	if err != nil {
		return filter, err
	}
	filter.AuthorID = int64(authorID)

	timeframe, err := optionalInt(q.Get("timeframe"), "timeframe")
	if err != nil {
		return filter, err
	}
	filter.TimeframeDays = timeframe

	return filter, nil
}

func (h *Handler) parsePagination(r *http.Request) (domain.Pagination, error) {
	q := r.URL.Query()
	page := domain.Pagination{Page: 1, ItemsPerPage: h.defaultPageSize}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, errors.New("page must be a positive integer")
		}
		page.Page = n
	}

	if v := q.Get("items_per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, errors.New("items_per_page must be a positive integer")
		}
		page.ItemsPerPage = n
	}
	if h.maxPageSize > 0 && page.ItemsPerPage > h.maxPageSize {
		page.ItemsPerPage = h.maxPageSize
	}

	return page, nil
}

func optionalInt(value, name string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func (h *Handler) writeValidationError(w http.ResponseWriter, index int, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
	}
	h.writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   fmt.Sprintf("invalid content at index %d", index),
		Details: details,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
