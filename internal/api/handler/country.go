package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hszk-dev/countrytube/internal/domain/model"
	"github.com/hszk-dev/countrytube/internal/logging"
	"github.com/hszk-dev/countrytube/internal/usecase"
)

// Request/Response types

type SeedResponse struct {
	Origin            string `json:"origin"`
	Countries         int    `json:"countries"`
	Videos            int    `json:"videos"`
	DroppedDuplicates int    `json:"droppedDuplicates"`
	DurationMS        int64  `json:"durationMs"`
}

type ClearCacheResponse struct {
	Status string `json:"status"`
}

// CountryHandlerConfig holds the query parameter limits.
type CountryHandlerConfig struct {
	DefaultMaxResults int
	MaxPageSize       int
}

// CountryHandler handles country listing and catalog administration requests.
type CountryHandler struct {
	countries usecase.CountryService
	catalogs  usecase.CatalogService

	defaultMaxResults int
	maxPageSize       int
}

// NewCountryHandler creates a new CountryHandler.
func NewCountryHandler(countries usecase.CountryService, catalogs usecase.CatalogService, cfg CountryHandlerConfig) *CountryHandler {
	return &CountryHandler{
		countries:         countries,
		catalogs:          catalogs,
		defaultMaxResults: cfg.DefaultMaxResults,
		maxPageSize:       cfg.MaxPageSize,
	}
}

// List handles GET /countries?country=&pageToken=&maxResults=
func (h *CountryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	pageToken := 0
	if raw := q.Get("pageToken"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			Error(w, http.StatusBadRequest, "invalid_page_token", "pageToken must be a non-negative integer")
			return
		}
		pageToken = v
	}

	maxResults := h.defaultMaxResults
	if raw := q.Get("maxResults"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > h.maxPageSize {
			Error(w, http.StatusBadRequest, "invalid_max_results",
				fmt.Sprintf("maxResults must be an integer between 1 and %d", h.maxPageSize))
			return
		}
		maxResults = v
	}

	out, err := h.countries.ListVideos(r.Context(), usecase.ListVideosInput{
		Country:    q.Get("country"),
		PageToken:  pageToken,
		MaxResults: maxResults,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, out)
}

// SupportedCountries handles GET /supported-countries
func (h *CountryHandler) SupportedCountries(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.catalogs.SupportedCountries(r.Context()))
}

// Seed handles GET|POST /seed-countries
func (h *CountryHandler) Seed(w http.ResponseWriter, r *http.Request) {
	out, err := h.catalogs.Seed(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, SeedResponse{
		Origin:            out.Origin,
		Countries:         out.Countries,
		Videos:            out.Videos,
		DroppedDuplicates: out.Dropped,
		DurationMS:        out.Duration.Milliseconds(),
	})
}

// ClearCache handles GET|POST /clear-cache
func (h *CountryHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.countries.ClearCache(r.Context()); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, ClearCacheResponse{Status: "cleared"})
}

func (h *CountryHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidPageSize):
		Error(w, http.StatusBadRequest, "invalid_max_results", "maxResults must be positive")
	case errors.Is(err, model.ErrInvalidOffset):
		Error(w, http.StatusBadRequest, "invalid_page_token", "pageToken cannot be negative")
	case errors.Is(err, usecase.ErrUpstreamSeedFailure):
		Error(w, http.StatusBadGateway, "upstream_seed_failure", "Catalog origin could not be seeded; previous catalog kept")
	default:
		logging.FromContext(r.Context()).Error("request failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
