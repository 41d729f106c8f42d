// Package api exposes the audit engine over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/chrispiasecki/pptb-auditing-manager/internal/domain"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/middleware"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/service/export"
	"github.com/chrispiasecki/pptb-auditing-manager/internal/service/trail"
)

// Handler serves the audit API over the browsing and export services.
type Handler struct {
	trail  *trail.Service
	export *export.Service
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(trailSvc *trail.Service, exportSvc *export.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{trail: trailSvc, export: exportSvc, logger: logger.With("component", "api")}
}

// RouterConfig carries the middleware parameters the router needs.
type RouterConfig struct {
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// NewRouter mounts the handler behind the standard middleware stack.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(h.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
	}))
	if cfg.RateLimitRPS > 0 {
		r.Use(middleware.RateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		}))
	}

	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/audits", h.currentPage)
		r.Post("/audits/query", h.query)
		r.Get("/audits/page/{page}", h.goToPage)
		r.Get("/audits/{id}/details", h.entryDetails)
		r.Get("/records/{table}/{id}/history", h.recordHistory)
		r.Post("/exports", h.runExport)
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// currentPage returns the page the session is positioned on without
// refetching.
func (h *Handler) currentPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pageView())
}

type queryRequest struct {
	Filter   filterDTO `json:"filter"`
	PageSize int       `json:"page_size,omitempty"`
}

// query replaces the session filter and returns the reloaded first page. Any
// degraded fetch is reported in the response rather than failing it.
func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.ErrValidation("invalid request body: %v", err))
		return
	}
	filter, err := req.Filter.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Resize without fetching; the filter change below reloads page 1 once.
	if req.PageSize > 0 && req.PageSize != h.trail.PageSize() {
		h.trail.ResizePage(req.PageSize)
	}
	if err := h.trail.SetFilters(r.Context(), filter); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondWithPage(w, r)
}

// goToPage navigates the session. An unreachable page keeps the current view
// and says so.
func (h *Handler) goToPage(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 1 {
		writeError(w, r, domain.ErrValidation("invalid page number %q", chi.URLParam(r, "page")))
		return
	}
	if !h.trail.CanNavigateTo(page) {
		writeError(w, r, domain.ErrValidation("page %d is not reachable from the current position", page))
		return
	}
	h.trail.GoToPage(r.Context(), page)
	h.respondWithPage(w, r)
}

func (h *Handler) entryDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.trail.EntryDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetailDTOs(details))
}

func (h *Handler) recordHistory(w http.ResponseWriter, r *http.Request) {
	pageNumber, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	page, err := h.trail.RecordHistory(r.Context(),
		chi.URLParam(r, "table"), chi.URLParam(r, "id"), pageNumber, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageDTO{
		Entries:        toEntryDTOs(page.Entries),
		PageNumber:     pageNumber,
		PageSize:       pageSize,
		TotalCount:     page.TotalCount,
		HasMoreRecords: page.HasMoreRecords,
	})
}

type exportRequest struct {
	Filter      filterDTO `json:"filter"`
	MaxRecords  int       `json:"max_records,omitempty"`
	WithDetails bool      `json:"with_details,omitempty"`
}

type exportResponse struct {
	Entries []entryDTO             `json:"entries"`
	Details map[string][]detailDTO `json:"details,omitempty"`
	Total   int                    `json:"total"`
	Capped  bool                   `json:"capped"`
}

func (h *Handler) runExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.ErrValidation("invalid request body: %v", err))
		return
	}
	filter, err := req.Filter.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.export.Run(r.Context(), export.Request{
		Filter:      filter,
		MaxRecords:  req.MaxRecords,
		WithDetails: req.WithDetails,
	}, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := exportResponse{
		Entries: toEntryDTOs(result.Entries),
		Total:   result.Total,
		Capped:  result.Capped,
	}
	if result.Details != nil {
		resp.Details = make(map[string][]detailDTO, len(result.Details))
		for id, details := range result.Details {
			resp.Details[id] = toDetailDTOs(details)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// respondWithPage renders the current page view, attaching the consumable
// error state when the last fetch degraded.
func (h *Handler) respondWithPage(w http.ResponseWriter, r *http.Request) {
	view := h.pageView()
	body := struct {
		pageDTO
		Degraded string `json:"degraded,omitempty"`
	}{pageDTO: view}
	if err := h.trail.LastError(); err != nil {
		h.logger.Warn("serving degraded page", "error", err)
		body.Degraded = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) pageView() pageDTO {
	return pageDTO{
		Entries:        toEntryDTOs(h.trail.Entries()),
		PageNumber:     h.trail.PageNumber(),
		PageSize:       h.trail.PageSize(),
		TotalCount:     h.trail.TotalCount(),
		HasMoreRecords: h.trail.HasMoreRecords(),
	}
}
