package web

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"billing-console/internal/app"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	jwtSecret string
	jwtExpiry time.Duration
	logger    *zap.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins, jwtSecret string, jwtExpiry time.Duration, logger *zap.Logger) http.Handler {
	h := &Handler{
		svc:       svc,
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recoverer(logger))
	r.Use(CORS(allowedOrigins))

	// ── Health (public) ───────────────────────────────────────────────────────
	r.Get("/api/health", h.health)

	// ── Auth (public) ─────────────────────────────────────────────────────────
	r.Post("/api/auth/login", h.login)
	r.Post("/api/auth/logout", h.logout)

	// ── Protected API routes (401 JSON if unauthenticated) ────────────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)

		// Spreadsheet and document uploads carry their own multipart limit.
		r.Post("/api/clients/import", h.importClients)
		r.Post("/api/lotes/{id}/usage", h.uploadUsage)
		r.Post("/api/lotes/{id}/fiscal-documents", h.uploadFiscalDocument)

		// Everything else: 1 MB body limit.
		r.Group(func(r chi.Router) {
			r.Use(RequestBodyLimit(1 << 20))

			r.Get("/api/auth/me", h.me)

			// Clients
			r.Get("/api/clients", h.listClients)
			r.Post("/api/clients", h.createClient)
			r.Get("/api/clients/{id}", h.getClient)
			r.Put("/api/clients/{id}", h.updateClient)
			r.Post("/api/clients/{id}/disable", h.disableClient)

			// Lotes
			r.Get("/api/lotes", h.listLotes)
			r.Post("/api/lotes", h.createLote)
			r.Get("/api/lotes/{id}", h.getLote)
			r.Post("/api/lotes/{id}/advance", h.advanceLote)
			r.Post("/api/lotes/{id}/close", h.closeLote)
			r.Post("/api/lotes/{id}/request-deletion", h.requestLoteDeletion)

			// Rows
			r.Get("/api/lotes/{id}/unresolved", h.listUnresolvedRows)
			r.Post("/api/rows/{rowID}/resolve", h.resolveRow)
			r.Get("/api/rows/{rowID}/suggestions", h.suggestRowMatches)

			// Consolidation
			r.Post("/api/lotes/{id}/consolidate", h.consolidateLote)
			r.Get("/api/lotes/{id}/consolidation", h.getConsolidation)

			// Adjustments
			r.Get("/api/adjustments", h.listAdjustments)
			r.Post("/api/adjustments", h.createAdjustment)

			// Dispatch and exports
			r.Post("/api/lotes/{id}/dispatch", h.dispatchLote)
			r.Get("/api/lotes/{id}/exports/{kind}", h.exportWorkbook)
			r.Post("/api/lotes/{id}/email-documents", h.emailDocuments)

			// Admin-only deletion
			r.Group(func(r chi.Router) {
				r.Use(h.RequireAdmin)
				r.Delete("/api/lotes/{id}", h.deleteLote)
			})
		})
	})

	h.router = r
	return r
}

// health returns service status.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

// idParam extracts a positive integer URL parameter, writing a 400 and
// returning false on garbage.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		writeError(w, r, "invalid "+name+" parameter", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// formFile parses the multipart form and returns the named file. On failure
// the error response has already been written.
func formFile(w http.ResponseWriter, r *http.Request, field string) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(uploadLimit); err != nil {
		writeError(w, r, "invalid multipart form", "BAD_REQUEST", http.StatusBadRequest)
		return nil, nil, err
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		writeError(w, r, "missing "+field+" upload", "BAD_REQUEST", http.StatusBadRequest)
		return nil, nil, err
	}
	return file, header, nil
}
