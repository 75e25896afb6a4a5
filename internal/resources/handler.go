package resources

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leofleet/fleet-console/internal/fleetapi"
	"github.com/leofleet/fleet-console/internal/platform/httpx"
	"github.com/leofleet/fleet-console/internal/rbac"
	"github.com/leofleet/fleet-console/internal/shared"
)

// maxPerPage caps the page size a client may request.
const maxPerPage = 200

// Handler serves /api/resources/{slug}.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	kinds   []Kind
}

// NewHandler builds a Handler for every kind in Catalog.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, kinds: Catalog()}
}

// MountRoutes registers one route group per collection.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, kind := range h.kinds {
		kind := kind
		r.Route("/"+kind.Slug, func(r chi.Router) {
			if kind.Reference() {
				r.Use(h.rbac.RequireAuthenticated())
				r.Get("/", h.list(kind))
				r.Get("/{id}", h.get(kind))
				return
			}
			r.With(h.rbac.RequireAny(kind.Module, rbac.ActionRead)).Get("/", h.list(kind))
			r.With(h.rbac.RequireAny(kind.Module, rbac.ActionRead)).Get("/{id}", h.get(kind))
			r.With(h.rbac.RequireAny(kind.Module, rbac.ActionCreate)).Post("/", h.create(kind))
			r.With(h.rbac.RequireAny(kind.Module, rbac.ActionWrite)).Put("/{id}", h.update(kind))
			r.With(h.rbac.RequireAny(kind.Module, rbac.ActionDelete)).Delete("/{id}", h.remove(kind))
		})
	}
}

func (h *Handler) list(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var filters [][]any
		if raw := q.Get("filters"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &filters); err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "filters must be a JSON list")
				return
			}
		}
		page, err := h.service.List(r.Context(), kind, shared.PaginationFromQuery(q, maxPerPage), filters)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, page)
	}
}

func (h *Handler) get(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := h.service.Get(r.Context(), kind, chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": rec})
	}
}

func (h *Handler) create(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec fleetapi.Record
		if err := httpx.DecodeJSON(r, &rec); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		out, err := h.service.Create(r.Context(), kind, rec)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.logger.Info("record created", slog.String("collection", string(kind.Collection)), slog.String("user", actor(r)))
		httpx.JSON(w, http.StatusCreated, map[string]any{"data": out})
	}
}

func (h *Handler) update(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec fleetapi.Record
		if err := httpx.DecodeJSON(r, &rec); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		id := chi.URLParam(r, "id")
		out, err := h.service.Update(r.Context(), kind, id, rec)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.logger.Info("record updated", slog.String("collection", string(kind.Collection)), slog.String("id", id), slog.String("user", actor(r)))
		httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
	}
}

func (h *Handler) remove(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := h.service.Delete(r.Context(), kind, id); err != nil {
			h.fail(w, r, err)
			return
		}
		h.logger.Info("record deleted", slog.String("collection", string(kind.Collection)), slog.String("id", id), slog.String("user", actor(r)))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("fleet api request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}

func actor(r *http.Request) string {
	if p := rbac.ProfileFromContext(r.Context()); p != nil {
		return p.ID
	}
	return ""
}
