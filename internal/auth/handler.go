package auth

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/leofleet/fleet-console/internal/guard"
	"github.com/leofleet/fleet-console/internal/platform/httpx"
	"github.com/leofleet/fleet-console/internal/rbac"
	"github.com/leofleet/fleet-console/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	evaluator      *rbac.Evaluator
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	cooldown       *guard.Cooldown
	loginPath      string
	validator      *validator.Validate
	loginLimiter   func(http.Handler) http.Handler
}

// HandlerConfig groups the dependencies of Handler.
type HandlerConfig struct {
	Logger    *slog.Logger
	Service   *Service
	Evaluator *rbac.Evaluator
	Sessions  *shared.SessionManager
	CSRF      *shared.CSRFManager
	Cooldown  *guard.Cooldown
	LoginPath string
	// LoginLimiter throttles POST /login; nil disables it.
	LoginLimiter func(http.Handler) http.Handler
}

// NewHandler constructs a Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        cfg.Service,
		evaluator:      cfg.Evaluator,
		sessionManager: cfg.Sessions,
		csrfManager:    cfg.CSRF,
		cooldown:       cfg.Cooldown,
		loginPath:      loginPath,
		validator:      validator.New(),
		loginLimiter:   cfg.LoginLimiter,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.csrfToken)
	r.Group(func(r chi.Router) {
		if h.loginLimiter != nil {
			r.Use(h.loginLimiter)
		}
		r.Post("/login", h.handleLogin)
	})
	r.Post("/logout", h.handleLogout)
	r.Post("/refresh", h.handleRefresh)
	r.Get("/me", h.me)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	OK           bool                          `json:"ok"`
	Error        string                        `json:"error,omitempty"`
	Fields       map[string]string             `json:"fields,omitempty"`
	Degraded     bool                          `json:"degraded,omitempty"`
	Profile      *rbac.Profile                 `json:"profile,omitempty"`
	Capabilities map[rbac.Module][]rbac.Action `json:"capabilities,omitempty"`
}

func (h *Handler) csrfToken(w http.ResponseWriter, r *http.Request) {
	token := h.csrfManager.EnsureToken(w, r)
	httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	form, err := decodeLoginForm(r)
	if err != nil {
		httpx.JSON(w, http.StatusBadRequest, loginResponse{Error: "invalid request body"})
		return
	}
	fields := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				fields[strings.ToLower(fieldErr.Field())] = fieldErr.Tag()
			}
		}
		httpx.JSON(w, http.StatusBadRequest, loginResponse{Error: "email and password are required", Fields: fields})
		return
	}

	result, err := h.service.Login(r.Context(), form.Email, form.Password, ClientMeta{IP: r.RemoteAddr, UserAgent: r.UserAgent()})
	if err != nil {
		var credErr *CredentialError
		switch {
		case errors.As(err, &credErr):
			httpx.JSON(w, http.StatusUnauthorized, loginResponse{Error: credErr.Message})
		case errors.Is(err, shared.ErrUpstreamUnavailable):
			h.logger.Warn("login upstream unavailable", slog.Any("error", err))
			httpx.JSON(w, http.StatusServiceUnavailable, loginResponse{Error: "The fleet service is unavailable. Please try again later."})
		default:
			h.logger.Error("login failed", slog.Any("error", err))
			httpx.JSON(w, http.StatusInternalServerError, loginResponse{Error: http.StatusText(http.StatusInternalServerError)})
		}
		return
	}

	blob, err := EncodeProfile(result.Profile)
	if err != nil {
		h.logger.Error("encode profile", slog.Any("error", err))
		httpx.JSON(w, http.StatusInternalServerError, loginResponse{Error: http.StatusText(http.StatusInternalServerError)})
		return
	}
	h.sessionManager.Persist(w, result.Token, result.SessionID, blob)
	h.logger.Info("user signed in", slog.String("user", result.Token), slog.Bool("degraded", result.Degraded))
	httpx.JSON(w, http.StatusOK, loginResponse{
		OK:           true,
		Degraded:     result.Degraded,
		Profile:      result.Profile,
		Capabilities: h.evaluator.Capabilities(result.Profile),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	h.service.Logout(r.Context(), sess)
	h.sessionManager.Clear(w)

	key := guard.CooldownKey(r, "logout")
	if !h.cooldown.Begin(key) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	defer h.cooldown.Done(key)
	http.Redirect(w, r, h.loginPath, http.StatusSeeOther)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	profile, err := h.service.Refresh(r.Context(), sess)
	if err != nil {
		if !errors.Is(err, shared.ErrUnauthenticated) {
			h.logger.Warn("refresh profile", slog.String("user", sess.Token), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	blob, err := EncodeProfile(profile)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.sessionManager.PersistProfile(w, sess, blob)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"profile":      profile,
		"capabilities": h.evaluator.Capabilities(profile),
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	profile := rbac.ProfileFromContext(r.Context())
	if profile == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"profile":      profile,
		"admin":        h.evaluator.IsAdmin(profile),
		"capabilities": h.evaluator.Capabilities(profile),
	})
}

func decodeLoginForm(r *http.Request) (loginForm, error) {
	var form loginForm
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := httpx.DecodeJSON(r, &form)
		return form, err
	}
	if err := r.ParseForm(); err != nil {
		return form, err
	}
	form.Email = r.PostFormValue("email")
	form.Password = r.PostFormValue("password")
	return form, nil
}
