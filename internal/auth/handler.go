package auth

import (
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-lims/meridian-lims/internal/authz"
	"github.com/meridian-lims/meridian-lims/internal/platform/httpx"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers auth routes. Login is public but tightly rate
// limited; logout and me require a valid token.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.LimitByIP(10, time.Minute)).Post("/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(Middleware(h.logger, h.service))
		r.Post("/logout", h.handleLogout)
		r.Get("/me", h.handleMe)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password, r.RemoteAddr, r.UserAgent())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("login", slog.Int64("user_id", result.User.ID))
	httpx.JSON(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		TokenType: "Bearer",
		ExpiresAt: result.ExpiresAt,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing token")
		return
	}
	if err := h.service.Logout(r.Context(), claims); err != nil {
		h.logger.Error("logout", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

type meRole struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Rank        int      `json:"rank"`
	Permissions []string `json:"permissions"`
}

type meResponse struct {
	ID          int64    `json:"id"`
	Email       string   `json:"email"`
	IsSuperuser bool     `json:"is_superuser"`
	MaxRank     int      `json:"max_rank"`
	Roles       []meRole `json:"roles"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	subject, ok := authz.SubjectFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing token")
		return
	}
	resp := meResponse{
		ID:          subject.UserID,
		Email:       subject.Email,
		IsSuperuser: subject.IsSuperuser,
		MaxRank:     subject.MaxRank(),
		Roles:       make([]meRole, 0, len(subject.Roles)),
		Permissions: make([]string, 0),
	}
	for _, role := range subject.Roles {
		resp.Roles = append(resp.Roles, meRole{ID: role.ID, Name: role.Name, Rank: role.Rank, Permissions: role.Permissions})
	}
	for name := range subject.EffectivePermissions() {
		resp.Permissions = append(resp.Permissions, name)
	}
	sort.Strings(resp.Permissions)
	httpx.JSON(w, http.StatusOK, resp)
}
