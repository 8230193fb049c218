package projects

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-lims/meridian-lims/internal/authz"
	"github.com/meridian-lims/meridian-lims/internal/platform/httpx"
)

// Handler manages project endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers project routes. Authorization is decided in the
// service from the subject's rank and project assignment.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listProjects)
	r.Post("/", h.createProject)
	r.Get("/{projectID}", h.getProject)
	r.Put("/{projectID}", h.updateProject)
	r.Delete("/{projectID}", h.deleteProject)
	r.Post("/{projectID}/technicians", h.assignTechnician)
	r.Delete("/{projectID}/technicians/{userID}", h.removeTechnician)
}

type projectResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type projectDetailResponse struct {
	projectResponse
	AddressIDs    []int64 `json:"address_ids"`
	TechnicianIDs []int64 `json:"technician_ids"`
}

func toProjectResponse(p Project) projectResponse {
	return projectResponse{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt}
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrFail(w, r)
	if !ok {
		return
	}
	projects, err := h.service.ListProjects(r.Context(), subject)
	if err != nil {
		h.fail(w, "list projects", err)
		return
	}
	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, toProjectResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type projectRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrFail(w, r)
	if !ok {
		return
	}
	var req projectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	project, err := h.service.CreateProject(r.Context(), subject, req.Name)
	if err != nil {
		h.fail(w, "create project", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProjectResponse(project))
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrFail(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "projectID")
	if !ok {
		return
	}
	detail, err := h.service.GetProject(r.Context(), subject, id)
	if err != nil {
		h.fail(w, "get project", err)
		return
	}
	resp := projectDetailResponse{
		projectResponse: toProjectResponse(detail.Project),
		AddressIDs:      detail.AddressIDs,
		TechnicianIDs:   detail.TechnicianIDs,
	}
	if resp.AddressIDs == nil {
		resp.AddressIDs = []int64{}
	}
	if resp.TechnicianIDs == nil {
		resp.TechnicianIDs = []int64{}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) updateProject(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrFail(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "projectID")
	if !ok {
		return
	}
	var req projectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	project, err := h.service.UpdateProject(r.Context(), subject, id, req.Name)
	if err != nil {
		h.fail(w, "update project", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProjectResponse(project))
}

func (h *Handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrFail(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "projectID")
	if !ok {
		return
	}
	if err := h.service.DeleteProject(r.Context(), subject, id); err != nil {
		h.fail(w, "delete project", err)
		return
	}
	httpx.NoContent(w)
}

type assignTechnicianRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

func (h *Handler) assignTechnician(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrFail(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "projectID")
	if !ok {
		return
	}
	var req assignTechnicianRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AssignTechnician(r.Context(), subject, id, req.UserID); err != nil {
		h.fail(w, "assign technician", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) removeTechnician(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrFail(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "projectID")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.service.RemoveTechnician(r.Context(), subject, id, userID); err != nil {
		h.fail(w, "remove technician", err)
		return
	}
	httpx.NoContent(w)
}

func subjectOrFail(w http.ResponseWriter, r *http.Request) (authz.Subject, bool) {
	subject, ok := authz.SubjectFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing subject")
		return authz.Subject{}, false
	}
	return subject, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
