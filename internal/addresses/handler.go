package addresses

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

// Handler manages address endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers address routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listAddresses)
	r.Post("/", h.createAddress)
	r.Get("/{addressID}", h.getAddress)
	r.Put("/{addressID}", h.renameAddress)
	r.Delete("/{addressID}", h.deleteAddress)
}

type addressResponse struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Name      string    `json:"name"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAddressResponse(a Address) addressResponse {
	return addressResponse{
		ID:        a.ID,
		ProjectID: a.ProjectID,
		Name:      a.Name,
		Date:      a.Date.Format("2006-01-02"),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrFail(w, r)
	if !ok {
		return
	}
	projectID, err := strconv.ParseInt(r.URL.Query().Get("project_id"), 10, 64)
	if err != nil || projectID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "project_id query parameter required")
		return
	}
	addresses, err := h.service.ListByProject(r.Context(), subject, projectID)
	if err != nil {
		h.fail(w, "list addresses", err)
		return
	}
	out := make([]addressResponse, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, toAddressResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type createAddressRequest struct {
	ProjectID int64  `json:"project_id" validate:"required,gt=0"`
	Name      string `json:"name" validate:"required,min=1,max=255"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) createAddress(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrFail(w, r)
	if !ok {
		return
	}
	var req createAddressRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, _ := time.Parse("2006-01-02", req.Date)
	address, err := h.service.CreateAddress(r.Context(), subject, CreateAddressInput{
		ProjectID: req.ProjectID,
		Name:      req.Name,
		Date:      date,
	})
	if err != nil {
		h.fail(w, "create address", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAddressResponse(address))
}

func (h *Handler) getAddress(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrFail(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "addressID")
	if !ok {
		return
	}
	address, err := h.service.GetAddress(r.Context(), subject, id)
	if err != nil {
		h.fail(w, "get address", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAddressResponse(address))
}

type renameAddressRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

func (h *Handler) renameAddress(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrFail(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "addressID")
	if !ok {
		return
	}
	var req renameAddressRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	address, err := h.service.RenameAddress(r.Context(), subject, id, req.Name)
	if err != nil {
		h.fail(w, "rename address", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAddressResponse(address))
}

func (h *Handler) deleteAddress(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrFail(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "addressID")
	if !ok {
		return
	}
	if err := h.service.DeleteAddress(r.Context(), subject, id); err != nil {
		h.fail(w, "delete address", err)
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
