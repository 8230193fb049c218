package samples

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

// Handler manages sample endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers sample routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listSamples)
	r.Post("/", h.createSample)
	r.Get("/{sampleID}", h.getSample)
	r.Put("/{sampleID}", h.updateSample)
	r.Delete("/{sampleID}", h.deleteSample)
}

type sampleResponse struct {
	ID             int64      `json:"id"`
	AddressID      int64      `json:"address_id"`
	Description    *string    `json:"description"`
	IsInside       *bool      `json:"is_inside"`
	FlowRate       *int       `json:"flow_rate"`
	VolumeRequired *int       `json:"volume_required"`
	StartTime      *time.Time `json:"start_time"`
	StopTime       *time.Time `json:"stop_time"`
	TotalTimeRan   *string    `json:"total_time_ran"`
	Fields         *int       `json:"fields"`
	Fibers         *int       `json:"fibers"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toSampleResponse(s Sample) sampleResponse {
	resp := sampleResponse{
		ID:             s.ID,
		AddressID:      s.AddressID,
		Description:    s.Description,
		IsInside:       s.IsInside,
		FlowRate:       s.FlowRate,
		VolumeRequired: s.VolumeRequired,
		StartTime:      s.StartTime,
		StopTime:       s.StopTime,
		Fields:         s.Fields,
		Fibers:         s.Fibers,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if d := s.TotalRunTime(); d != nil {
		str := d.String()
		resp.TotalTimeRan = &str
	}
	return resp
}

func (h *Handler) listSamples(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrFail(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var (
		samples []Sample
		err     error
	)
	if raw := q.Get("address_id"); raw != "" {
		addressID, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil || addressID <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "address_id must be a positive integer")
			return
		}
		var date *time.Time
		if rawDate := q.Get("date"); rawDate != "" {
			d, parseErr := time.Parse("2006-01-02", rawDate)
			if parseErr != nil {
				httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "date must be YYYY-MM-DD")
				return
			}
			date = &d
		}
		samples, err = h.service.ListByAddress(r.Context(), subject, addressID, date)
	} else {
		samples, err = h.service.ListSamples(r.Context(), subject)
	}
	if err != nil {
		h.fail(w, "list samples", err)
		return
	}
	out := make([]sampleResponse, 0, len(samples))
	for _, s := range samples {
		out = append(out, toSampleResponse(s))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type createSampleRequest struct {
	AddressID   int64   `json:"address_id" validate:"required,gt=0"`
	Description *string `json:"description"`
}

func (h *Handler) createSample(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrFail(w, r)
	if !ok {
		return
	}
	var req createSampleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sample, err := h.service.CreateSample(r.Context(), subject, req.AddressID, req.Description)
	if err != nil {
		h.fail(w, "create sample", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSampleResponse(sample))
}

func (h *Handler) getSample(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrFail(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "sampleID")
	if !ok {
		return
	}
	sample, err := h.service.GetSample(r.Context(), subject, id)
	if err != nil {
		h.fail(w, "get sample", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSampleResponse(sample))
}

type updateSampleRequest struct {
	Description    *string    `json:"description"`
	IsInside       *bool      `json:"is_inside"`
	FlowRate       *int       `json:"flow_rate" validate:"omitempty,gte=0"`
	VolumeRequired *int       `json:"volume_required" validate:"omitempty,gte=0"`
	StartTime      *time.Time `json:"start_time"`
	StopTime       *time.Time `json:"stop_time"`
	Fields         *int       `json:"fields" validate:"omitempty,gte=0"`
	Fibers         *int       `json:"fibers" validate:"omitempty,gte=0"`
}

func (h *Handler) updateSample(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrFail(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "sampleID")
	if !ok {
		return
	}
	var req updateSampleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sample, err := h.service.UpdateSample(r.Context(), subject, id, UpdateSampleInput{
		Description:    req.Description,
		IsInside:       req.IsInside,
		FlowRate:       req.FlowRate,
		VolumeRequired: req.VolumeRequired,
		StartTime:      req.StartTime,
		StopTime:       req.StopTime,
		Fields:         req.Fields,
		Fibers:         req.Fibers,
	})
	if err != nil {
		h.fail(w, "update sample", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSampleResponse(sample))
}

func (h *Handler) deleteSample(w http.ResponseWriter, r *http.Request) {
	subject, ok := subjectOrFail(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "sampleID")
	if !ok {
		return
	}
	if err := h.service.DeleteSample(r.Context(), subject, id); err != nil {
		h.fail(w, "delete sample", err)
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
