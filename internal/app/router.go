package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-lims/meridian-lims/internal/addresses"
	"github.com/meridian-lims/meridian-lims/internal/auth"
	"github.com/meridian-lims/meridian-lims/internal/projects"
	"github.com/meridian-lims/meridian-lims/internal/rbac"
	"github.com/meridian-lims/meridian-lims/internal/samples"
	"github.com/meridian-lims/meridian-lims/internal/users"
	"github.com/meridian-lims/meridian-lims/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AuthService      *auth.Service
	AuthHandler      *auth.Handler
	RolesHandler     *rbac.Handler
	UsersHandler     *users.Handler
	ProjectsHandler  *projects.Handler
	AddressesHandler *addresses.Handler
	SamplesHandler   *samples.Handler
	JobsHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with Meridian defaults. Everything
// except /healthz and /auth/login sits behind the bearer-token middleware.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(params.Logger, params.AuthService))

		r.Route("/roles", params.RolesHandler.MountRoutes)
		r.Route("/permissions", params.RolesHandler.MountCatalogRoutes)
		r.Route("/users", func(r chi.Router) {
			params.UsersHandler.MountRoutes(r)
			r.Route("/{userID}/roles", params.RolesHandler.MountUserRoleRoutes)
		})
		r.Route("/projects", params.ProjectsHandler.MountRoutes)
		r.Route("/addresses", params.AddressesHandler.MountRoutes)
		r.Route("/samples", params.SamplesHandler.MountRoutes)
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
