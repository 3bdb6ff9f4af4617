package http

import (
	"net/http"

	"github.com/mirrorx/vault/internal/middleware"
	"github.com/mirrorx/vault/internal/models"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Handlers groups the handlers mounted by NewRouter.
type Handlers struct {
	Auth       *AuthHandler
	Vaults     *VaultHandler
	Operations *RecordHandler[models.Operation, models.OperationPatch]
	Personas   *RecordHandler[models.Persona, models.PersonaPatch]
	Pipelines  *RecordHandler[models.Pipeline, models.PipelinePatch]
	Resources  *RecordHandler[models.Resource, models.ResourcePatch]
	Steps      *PipelineHandler
	Links      *LinkHandler
	Activity   *ActivityHandler
	Changes    *ChangesHandler
	Export     *ExportHandler
}

// NewRouter constructs and returns an HTTP handler that serves the vault
// API under /api.
//
// Middleware chain (applied in order):
//  1. RequestID and Recoverer
//  2. WithRequestLogging(logger)
//  3. AllowContentType("application/json") for requests with a body
//  4. BearerAuth on everything except /ping and the public auth endpoints
//  5. VaultHandler.RequireOwner on /api/vaults/{vaultID}/...
func NewRouter(h Handlers, authn middleware.Authenticator, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(chiMiddleware.AllowContentType("application/json"))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/signup", h.Auth.SignUp)
		r.Post("/auth/resend", h.Auth.Resend)
		r.Post("/auth/verify", h.Auth.Verify)
		r.Post("/auth/signin", h.Auth.SignIn)

		// Protected group: requires a live session
		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(authn))

			r.Post("/auth/signout", h.Auth.SignOut)
			r.Get("/profile", h.Auth.Profile)
			r.Patch("/profile", h.Auth.UpdateProfile)

			r.Get("/vaults", h.Vaults.List)
			r.Post("/vaults", h.Vaults.Create)

			r.Route("/vaults/{vaultID}", func(r chi.Router) {
				r.Use(h.Vaults.RequireOwner)

				r.Get("/", h.Vaults.Get)
				r.Patch("/", h.Vaults.Update)
				r.Delete("/", h.Vaults.Delete)
				r.Post("/access", h.Vaults.Access)
				r.Post("/unlock", h.Vaults.Unlock)

				r.Route("/operations", func(r chi.Router) {
					h.Operations.Mount(r)
					r.Get("/{id}/export", h.Export.Record(models.KindOperation))
				})
				r.Route("/personas", func(r chi.Router) {
					h.Personas.Mount(r)
					r.Get("/{id}/export", h.Export.Record(models.KindPersona))
				})
				r.Route("/pipelines", func(r chi.Router) {
					h.Pipelines.Mount(r)
					r.Get("/{id}/export", h.Export.Record(models.KindPipeline))
					r.Put("/{id}/steps/{index}", h.Steps.SetStep)
					r.Post("/{id}/optimize", h.Steps.Optimize)
				})
				r.Route("/resources", func(r chi.Router) {
					h.Resources.Mount(r)
					r.Get("/{id}/export", h.Export.Record(models.KindResource))
				})

				r.Post("/links", h.Links.Link)
				r.Delete("/links", h.Links.Unlink)
				r.Get("/activity", h.Activity.List)
				r.Get("/changes", h.Changes.Stream)
				r.Get("/snapshots", h.Export.ListSnapshots)
				r.Post("/snapshots", h.Export.CreateSnapshot)
				r.Get("/snapshots/{name}", h.Export.DownloadSnapshot)
			})
		})
	})

	return r
}
