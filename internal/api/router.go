package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/pressdeck/engine/docs"
	"github.com/pressdeck/engine/internal/api/handlers"
	mw "github.com/pressdeck/engine/internal/api/middleware"
)

type Dependencies struct {
	HMACSecret         []byte
	AuthHandler        *handlers.AuthHandler
	CredentialsHandler *handlers.CredentialsHandler
	ServersHandler     *handlers.ServersHandler
	DeploymentsHandler *handlers.DeploymentsHandler
	HealthHandler      *handlers.HealthHandler
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS)
	r.Use(mw.RateLimit(10, 20))
	r.Use(chimid.Compress(5))

	hh := dep.HealthHandler
	if hh == nil {
		hh = handlers.NewHealthHandler()
	}
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)

	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/docs/doc.json"),
	))

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/auth", func(ar chi.Router) {
			ar.Post("/register", dep.AuthHandler.Register)
			ar.Post("/login", dep.AuthHandler.Login)
			ar.Post("/refresh", dep.AuthHandler.Refresh)
			ar.Post("/logout", dep.AuthHandler.Logout)
		})

		api.Group(func(protected chi.Router) {
			protected.Use(mw.Auth(dep.HMACSecret))

			protected.Route("/credentials", func(cr chi.Router) {
				cr.Get("/", dep.CredentialsHandler.List)
				cr.Post("/", dep.CredentialsHandler.Store)
				cr.Post("/{provider}/validate", dep.CredentialsHandler.Validate)
				cr.Delete("/{provider}", dep.CredentialsHandler.Delete)
			})

			protected.Route("/servers", func(sr chi.Router) {
				sr.Get("/", dep.ServersHandler.List)
				sr.Post("/", dep.ServersHandler.Create)
				sr.Get("/{id}", dep.ServersHandler.Get)
				sr.Get("/{id}/events", dep.ServersHandler.Events)
				sr.Post("/{id}/retry", dep.ServersHandler.Retry)
				sr.Delete("/{id}", dep.ServersHandler.Delete)
			})

			protected.Route("/deployments", func(dr chi.Router) {
				dr.Get("/", dep.DeploymentsHandler.List)
				dr.Post("/", dep.DeploymentsHandler.Create)
				dr.Get("/{id}", dep.DeploymentsHandler.Get)
				dr.Get("/{id}/events", dep.DeploymentsHandler.Events)
				dr.Post("/{id}/retry", dep.DeploymentsHandler.Retry)
				dr.Delete("/{id}", dep.DeploymentsHandler.Delete)
			})
		})
	})

	return r
}
