package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"seoforge/internal/http/handlers"
	"seoforge/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	rate, token := 0, ""
	if app.Config != nil {
		rate, token = app.Config.RateLimitPerMin, app.Config.APIToken
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerToken(token), middleware.RateLimit(rate, time.Minute))
		r.Post("/v1/process", app.Process)
		r.Post("/v1/recover/{date}/{keyword}", app.Recover)
		r.Post("/v1/debug/generate-image", app.DebugGenerateImage)
	})

	return r
}
