package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/resumepress/internal/logging"
)

// NewRouter assembles the full route tree. The upload and webhook endpoints
// stay outside the auth group: uploads are anonymous by design and the
// vendor authenticates with its body signature instead.
func NewRouter(h *Handler, authSecret []byte, logger logging.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(RequestLogger(logger))

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/p/{handle}", h.PublicPage)
	r.Post("/api/uploads", h.BeginUpload)
	r.Post("/api/webhooks/extraction", h.Webhook)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(authSecret))

		r.Post("/api/resumes/claim", h.ClaimResume)
		r.Get("/api/resumes/{id}", h.PollResume)
		r.Post("/api/resumes/{id}/retry", h.RetryResume)
		r.Put("/api/resumes/{id}/content", h.UpdateContent)
		r.Patch("/api/profile/privacy", h.UpdatePrivacy)
		r.Patch("/api/profile/handle", h.RenameHandle)
		r.Delete("/api/account", h.DeleteAccount)
	})

	return r
}
