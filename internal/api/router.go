package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/webring/internal/moderation"
	"github.com/starford/webring/internal/photos"
)

// RouterConfig collects what NewRouter mounts besides the service.
type RouterConfig struct {
	Guard       *moderation.Guard
	AdminHeader string
	// Events, if non-nil, is mounted at GET /admin/events.
	Events http.Handler
	// Photos, if non-nil, enables photo upload and serving.
	Photos *photos.Store
}

// NewRouter creates a chi router with all API routes mounted. Public routes
// take no credentials; everything under /admin requires the admin secret.
func NewRouter(svc *moderation.Service, cfg RouterConfig) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()

	// Public intake and directory.
	r.Post("/submissions", h.Submit)
	r.Get("/members", h.ListMembers)
	r.Get("/members/search", h.SearchMembers)
	r.Get("/members/{id}", h.GetMember)

	var ph *PhotoHandler
	if cfg.Photos != nil {
		ph = NewPhotoHandler(cfg.Photos)
		r.Get("/photos/{filename}", ph.ServeFile)
	}

	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminMiddleware(cfg.Guard, cfg.AdminHeader))

		r.Get("/submissions", h.ListSubmissions)
		r.Post("/submissions/resolve", h.ResolveSubmission)

		r.Get("/members", h.AdminListMembers)
		r.Post("/members", h.CreateMember)
		r.Put("/members", h.UpdateMember)
		r.Delete("/members/{id}", h.DeleteMember)

		if ph != nil {
			r.Get("/photos", ph.List)
			r.Post("/photos", ph.Upload)
		}
		if cfg.Events != nil {
			r.Get("/events", cfg.Events.ServeHTTP)
		}
	})

	return r
}
