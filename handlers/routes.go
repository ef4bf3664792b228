package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// RouterConfig carries the handlers mounted by NewRouter
type RouterConfig struct {
	AllowedOrigins []string
	PhotoFaces     *PhotoFaceHandler
	Profile        *ProfileHandler
	// WebSocket serves /api/ws when set
	WebSocket http.HandlerFunc
}

// NewRouter builds the chi router for the face tagging API
func NewRouter(rc RouterConfig) http.Handler {
	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   rc.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserIDHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	r.Route("/api", func(r chi.Router) {
		// long-lived; kept outside the request timeout
		if rc.WebSocket != nil {
			r.Get("/ws", rc.WebSocket)
		}

		timeout := middleware.Timeout(60 * time.Second)

		r.With(timeout).Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.With(timeout).Get("/permissions", ListPermissions)

		r.Route("/photos", func(r chi.Router) {
			r.Use(CallerIdentity)

			if rc.PhotoFaces != nil {
				// bounded by PhotoFaceHandler.Timeout so partial counts can still be written
				r.Post("/process-faces", rc.PhotoFaces.ProcessFaces)
				if rc.PhotoFaces.Queue != nil {
					r.With(timeout).Post("/process-faces/async", rc.PhotoFaces.ProcessFacesAsync)
					r.With(timeout).Post("/events/{eventRef}/process-faces", rc.PhotoFaces.ProcessEventFaces)
				}
				r.With(timeout).Get("/events/{eventRef}/with-faces", rc.PhotoFaces.EventPhotosWithFaces)
			}

			if rc.Profile != nil {
				r.With(timeout).Post("/profile", rc.Profile.UploadSelfie)
				r.With(timeout).Delete("/profile", rc.Profile.DeleteSelfie)
			}
		})
	})

	return r
}
