package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(apiHandler *APIHandler, frontendURL string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiHandler.RequestLogger)
	r.Use(apiHandler.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{frontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.Get("/health", apiHandler.HealthHandler)

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/auth/register", apiHandler.RegisterHandler)
		r.Post("/auth/login", apiHandler.LoginHandler)

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/auth/profile", apiHandler.GetProfileHandler)
			r.Put("/auth/profile", apiHandler.UpdateProfileHandler)

			r.Route("/projects", func(r chi.Router) {
				r.Post("/", apiHandler.CreateProjectHandler)
				r.Get("/", apiHandler.ListProjectsHandler)
				r.Get("/{projectID}", apiHandler.GetProjectHandler)
				r.Put("/{projectID}", apiHandler.UpdateProjectHandler)
				r.Delete("/{projectID}", apiHandler.DeleteProjectHandler)
			})

			r.Route("/chat", func(r chi.Router) {
				r.Post("/", apiHandler.CreateChatHandler)
				r.Get("/", apiHandler.ListChatsHandler)
				r.With(middleware.Timeout(2*time.Minute)).Post("/message", apiHandler.SendMessageHandler)
				r.Get("/{chatID}", apiHandler.GetChatHandler)
				r.Delete("/{chatID}", apiHandler.DeleteChatHandler)
			})

			r.Route("/files/{projectID}", func(r chi.Router) {
				r.Post("/", apiHandler.UploadFileHandler)
				r.Get("/", apiHandler.ListFilesHandler)
				r.Delete("/{fileID}", apiHandler.DeleteFileHandler)
			})
		})
	})

	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusNotFound, "API endpoint not found")
}
