package routes

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/rag-retrieval/app"
	"github.com/upb/rag-retrieval/handlers"
	"github.com/upb/rag-retrieval/internal/observability"
	"github.com/upb/rag-retrieval/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Location", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	var backends handlers.BackendCounter
	if deps.Registry != nil {
		backends = deps.Registry
	}
	maxUpload := int64(0)
	if deps.Config != nil {
		maxUpload = deps.Config.Server.MaxUploadBytes
	}

	health := handlers.NewHealthHandler(db, backends, deps.Logger)
	searchHandler := handlers.NewSearchHandler(deps.Retrieval, deps.Logger)
	documentHandler := handlers.NewDocumentHandler(deps.Ingestion, deps.Embeddings, maxUpload, deps.Logger)
	chunkHandler := handlers.NewChunkHandler(deps.Embeddings, deps.Logger)

	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	r.Route("/api/v1", func(r chi.Router) {
		// Read routes
		r.Post("/search", searchHandler.HandleSearch)
		r.Post("/answer", searchHandler.HandleAnswer)
		r.Get("/documents", documentHandler.HandleList)
		r.Get("/documents/{id}", documentHandler.HandleGet)

		// Write routes
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Post("/documents", documentHandler.HandleUpload)
			r.Delete("/documents/{id}", documentHandler.HandleDelete)
			r.Patch("/chunks/{id}", chunkHandler.HandleUpdate)
			r.Delete("/chunks/{id}", chunkHandler.HandleDelete)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
