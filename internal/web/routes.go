package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/photo-grouper/internal/web/handlers"
)

// requestTimeout bounds synchronous endpoints; job and SSE routes are exempt
const requestTimeout = 2 * time.Minute

func (s *Server) setupRoutes() {
	store := s.services.Manager.Store()

	personsHandler := handlers.NewPersonsHandler(s.services.Manager, s.services.Orchestrator)
	clusterHandler := handlers.NewClusterHandler(s.services.Engine, s.jobManager)
	duplicatesHandler := handlers.NewDuplicatesHandler(s.services.Detector, s.jobManager)
	statsHandler := handlers.NewStatsHandler(store)
	configHandler := handlers.NewConfigHandler(s.config)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(requestTimeout))

			// Persons
			r.Get("/persons", personsHandler.List)
			r.Get("/persons/{id}", personsHandler.Get)
			r.Put("/persons/{id}", personsHandler.Update)
			r.Get("/persons/{id}/faces", personsHandler.Faces)
			r.Post("/persons/{id}/merge", personsHandler.Merge)
			r.Post("/persons/{id}/recompute", personsHandler.Recompute)
			r.Get("/persons/{id}/similar", personsHandler.Similar)
			r.Get("/persons/{id}/suggestions", personsHandler.Suggestions)

			// Faces
			r.Post("/faces/{id}/assign", personsHandler.AssignFace)
			r.Delete("/faces/{id}/person", personsHandler.UnassignFace)
			r.Post("/faces/{id}/split", personsHandler.SplitFace)

			// Photos
			r.Get("/photos/{uid}/faces", personsHandler.PhotoFaces)
			r.Post("/photos/{uid}/reanalyze", personsHandler.Reanalyze)
			r.Delete("/photos/{uid}", personsHandler.DeletePhoto)

			r.Get("/stats", statsHandler.Get)
			r.Get("/config", configHandler.Get)
		})

		// Clustering (long-running)
		r.Post("/cluster", clusterHandler.Start)
		r.Get("/cluster/{jobId}", clusterHandler.Status)
		r.Get("/cluster/{jobId}/events", clusterHandler.Events)
		r.Delete("/cluster/{jobId}", clusterHandler.Cancel)

		// Duplicates (long-running)
		r.Post("/duplicates", duplicatesHandler.Start)
		r.Get("/duplicates/{jobId}", duplicatesHandler.Status)
		r.Get("/duplicates/{jobId}/events", duplicatesHandler.Events)
		r.Delete("/duplicates/{jobId}", duplicatesHandler.Cancel)

		if s.services.Orchestrator != nil {
			analysisHandler := handlers.NewAnalysisHandler(s.services.Orchestrator, store, s.jobManager)
			r.Get("/analysis", analysisHandler.Status)
			r.Post("/analysis", analysisHandler.Start)
			r.Post("/analysis/stop", analysisHandler.Stop)
			r.Get("/analysis/{jobId}", analysisHandler.JobStatus)
			r.Get("/analysis/{jobId}/events", analysisHandler.Events)
			r.Delete("/analysis/{jobId}", analysisHandler.Cancel)
		}
	})
}
