package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/facein/facein/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	enrollHandler := handlers.NewEnrollHandler(s.app)
	recognizeHandler := handlers.NewRecognizeHandler(s.app)
	identitiesHandler := handlers.NewIdentitiesHandler(s.app)
	attendanceHandler := handlers.NewAttendanceHandler(s.app)
	indexHandler := handlers.NewIndexHandler(s.app, s.jobManager)
	statsHandler := handlers.NewStatsHandler(s.app)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Enrollment and recognition
		r.Post("/enroll", enrollHandler.Enroll)
		r.Post("/recognize", recognizeHandler.Recognize)

		// Identities
		r.Get("/identities", identitiesHandler.List)
		r.Delete("/identities", identitiesHandler.Clear)
		r.Get("/identities/{name}", identitiesHandler.Get)
		r.Delete("/identities/{name}", identitiesHandler.Delete)

		// Attendance
		r.Get("/attendance/stats", attendanceHandler.Stats)
		r.Get("/attendance/records", attendanceHandler.Records)
		r.Get("/attendance/absentees", attendanceHandler.Absentees)
		r.Get("/attendance/filters", attendanceHandler.Filters)

		// Approximate index (long-running rebuilds)
		r.Post("/index/rebuild", indexHandler.Rebuild)
		r.Get("/index/rebuild/{jobId}", indexHandler.Job)
		r.Get("/index/status", indexHandler.Status)

		// Stats
		r.Get("/stats", statsHandler.Get)
	})
}
