package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Liveness and build info
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	// Comparison jobs
	mux.HandleFunc("/api/jobs", s.handleJobsCollection)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // /{id}, /{id}/run, /migrate

	// Runs
	mux.HandleFunc("/api/runs", s.handleRunsCollection)
	mux.HandleFunc("/api/runs/", s.handleRunRoutes) // /{id}, /{id}/artifacts, /{id}/events

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

func (s *Server) handleJobsCollection(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.JobHandler.ListJobsHandler, s.app.JobHandler.CreateJobHandler)
}

// handleJobRoutes routes job subpath requests to the appropriate handler
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")

	// POST /api/jobs/migrate
	if path == "migrate" {
		s.app.JobHandler.MigrateJobsHandler(w, r)
		return
	}

	// POST /api/jobs/{id}/run
	if strings.HasSuffix(path, "/run") {
		RouteByMethod(w, r, MethodRouter{
			"POST": s.app.JobHandler.TriggerRunHandler,
		})
		return
	}

	if strings.Contains(path, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	// GET/PUT/DELETE /api/jobs/{id}
	RouteResourceItem(w, r, s.app.JobHandler.GetJobHandler, s.app.JobHandler.UpdateJobHandler, s.app.JobHandler.DeleteJobHandler)
}

func (s *Server) handleRunsCollection(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET": s.app.RunHandler.ListRunsHandler,
	})
}

// handleRunRoutes routes run subpath requests to the appropriate handler
func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/runs/")

	// GET /api/runs/{id}/artifacts
	if strings.HasSuffix(path, "/artifacts") {
		RouteByMethod(w, r, MethodRouter{
			"GET": s.app.RunHandler.ListRunArtifactsHandler,
		})
		return
	}

	// GET /api/runs/{id}/events
	if strings.HasSuffix(path, "/events") {
		RouteByMethod(w, r, MethodRouter{
			"GET": s.app.RunHandler.ListRunEventsHandler,
		})
		return
	}

	if strings.Contains(path, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	// GET /api/runs/{id}
	RouteByMethod(w, r, MethodRouter{
		"GET": s.app.RunHandler.GetRunHandler,
	})
}
