package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// IndexHandler manages the approximate index rebuild lifecycle.
type IndexHandler struct {
	app  *App
	jobs *JobManager
}

// NewIndexHandler creates a new index handler.
func NewIndexHandler(app *App, jobs *JobManager) *IndexHandler {
	return &IndexHandler{app: app, jobs: jobs}
}

// Rebuild starts an asynchronous rebuild of the approximate index from
// the identity store. Only one rebuild runs at a time.
func (h *IndexHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if h.app.Index == nil {
		respondError(w, http.StatusConflict, "approximate index is disabled")
		return
	}

	job, err := h.jobs.Begin()
	if errors.Is(err, ErrJobRunning) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	go h.runRebuild(job)
	respondJSON(w, http.StatusAccepted, job)
}

func (h *IndexHandler) runRebuild(job *RebuildJob) {
	start := time.Now()
	h.app.Index.RebuildFrom(h.app.Store)
	indexed := h.app.Index.Count()

	var err error
	if path := h.app.Config.Data.IndexPath; path != "" {
		if saveErr := h.app.Index.Save(path); saveErr != nil {
			err = fmt.Errorf("rebuilt but not persisted: %w", saveErr)
		}
	}
	h.jobs.Finish(job, indexed, err)
	log.Printf("index rebuild %s: %d embeddings in %s", job.ID, indexed, time.Since(start).Round(time.Millisecond))
}

// Job returns one rebuild job by ID.
func (h *IndexHandler) Job(w http.ResponseWriter, r *http.Request) {
	job, ok := h.jobs.Get(chi.URLParam(r, "jobId"))
	if !ok {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// Status reports whether the index is enabled, its size, when it was last
// rebuilt and the most recent rebuild job.
func (h *IndexHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"enabled": h.app.Index != nil,
	}
	if h.app.Index != nil {
		status["indexed"] = h.app.Index.Count()
		if builtAt := h.app.Index.BuiltAt(); !builtAt.IsZero() {
			status["built_at"] = builtAt
		}
		if job, ok := h.jobs.Latest(); ok {
			status["last_job"] = job
		}
	}
	respondJSON(w, http.StatusOK, status)
}
