package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/facein/facein/internal/extractor"
	"github.com/facein/facein/internal/face"
	"github.com/facein/facein/internal/roster"
	"github.com/facein/facein/internal/store"
)

// EnrollHandler handles identity enrollment from uploaded images.
type EnrollHandler struct {
	app *App
}

// NewEnrollHandler creates a new enroll handler.
func NewEnrollHandler(app *App) *EnrollHandler {
	return &EnrollHandler{app: app}
}

// EnrollResponse reports the outcome of one enrollment request.
type EnrollResponse struct {
	Name          string `json:"name"`
	FacesDetected int    `json:"faces_detected"`
	store.Summary
}

// Enroll accepts a multipart form with a face image and an identity name,
// extracts every detected face and enrolls the usable ones. Optional
// class / section / house fields update the roster.
func (h *EnrollHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	image, err := readImageFile(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		respondError(w, http.StatusBadRequest, "missing name field")
		return
	}

	result, err := h.app.Detector.DetectFaces(r.Context(), image)
	if errors.Is(err, extractor.ErrNoFaces) {
		respondJSON(w, http.StatusUnprocessableEntity, EnrollResponse{
			Name:    name,
			Summary: store.Summary{Outcome: store.OutcomeNoUsableFace},
		})
		return
	}
	if err != nil {
		log.Printf("enroll: face extraction failed: %v", err)
		respondError(w, http.StatusBadGateway, "face extraction failed")
		return
	}

	candidates := make([]store.Candidate, 0, len(result.Faces))
	for _, det := range result.Faces {
		candidates = append(candidates, store.Candidate{
			Embedding: face.Embedding(det.Embedding),
			Quality:   h.app.assess(det, result.ImageWidth, result.ImageHeight),
		})
	}

	summary := h.app.Store.EnrollMany(name, candidates)
	if summary.Accepted == 0 {
		respondJSON(w, http.StatusUnprocessableEntity, EnrollResponse{
			Name:          name,
			FacesDetected: len(result.Faces),
			Summary:       summary,
		})
		return
	}

	h.updateRoster(name, r)
	if h.app.Index != nil {
		for _, e := range summary.AcceptedEntries {
			h.app.Index.Add(name, e)
		}
	}
	if err := h.app.Persist(); err != nil {
		log.Printf("enroll %s: %v", sanitizeForLog(name), err)
	}

	respondJSON(w, http.StatusOK, EnrollResponse{
		Name:          name,
		FacesDetected: len(result.Faces),
		Summary:       summary,
	})
}

// updateRoster records the identity's attributes. Existing attributes are
// kept when the request carries none, so re-enrollment does not wipe them.
func (h *EnrollHandler) updateRoster(name string, r *http.Request) {
	info := roster.Info{
		Class:   strings.TrimSpace(r.FormValue("class")),
		Section: strings.TrimSpace(r.FormValue("section")),
		House:   strings.TrimSpace(r.FormValue("house")),
	}
	if _, exists := h.app.Roster.Get(name); exists && info == (roster.Info{}) {
		return
	}
	h.app.Roster.Set(name, info)
}
