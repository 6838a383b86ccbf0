package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/facein/facein/internal/annindex"
	"github.com/facein/facein/internal/config"
	"github.com/facein/facein/internal/extractor"
	"github.com/facein/facein/internal/face"
	"github.com/facein/facein/internal/ledger"
	"github.com/facein/facein/internal/matcher"
	"github.com/facein/facein/internal/quality"
	"github.com/facein/facein/internal/roster"
	"github.com/facein/facein/internal/store"
)

// errInvalidRequestBody is a shared error message for invalid request bodies.
const errInvalidRequestBody = "invalid request body"

// maxUploadBytes caps image uploads.
const maxUploadBytes = 20 << 20

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Detector abstracts the external face detection and embedding service.
type Detector interface {
	DetectFaces(ctx context.Context, imageData []byte) (*extractor.DetectResult, error)
}

// App bundles the shared state all handlers operate on. Index is nil when
// the approximate index is disabled; Clock is overridable for tests.
type App struct {
	Config   *config.Config
	Store    *store.Store
	Roster   *roster.Roster
	Ledger   *ledger.Ledger
	Index    *annindex.Index
	Matcher  *matcher.Matcher
	Assessor *quality.Assessor
	Detector Detector
	Clock    func() time.Time
}

func (a *App) now() time.Time {
	if a.Clock != nil {
		return a.Clock()
	}
	return time.Now()
}

// Persist writes the identity snapshot and roster to disk.
func (a *App) Persist() error {
	if err := a.Store.SaveFile(a.Config.Data.SnapshotPath); err != nil {
		return fmt.Errorf("saving identity snapshot: %w", err)
	}
	if err := a.Roster.SaveFile(a.Config.Data.RosterPath); err != nil {
		return fmt.Errorf("saving roster: %w", err)
	}
	return nil
}

// assess turns one detection into a quality record, preferring the crop
// pixels when the service shipped them.
func (a *App) assess(det face.Detection, imageWidth, imageHeight int) quality.Record {
	return a.Assessor.Assess(quality.Signals{
		BBox:        det.BBox,
		Landmarks:   det.Landmarks,
		DetScore:    det.DetScore,
		Brightness:  det.Brightness,
		BlurVar:     det.BlurVar,
		Crop:        quality.GrayFromBytes(det.Crop, det.CropWidth, det.CropHeight),
		ImageWidth:  imageWidth,
		ImageHeight: imageHeight,
	})
}

// readImageFile extracts the uploaded image bytes from a multipart request.
func readImageFile(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, fmt.Errorf("parsing multipart form: %w", err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("missing file field: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty upload")
	}
	if len(data) > maxUploadBytes {
		return nil, fmt.Errorf("upload exceeds %d bytes", maxUploadBytes)
	}
	return data, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
