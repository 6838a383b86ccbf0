package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/facein/facein/internal/extractor"
	"github.com/facein/facein/internal/face"
	"github.com/facein/facein/internal/matcher"
	"github.com/facein/facein/internal/quality"
)

// shortlistNodes is how many graph nodes the approximate index is asked
// for before the matcher re-ranks the surviving identities.
const shortlistNodes = 32

// RecognizeHandler handles face recognition and attendance recording.
type RecognizeHandler struct {
	app *App
}

// NewRecognizeHandler creates a new recognize handler.
func NewRecognizeHandler(app *App) *RecognizeHandler {
	return &RecognizeHandler{app: app}
}

// RecognizeResponse is the recognition outcome plus attendance bookkeeping.
type RecognizeResponse struct {
	matcher.Result
	Quality            quality.Record `json:"quality"`
	AttendanceRecorded bool           `json:"attendance_recorded"`
	Reason             string         `json:"reason,omitempty"`
}

// Recognize accepts a multipart image, matches the most prominent face
// against the enrolled identities and records attendance on a match. At
// most one attendance row is written per identity per day; repeats come
// back with attendance_recorded=false.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	image, err := readImageFile(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	result, err := h.app.Detector.DetectFaces(r.Context(), image)
	if errors.Is(err, extractor.ErrNoFaces) {
		respondJSON(w, http.StatusOK, RecognizeResponse{Reason: "no_face_detected"})
		return
	}
	if err != nil {
		log.Printf("recognize: face extraction failed: %v", err)
		respondError(w, http.StatusBadGateway, "face extraction failed")
		return
	}
	if len(result.Faces) == 0 {
		// Detectors normally signal this as ErrNoFaces; tolerate an
		// empty result the same way.
		respondJSON(w, http.StatusOK, RecognizeResponse{Reason: "no_face_detected"})
		return
	}

	det := largestFace(result.Faces)
	rec := h.app.assess(det, result.ImageWidth, result.ImageHeight)
	if !rec.Usable() {
		// Unusable queries never reach the matcher: a gated capture is
		// a no-match, not a low-confidence match.
		respondJSON(w, http.StatusOK, RecognizeResponse{Quality: rec, Reason: "no_usable_face"})
		return
	}

	query := face.Embedding(det.Embedding)
	match := h.app.Matcher.Match(h.matchSource(query), query, rec)

	resp := RecognizeResponse{Result: match, Quality: rec}
	if match.Matched {
		recorded, err := h.app.Ledger.RecordIfNew(match.Name, match.Confidence, h.app.now())
		if err != nil {
			log.Printf("recognize %s: %v", sanitizeForLog(match.Name), err)
			respondError(w, http.StatusInternalServerError, "failed to record attendance")
			return
		}
		resp.AttendanceRecorded = recorded
	}
	respondJSON(w, http.StatusOK, resp)
}

// matchSource picks the candidate source: the approximate index when it is
// enabled and populated, the full store otherwise.
func (h *RecognizeHandler) matchSource(query face.Embedding) matcher.Source {
	if h.app.Index != nil && h.app.Index.Count() > 0 {
		return h.app.Index.Search(query, shortlistNodes)
	}
	return h.app.Store
}

// largestFace picks the detection with the biggest bounding box, the face
// closest to the camera at a check-in point.
func largestFace(faces []face.Detection) face.Detection {
	best := faces[0]
	bestArea := bboxArea(best.BBox)
	for _, f := range faces[1:] {
		if area := bboxArea(f.BBox); area > bestArea {
			best, bestArea = f, area
		}
	}
	return best
}

func bboxArea(bbox []float64) float64 {
	if len(bbox) != 4 {
		return 0
	}
	return (bbox[2] - bbox[0]) * (bbox[3] - bbox[1])
}
