package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

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

// testConfig creates a minimal config with durable files under dir.
func testConfig(dir string) *config.Config {
	return &config.Config{
		Quality: config.QualityConfig{
			MinFaceSizePx:    60,
			BlurMinVariance:  50,
			BlurNormVariance: 500,
			BrightnessMin:    40,
			BrightnessMax:    220,
			MaxYawDeg:        45,
			MaxPitchDeg:      30,
			Weights:          config.QualityWeights{Size: 0.3, Detection: 0.3, Pose: 0.2, Blur: 0.2},
		},
		Matcher: config.MatcherConfig{Threshold: 0.65, TopK: 3, QualityBand: 0.05},
		Store:   config.StoreConfig{MaxEmbeddingsPerIdentity: 20, MinEmbeddingQuality: 0.15},
		Data: config.DataConfig{
			Dir:          dir,
			SnapshotPath: filepath.Join(dir, "face_embeddings.json"),
			LedgerPath:   filepath.Join(dir, "attendance.csv"),
			RosterPath:   filepath.Join(dir, "roster.json"),
			IndexPath:    filepath.Join(dir, "index.hnsw"),
		},
	}
}

// fakeDetector returns a canned extraction result.
type fakeDetector struct {
	result *extractor.DetectResult
	err    error
}

func (d *fakeDetector) DetectFaces(_ context.Context, _ []byte) (*extractor.DetectResult, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.result, nil
}

// testApp builds an App over temp storage with a fixed clock.
func testApp(t *testing.T, det Detector) *App {
	t.Helper()
	cfg := testConfig(t.TempDir())

	l, err := ledger.Open(cfg.Data.LedgerPath)
	if err != nil {
		t.Fatal(err)
	}
	return &App{
		Config:   cfg,
		Store:    store.New(cfg.Store),
		Roster:   roster.New(),
		Ledger:   l,
		Index:    annindex.New(),
		Matcher:  matcher.New(cfg.Matcher),
		Assessor: quality.NewAssessor(cfg.Quality),
		Detector: det,
		Clock:    func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) },
	}
}

// goodDetection is a frontal, sharp, well-lit face with the given embedding.
func goodDetection(emb face.Embedding) face.Detection {
	return face.Detection{
		BBox: []float64{100, 100, 300, 300},
		Landmarks: []face.Landmark{
			{X: 140, Y: 170}, {X: 220, Y: 170}, // eyes
			{X: 180, Y: 210},                   // nose
			{X: 150, Y: 250}, {X: 210, Y: 250}, // mouth corners
		},
		DetScore:   0.95,
		Embedding:  emb,
		Brightness: 128,
		BlurVar:    400,
	}
}

// tinyDetection fails the size gate.
func tinyDetection(emb face.Embedding) face.Detection {
	det := goodDetection(emb)
	det.BBox = []float64{100, 100, 130, 130}
	return det
}

func detectResult(faces ...face.Detection) *extractor.DetectResult {
	return &extractor.DetectResult{Faces: faces, ImageWidth: 640, ImageHeight: 480}
}

// multipartRequest builds a POST with a file part and extra form fields.
func multipartRequest(t *testing.T, path string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "face.jpg")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3, 4})
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

func ledgerFilterAll() ledger.Filter {
	return ledger.Filter{}
}

// enrollAlice puts one identity into the app through the enrollment path.
func enrollAlice(t *testing.T, app *App, emb face.Embedding) {
	t.Helper()
	app.Detector = &fakeDetector{result: detectResult(goodDetection(emb))}
	rec := httptest.NewRecorder()
	NewEnrollHandler(app).Enroll(rec, multipartRequest(t, "/api/v1/enroll", map[string]string{
		"name":  "Alice",
		"class": "10",
	}))
	assertStatusCode(t, rec, http.StatusOK)
}
