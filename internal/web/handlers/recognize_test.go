package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/facein/facein/internal/extractor"
	"github.com/facein/facein/internal/face"
)

func recognize(t *testing.T, app *App) (*httptest.ResponseRecorder, RecognizeResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	NewRecognizeHandler(app).Recognize(rec, multipartRequest(t, "/api/v1/recognize", nil))
	var resp RecognizeResponse
	if rec.Code == http.StatusOK {
		parseJSONResponse(t, rec, &resp)
	}
	return rec, resp
}

func TestRecognize_MatchRecordsAttendance(t *testing.T) {
	app := testApp(t, nil)
	enrollAlice(t, app, face.Embedding{1, 0, 0, 0})

	app.Detector = &fakeDetector{result: detectResult(goodDetection(face.Embedding{1, 0, 0, 0}))}
	rec, resp := recognize(t, app)

	assertStatusCode(t, rec, http.StatusOK)
	if !resp.Matched || resp.Name != "Alice" {
		t.Fatalf("resp = %+v, want Alice matched", resp)
	}
	if !resp.AttendanceRecorded {
		t.Error("first match of the day should record attendance")
	}

	// Same identity, same day: matched again but not re-recorded.
	_, resp = recognize(t, app)
	if !resp.Matched || resp.AttendanceRecorded {
		t.Errorf("repeat: matched=%v recorded=%v, want matched and not recorded", resp.Matched, resp.AttendanceRecorded)
	}

	records, err := app.Ledger.Records(ledgerFilterAll())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("%d ledger rows, want exactly 1", len(records))
	}
}

func TestRecognize_UnknownFaceDoesNotRecord(t *testing.T) {
	app := testApp(t, nil)
	enrollAlice(t, app, face.Embedding{1, 0, 0, 0})

	// Orthogonal embedding: similarity 0, far below any threshold.
	app.Detector = &fakeDetector{result: detectResult(goodDetection(face.Embedding{0, 0, 1, 0}))}
	_, resp := recognize(t, app)

	if resp.Matched || resp.AttendanceRecorded {
		t.Errorf("resp = %+v, want no match and no record", resp)
	}
	if records, _ := app.Ledger.Records(ledgerFilterAll()); len(records) != 0 {
		t.Error("ledger must stay empty")
	}
}

func TestRecognize_UnusableQuerySkipsMatcher(t *testing.T) {
	app := testApp(t, nil)
	enrollAlice(t, app, face.Embedding{1, 0, 0, 0})

	// Identical embedding, but the capture fails the size gate: even a
	// perfect similarity must not produce a match.
	app.Detector = &fakeDetector{result: detectResult(tinyDetection(face.Embedding{1, 0, 0, 0}))}
	_, resp := recognize(t, app)

	if resp.Matched {
		t.Error("gated capture must not match")
	}
	if resp.Reason != "no_usable_face" {
		t.Errorf("reason = %q", resp.Reason)
	}
	if resp.Quality.Usable() {
		t.Error("quality record should be unusable")
	}
}

func TestRecognize_PicksLargestFace(t *testing.T) {
	app := testApp(t, nil)
	enrollAlice(t, app, face.Embedding{1, 0, 0, 0})

	// A small background face matching Alice and a large foreground face
	// that matches nobody: the foreground face wins, so no match.
	background := goodDetection(face.Embedding{1, 0, 0, 0})
	background.BBox = []float64{0, 0, 80, 80}
	foreground := goodDetection(face.Embedding{0, 0, 1, 0})

	app.Detector = &fakeDetector{result: detectResult(background, foreground)}
	_, resp := recognize(t, app)
	if resp.Matched {
		t.Errorf("resp = %+v, want no match for the foreground face", resp)
	}
}

func TestRecognize_EmptyStore(t *testing.T) {
	app := testApp(t, &fakeDetector{result: detectResult(goodDetection(face.Embedding{1, 0, 0, 0}))})
	rec, resp := recognize(t, app)
	assertStatusCode(t, rec, http.StatusOK)
	if resp.Matched {
		t.Error("empty store must never match")
	}
}

func TestRecognize_NoFaceDetected(t *testing.T) {
	app := testApp(t, &fakeDetector{err: extractor.ErrNoFaces})
	rec, resp := recognize(t, app)
	assertStatusCode(t, rec, http.StatusOK)
	if resp.Matched || resp.Reason != "no_face_detected" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRecognize_EmptyDetectionResult(t *testing.T) {
	// A detector returning zero faces without ErrNoFaces gets the same
	// treatment as the sentinel, not a panic.
	app := testApp(t, &fakeDetector{result: &extractor.DetectResult{ImageWidth: 640, ImageHeight: 480}})
	rec, resp := recognize(t, app)
	assertStatusCode(t, rec, http.StatusOK)
	if resp.Matched || resp.Reason != "no_face_detected" {
		t.Errorf("resp = %+v, want no_face_detected", resp)
	}
}

func TestRecognize_MatchesThroughIndex(t *testing.T) {
	app := testApp(t, nil)
	enrollAlice(t, app, face.Embedding{1, 0, 0, 0})
	if app.Index.Count() == 0 {
		t.Fatal("enrollment should have mirrored into the index")
	}

	app.Detector = &fakeDetector{result: detectResult(goodDetection(face.Embedding{1, 0, 0, 0}))}
	_, resp := recognize(t, app)
	if !resp.Matched || resp.Name != "Alice" {
		t.Errorf("resp = %+v, want Alice via the index shortlist", resp)
	}
}
