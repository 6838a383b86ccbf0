package handlers

import (
	"net/http"
	"time"

	"github.com/facein/facein/internal/ledger"
	"github.com/facein/facein/internal/roster"
)

// AttendanceHandler serves attendance reports from the ledger and roster.
type AttendanceHandler struct {
	app *App
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(app *App) *AttendanceHandler {
	return &AttendanceHandler{app: app}
}

// Stats returns aggregate ledger figures for today.
func (h *AttendanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.app.Ledger.StatsAt(h.app.now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read attendance ledger")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// Records returns attendance rows, optionally bounded by ?from and ?to
// (inclusive, YYYY-MM-DD).
func (h *AttendanceHandler) Records(w http.ResponseWriter, r *http.Request) {
	filter := ledger.Filter{
		From: r.URL.Query().Get("from"),
		To:   r.URL.Query().Get("to"),
	}
	for _, d := range []string{filter.From, filter.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(ledger.DateFormat, d); err != nil {
			respondError(w, http.StatusBadRequest, "dates must be YYYY-MM-DD")
			return
		}
	}

	records, err := h.app.Ledger.Records(filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read attendance ledger")
		return
	}
	if records == nil {
		records = []ledger.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

// Absentees returns roster members with no attendance record on the given
// day (?date, default today), optionally narrowed by ?class, ?section and
// ?house.
func (h *AttendanceHandler) Absentees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := q.Get("date")
	if date == "" {
		date = h.app.now().Format(ledger.DateFormat)
	} else if _, err := time.Parse(ledger.DateFormat, date); err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	present, err := h.app.Ledger.PresentOn(date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read attendance ledger")
		return
	}

	filter := roster.Filter{
		Class:   q.Get("class"),
		Section: q.Get("section"),
		House:   q.Get("house"),
	}
	absent := h.app.Roster.Absentees(present, filter)
	respondJSON(w, http.StatusOK, map[string]any{
		"date":      date,
		"present":   len(present),
		"absent":    len(absent),
		"absentees": absent,
	})
}

// Filters returns the distinct class / section / house values in use.
func (h *AttendanceHandler) Filters(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.app.Roster.FilterValues())
}
