package handlers

import (
	"net/http"

	"github.com/facein/facein/internal/ledger"
)

// StatsHandler serves aggregate system statistics.
type StatsHandler struct {
	app *App
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(app *App) *StatsHandler {
	return &StatsHandler{app: app}
}

// StatsResponse summarizes the whole system state.
type StatsResponse struct {
	Identities     int          `json:"identities"`
	Embeddings     int          `json:"embeddings"`
	RosterMembers  int          `json:"roster_members"`
	Attendance     ledger.Stats `json:"attendance"`
	IndexEnabled   bool         `json:"index_enabled"`
	IndexedEntries int          `json:"indexed_entries,omitempty"`
}

// Get returns system-wide statistics.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	attendance, err := h.app.Ledger.StatsAt(h.app.now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read attendance ledger")
		return
	}

	resp := StatsResponse{
		Identities:    h.app.Store.Count(),
		Embeddings:    h.app.Store.EntryCount(),
		RosterMembers: h.app.Roster.Len(),
		Attendance:    attendance,
		IndexEnabled:  h.app.Index != nil,
	}
	if h.app.Index != nil {
		resp.IndexedEntries = h.app.Index.Count()
	}
	respondJSON(w, http.StatusOK, resp)
}
