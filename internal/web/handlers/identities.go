package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/facein/facein/internal/roster"
	"github.com/facein/facein/internal/store"
)

// IdentitiesHandler handles identity listing and removal.
type IdentitiesHandler struct {
	app *App
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(app *App) *IdentitiesHandler {
	return &IdentitiesHandler{app: app}
}

// IdentitySummary is one identity's pool statistics plus roster attributes.
type IdentitySummary struct {
	store.IdentityStats
	roster.Info
}

// List returns every enrolled identity with pool stats and attributes.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	names := h.app.Store.Names()
	identities := make([]IdentitySummary, 0, len(names))
	for _, name := range names {
		st, err := h.app.Store.Stats(name)
		if err != nil {
			continue // removed concurrently
		}
		info, _ := h.app.Roster.Get(name)
		identities = append(identities, IdentitySummary{IdentityStats: st, Info: info})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":      len(identities),
		"identities": identities,
	})
}

// Get returns one identity's pool statistics and attributes.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	st, err := h.app.Store.Stats(name)
	if errors.Is(err, store.ErrIdentityNotFound) {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	info, _ := h.app.Roster.Get(name)
	respondJSON(w, http.StatusOK, IdentitySummary{IdentityStats: st, Info: info})
}

// Delete removes an identity, its roster entry and its index entries. The
// index has no targeted delete, so removal triggers a full rebuild.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.app.Store.Remove(name) {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	h.app.Roster.Remove(name)
	h.rebuildIndex()

	if err := h.app.Persist(); err != nil {
		log.Printf("delete %s: %v", sanitizeForLog(name), err)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"deleted":   name,
		"remaining": h.app.Store.Count(),
	})
}

// Clear removes every identity and roster entry. Attendance history stays.
func (h *IdentitiesHandler) Clear(w http.ResponseWriter, r *http.Request) {
	removed := h.app.Store.Clear()
	h.app.Roster.Clear()
	h.rebuildIndex()

	if err := h.app.Persist(); err != nil {
		log.Printf("clear identities: %v", err)
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *IdentitiesHandler) rebuildIndex() {
	if h.app.Index == nil {
		return
	}
	h.app.Index.RebuildFrom(h.app.Store)
	if path := h.app.Config.Data.IndexPath; path != "" {
		if err := h.app.Index.Save(path); err != nil {
			log.Printf("saving index after removal: %v", err)
		}
	}
}
