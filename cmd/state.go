package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/facein/facein/internal/annindex"
	"github.com/facein/facein/internal/config"
	"github.com/facein/facein/internal/roster"
	"github.com/facein/facein/internal/store"
)

// loadState restores the identity store and roster from their durable
// files. Missing files mean a first run and are not an error.
func loadState(cfg *config.Config) (*store.Store, *roster.Roster, error) {
	s := store.New(cfg.Store)
	if err := s.LoadFile(cfg.Data.SnapshotPath); err != nil {
		return nil, nil, fmt.Errorf("loading identity snapshot: %w", err)
	}
	r := roster.New()
	if err := r.LoadFile(cfg.Data.RosterPath); err != nil {
		return nil, nil, fmt.Errorf("loading roster: %w", err)
	}
	return s, r, nil
}

// initIndex loads the persisted face index, or rebuilds it from the
// authoritative store when it is missing, corrupt or out of sync.
func initIndex(cfg *config.Config, s *store.Store) *annindex.Index {
	if path := cfg.Data.IndexPath; path != "" {
		idx, err := annindex.Load(path)
		switch {
		case err == nil:
			if idx.Count() == s.EntryCount() {
				fmt.Printf("Loaded face index from %s (%d embeddings)\n", path, idx.Count())
				return idx
			}
			fmt.Printf("Face index out of sync (%d indexed, %d stored), rebuilding\n", idx.Count(), s.EntryCount())
		case errors.Is(err, os.ErrNotExist):
			// First run, nothing to load.
		case errors.Is(err, annindex.ErrCorrupt):
			fmt.Printf("Warning: %v, rebuilding from store\n", err)
		default:
			fmt.Printf("Warning: failed to load face index: %v, rebuilding\n", err)
		}
	}

	idx := annindex.New()
	idx.RebuildFrom(s)
	fmt.Printf("Built face index from store (%d embeddings)\n", idx.Count())
	return idx
}
