package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/facein/facein/internal/face"
)

// defaultLegacyQuality is assigned to snapshot entries that predate
// quality tracking. Neutral: neither favored nor evicted first.
const defaultLegacyQuality = 0.5

// snapshotEntry is the persisted form of one pool entry. QualityScore and
// DetScore are pointers so legacy entries without them round-trip as
// absent rather than zero.
type snapshotEntry struct {
	Embedding []float32 `json:"embedding"`
	Quality   *float64  `json:"quality_score,omitempty"`
	DetScore  *float64  `json:"det_score,omitempty"`
}

// Snapshot writes the full store state as JSON: a name-keyed map of entry
// lists. The layout matches the legacy on-disk format, so older files
// load back (see Restore).
func (s *Store) Snapshot(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := make(map[string][]snapshotEntry, len(s.identities))
	for _, pool := range s.identities {
		entries := make([]snapshotEntry, 0, len(pool.entries))
		for _, e := range pool.entries {
			q, d := e.Quality, e.DetScore
			entries = append(entries, snapshotEntry{
				Embedding: e.Embedding,
				Quality:   &q,
				DetScore:  &d,
			})
		}
		data[pool.displayName] = entries
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}

// Restore replaces the store contents from a snapshot. Entries may be
// full objects or bare embedding arrays (the legacy layout); entries
// without a quality record get the neutral default. Pools are re-ranked
// and re-capped on load, so a snapshot taken with a larger capacity
// still honors the current one.
func (s *Store) Restore(r io.Reader) error {
	var raw map[string][]json.RawMessage
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}

	identities := make(map[string]*identityPool, len(raw))
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pool := &identityPool{displayName: name}
		for i, msg := range raw[name] {
			entry, err := decodeSnapshotEntry(msg)
			if err != nil {
				return fmt.Errorf("identity %q entry %d: %w", name, i, err)
			}
			pool.entries = append(pool.entries, entry)
		}
		sort.SliceStable(pool.entries, func(i, j int) bool {
			return pool.entries[i].rank() > pool.entries[j].rank()
		})
		if len(pool.entries) > s.capacity {
			pool.entries = pool.entries[:s.capacity]
		}
		if len(pool.entries) > 0 {
			identities[face.NormalizeName(name)] = pool
		}
	}

	s.mu.Lock()
	s.identities = identities
	s.mu.Unlock()
	return nil
}

// decodeSnapshotEntry accepts both the current object layout and the
// legacy bare-array layout.
func decodeSnapshotEntry(msg json.RawMessage) (Entry, error) {
	var se snapshotEntry
	if err := json.Unmarshal(msg, &se); err == nil && len(se.Embedding) > 0 {
		e := Entry{
			Embedding: face.Embedding(se.Embedding).Normalize(),
			Quality:   defaultLegacyQuality,
			DetScore:  defaultLegacyQuality,
		}
		if se.Quality != nil {
			e.Quality = *se.Quality
		}
		if se.DetScore != nil {
			e.DetScore = *se.DetScore
		}
		return e, nil
	}

	var legacy []float32
	if err := json.Unmarshal(msg, &legacy); err != nil || len(legacy) == 0 {
		return Entry{}, fmt.Errorf("unrecognized entry layout")
	}
	return Entry{
		Embedding: face.Embedding(legacy).Normalize(),
		Quality:   defaultLegacyQuality,
		DetScore:  defaultLegacyQuality,
	}, nil
}

// SaveFile snapshots the store to path atomically (temp file + rename),
// syncing before the rename so a crash cannot leave a torn snapshot.
func (s *Store) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := s.Snapshot(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// LoadFile restores the store from path. A missing file leaves the store
// empty and is not an error (first run).
func (s *Store) LoadFile(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	if err := s.Restore(f); err != nil {
		return fmt.Errorf("restoring snapshot %s: %w", path, err)
	}
	return nil
}
