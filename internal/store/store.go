// Package store owns the enrolled identities: per identity a
// capacity-bounded, quality-ranked pool of face embeddings. The store is
// an explicit handle passed to callers, guarded by a single RWMutex;
// recognition reads proceed concurrently, enrollment and removal are
// exclusive writers.
package store

import (
	"sort"
	"sync"

	"github.com/facein/facein/internal/config"
	"github.com/facein/facein/internal/face"
	"github.com/facein/facein/internal/quality"
)

// Entry is one enrolled embedding with the quality it was captured at.
type Entry struct {
	Embedding face.Embedding
	Quality   float64 // composite quality score [0,1]
	DetScore  float64 // detection confidence [0,1]
}

// rank orders entries within a pool. Quality weighted by detection
// confidence, so a sharp frontal face with a shaky detection does not
// outrank a confident one.
func (e Entry) rank() float64 {
	return e.Quality * e.DetScore
}

// Candidate pairs an embedding with its full quality record for enrollment.
type Candidate struct {
	Embedding face.Embedding
	Quality   quality.Record
}

// Outcome classifies the result of a batch enrollment so callers can tell
// the user why nothing (or not everything) was stored.
type Outcome string

const (
	OutcomeAccepted     Outcome = "accepted"       // at least one entry stored
	OutcomeNoUsableFace Outcome = "no_usable_face" // every candidate failed a hard gate
	OutcomeLowQuality   Outcome = "low_quality"    // detected but below the quality minimum
	OutcomeSaturated    Outcome = "pool_saturated" // pool full of better samples
)

// Summary reports the result of EnrollMany. AcceptedEntries carries the
// stored entries (normalized embeddings) so callers can mirror them into
// secondary indexes.
type Summary struct {
	Accepted        int     `json:"accepted"`
	Rejected        int     `json:"rejected"`
	PoolSize        int     `json:"pool_size"`
	MeanQuality     float64 `json:"mean_quality"`
	Outcome         Outcome `json:"outcome"`
	AcceptedEntries []Entry `json:"-"`
}

// IdentityStats describes one identity's pool.
type IdentityStats struct {
	Name           string  `json:"name"`
	EmbeddingCount int     `json:"embedding_count"`
	MeanQuality    float64 `json:"mean_quality"`
	MaxQuality     float64 `json:"max_quality"`
	MeanDetScore   float64 `json:"mean_det_score"`
}

type identityPool struct {
	displayName string
	entries     []Entry // sorted by rank, best first
}

// Store holds all enrolled identities.
type Store struct {
	mu         sync.RWMutex
	capacity   int
	minQuality float64
	identities map[string]*identityPool // keyed by normalized name
}

// New creates an empty store with the configured capacity policy.
func New(cfg config.StoreConfig) *Store {
	capacity := cfg.MaxEmbeddingsPerIdentity
	if capacity <= 0 {
		capacity = 20
	}
	return &Store{
		capacity:   capacity,
		minQuality: cfg.MinEmbeddingQuality,
		identities: make(map[string]*identityPool),
	}
}

// EnrollOne inserts a single embedding into the identity's pool, creating
// the identity on first enrollment. At capacity the pool's worst entry is
// evicted only if the newcomer outranks it; otherwise ErrPoolSaturated.
func (s *Store) EnrollOne(name string, emb face.Embedding, q quality.Record) error {
	if q.Score == 0 {
		return ErrNoUsableFace
	}
	if q.Score < s.minQuality {
		return ErrLowQuality
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.enrollLocked(name, emb, q)
	return err
}

func (s *Store) enrollLocked(name string, emb face.Embedding, q quality.Record) (Entry, error) {
	key := face.NormalizeName(name)
	pool, ok := s.identities[key]
	if !ok {
		pool = &identityPool{displayName: name}
		s.identities[key] = pool
	}

	entry := Entry{Embedding: emb.Clone().Normalize(), Quality: q.Score, DetScore: q.DetScore}
	if len(pool.entries) >= s.capacity {
		worst := pool.entries[len(pool.entries)-1]
		if entry.rank() <= worst.rank() {
			return Entry{}, ErrPoolSaturated
		}
		pool.entries = pool.entries[:len(pool.entries)-1]
	}

	pool.entries = append(pool.entries, entry)
	sort.SliceStable(pool.entries, func(i, j int) bool {
		return pool.entries[i].rank() > pool.entries[j].rank()
	})
	return entry, nil
}

// EnrollMany applies the candidates best-quality-first, so a weak
// candidate can never evict a stronger one from the same batch and the
// resulting pool is independent of input order.
func (s *Store) EnrollMany(name string, candidates []Candidate) Summary {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri := sorted[i].Quality.Score * sorted[i].Quality.DetScore
		rj := sorted[j].Quality.Score * sorted[j].Quality.DetScore
		return ri > rj
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	var sum Summary
	unusable, lowQuality, saturated := 0, 0, 0
	for _, c := range sorted {
		switch {
		case c.Quality.Score == 0:
			unusable++
			sum.Rejected++
		case c.Quality.Score < s.minQuality:
			lowQuality++
			sum.Rejected++
		default:
			entry, err := s.enrollLocked(name, c.Embedding, c.Quality)
			if err != nil {
				saturated++
				sum.Rejected++
			} else {
				sum.Accepted++
				sum.AcceptedEntries = append(sum.AcceptedEntries, entry)
			}
		}
	}

	switch {
	case sum.Accepted > 0:
		sum.Outcome = OutcomeAccepted
	case saturated > 0:
		sum.Outcome = OutcomeSaturated
	case lowQuality > 0:
		sum.Outcome = OutcomeLowQuality
	default:
		sum.Outcome = OutcomeNoUsableFace
	}

	if pool, ok := s.identities[face.NormalizeName(name)]; ok {
		sum.PoolSize = len(pool.entries)
		sum.MeanQuality = meanQuality(pool.entries)
	}
	return sum
}

// Remove deletes an identity and its pool. Returns false if unknown.
func (s *Store) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := face.NormalizeName(name)
	if _, ok := s.identities[key]; !ok {
		return false
	}
	delete(s.identities, key)
	return true
}

// Clear removes all identities and returns how many there were.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.identities)
	s.identities = make(map[string]*identityPool)
	return n
}

// Names returns the display names of all enrolled identities, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.identities))
	for _, pool := range s.identities {
		names = append(names, pool.displayName)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of enrolled identities.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.identities)
}

// EntryCount returns the total number of stored embeddings.
func (s *Store) EntryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, pool := range s.identities {
		n += len(pool.entries)
	}
	return n
}

// Stats returns pool statistics for one identity.
func (s *Store) Stats(name string) (IdentityStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, ok := s.identities[face.NormalizeName(name)]
	if !ok {
		return IdentityStats{}, ErrIdentityNotFound
	}

	st := IdentityStats{
		Name:           pool.displayName,
		EmbeddingCount: len(pool.entries),
		MeanQuality:    meanQuality(pool.entries),
	}
	var det float64
	for _, e := range pool.entries {
		if e.Quality > st.MaxQuality {
			st.MaxQuality = e.Quality
		}
		det += e.DetScore
	}
	if len(pool.entries) > 0 {
		st.MeanDetScore = det / float64(len(pool.entries))
	}
	return st, nil
}

// Scan calls fn for every identity under the read lock, best entries
// first. The entries slice must not be retained or mutated by fn.
func (s *Store) Scan(fn func(name string, entries []Entry)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, pool := range s.identities {
		fn(pool.displayName, pool.entries)
	}
}

// Entries returns a copy of one identity's pool, best first.
func (s *Store) Entries(name string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, ok := s.identities[face.NormalizeName(name)]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	out := make([]Entry, len(pool.entries))
	copy(out, pool.entries)
	return out, nil
}

func meanQuality(entries []Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entries {
		sum += e.Quality
	}
	return sum / float64(len(entries))
}
