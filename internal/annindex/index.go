// Package annindex mirrors the identity store in an HNSW graph for
// sub-linear candidate search over large populations. The index is
// eventually consistent: additions are mirrored on enroll, while
// removals only take effect on an explicit rebuild from the
// authoritative store, because the graph structure has no efficient
// delete.
package annindex

import (
	"errors"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/facein/facein/internal/face"
	"github.com/facein/facein/internal/store"
)

// HNSW graph parameters for 512-dim face embeddings.
const (
	// MaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	MaxNeighbors = 16

	// SearchMultiplier requests extra candidates from the graph so
	// enough survive per-identity grouping.
	SearchMultiplier = 3
)

const metadataVersion = 1

// ErrCorrupt means the persisted index does not match its metadata or
// cannot be decoded. The caller must rebuild from the authoritative
// store; a partial load is never returned.
var ErrCorrupt = errors.New("approximate index corrupt")

// Metadata validates a persisted index on load.
type Metadata struct {
	Version int       `json:"version"`
	Count   int       `json:"count"`
	Dim     int       `json:"dim"`
	BuiltAt time.Time `json:"built_at"`
}

// entryRef maps a graph node back to its identity and enrollment quality.
type entryRef struct {
	Name     string
	Quality  float64
	DetScore float64
}

// Index is the in-memory HNSW mirror of the identity store.
type Index struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[int64]
	refs    map[int64]entryRef
	nextID  int64
	dim     int
	builtAt time.Time
}

// New creates an empty index.
func New() *Index {
	return &Index{refs: make(map[int64]entryRef)}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = MaxNeighbors
	g.Ml = 1.0 / float64(MaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Add mirrors one enrolled entry into the graph.
func (x *Index) Add(name string, e store.Entry) {
	if len(e.Embedding) == 0 {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.graph == nil {
		x.graph = newGraph()
	}
	if x.dim == 0 {
		x.dim = len(e.Embedding)
	}

	id := x.nextID
	x.nextID++
	x.graph.Add(hnsw.MakeNode(id, e.Embedding))
	x.refs[id] = entryRef{Name: name, Quality: e.Quality, DetScore: e.DetScore}
}

// RebuildFrom replaces the index contents with the authoritative store
// state. This is a full linear rebuild and the only way removals reach
// the index; callers should treat it as an infrequent maintenance
// operation, not a hot-path call.
func (x *Index) RebuildFrom(s *store.Store) {
	g := newGraph()
	refs := make(map[int64]entryRef)
	var nextID int64
	dim := 0

	s.Scan(func(name string, entries []store.Entry) {
		for _, e := range entries {
			if len(e.Embedding) == 0 {
				continue
			}
			if dim == 0 {
				dim = len(e.Embedding)
			}
			g.Add(hnsw.MakeNode(nextID, e.Embedding))
			refs[nextID] = entryRef{Name: name, Quality: e.Quality, DetScore: e.DetScore}
			nextID++
		}
	})

	x.mu.Lock()
	defer x.mu.Unlock()
	if nextID == 0 {
		x.graph = nil
	} else {
		x.graph = g
	}
	x.refs = refs
	x.nextID = nextID
	x.dim = dim
	x.builtAt = time.Now()
}

// Candidates holds the per-identity pools found near a query. It
// satisfies the matcher's Source contract, so the matcher re-ranks the
// shortlist with exactly the same aggregation it applies to the full
// store.
type Candidates struct {
	pools map[string][]store.Entry
}

// Scan implements matcher.Source over the shortlisted identities.
func (c *Candidates) Scan(fn func(name string, entries []store.Entry)) {
	for name, entries := range c.pools {
		fn(name, entries)
	}
}

// Identities returns how many identities the shortlist covers.
func (c *Candidates) Identities() int {
	return len(c.pools)
}

// Search returns the identities nearest the query, each with the pool
// entries the graph surfaced. k bounds the number of graph nodes
// considered, not identities.
func (x *Index) Search(query face.Embedding, k int) *Candidates {
	x.mu.RLock()
	defer x.mu.RUnlock()

	c := &Candidates{pools: make(map[string][]store.Entry)}
	if x.graph == nil || k <= 0 {
		return c
	}

	neighbors := x.graph.Search(query, k*SearchMultiplier)
	for _, n := range neighbors {
		ref, ok := x.refs[n.Key]
		if !ok {
			continue
		}
		c.pools[ref.Name] = append(c.pools[ref.Name], store.Entry{
			Embedding: n.Value,
			Quality:   ref.Quality,
			DetScore:  ref.DetScore,
		})
	}
	return c
}

// Count returns the number of indexed embeddings.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.refs)
}

// BuiltAt returns when the index was last rebuilt. Zero for an index
// that only ever saw incremental adds.
func (x *Index) BuiltAt() time.Time {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.builtAt
}
