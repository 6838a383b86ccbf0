package annindex

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/coder/hnsw"
)

// persistedRef is the gob layout of one node reference.
type persistedRef struct {
	ID       int64
	Name     string
	Quality  float64
	DetScore float64
}

// Save persists the graph to path with a .meta JSON sidecar and a .names
// gob sidecar for the node-to-identity mapping. An empty index removes
// any stale files instead.
func (x *Index) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil {
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".names")
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating index file: %w", err)
	}
	if err := x.graph.Export(f); err != nil {
		f.Close()
		return fmt.Errorf("exporting index graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing index file: %w", err)
	}

	meta := Metadata{
		Version: metadataVersion,
		Count:   len(x.refs),
		Dim:     x.dim,
		BuiltAt: x.builtAt,
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling index metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0o644); err != nil {
		return fmt.Errorf("writing index metadata: %w", err)
	}

	refs := make([]persistedRef, 0, len(x.refs))
	for id, r := range x.refs {
		refs = append(refs, persistedRef{ID: id, Name: r.Name, Quality: r.Quality, DetScore: r.DetScore})
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(refs); err != nil {
		return fmt.Errorf("encoding index names: %w", err)
	}
	if err := os.WriteFile(path+".names", buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing index names: %w", err)
	}
	return nil
}

// Load restores a persisted index. A missing graph file returns
// os.ErrNotExist (build fresh); any version, shape or decode problem
// returns ErrCorrupt so the caller rebuilds from the authoritative
// store rather than serving a partial index.
func Load(path string) (*Index, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, os.ErrNotExist
	}

	metaData, err := os.ReadFile(path + ".meta")
	if err != nil {
		return nil, fmt.Errorf("%w: reading metadata: %v", ErrCorrupt, err)
	}
	var meta Metadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("%w: decoding metadata: %v", ErrCorrupt, err)
	}
	if meta.Version != metadataVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrCorrupt, meta.Version, metadataVersion)
	}

	namesData, err := os.ReadFile(path + ".names")
	if err != nil {
		return nil, fmt.Errorf("%w: reading names: %v", ErrCorrupt, err)
	}
	var refs []persistedRef
	if err := gob.NewDecoder(bytes.NewReader(namesData)).Decode(&refs); err != nil {
		return nil, fmt.Errorf("%w: decoding names: %v", ErrCorrupt, err)
	}
	if len(refs) != meta.Count {
		return nil, fmt.Errorf("%w: %d names for %d indexed entries", ErrCorrupt, len(refs), meta.Count)
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return nil, fmt.Errorf("%w: loading graph: %v", ErrCorrupt, err)
	}

	x := New()
	x.graph = saved.Graph
	x.dim = meta.Dim
	x.builtAt = meta.BuiltAt
	for _, r := range refs {
		x.refs[r.ID] = entryRef{Name: r.Name, Quality: r.Quality, DetScore: r.DetScore}
		if r.ID >= x.nextID {
			x.nextID = r.ID + 1
		}
	}
	return x, nil
}

// LoadMetadata reads just the .meta sidecar, for status reporting.
func LoadMetadata(path string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(path + ".meta")
	if err != nil {
		return meta, fmt.Errorf("reading index metadata: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("decoding index metadata: %w", err)
	}
	return meta, nil
}

// touchBuiltAt is used by tests to pin the build time.
func (x *Index) touchBuiltAt(t time.Time) {
	x.mu.Lock()
	x.builtAt = t
	x.mu.Unlock()
}
