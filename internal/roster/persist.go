package roster

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Save writes the roster as a name-keyed JSON map.
func (r *Roster) Save(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data := make(map[string]Info, len(r.members))
	for _, m := range r.members {
		data[m.displayName] = m.info
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("encoding roster: %w", err)
	}
	return nil
}

// Restore replaces the roster contents from a saved map.
func (r *Roster) Restore(rd io.Reader) error {
	var data map[string]Info
	if err := json.NewDecoder(rd).Decode(&data); err != nil {
		return fmt.Errorf("decoding roster: %w", err)
	}

	fresh := New()
	for name, info := range data {
		fresh.Set(name, info)
	}

	r.mu.Lock()
	r.members = fresh.members
	r.mu.Unlock()
	return nil
}

// SaveFile writes the roster to path atomically (temp file + rename).
func (r *Roster) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating roster directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".roster-*.json")
	if err != nil {
		return fmt.Errorf("creating temp roster: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := r.Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing roster: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing roster: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing roster: %w", err)
	}
	return nil
}

// LoadFile restores the roster from path. A missing file leaves the
// roster empty and is not an error (first run).
func (r *Roster) LoadFile(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening roster: %w", err)
	}
	defer f.Close()

	if err := r.Restore(f); err != nil {
		return fmt.Errorf("restoring roster %s: %w", path, err)
	}
	return nil
}
