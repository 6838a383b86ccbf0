package store

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	s := testStore(5)
	s.EnrollOne("Alice", emb(0), rec(0.9))
	s.EnrollOne("Alice", emb(1), rec(0.7))
	s.EnrollOne("Bob", emb(2), rec(0.8))

	var buf bytes.Buffer
	if err := s.Snapshot(&buf); err != nil {
		t.Fatal(err)
	}

	restored := testStore(5)
	if err := restored.Restore(&buf); err != nil {
		t.Fatal(err)
	}

	if restored.Count() != 2 || restored.EntryCount() != 3 {
		t.Fatalf("restored Count=%d EntryCount=%d, want 2, 3", restored.Count(), restored.EntryCount())
	}

	entries, err := restored.Entries("Alice")
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Quality != 0.9 || entries[1].Quality != 0.7 {
		t.Errorf("restored qualities = [%v, %v], want [0.9, 0.7]", entries[0].Quality, entries[1].Quality)
	}
}

func TestRestoreLegacyEntries(t *testing.T) {
	// Mixed snapshot: one modern entry, one object without quality, one
	// legacy bare-array entry.
	data := `{
		"Alice": [
			{"embedding": [1, 0, 0], "quality_score": 0.9, "det_score": 0.95},
			{"embedding": [0, 1, 0]},
			[0, 0, 1]
		]
	}`

	s := testStore(5)
	if err := s.Restore(strings.NewReader(data)); err != nil {
		t.Fatal(err)
	}

	entries, err := s.Entries("Alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("restored %d entries, want 3", len(entries))
	}
	// Modern entry ranks first; legacy entries carry the neutral default.
	if entries[0].Quality != 0.9 {
		t.Errorf("entries[0].Quality = %v, want 0.9", entries[0].Quality)
	}
	for _, e := range entries[1:] {
		if e.Quality != defaultLegacyQuality || e.DetScore != defaultLegacyQuality {
			t.Errorf("legacy entry got quality=%v det=%v, want neutral %v", e.Quality, e.DetScore, defaultLegacyQuality)
		}
	}
}

func TestRestoreRecapsOversizedPools(t *testing.T) {
	big := testStore(10)
	for i, q := range []float64{0.9, 0.8, 0.7, 0.6, 0.5} {
		big.EnrollOne("Alice", emb(i), rec(q))
	}

	var buf bytes.Buffer
	if err := big.Snapshot(&buf); err != nil {
		t.Fatal(err)
	}

	small := testStore(2)
	if err := small.Restore(&buf); err != nil {
		t.Fatal(err)
	}
	entries, _ := small.Entries("Alice")
	if len(entries) != 2 {
		t.Fatalf("restored pool size = %d, want capped at 2", len(entries))
	}
	if entries[0].Quality != 0.9 || entries[1].Quality != 0.8 {
		t.Errorf("recap kept %v/%v, want best two 0.9/0.8", entries[0].Quality, entries[1].Quality)
	}
}

func TestRestoreInvalidJSON(t *testing.T) {
	s := testStore(5)
	if err := s.Restore(strings.NewReader("{broken")); err == nil {
		t.Error("Restore should fail on malformed JSON")
	}
}

func TestSaveLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "face_embeddings.json")

	s := testStore(5)
	s.EnrollOne("Alice", emb(0), rec(0.9))
	if err := s.SaveFile(path); err != nil {
		t.Fatal(err)
	}

	loaded := testStore(5)
	if err := loaded.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Count() != 1 {
		t.Errorf("loaded Count = %d, want 1", loaded.Count())
	}

	// No stray temp files after the atomic rename.
	files, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("snapshot dir has %d files, want 1", len(files))
	}
}

func TestLoadFileMissingIsNotError(t *testing.T) {
	s := testStore(5)
	if err := s.LoadFile(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Errorf("missing snapshot should not error: %v", err)
	}
	if s.Count() != 0 {
		t.Error("store should stay empty")
	}
}
