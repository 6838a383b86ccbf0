package store

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/facein/facein/internal/config"
	"github.com/facein/facein/internal/face"
	"github.com/facein/facein/internal/quality"
)

func testStore(capacity int) *Store {
	return New(config.StoreConfig{
		MaxEmbeddingsPerIdentity: capacity,
		MinEmbeddingQuality:      0.15,
	})
}

func rec(score float64) quality.Record {
	return quality.Record{
		SizeOK:       true,
		BrightnessOK: true,
		PoseOK:       true,
		BlurScore:    score,
		DetScore:     1.0,
		Score:        score,
	}
}

// emb returns a deterministic unit-ish embedding seeded by n.
func emb(n int) face.Embedding {
	e := make(face.Embedding, 8)
	for i := range e {
		e[i] = float32((n+i)%7) + 1
	}
	return e.Normalize()
}

func TestEnrollOneCreatesIdentity(t *testing.T) {
	s := testStore(3)
	if err := s.EnrollOne("Alice", emb(1), rec(0.9)); err != nil {
		t.Fatalf("EnrollOne: %v", err)
	}
	if s.Count() != 1 || s.EntryCount() != 1 {
		t.Errorf("Count=%d EntryCount=%d, want 1, 1", s.Count(), s.EntryCount())
	}
}

func TestEnrollOneRejectsGatedFace(t *testing.T) {
	s := testStore(3)
	q := rec(0)
	q.BrightnessOK = false
	err := s.EnrollOne("Bob", emb(1), q)
	if !errors.Is(err, ErrNoUsableFace) {
		t.Fatalf("err = %v, want ErrNoUsableFace", err)
	}
	if s.Count() != 0 {
		t.Error("rejected enrollment must not create the identity")
	}
}

func TestEnrollOneRejectsLowQuality(t *testing.T) {
	s := testStore(3)
	if err := s.EnrollOne("Bob", emb(1), rec(0.1)); !errors.Is(err, ErrLowQuality) {
		t.Fatalf("err = %v, want ErrLowQuality", err)
	}
}

func TestCapacityEviction(t *testing.T) {
	s := testStore(3)
	for i, q := range []float64{0.9, 0.8, 0.7, 0.6, 0.5} {
		err := s.EnrollOne("Alice", emb(i), rec(q))
		if q >= 0.7 && err != nil {
			t.Fatalf("quality %v: %v", q, err)
		}
		if q < 0.7 && !errors.Is(err, ErrPoolSaturated) {
			t.Fatalf("quality %v: err = %v, want ErrPoolSaturated", q, err)
		}
	}

	entries, err := s.Entries("Alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("pool size = %d, want 3", len(entries))
	}
	want := []float64{0.9, 0.8, 0.7}
	for i, e := range entries {
		if e.Quality != want[i] {
			t.Errorf("entry %d quality = %v, want %v", i, e.Quality, want[i])
		}
	}
}

func TestHigherQualityEvictsWorst(t *testing.T) {
	s := testStore(2)
	s.EnrollOne("Alice", emb(0), rec(0.5))
	s.EnrollOne("Alice", emb(1), rec(0.6))
	if err := s.EnrollOne("Alice", emb(2), rec(0.9)); err != nil {
		t.Fatalf("stronger candidate should evict: %v", err)
	}

	entries, _ := s.Entries("Alice")
	for _, e := range entries {
		if e.Quality == 0.5 {
			t.Error("worst entry should have been evicted")
		}
	}
}

func TestPoolNeverExceedsCapacity(t *testing.T) {
	const capacity = 5
	s := testStore(capacity)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		name := []string{"Alice", "Bob", "Carol"}[rng.Intn(3)]
		q := 0.15 + rng.Float64()*0.85
		_ = s.EnrollOne(name, emb(i), rec(q))

		for _, n := range s.Names() {
			entries, err := s.Entries(n)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) > capacity {
				t.Fatalf("pool for %s has %d entries, capacity %d", n, len(entries), capacity)
			}
		}
	}
}

func TestEnrollManyOrderIndependent(t *testing.T) {
	candidates := make([]Candidate, 0, 8)
	for i, q := range []float64{0.3, 0.9, 0.5, 0.8, 0.2, 0.7, 0.6, 0.4} {
		candidates = append(candidates, Candidate{Embedding: emb(i), Quality: rec(q)})
	}

	poolQualities := func(order []Candidate) []float64 {
		s := testStore(3)
		s.EnrollMany("Alice", order)
		entries, _ := s.Entries("Alice")
		out := make([]float64, len(entries))
		for i, e := range entries {
			out[i] = e.Quality
		}
		return out
	}

	reference := poolQualities(candidates)

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		shuffled := make([]Candidate, len(candidates))
		copy(shuffled, candidates)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		got := poolQualities(shuffled)
		if len(got) != len(reference) {
			t.Fatalf("trial %d: pool size %d, want %d", trial, len(got), len(reference))
		}
		for i := range got {
			if got[i] != reference[i] {
				t.Fatalf("trial %d: pool %v, want %v", trial, got, reference)
			}
		}
	}
}

func TestEnrollManyOutcomes(t *testing.T) {
	gated := rec(0)
	gated.PoseOK = false

	tests := []struct {
		name       string
		prepare    func(*Store)
		candidates []Candidate
		want       Outcome
	}{
		{
			name:       "accepted",
			candidates: []Candidate{{Embedding: emb(0), Quality: rec(0.8)}},
			want:       OutcomeAccepted,
		},
		{
			name:       "all gated",
			candidates: []Candidate{{Embedding: emb(0), Quality: gated}, {Embedding: emb(1), Quality: gated}},
			want:       OutcomeNoUsableFace,
		},
		{
			name:       "all low quality",
			candidates: []Candidate{{Embedding: emb(0), Quality: rec(0.05)}},
			want:       OutcomeLowQuality,
		},
		{
			name: "saturated",
			prepare: func(s *Store) {
				for i := 0; i < 2; i++ {
					s.EnrollOne("Alice", emb(i), rec(0.9))
				}
			},
			candidates: []Candidate{{Embedding: emb(5), Quality: rec(0.3)}},
			want:       OutcomeSaturated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testStore(2)
			if tt.prepare != nil {
				tt.prepare(s)
			}
			sum := s.EnrollMany("Alice", tt.candidates)
			if sum.Outcome != tt.want {
				t.Errorf("Outcome = %q, want %q", sum.Outcome, tt.want)
			}
		})
	}
}

func TestRemoveAndClear(t *testing.T) {
	s := testStore(3)
	s.EnrollOne("Alice", emb(0), rec(0.9))
	s.EnrollOne("Bob", emb(1), rec(0.9))

	if !s.Remove("Alice") {
		t.Error("Remove(Alice) = false, want true")
	}
	if s.Remove("Alice") {
		t.Error("second Remove(Alice) = true, want false")
	}
	if _, err := s.Entries("Alice"); !errors.Is(err, ErrIdentityNotFound) {
		t.Errorf("Entries after Remove: err = %v, want ErrIdentityNotFound", err)
	}

	if n := s.Clear(); n != 1 {
		t.Errorf("Clear() = %d, want 1", n)
	}
	if s.Count() != 0 {
		t.Error("store not empty after Clear")
	}
}

func TestNormalizedNameLookup(t *testing.T) {
	s := testStore(3)
	s.EnrollOne("Jiří Novák", emb(0), rec(0.9))

	if _, err := s.Stats("jiri novak"); err != nil {
		t.Errorf("normalized lookup failed: %v", err)
	}
	names := s.Names()
	if len(names) != 1 || names[0] != "Jiří Novák" {
		t.Errorf("display name not preserved: %v", names)
	}
}

func TestStats(t *testing.T) {
	s := testStore(5)
	s.EnrollOne("Alice", emb(0), rec(0.8))
	s.EnrollOne("Alice", emb(1), rec(0.6))

	st, err := s.Stats("Alice")
	if err != nil {
		t.Fatal(err)
	}
	if st.EmbeddingCount != 2 {
		t.Errorf("EmbeddingCount = %d, want 2", st.EmbeddingCount)
	}
	if st.MeanQuality < 0.69 || st.MeanQuality > 0.71 {
		t.Errorf("MeanQuality = %v, want 0.7", st.MeanQuality)
	}
	if st.MaxQuality != 0.8 {
		t.Errorf("MaxQuality = %v, want 0.8", st.MaxQuality)
	}

	if _, err := s.Stats("Nobody"); !errors.Is(err, ErrIdentityNotFound) {
		t.Errorf("Stats(Nobody): err = %v, want ErrIdentityNotFound", err)
	}
}
