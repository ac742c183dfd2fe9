package loader

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// makeWindowSet builds a window set with the given number of single-name
// windows per subset.
func makeWindowSet(t *testing.T, perSubset map[string]int) WindowSet {
	t.Helper()
	ws := make(WindowSet)
	for subset, n := range perSubset {
		for i := 0; i < n; i++ {
			ws[subset] = append(ws[subset], Window{
				Subset: subset,
				Names:  []string{fmt.Sprintf("%s-%d", subset, i)},
			})
		}
	}
	return ws
}

func collectEpoch(s *batchScheduler) []IndexGroup {
	var groups []IndexGroup
	for {
		g, ok := s.next()
		if !ok {
			return groups
		}
		groups = append(groups, g)
	}
}

// TestEpochPartition checks the reference scenario: 10 windows and batch
// size 4 yield groups of sizes 4, 4, 2, stable across unshuffled rebuilds.
func TestEpochPartition(t *testing.T) {
	s := newBatchScheduler(makeWindowSet(t, map[string]int{"A": 10}), 4, 0, 0xbeef)
	s.rebuildEpoch(false)

	if s.NSamples() != 10 {
		t.Errorf("NSamples = %d, want 10", s.NSamples())
	}
	if s.NBatches() != 3 {
		t.Errorf("NBatches = %d, want 3", s.NBatches())
	}

	first := collectEpoch(s)
	sizes := []int{len(first[0]), len(first[1]), len(first[2])}
	if diff := cmp.Diff([]int{4, 4, 2}, sizes); diff != "" {
		t.Errorf("group sizes mismatch (-want +got):\n%s", diff)
	}

	s.rebuildEpoch(false)
	second := collectEpoch(s)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("unshuffled epochs differ (-first +second):\n%s", diff)
	}
}

// TestEpochAccounting checks sum(len(group)) == NSamples and
// NBatches == ceil(NSamples / batchSize) across configurations.
func TestEpochAccounting(t *testing.T) {
	perSubset := map[string]int{"A": 7, "B": 12, "C": 1}
	for _, batchSize := range []int{1, 2, 3, 5, 8, 32} {
		s := newBatchScheduler(makeWindowSet(t, perSubset), batchSize, 0, 1)
		s.rebuildEpoch(true)

		total := 0
		for _, g := range collectEpoch(s) {
			total += len(g)
		}
		if total != s.NSamples() {
			t.Errorf("batchSize %d: group lengths sum to %d, want %d", batchSize, total, s.NSamples())
		}
		wantBatches := (s.NSamples() + batchSize - 1) / batchSize
		if s.NBatches() != wantBatches {
			t.Errorf("batchSize %d: NBatches = %d, want %d", batchSize, s.NBatches(), wantBatches)
		}
	}
}

// TestSeededShuffleDeterminism checks that two schedulers with the same seed
// and call order produce identical shuffled epochs, and that an advancing
// generator produces different orders across epochs.
func TestSeededShuffleDeterminism(t *testing.T) {
	ws := makeWindowSet(t, map[string]int{"A": 20, "B": 20})

	a := newBatchScheduler(ws, 4, 0, 42)
	b := newBatchScheduler(ws, 4, 0, 42)
	a.rebuildEpoch(true)
	b.rebuildEpoch(true)
	epochA1 := collectEpoch(a)
	if diff := cmp.Diff(epochA1, collectEpoch(b)); diff != "" {
		t.Errorf("same seed, same call order, different epochs:\n%s", diff)
	}

	a.rebuildEpoch(true)
	epochA2 := collectEpoch(a)
	if diff := cmp.Diff(epochA1, epochA2); diff == "" {
		t.Error("consecutive shuffled epochs are identical, generator does not advance")
	}
}

func TestSeqPerSubsetCap(t *testing.T) {
	s := newBatchScheduler(makeWindowSet(t, map[string]int{"A": 10, "B": 3}), 1, 5, 0xbeef)
	s.rebuildEpoch(false)

	// A capped at 5, B kept whole at 3.
	if s.NSamples() != 8 {
		t.Fatalf("NSamples = %d, want 8", s.NSamples())
	}
	counts := map[string]int{}
	seen := map[string]bool{}
	for _, g := range collectEpoch(s) {
		for _, w := range g {
			counts[w.Subset]++
			if seen[w.Names[0]] {
				t.Errorf("window %q drawn twice in one epoch", w.Names[0])
			}
			seen[w.Names[0]] = true
		}
	}
	if counts["A"] != 5 || counts["B"] != 3 {
		t.Errorf("per-subset counts = %v, want A:5 B:3", counts)
	}
}

// TestUnshuffledSubsetOrder checks that without shuffling, windows appear in
// sorted subset order with each subset's windows in their natural order.
func TestUnshuffledSubsetOrder(t *testing.T) {
	s := newBatchScheduler(makeWindowSet(t, map[string]int{"b": 2, "a": 2}), 1, 0, 0)
	s.rebuildEpoch(false)

	var flat []string
	for _, g := range collectEpoch(s) {
		for _, w := range g {
			flat = append(flat, w.Names[0])
		}
	}
	want := []string{"a-0", "a-1", "b-0", "b-1"}
	if diff := cmp.Diff(want, flat); diff != "" {
		t.Errorf("flat order mismatch (-want +got):\n%s", diff)
	}
}

func TestNextSignalsEndOfEpoch(t *testing.T) {
	s := newBatchScheduler(makeWindowSet(t, map[string]int{"A": 2}), 1, 0, 0)
	s.rebuildEpoch(false)
	for i := 0; i < 2; i++ {
		if _, ok := s.next(); !ok {
			t.Fatalf("epoch ended early at group %d", i)
		}
	}
	if _, ok := s.next(); ok {
		t.Error("next returned a group past the end of the epoch")
	}
	// No auto-rebuild: it stays exhausted until rebuildEpoch.
	if _, ok := s.next(); ok {
		t.Error("exhausted scheduler produced a group without rebuildEpoch")
	}
}
