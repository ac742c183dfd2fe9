package loader

import (
	"math/rand"
	"sort"
	"time"
)

// IndexGroup is one minibatch worth of windows, scheduled together. The last
// group of an epoch may hold fewer than batchSize windows.
type IndexGroup []Window

// batchScheduler partitions, shuffles and re-partitions windows into
// minibatches across epochs. It is owned exclusively by the consumer side;
// prefetch workers only ever see the immutable IndexGroups it hands out.
//
// Two independent random sources are kept deliberately separate: shuffleRng
// is caller-seeded and drives the order-sensitive epoch shuffle, so runs with
// the same seed and call order see the same permutations; sampleRng drives
// the per-subset subsampling draw and is seeded from the clock, making the
// subsample independent of the shuffle seed.
type batchScheduler struct {
	windows      WindowSet
	batchSize    int
	seqPerSubset int

	shuffleRng *rand.Rand
	sampleRng  *rand.Rand

	groups   []IndexGroup
	cursor   int
	nsamples int
}

func newBatchScheduler(ws WindowSet, batchSize, seqPerSubset int, seed int64) *batchScheduler {
	return &batchScheduler{
		windows:      ws,
		batchSize:    batchSize,
		seqPerSubset: seqPerSubset,
		shuffleRng:   rand.New(rand.NewSource(seed)),
		sampleRng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// setWindows replaces the window set, e.g. after a reload from the dataset.
// The epoch partition is not touched; call rebuildEpoch next.
func (s *batchScheduler) setWindows(ws WindowSet) {
	s.windows = ws
}

// rebuildEpoch builds a fresh epoch partition: per-subset subsampling when
// configured, optional shuffle of the flat window sequence, then grouping
// into minibatches. The cursor is reset to the start of the new partition.
func (s *batchScheduler) rebuildEpoch(shuffle bool) {
	// Go maps iterate in random order; walk subsets sorted so the unshuffled
	// epoch order is stable across rebuilds.
	subsets := make([]string, 0, len(s.windows))
	for subset := range s.windows {
		subsets = append(subsets, subset)
	}
	sort.Strings(subsets)

	var flat []Window
	for _, subset := range subsets {
		windows := s.windows[subset]
		if s.seqPerSubset > 0 && len(windows) > s.seqPerSubset {
			// Uniform draw without replacement, on the non-reproducible source.
			for _, idx := range s.sampleRng.Perm(len(windows))[:s.seqPerSubset] {
				flat = append(flat, windows[idx])
			}
		} else {
			flat = append(flat, windows...)
		}
	}

	if shuffle {
		s.shuffleRng.Shuffle(len(flat), func(i, j int) {
			flat[i], flat[j] = flat[j], flat[i]
		})
	}

	s.groups = s.groups[:0]
	for start := 0; start < len(flat); start += s.batchSize {
		end := start + s.batchSize
		if end > len(flat) {
			end = len(flat)
		}
		s.groups = append(s.groups, IndexGroup(flat[start:end]))
	}
	s.nsamples = len(flat)
	s.cursor = 0
}

// reshuffle rebuilds the epoch with shuffling, without re-deriving windows
// from the dataset. Cheaper than a full reload when only the order matters.
func (s *batchScheduler) reshuffle() {
	s.rebuildEpoch(true)
}

// next advances the cursor. The second result is false at the end of the
// epoch; the scheduler never rebuilds on its own.
func (s *batchScheduler) next() (IndexGroup, bool) {
	if s.cursor >= len(s.groups) {
		return nil, false
	}
	g := s.groups[s.cursor]
	s.cursor++
	return g, true
}

// NSamples returns the number of windows in the current epoch.
func (s *batchScheduler) NSamples() int { return s.nsamples }

// NBatches returns the number of minibatches in the current epoch.
func (s *batchScheduler) NBatches() int { return len(s.groups) }
