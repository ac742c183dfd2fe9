// Package labels canonicalizes arbitrary class label sets into a dense
// contiguous range.
//
// Segmentation datasets rarely ship with tidy labels: class ids may be
// non-consecutive, and some ids are "void" classes that should be ignored
// during training. A Mapping remaps every non-void label to a sequential id
// starting from 0 and collapses all void labels into the single id that
// follows the last non-void one.
//
// For example, with 4 non-void classes and void labels {3, 5} over the
// contiguous range 0..5 the mapping is:
//
//	0 --> 0
//	1 --> 1
//	2 --> 2
//	3 --> 4
//	4 --> 3
//	5 --> 4
//
// When the original labels are not consecutive, list them all explicitly.
// E.g. with 5 non-void classes, classes [0, 2, 5, 9, 11, 12, 99] and void
// labels {2, 99}:
//
//	 0 --> 0
//	 2 --> 5
//	 5 --> 1
//	 9 --> 2
//	11 --> 3
//	12 --> 4
//	99 --> 5
package labels

import (
	"fmt"
	"sort"
)

// Mapping is an immutable forward/inverse remap of original class labels to
// canonical ones. Build it once with New and share it freely; it is safe for
// concurrent use.
type Mapping struct {
	forward map[int]int
	inverse map[int]int

	nonVoid int
	hasVoid bool
}

// New builds a Mapping.
//
// nonVoidNClasses is the number of classes that survive the remap. voidLabels
// lists the original labels to collapse; it may be empty. classes, when
// non-nil, lists every original label (void ones included) for datasets whose
// labels are not the contiguous range [0, nonVoidNClasses+len(voidLabels)).
func New(nonVoidNClasses int, voidLabels []int, classes []int) (*Mapping, error) {
	if nonVoidNClasses <= 0 {
		return nil, fmt.Errorf("labels: non-void class count must be positive, got %d", nonVoidNClasses)
	}

	void := make(map[int]bool, len(voidLabels))
	for _, l := range voidLabels {
		void[l] = true
	}

	m := &Mapping{
		forward: make(map[int]int),
		nonVoid: nonVoidNClasses,
		hasVoid: len(void) > 0,
	}

	if classes != nil {
		all := append([]int(nil), classes...)
		sort.Ints(all)
		for _, l := range voidLabels {
			if _, ok := m.findIn(all, l); !ok {
				return nil, fmt.Errorf("labels: void label %d not present in class list %v", l, classes)
			}
		}
		next := 0
		for _, l := range all {
			if void[l] {
				m.forward[l] = nonVoidNClasses
				continue
			}
			m.forward[l] = next
			next++
		}
		if next != nonVoidNClasses {
			return nil, fmt.Errorf("labels: class list yields %d non-void classes, want %d", next, nonVoidNClasses)
		}
	} else {
		total := nonVoidNClasses + len(void)
		for _, l := range voidLabels {
			if l < 0 || l >= total {
				return nil, fmt.Errorf("labels: void label %d outside contiguous range [0, %d)", l, total)
			}
		}
		delta := 0
		for l := 0; l < total; l++ {
			if void[l] {
				m.forward[l] = nonVoidNClasses
				delta++
			} else {
				m.forward[l] = l - delta
			}
		}
	}

	// The inverse picks an arbitrary representative when several void labels
	// collapse onto the same canonical value. Only used for auxiliary lookups
	// (color maps, text labels), never for the forward remap.
	m.inverse = make(map[int]int, len(m.forward))
	for orig, canon := range m.forward {
		m.inverse[canon] = orig
	}
	return m, nil
}

func (m *Mapping) findIn(sorted []int, v int) (int, bool) {
	i := sort.SearchInts(sorted, v)
	if i < len(sorted) && sorted[i] == v {
		return i, true
	}
	return 0, false
}

// Canonical returns the canonical id for an original label.
func (m *Mapping) Canonical(label int) (int, bool) {
	c, ok := m.forward[label]
	return c, ok
}

// Original returns an original label that maps to the given canonical id.
// For the collapsed void class the representative is arbitrary.
func (m *Mapping) Original(canonical int) (int, bool) {
	o, ok := m.inverse[canonical]
	return o, ok
}

// NonVoidNClasses returns the number of non-void classes.
func (m *Mapping) NonVoidNClasses() int { return m.nonVoid }

// NClasses returns the total number of canonical classes, counting the
// collapsed void class if there is one.
func (m *Mapping) NClasses() int {
	if m.hasVoid {
		return m.nonVoid + 1
	}
	return m.nonVoid
}

// VoidCanonical returns the canonical value all void labels map to. The
// second result is false when the mapping has no void labels.
func (m *Mapping) VoidCanonical() (int, bool) {
	if !m.hasVoid {
		return 0, false
	}
	return m.nonVoid, true
}

// Forward returns a copy of the original-to-canonical mapping.
func (m *Mapping) Forward() map[int]int {
	out := make(map[int]int, len(m.forward))
	for k, v := range m.forward {
		out[k] = v
	}
	return out
}

// Inverse returns a copy of the canonical-to-original mapping.
func (m *Mapping) Inverse() map[int]int {
	out := make(map[int]int, len(m.inverse))
	for k, v := range m.inverse {
		out[k] = v
	}
	return out
}

// Apply remaps a label raster in place. Labels with no entry in the forward
// mapping are left untouched.
func (m *Mapping) Apply(raster []int32) {
	for i, v := range raster {
		if c, ok := m.forward[int(v)]; ok {
			raster[i] = int32(c)
		}
	}
}

// RemapColors reorders a per-original-label color table into canonical order,
// so entry i is the color of canonical class i. Missing entries are zero.
func (m *Mapping) RemapColors(cmap map[int][3]float32) [][3]float32 {
	out := make([][3]float32, m.NClasses())
	for canon := range out {
		if orig, ok := m.inverse[canon]; ok {
			out[canon] = cmap[orig]
		}
	}
	return out
}

// RemapNames reorders a per-original-label name table into canonical order.
func (m *Mapping) RemapNames(names map[int]string) []string {
	out := make([]string, m.NClasses())
	for canon := range out {
		if orig, ok := m.inverse[canon]; ok {
			out[canon] = names[orig]
		}
	}
	return out
}
