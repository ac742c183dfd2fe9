package loader

import (
	"fmt"
	"math"
)

// Array is a dense float32 buffer plus shape metadata, stored row-major.
// Window data flows through the assembler as (seq, height, width, channels)
// and batches stack a leading batch axis on top. Keeping the data flat makes
// the conversion to gomlx tensors trivial and avoids allocating nested
// slices per sample.
type Array struct {
	Data  []float32
	Shape []int
}

// NewArray allocates a zeroed Array with the given shape.
func NewArray(shape ...int) *Array {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Array{Data: make([]float32, n), Shape: append([]int(nil), shape...)}
}

// Size returns the number of elements.
func (a *Array) Size() int { return len(a.Data) }

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{
		Data:  append([]float32(nil), a.Data...),
		Shape: append([]int(nil), a.Shape...),
	}
}

// channels returns the length of the last axis.
func (a *Array) channels() int {
	if len(a.Shape) == 0 {
		return 0
	}
	return a.Shape[len(a.Shape)-1]
}

// NormalizePerImage normalizes in place using per-channel statistics computed
// over all leading axes, matching per-image mean/std normalization.
func (a *Array) NormalizePerImage(removeMean, divideStd bool) {
	if !removeMean && !divideStd {
		return
	}
	nc := a.channels()
	if nc == 0 || len(a.Data) == 0 {
		return
	}
	count := len(a.Data) / nc
	mean := make([]float64, nc)
	for i, v := range a.Data {
		mean[i%nc] += float64(v)
	}
	for c := range mean {
		mean[c] /= float64(count)
	}
	if removeMean {
		for i := range a.Data {
			a.Data[i] -= float32(mean[i%nc])
		}
	}
	if divideStd {
		variance := make([]float64, nc)
		if removeMean {
			// Mean is already removed; variance is the mean square.
			for i, v := range a.Data {
				variance[i%nc] += float64(v) * float64(v)
			}
		} else {
			for i, v := range a.Data {
				d := float64(v) - mean[i%nc]
				variance[i%nc] += d * d
			}
		}
		for c := range variance {
			variance[c] = math.Sqrt(variance[c] / float64(count))
		}
		for i := range a.Data {
			if s := variance[i%nc]; s != 0 {
				a.Data[i] /= float32(s)
			}
		}
	}
}

// SubChannels subtracts a per-channel vector in place. A single value is
// broadcast to all channels; nil is a no-op.
func (a *Array) SubChannels(mean []float32) {
	switch len(mean) {
	case 0:
	case 1:
		for i := range a.Data {
			a.Data[i] -= mean[0]
		}
	default:
		nc := a.channels()
		for i := range a.Data {
			a.Data[i] -= mean[i%nc]
		}
	}
}

// DivChannels divides by a per-channel vector in place. A single value is
// broadcast to all channels; nil and zero divisors are no-ops.
func (a *Array) DivChannels(std []float32) {
	switch len(std) {
	case 0:
	case 1:
		if std[0] != 0 {
			for i := range a.Data {
				a.Data[i] /= std[0]
			}
		}
	default:
		nc := a.channels()
		for i := range a.Data {
			if s := std[i%nc]; s != 0 {
				a.Data[i] /= s
			}
		}
	}
}

// ChannelsFirst returns a copy with the trailing channel axis moved to
// position 1: (s, h, w, c) becomes (s, c, h, w). Arrays that are not rank 4
// are returned unchanged; channel reordering only applies to image windows.
func (a *Array) ChannelsFirst() *Array {
	if len(a.Shape) != 4 {
		return a
	}
	s, h, w, c := a.Shape[0], a.Shape[1], a.Shape[2], a.Shape[3]
	out := NewArray(s, c, h, w)
	for si := 0; si < s; si++ {
		for hi := 0; hi < h; hi++ {
			for wi := 0; wi < w; wi++ {
				for ci := 0; ci < c; ci++ {
					out.Data[((si*c+ci)*h+hi)*w+wi] = a.Data[((si*h+hi)*w+wi)*c+ci]
				}
			}
		}
	}
	return out
}

// DropLeading returns the first slice along the leading axis, removing it
// from the shape. Used in image mode to turn a length-1 window into a plain
// image.
func (a *Array) DropLeading() *Array {
	if len(a.Shape) < 2 {
		return a
	}
	n := len(a.Data) / a.Shape[0]
	return &Array{
		Data:  append([]float32(nil), a.Data[:n]...),
		Shape: append([]int(nil), a.Shape[1:]...),
	}
}

// LabelArray is the int32 counterpart of Array, holding label rasters with
// shape (seq, height, width) and one-hot expansions with a trailing class
// axis.
type LabelArray struct {
	Data  []int32
	Shape []int
}

// NewLabelArray allocates a zeroed LabelArray with the given shape.
func NewLabelArray(shape ...int) *LabelArray {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &LabelArray{Data: make([]int32, n), Shape: append([]int(nil), shape...)}
}

// Size returns the number of elements.
func (l *LabelArray) Size() int { return len(l.Data) }

// Clone returns a deep copy.
func (l *LabelArray) Clone() *LabelArray {
	return &LabelArray{
		Data:  append([]int32(nil), l.Data...),
		Shape: append([]int(nil), l.Shape...),
	}
}

// OneHot expands class ids into a trailing one-hot axis of length nclasses.
// Ids outside [0, nclasses) produce an all-zero row.
func (l *LabelArray) OneHot(nclasses int) (*LabelArray, error) {
	if nclasses <= 0 {
		return nil, fmt.Errorf("loader: one-hot expansion needs a positive class count, got %d", nclasses)
	}
	out := NewLabelArray(append(append([]int(nil), l.Shape...), nclasses)...)
	for i, v := range l.Data {
		if v >= 0 && int(v) < nclasses {
			out.Data[i*nclasses+int(v)] = 1
		}
	}
	return out, nil
}

// ChannelsFirst returns a copy with the trailing class axis moved to
// position 1, for one-hot labels in (s, h, w, nc) form. Other ranks are
// returned unchanged.
func (l *LabelArray) ChannelsFirst() *LabelArray {
	if len(l.Shape) != 4 {
		return l
	}
	s, h, w, c := l.Shape[0], l.Shape[1], l.Shape[2], l.Shape[3]
	out := NewLabelArray(s, c, h, w)
	for si := 0; si < s; si++ {
		for hi := 0; hi < h; hi++ {
			for wi := 0; wi < w; wi++ {
				for ci := 0; ci < c; ci++ {
					out.Data[((si*c+ci)*h+hi)*w+wi] = l.Data[((si*h+hi)*w+wi)*c+ci]
				}
			}
		}
	}
	return out
}

// DropLeading returns the first slice along the leading axis, removing it
// from the shape.
func (l *LabelArray) DropLeading() *LabelArray {
	if len(l.Shape) < 2 {
		return l
	}
	n := len(l.Data) / l.Shape[0]
	return &LabelArray{
		Data:  append([]int32(nil), l.Data[:n]...),
		Shape: append([]int(nil), l.Shape[1:]...),
	}
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// stackArrays stacks uniformly shaped arrays along a new leading axis. The
// second result is false when shapes differ across the group.
func stackArrays(list []*Array) (*Array, bool) {
	if len(list) == 0 {
		return nil, false
	}
	for _, a := range list[1:] {
		if !sameShape(list[0].Shape, a.Shape) {
			return nil, false
		}
	}
	out := NewArray(append([]int{len(list)}, list[0].Shape...)...)
	n := list[0].Size()
	for i, a := range list {
		copy(out.Data[i*n:], a.Data)
	}
	return out, true
}

// stackLabelArrays stacks uniformly shaped label arrays along a new leading
// axis.
func stackLabelArrays(list []*LabelArray) (*LabelArray, bool) {
	if len(list) == 0 {
		return nil, false
	}
	for _, l := range list[1:] {
		if !sameShape(list[0].Shape, l.Shape) {
			return nil, false
		}
	}
	out := NewLabelArray(append([]int{len(list)}, list[0].Shape...)...)
	n := list[0].Size()
	for i, l := range list {
		copy(out.Data[i*n:], l.Data)
	}
	return out, true
}
