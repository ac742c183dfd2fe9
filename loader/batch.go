package loader

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Sample is what a dataset adapter returns for one window: frame data in
// (seq, height, width, channels) order, an optional label raster in
// (seq, height, width) order, and per-window metadata. Labels are nil for
// datasets without ground truth.
type Sample struct {
	Data      *Array
	Labels    *LabelArray
	Subset    string
	Filenames []string
}

// AugmentFunc is the external augmentation hook. It receives the total
// canonical class count and the canonical void value (-1 when the mapping
// has no void class) and returns the transformed data and labels. It must be
// a pure transform with no side effects.
type AugmentFunc func(data *Array, labels *LabelArray, nclasses, voidLabel int) (*Array, *LabelArray, error)

// Batch is one assembled minibatch. Fields are aligned ordered slices, one
// entry per window; Stack helpers collapse a field into a single array with
// a leading batch axis when every entry has the same shape. Raw holds the
// data before normalization and augmentation.
type Batch struct {
	Data      []*Array
	Labels    []*LabelArray
	Raw       []*Array
	Subsets   []string
	Filenames [][]string
}

// Len returns the number of windows in the batch.
func (b *Batch) Len() int { return len(b.Data) }

// StackData stacks the data field along a new leading batch axis. The second
// result is false when window shapes vary across the batch; ragged batches
// stay as per-window slices.
func (b *Batch) StackData() (*Array, bool) { return stackArrays(b.Data) }

// StackLabels stacks the labels field along a new leading batch axis.
func (b *Batch) StackLabels() (*LabelArray, bool) { return stackLabelArrays(b.Labels) }

// StackRaw stacks the raw field along a new leading batch axis.
func (b *Batch) StackRaw() (*Array, bool) { return stackArrays(b.Raw) }

// Tensors converts the batch into gomlx tensors for a training loop. The
// label tensor is nil for datasets without ground truth. Ragged batches
// cannot be converted.
func (b *Batch) Tensors() (data, labels *tensors.Tensor, err error) {
	d, ok := b.StackData()
	if !ok {
		return nil, nil, fmt.Errorf("loader: batch data has varying shapes, cannot stack into a tensor")
	}
	data = tensors.FromFlatDataAndDimensions(d.Data, d.Shape...)
	if len(b.Labels) > 0 {
		l, ok := b.StackLabels()
		if !ok {
			return nil, nil, fmt.Errorf("loader: batch labels have varying shapes, cannot stack into a tensor")
		}
		labels = tensors.FromFlatDataAndDimensions(l.Data, l.Shape...)
	}
	return data, labels, nil
}

// fetchBatch assembles one minibatch from an index group: load every window,
// run the fixed transform pipeline, and collect the results. Any load or
// transform failure aborts the whole batch attempt; the step loop decides
// whether the failure is recoverable. Called concurrently by prefetch
// workers; it only reads loader state.
func (l *Loader) fetchBatch(group IndexGroup) (*Batch, error) {
	batch := &Batch{}
	for _, w := range group {
		if len(w.Names) == 0 {
			// Absent slot, never loaded.
			continue
		}
		s, err := l.ds.LoadWindow(w)
		if err != nil {
			return nil, err
		}
		data, labels, raw, err := l.transform(s)
		if err != nil {
			return nil, err
		}
		batch.Data = append(batch.Data, data)
		batch.Raw = append(batch.Raw, raw)
		if labels != nil {
			batch.Labels = append(batch.Labels, labels)
		}
		batch.Subsets = append(batch.Subsets, s.Subset)
		batch.Filenames = append(batch.Filenames, s.Filenames)
	}
	return batch, nil
}

// transform runs the fixed per-window pipeline: per-image normalization,
// dataset-statistics normalization, augmentation, label remapping, one-hot
// expansion, channel reordering, and the image-mode squeeze. The raw copy is
// taken before any of it.
func (l *Loader) transform(s *Sample) (data *Array, labels *LabelArray, raw *Array, err error) {
	data, labels = s.Data, s.Labels
	raw = data.Clone()

	data.NormalizePerImage(l.cfg.RemovePerImageMean, l.cfg.DividePerImageStd)
	if l.cfg.RemoveMean {
		data.SubChannels(l.mean)
	}
	if l.cfg.DivideByStd {
		data.DivChannels(l.std)
	}

	voidLabel := -1
	if v, ok := l.mapping.VoidCanonical(); ok {
		voidLabel = v
	}
	if l.cfg.Augment != nil {
		data, labels, err = l.cfg.Augment(data, labels, l.mapping.NClasses(), voidLabel)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("loader: augmentation failed: %w", err)
		}
	}

	if labels != nil {
		// The remap only runs when there are void labels to collapse; without
		// voids the original ids are kept as-is.
		if voidLabel >= 0 {
			l.mapping.Apply(labels.Data)
		}
		if l.cfg.OneHot {
			labels, err = labels.OneHot(l.mapping.NClasses())
			if err != nil {
				return nil, nil, nil, err
			}
		}
	}

	if l.cfg.ChannelsFirst {
		data = data.ChannelsFirst()
		raw = raw.ChannelsFirst()
		if labels != nil && l.cfg.OneHot {
			labels = labels.ChannelsFirst()
		}
	}

	if l.imageMode {
		data = data.DropLeading()
		raw = raw.DropLeading()
		if labels != nil {
			labels = labels.DropLeading()
		}
	}
	return data, labels, raw, nil
}
