// Package loader turns an ordered collection of named samples into shuffled,
// windowed, normalized minibatches, optionally prefetched by a pool of
// background workers so that I/O and transform cost is hidden behind
// consumer compute.
//
// A Loader is built from a dataset adapter (something that can list sample
// names per subset and load one window of them) and a Config. It slices each
// subset into fixed-length overlapping windows, schedules them into epochs
// of minibatches, and hands out assembled batches one Next call at a time:
//
//	ds, _ := datasets.NewDirDataset(...)
//	cfg := loader.DefaultConfig()
//	cfg.SeqLength = 5
//	cfg.BatchSize = 8
//	cfg.Workers = 4
//	l, err := loader.New(ds, cfg)
//	...
//	for {
//		batch, err := l.Next()
//		...
//	}
//	l.Finish()
//
// The Loader also implements the Name/Yield/Restart surface used by gomlx
// training loops, yielding batches as tensors and io.EOF at epoch end.
package loader

import (
	"io"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/dataLadle/labels"
)

// Dataset is the capability interface a dataset adapter implements. The
// loader never inspects concrete adapter types; everything goes through
// these calls.
type Dataset interface {
	// Name identifies the dataset.
	Name() string

	// GetNames lists all sample names, grouped by subset, in their natural
	// order. Called once at construction and again on explicit reload.
	GetNames() (map[string][]string, error)

	// LoadWindow loads the samples of one window. Missing or corrupt samples
	// should be wrapped with RecoverableFetch so the loader can skip them.
	LoadWindow(w Window) (*Sample, error)

	// NonVoidNClasses returns the number of non-void classes.
	NonVoidNClasses() int

	// VoidLabels lists original labels to collapse into the canonical void
	// class. Empty if none.
	VoidLabels() []int
}

// ClassLister is implemented by adapters whose original labels are not the
// contiguous range starting at zero.
type ClassLister interface {
	Classes() []int
}

// StatProvider is implemented by adapters that know dataset-level mean and
// standard deviation, used by the RemoveMean and DivideByStd options. Either
// slice may be per-channel or a single broadcast value.
type StatProvider interface {
	Stats() (mean, std []float32)
}

// Config carries every tunable of a Loader. Start from DefaultConfig and
// override what you need.
type Config struct {
	// SeqLength is the number of frames per window. 0 and 1 both mean image
	// mode: windows hold a single frame and batches drop the sequence axis.
	SeqLength int

	// Overlap is the number of shared frames between consecutive windows.
	// It must be in [0, SeqLength); a negative value selects the maximum,
	// SeqLength-1.
	Overlap int

	// SeqPerSubset caps how many windows each subset contributes per epoch,
	// drawn uniformly without replacement. 0 means no cap.
	SeqPerSubset int

	// BatchSize is the number of windows per minibatch.
	BatchSize int

	// Workers is the size of the prefetch pool. 0 disables prefetching and
	// batches are assembled synchronously in Next.
	Workers int

	// QueueSize bounds both prefetch queues.
	QueueSize int

	// Shuffle reshuffles the epoch order with the seeded generator at every
	// rebuild. Required whenever Workers > 1, since a multi-worker pool does
	// not preserve submission order.
	Shuffle bool

	// Infinite makes Next roll straight into the next epoch instead of
	// reporting io.EOF at epoch boundaries.
	Infinite bool

	// Seed drives the epoch shuffle. Runs with the same seed, dataset and
	// call order see the same batch orderings.
	Seed int64

	// WaitTime is the poll interval of the prefetch consumer and of Finish.
	WaitTime time.Duration

	// OneHot expands label ids into one-hot planes over the total class
	// count.
	OneHot bool

	// ChannelsFirst reorders data from (.., h, w, c) to (.., c, h, w).
	ChannelsFirst bool

	// RemoveMean and DivideByStd apply dataset-level statistics from the
	// adapter's StatProvider, when it has one.
	RemoveMean  bool
	DivideByStd bool

	// RemovePerImageMean and DividePerImageStd normalize each window with
	// its own per-channel statistics.
	RemovePerImageMean bool
	DividePerImageStd  bool

	// Augment, when set, is invoked on every window between normalization
	// and label remapping.
	Augment AugmentFunc
}

// DefaultConfig mirrors the loader's historical defaults: single-window
// batches, shuffled infinite iteration, channels-first output, maximal
// window overlap, and a 50-entry queue polled every 50ms.
func DefaultConfig() Config {
	return Config{
		SeqLength:     0,
		Overlap:       -1,
		BatchSize:     1,
		QueueSize:     50,
		Shuffle:       true,
		Infinite:      true,
		ChannelsFirst: true,
		Seed:          0xbeef,
		WaitTime:      50 * time.Millisecond,
	}
}

// Loader is the consumer-facing iterator. It is not safe for concurrent
// Next calls; the prefetch pool parallelizes work behind a single consumer.
type Loader struct {
	ds  Dataset
	cfg Config

	mapping   *labels.Mapping
	mean, std []float32

	seqLength int
	imageMode bool

	names   map[string][]string
	windows WindowSet
	sched   *batchScheduler
	engine  *prefetchEngine
}

// New builds a Loader, lists the dataset's names, derives the window set and
// the first epoch, and starts the prefetch pool when Workers > 0.
func New(ds Dataset, cfg Config) (*Loader, error) {
	if ds == nil {
		return nil, configErrorf("loader: dataset must not be nil")
	}
	if cfg.BatchSize < 1 {
		return nil, configErrorf("loader: batch size must be at least 1, got %d", cfg.BatchSize)
	}
	if cfg.Workers < 0 {
		return nil, configErrorf("loader: worker count must not be negative, got %d", cfg.Workers)
	}
	if cfg.Workers > 1 && !cfg.Shuffle {
		// Multiple workers do not preserve order; without per-epoch shuffling
		// the reordering would silently break determinism expectations.
		return nil, configErrorf("loader: multiple workers are not order preserving, enable Shuffle or use one worker")
	}
	if cfg.Workers > 0 && cfg.QueueSize < 1 {
		return nil, configErrorf("loader: queue size must be at least 1 when prefetching, got %d", cfg.QueueSize)
	}
	if cfg.WaitTime <= 0 {
		cfg.WaitTime = 50 * time.Millisecond
	}

	seqLength := cfg.SeqLength
	imageMode := false
	if seqLength <= 1 {
		seqLength = 1
		imageMode = true
	}
	overlap := cfg.Overlap
	if overlap < 0 {
		overlap = seqLength - 1
	}

	var classes []int
	if cl, ok := ds.(ClassLister); ok {
		classes = cl.Classes()
	}
	mapping, err := labels.New(ds.NonVoidNClasses(), ds.VoidLabels(), classes)
	if err != nil {
		return nil, configErrorf("loader: invalid class specification for dataset %q: %v", ds.Name(), err)
	}

	l := &Loader{
		ds:        ds,
		cfg:       cfg,
		mapping:   mapping,
		seqLength: seqLength,
		imageMode: imageMode,
	}
	if sp, ok := ds.(StatProvider); ok {
		l.mean, l.std = sp.Stats()
	}

	l.names, err = ds.GetNames()
	if err != nil {
		return nil, configErrorf("loader: listing names of dataset %q failed: %v", ds.Name(), err)
	}
	l.windows, err = buildWindows(l.names, seqLength, overlap)
	if err != nil {
		return nil, err
	}

	l.sched = newBatchScheduler(l.windows, cfg.BatchSize, cfg.SeqPerSubset, cfg.Seed)
	l.sched.rebuildEpoch(cfg.Shuffle)

	if cfg.Workers > 0 {
		l.engine = newPrefetchEngine(l.sched, l.fetchBatch,
			cfg.Workers, cfg.QueueSize, cfg.WaitTime, cfg.Shuffle, cfg.Infinite)
	}
	return l, nil
}

// Next returns the next assembled minibatch. At an epoch boundary the
// scheduler is rebuilt, and io.EOF is reported unless the loader is
// configured infinite. Recoverable fetch failures are logged and skipped.
func (l *Loader) Next() (*Batch, error) {
	if l.engine != nil {
		return l.engine.step()
	}
	for {
		group, ok := l.sched.next()
		if !ok {
			l.sched.rebuildEpoch(l.cfg.Shuffle)
			if !l.cfg.Infinite {
				return nil, io.EOF
			}
			continue
		}
		batch, err := l.fetchBatch(group)
		if err != nil {
			if IsRecoverableFetch(err) {
				klog.Warningf("loader: sample missing or corrupt, skipping minibatch: %v", err)
				continue
			}
			return nil, err
		}
		return batch, nil
	}
}

// Reset rebuilds the epoch to pick up parameter changes, optionally
// re-listing names from the dataset. With a prefetch pool it first drains
// both queues and waits out in-flight work, so workers cannot race the
// rebuild; prefer Shuffle when only the order should change.
func (l *Loader) Reset(shuffle, reloadFromSource bool) error {
	if reloadFromSource {
		names, err := l.ds.GetNames()
		if err != nil {
			return configErrorf("loader: listing names of dataset %q failed: %v", l.ds.Name(), err)
		}
		overlap := l.cfg.Overlap
		if overlap < 0 {
			overlap = l.seqLength - 1
		}
		windows, err := buildWindows(names, l.seqLength, overlap)
		if err != nil {
			return err
		}
		l.names, l.windows = names, windows
		l.sched.setWindows(windows)
	}
	if l.engine != nil {
		l.engine.reset(func() { l.sched.rebuildEpoch(shuffle) })
	} else {
		l.sched.rebuildEpoch(shuffle)
	}
	return nil
}

// Shuffle re-partitions the current windows into new shuffled minibatches
// without touching the dataset or the prefetch queues.
func (l *Loader) Shuffle() {
	l.sched.reshuffle()
}

// Finish stops the prefetch pool and waits for every worker to exit. It is
// a no-op without prefetching, and safe to call more than once.
func (l *Loader) Finish() {
	if l.engine != nil {
		l.engine.finish()
	}
}

// NSamples returns the number of windows in the current epoch.
func (l *Loader) NSamples() int { return l.sched.NSamples() }

// NBatches returns the number of minibatches in the current epoch.
func (l *Loader) NBatches() int { return l.sched.NBatches() }

// NClasses returns the total canonical class count, counting the collapsed
// void class if there is one.
func (l *Loader) NClasses() int { return l.mapping.NClasses() }

// NonVoidNClasses returns the number of non-void classes.
func (l *Loader) NonVoidNClasses() int { return l.mapping.NonVoidNClasses() }

// VoidCanonical returns the canonical value void labels collapse to; false
// when the dataset has none.
func (l *Loader) VoidCanonical() (int, bool) { return l.mapping.VoidCanonical() }

// Mapping returns the label mapping built for the dataset.
func (l *Loader) Mapping() *labels.Mapping { return l.mapping }

// Name implements the gomlx-style dataset surface.
func (l *Loader) Name() string { return l.ds.Name() }

// Yield returns the next batch as gomlx tensors: the data tensor as the only
// input and the label tensor as the only label. It reports io.EOF at epoch
// end when the loader is not infinite.
func (l *Loader) Yield() (spec any, inputs []*tensors.Tensor, lbls []*tensors.Tensor, err error) {
	batch, err := l.Next()
	if err != nil {
		return nil, nil, nil, err
	}
	data, labelsT, err := batch.Tensors()
	if err != nil {
		return nil, nil, nil, err
	}
	inputs = []*tensors.Tensor{data}
	if labelsT != nil {
		lbls = []*tensors.Tensor{labelsT}
	}
	return nil, inputs, lbls, nil
}

// Restart rebuilds the epoch for another pass, keeping the current windows.
func (l *Loader) Restart() error {
	return l.Reset(l.cfg.Shuffle, false)
}
