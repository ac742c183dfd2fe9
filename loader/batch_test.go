package loader

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// newImageLoader builds an unshuffled synchronous loader over a small image
// dataset, with the given config tweaks applied.
func newImageLoader(t *testing.T, void []int, mutate func(*Config)) *Loader {
	t.Helper()
	ds := newMemDataset(map[string]int{"A": 4}, 2, void)
	cfg := DefaultConfig()
	cfg.Shuffle = false
	cfg.Infinite = false
	cfg.ChannelsFirst = false
	if mutate != nil {
		mutate(&cfg)
	}
	l, err := New(ds, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l
}

func TestImageModeDropsSequenceAxis(t *testing.T) {
	l := newImageLoader(t, nil, nil)
	b, err := l.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if diff := cmp.Diff([]int{2, 2, 1}, b.Data[0].Shape); diff != "" {
		t.Errorf("image-mode data shape (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 2}, b.Labels[0].Shape); diff != "" {
		t.Errorf("image-mode label shape (-want +got):\n%s", diff)
	}
}

func TestSequenceModeKeepsSequenceAxis(t *testing.T) {
	l := newImageLoader(t, nil, func(c *Config) {
		c.SeqLength = 3
		c.Overlap = 1
	})
	b, err := l.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if diff := cmp.Diff([]int{3, 2, 2, 1}, b.Data[0].Shape); diff != "" {
		t.Errorf("sequence data shape (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{3, 2, 2}, b.Labels[0].Shape); diff != "" {
		t.Errorf("sequence label shape (-want +got):\n%s", diff)
	}
}

func TestRawKeepsUnnormalizedData(t *testing.T) {
	l := newImageLoader(t, nil, func(c *Config) {
		c.RemovePerImageMean = true
	})
	b, err := l.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	// Raw is the pre-normalization copy; data has mean removed.
	var rawSum, dataSum float32
	for i := range b.Raw[0].Data {
		rawSum += b.Raw[0].Data[i]
		dataSum += b.Data[0].Data[i]
	}
	if rawSum == 0 {
		t.Error("raw data appears normalized too")
	}
	if dataSum > 1e-4 || dataSum < -1e-4 {
		t.Errorf("normalized data sums to %g, want ~0", dataSum)
	}
}

func TestVoidLabelsCollapsed(t *testing.T) {
	// 2 non-void classes, void {2}: labels are produced in 0..2 and the remap
	// must send 2 to the canonical void value 2 while keeping 0 and 1.
	l := newImageLoader(t, []int{2}, nil)
	b, err := l.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	void, ok := l.VoidCanonical()
	if !ok {
		t.Fatal("loader with void labels reports none")
	}
	for _, v := range b.Labels[0].Data {
		if int(v) < 0 || int(v) > void {
			t.Errorf("label %d outside canonical range [0, %d]", v, void)
		}
	}
}

func TestOneHotBatch(t *testing.T) {
	l := newImageLoader(t, []int{2}, func(c *Config) {
		c.OneHot = true
		c.SeqLength = 2
		c.Overlap = 0
		c.BatchSize = 2
	})
	b, err := l.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	// (seq, h, w, nclasses) with nclasses = 2 non-void + 1 void.
	if diff := cmp.Diff([]int{2, 2, 2, 3}, b.Labels[0].Shape); diff != "" {
		t.Fatalf("one-hot shape (-want +got):\n%s", diff)
	}
	for i := 0; i < b.Labels[0].Size(); i += 3 {
		sum := b.Labels[0].Data[i] + b.Labels[0].Data[i+1] + b.Labels[0].Data[i+2]
		if sum != 1 {
			t.Fatalf("one-hot row at %d sums to %d, want 1", i, sum)
		}
	}

	stacked, ok := b.StackLabels()
	if !ok {
		t.Fatal("StackLabels failed on a uniform batch")
	}
	if diff := cmp.Diff([]int{2, 2, 2, 2, 3}, stacked.Shape); diff != "" {
		t.Errorf("stacked one-hot shape (-want +got):\n%s", diff)
	}
}

func TestChannelsFirstBatch(t *testing.T) {
	l := newImageLoader(t, nil, func(c *Config) {
		c.ChannelsFirst = true
		c.SeqLength = 2
		c.Overlap = 0
	})
	b, err := l.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if diff := cmp.Diff([]int{2, 1, 2, 2}, b.Data[0].Shape); diff != "" {
		t.Errorf("channels-first shape (-want +got):\n%s", diff)
	}
}

func TestAugmentHookRuns(t *testing.T) {
	var gotNClasses, gotVoid int
	l := newImageLoader(t, []int{2}, func(c *Config) {
		c.Augment = func(data *Array, labels *LabelArray, nclasses, voidLabel int) (*Array, *LabelArray, error) {
			gotNClasses, gotVoid = nclasses, voidLabel
			for i := range data.Data {
				data.Data[i] *= 2
			}
			return data, labels, nil
		}
	})
	if _, err := l.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if gotNClasses != 3 {
		t.Errorf("augment saw nclasses = %d, want 3", gotNClasses)
	}
	if gotVoid != 2 {
		t.Errorf("augment saw void = %d, want 2", gotVoid)
	}
}

func TestBatchMetadataAligned(t *testing.T) {
	l := newImageLoader(t, nil, func(c *Config) { c.BatchSize = 3 })
	b, err := l.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if b.Len() != 3 {
		t.Fatalf("batch has %d windows, want 3", b.Len())
	}
	if len(b.Subsets) != 3 || len(b.Filenames) != 3 || len(b.Labels) != 3 || len(b.Raw) != 3 {
		t.Error("batch fields are not aligned")
	}
	want := [][]string{{"A-00"}, {"A-01"}, {"A-02"}}
	if diff := cmp.Diff(want, b.Filenames); diff != "" {
		t.Errorf("filenames mismatch (-want +got):\n%s", diff)
	}
}
