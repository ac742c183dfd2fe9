package datasets

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Noofbiz/dataLadle/loader"
)

// writeCSV writes a telemetry CSV with speed/accel features and a label
// column. Row i holds speed=i, accel=i*10, label=i%3.
func writeCSV(t *testing.T, dir, name string, rows int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := "timestamp,speed,accel,label\n"
	for i := 0; i < rows; i++ {
		content += fmt.Sprintf("%d,%d,%d,%d\n", 1000+i, i, i*10, i%3)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write CSV: %v", err)
	}
	return path
}

func TestNewCSVDatasetColumnDiscovery(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "runA.csv", 4)

	if _, err := NewCSVDataset(filepath.Join(dir, "*.csv"), []string{"speed", "accel"}, "label", 3, nil); err != nil {
		t.Fatalf("NewCSVDataset failed: %v", err)
	}
	if _, err := NewCSVDataset(filepath.Join(dir, "*.csv"), []string{"speed", "altitude"}, "label", 3, nil); err == nil {
		t.Error("NewCSVDataset accepted a missing feature column")
	}
	if _, err := NewCSVDataset(filepath.Join(dir, "none-*.csv"), []string{"speed"}, "", 3, nil); err == nil {
		t.Error("NewCSVDataset accepted a pattern matching no files")
	}
}

func TestCSVDatasetGetNames(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "runA.csv", 3)
	writeCSV(t, dir, "runB.csv", 2)

	ds, err := NewCSVDataset(filepath.Join(dir, "*.csv"), []string{"speed"}, "label", 3, nil)
	if err != nil {
		t.Fatalf("NewCSVDataset failed: %v", err)
	}
	names, err := ds.GetNames()
	if err != nil {
		t.Fatalf("GetNames failed: %v", err)
	}
	want := map[string][]string{
		"runA": {"00000000", "00000001", "00000002"},
		"runB": {"00000000", "00000001"},
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVDatasetLoadWindow(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "runA.csv", 5)
	ds, err := NewCSVDataset(filepath.Join(dir, "*.csv"), []string{"speed", "accel"}, "label", 3, nil)
	if err != nil {
		t.Fatalf("NewCSVDataset failed: %v", err)
	}

	s, err := ds.LoadWindow(loader.Window{
		Subset: "runA",
		Names:  []string{"00000001", "00000002", "00000003"},
	})
	if err != nil {
		t.Fatalf("LoadWindow failed: %v", err)
	}
	if diff := cmp.Diff([]int{3, 1, 1, 2}, s.Data.Shape); diff != "" {
		t.Fatalf("data shape mismatch (-want +got):\n%s", diff)
	}
	wantData := []float32{1, 10, 2, 20, 3, 30}
	if diff := cmp.Diff(wantData, s.Data.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	wantLabels := []int32{1, 2, 0}
	if diff := cmp.Diff(wantLabels, s.Labels.Data); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
	wantFiles := []string{"runA:00000001", "runA:00000002", "runA:00000003"}
	if diff := cmp.Diff(wantFiles, s.Filenames); diff != "" {
		t.Errorf("filenames mismatch (-want +got):\n%s", diff)
	}
}

// TestCSVDatasetLoadWindowRepeatedRows covers edge padding, where the same
// row index fills several window slots.
func TestCSVDatasetLoadWindowRepeatedRows(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "runA.csv", 3)
	ds, err := NewCSVDataset(filepath.Join(dir, "*.csv"), []string{"speed"}, "label", 3, nil)
	if err != nil {
		t.Fatalf("NewCSVDataset failed: %v", err)
	}

	s, err := ds.LoadWindow(loader.Window{
		Subset: "runA",
		Names:  []string{"00000000", "00000000", "00000001"},
	})
	if err != nil {
		t.Fatalf("LoadWindow failed: %v", err)
	}
	wantData := []float32{0, 0, 1}
	if diff := cmp.Diff(wantData, s.Data.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	wantLabels := []int32{0, 0, 1}
	if diff := cmp.Diff(wantLabels, s.Labels.Data); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVDatasetLoadWindowErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "runA.csv", 3)
	ds, err := NewCSVDataset(filepath.Join(dir, "*.csv"), []string{"speed"}, "label", 3, nil)
	if err != nil {
		t.Fatalf("NewCSVDataset failed: %v", err)
	}

	// Unknown subset is a misconfiguration, not a transient failure.
	_, err = ds.LoadWindow(loader.Window{Subset: "runZ", Names: []string{"00000000"}})
	if err == nil || loader.IsRecoverableFetch(err) {
		t.Errorf("unknown subset error should be fatal, got %v", err)
	}

	// A row past the end of the file is recoverable.
	_, err = ds.LoadWindow(loader.Window{Subset: "runA", Names: []string{"00000009"}})
	if err == nil || !loader.IsRecoverableFetch(err) {
		t.Errorf("out of range row error should be recoverable, got %v", err)
	}

	// A vanished file is recoverable.
	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove CSV: %v", err)
	}
	_, err = ds.LoadWindow(loader.Window{Subset: "runA", Names: []string{"00000000"}})
	if err == nil || !loader.IsRecoverableFetch(err) {
		t.Errorf("missing file error should be recoverable, got %v", err)
	}
}

// TestCSVDatasetWithLoader runs telemetry windows end to end through a
// loader, including one-hot encoding.
func TestCSVDatasetWithLoader(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "runA.csv", 6)
	ds, err := NewCSVDataset(filepath.Join(dir, "*.csv"), []string{"speed", "accel"}, "label", 3, nil)
	if err != nil {
		t.Fatalf("NewCSVDataset failed: %v", err)
	}

	cfg := loader.DefaultConfig()
	cfg.SeqLength = 3
	cfg.BatchSize = 2
	cfg.Shuffle = false
	cfg.Infinite = false
	cfg.ChannelsFirst = false
	cfg.OneHot = true
	l, err := loader.New(ds, cfg)
	if err != nil {
		t.Fatalf("loader.New failed: %v", err)
	}

	total := 0
	for {
		b, err := l.Next()
		if err != nil {
			break
		}
		for i := range b.Data {
			if diff := cmp.Diff([]int{3, 1, 1, 2}, b.Data[i].Shape); diff != "" {
				t.Fatalf("data shape mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]int{3, 1, 1, 3}, b.Labels[i].Shape); diff != "" {
				t.Fatalf("labels shape mismatch (-want +got):\n%s", diff)
			}
		}
		total += b.Len()
	}
	if total == 0 {
		t.Error("epoch delivered no windows")
	}
}
