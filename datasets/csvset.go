package datasets

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Noofbiz/dataLadle/loader"
)

// CSVDataset adapts time-series CSV files: every file matching Pattern is
// one subset, every data row one frame. Feature columns become the frame's
// channels (shape 1x1xF) and an optional label column carries the frame's
// class id, so CSV frames run through the same windowing, remapping and
// batching pipeline as images.
//
// The dataset is lazy: construction only discovers columns and counts rows;
// actual values are read per window.
type CSVDataset struct {
	// Pattern locates the CSV files (e.g. "assets/telemetry/*.csv").
	Pattern string

	// FeatureCols names the columns read as frame channels, in order.
	FeatureCols []string

	// LabelCol optionally names an integer class column. Empty means no
	// ground truth.
	LabelCol string

	csvPaths  []string
	colIndex  map[string]int
	rowCounts map[string]int

	nonVoid int
	void    []int
}

// NewCSVDataset discovers the CSV files matching pattern, checks the
// required columns against the first file's header and counts rows per file.
func NewCSVDataset(pattern string, featureCols []string, labelCol string, nonVoidNClasses int, voidLabels []int) (*CSVDataset, error) {
	if len(featureCols) == 0 {
		return nil, fmt.Errorf("datasets: at least one feature column is required")
	}
	csvPaths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("datasets: bad pattern %s: %w", pattern, err)
	}
	if len(csvPaths) == 0 {
		return nil, fmt.Errorf("datasets: no CSV files found matching pattern: %s", pattern)
	}

	ds := &CSVDataset{
		Pattern:     pattern,
		FeatureCols: featureCols,
		LabelCol:    labelCol,
		csvPaths:    csvPaths,
		rowCounts:   make(map[string]int),
		nonVoid:     nonVoidNClasses,
		void:        voidLabels,
	}
	if err := ds.initializeColumns(); err != nil {
		return nil, err
	}
	if err := ds.countRows(); err != nil {
		return nil, err
	}
	return ds, nil
}

// initializeColumns reads the first CSV to determine column indices.
func (d *CSVDataset) initializeColumns() error {
	file, err := os.Open(d.csvPaths[0])
	if err != nil {
		return fmt.Errorf("datasets: failed to open first CSV %s: %w", d.csvPaths[0], err)
	}
	defer file.Close()

	header, err := csv.NewReader(file).Read()
	if err != nil {
		return fmt.Errorf("datasets: failed to read header: %w", err)
	}
	d.colIndex = make(map[string]int)
	for i, col := range header {
		d.colIndex[strings.TrimSpace(strings.ToLower(col))] = i
	}

	required := append([]string(nil), d.FeatureCols...)
	if d.LabelCol != "" {
		required = append(required, d.LabelCol)
	}
	for _, col := range required {
		if _, ok := d.colIndex[strings.ToLower(col)]; !ok {
			return fmt.Errorf("datasets: required column %q not found in CSV", col)
		}
	}
	return nil
}

// countRows counts data rows per file so names can be generated without
// reading any values.
func (d *CSVDataset) countRows() error {
	for _, path := range d.csvPaths {
		count, err := countCSVRows(path)
		if err != nil {
			return fmt.Errorf("datasets: failed to count rows in %s: %w", path, err)
		}
		d.rowCounts[subsetKey(path)] = count
	}
	return nil
}

// subsetKey derives the subset name from a CSV path.
func subsetKey(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Name returns the glob pattern the dataset was built from.
func (d *CSVDataset) Name() string { return d.Pattern }

// NonVoidNClasses returns the number of non-void classes.
func (d *CSVDataset) NonVoidNClasses() int { return d.nonVoid }

// VoidLabels lists the original void labels.
func (d *CSVDataset) VoidLabels() []int { return d.void }

// GetNames lists zero-padded row indices per subset, so lexicographic order
// matches row order.
func (d *CSVDataset) GetNames() (map[string][]string, error) {
	names := make(map[string][]string, len(d.csvPaths))
	for _, path := range d.csvPaths {
		subset := subsetKey(path)
		count := d.rowCounts[subset]
		list := make([]string, count)
		for i := range list {
			list[i] = fmt.Sprintf("%08d", i)
		}
		names[subset] = list
	}
	return names, nil
}

// LoadWindow reads the window's rows from the subset's CSV file in one pass.
// A vanished file or an unparsable row is recoverable.
func (d *CSVDataset) LoadWindow(w loader.Window) (*loader.Sample, error) {
	path := d.pathFor(w.Subset)
	if path == "" {
		return nil, loader.FatalFetch(w.Subset, fmt.Errorf("unknown subset %q", w.Subset))
	}

	rows := make(map[int][]int, len(w.Names))
	for i, name := range w.Names {
		idx, err := strconv.Atoi(name)
		if err != nil {
			return nil, loader.FatalFetch(name, fmt.Errorf("bad row name: %w", err))
		}
		// Edge padding repeats boundary rows, so one row index can fill
		// several window slots.
		rows[idx] = append(rows[idx], i)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, loader.RecoverableFetch(path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil {
		return nil, loader.RecoverableFetch(path, fmt.Errorf("failed to read header: %w", err))
	}

	seq := len(w.Names)
	nf := len(d.FeatureCols)
	data := loader.NewArray(seq, 1, 1, nf)
	var labs *loader.LabelArray
	if d.LabelCol != "" {
		labs = loader.NewLabelArray(seq, 1, 1)
	}

	filled := 0
	for rowIdx := 0; filled < len(rows); rowIdx++ {
		record, err := reader.Read()
		if err == io.EOF {
			return nil, loader.RecoverableFetch(path, fmt.Errorf("row %v past end of file", w.Names))
		}
		if err != nil {
			return nil, loader.RecoverableFetch(path, err)
		}
		slots, ok := rows[rowIdx]
		if !ok {
			continue
		}
		filled++
		for fi, col := range d.FeatureCols {
			v, err := parseFloat32(record[d.colIndex[strings.ToLower(col)]])
			if err != nil {
				return nil, loader.RecoverableFetch(path, fmt.Errorf("row %d column %q: %w", rowIdx, col, err))
			}
			for _, slot := range slots {
				data.Data[slot*nf+fi] = v
			}
		}
		if labs != nil {
			raw := strings.TrimSpace(record[d.colIndex[strings.ToLower(d.LabelCol)]])
			id, err := strconv.Atoi(raw)
			if err != nil {
				return nil, loader.RecoverableFetch(path, fmt.Errorf("row %d label %q: %w", rowIdx, raw, err))
			}
			for _, slot := range slots {
				labs.Data[slot] = int32(id)
			}
		}
	}

	filenames := make([]string, seq)
	for i, name := range w.Names {
		filenames[i] = fmt.Sprintf("%s:%s", w.Subset, name)
	}
	return &loader.Sample{
		Data:      data,
		Labels:    labs,
		Subset:    w.Subset,
		Filenames: filenames,
	}, nil
}

func (d *CSVDataset) pathFor(subset string) string {
	for _, path := range d.csvPaths {
		if subsetKey(path) == subset {
			return path
		}
	}
	return ""
}

func parseFloat32(s string) (float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, err
	}
	return float32(v), nil
}

// countCSVRows counts the number of data rows in a CSV file (excluding
// header).
func countCSVRows(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil {
		return 0, err
	}
	count := 0
	for {
		if _, err := reader.Read(); err == io.EOF {
			break
		} else if err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}
