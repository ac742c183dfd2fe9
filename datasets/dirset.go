package datasets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Noofbiz/dataLadle/loader"
)

// DirDataset adapts an on-disk layout with one directory per subset:
//
//	root/
//	  clip01/ frame0001.png frame0002.png ...
//	  clip02/ ...
//
// File names double as sample names; listing order (lexicographic) is the
// subset's natural order, so zero-padded frame numbers are expected. Frames
// are decoded on demand by the Decode function.
type DirDataset struct {
	// Root is the dataset directory, one subdirectory per subset.
	Root string

	// Ext filters files by extension (e.g. ".png"). Empty keeps everything.
	Ext string

	// Decode loads one frame from a file.
	Decode DecodeFunc

	// Mean and Std are optional dataset-level statistics, per-channel or a
	// single broadcast value, used by the loader's dataset normalization.
	Mean, Std []float32

	// ClassList optionally lists every original label for datasets whose
	// labels are not the contiguous range starting at zero.
	ClassList []int

	nonVoid int
	void    []int
}

// NewDirDataset builds a DirDataset and verifies the root exists.
func NewDirDataset(root, ext string, decode DecodeFunc, nonVoidNClasses int, voidLabels []int) (*DirDataset, error) {
	if decode == nil {
		return nil, fmt.Errorf("datasets: a decode function is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("datasets: dataset root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("datasets: dataset root %s is not a directory", root)
	}
	return &DirDataset{
		Root:    root,
		Ext:     ext,
		Decode:  decode,
		nonVoid: nonVoidNClasses,
		void:    voidLabels,
	}, nil
}

// Name returns the base name of the dataset root.
func (d *DirDataset) Name() string { return filepath.Base(d.Root) }

// NonVoidNClasses returns the number of non-void classes.
func (d *DirDataset) NonVoidNClasses() int { return d.nonVoid }

// VoidLabels lists the original void labels.
func (d *DirDataset) VoidLabels() []int { return d.void }

// Classes returns the explicit class list, or nil for contiguous labels.
func (d *DirDataset) Classes() []int { return d.ClassList }

// Stats returns the dataset-level mean and std, when configured.
func (d *DirDataset) Stats() (mean, std []float32) { return d.Mean, d.Std }

// GetNames lists frame files per subset directory. Subset listings are
// independent, so they are scanned in parallel.
func (d *DirDataset) GetNames() (map[string][]string, error) {
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, fmt.Errorf("datasets: reading dataset root %s: %w", d.Root, err)
	}

	names := make(map[string][]string)
	var mu sync.Mutex
	var g errgroup.Group
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		subset := entry.Name()
		g.Go(func() error {
			files, err := os.ReadDir(filepath.Join(d.Root, subset))
			if err != nil {
				return fmt.Errorf("datasets: reading subset %s: %w", subset, err)
			}
			var list []string
			for _, f := range files {
				if f.IsDir() {
					continue
				}
				if d.Ext != "" && !strings.EqualFold(filepath.Ext(f.Name()), d.Ext) {
					continue
				}
				list = append(list, f.Name())
			}
			sort.Strings(list)
			mu.Lock()
			names[subset] = list
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return names, nil
}

// LoadWindow decodes every frame of the window and stacks them along the
// sequence axis. Missing or undecodable files are recoverable; a shape
// mismatch inside one window is treated the same way, as it points at a
// damaged frame rather than a broken configuration.
func (d *DirDataset) LoadWindow(w loader.Window) (*loader.Sample, error) {
	var (
		data   *loader.Array
		labs   *loader.LabelArray
		hasGT  bool
		frameN int
		labelN int
	)
	for i, name := range w.Names {
		path := filepath.Join(d.Root, w.Subset, name)
		frame, frameLabs, err := d.Decode(path)
		if err != nil {
			return nil, loader.RecoverableFetch(path, err)
		}
		if i == 0 {
			frameN = frame.Size()
			data = loader.NewArray(append([]int{len(w.Names)}, frame.Shape...)...)
			hasGT = frameLabs != nil
			if hasGT {
				labelN = frameLabs.Size()
				labs = loader.NewLabelArray(append([]int{len(w.Names)}, frameLabs.Shape...)...)
			}
		}
		if frame.Size() != frameN {
			return nil, loader.RecoverableFetch(path, fmt.Errorf("frame shape %v does not match the rest of the window", frame.Shape))
		}
		if hasGT != (frameLabs != nil) || (hasGT && frameLabs.Size() != labelN) {
			return nil, loader.RecoverableFetch(path, fmt.Errorf("frame ground truth missing or misshapen for part of the window"))
		}
		copy(data.Data[i*frameN:], frame.Data)
		if hasGT {
			copy(labs.Data[i*labelN:], frameLabs.Data)
		}
	}
	return &loader.Sample{
		Data:      data,
		Labels:    labs,
		Subset:    w.Subset,
		Filenames: append([]string(nil), w.Names...),
	}, nil
}
