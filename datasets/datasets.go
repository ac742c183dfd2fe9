// Package datasets provides concrete dataset adapters for the loader.
//
// An adapter implements loader.Dataset: it lists sample names per subset and
// loads windows of them on demand. Both adapters here are lazy - they keep
// only paths and row indices in memory and read the actual data when a
// window is requested, so large datasets never have to fit in RAM.
//
// Two adapters are included:
//
//   - DirDataset: one directory per subset (e.g. one directory per video),
//     frames decoded from files by a caller-supplied DecodeFunc.
//   - CSVDataset: one CSV file per subset, one row per frame, feature
//     columns as channels and an optional label column.
package datasets

import (
	"github.com/Noofbiz/dataLadle/loader"
)

// DecodeFunc turns one file into a single frame: data in (height, width,
// channels) order and an optional label raster in (height, width) order.
// Return a nil label array for datasets without ground truth.
type DecodeFunc func(path string) (*loader.Array, *loader.LabelArray, error)
