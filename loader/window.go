package loader

// Window is a fixed-length ordered run of sample names drawn from a single
// subset. With a sequence length of 1 it degenerates to a single image.
type Window struct {
	Subset string
	Names  []string
}

// WindowSet maps a subset key to its ordered windows. It is rebuilt whenever
// sequencing parameters change or the dataset is reloaded.
type WindowSet map[string][]Window

// buildWindows turns per-subset ordered name lists into fixed-length,
// possibly overlapping windows.
//
// Each subset is padded by repeating its first and last name seqLength/2
// times, so every real name is covered by at least one window. Complete
// windows of the padded sequence are taken at stride seqLength-overlap,
// starting at offset 0, so consecutive windows share exactly overlap names.
func buildWindows(names map[string][]string, seqLength, overlap int) (WindowSet, error) {
	if seqLength < 1 {
		return nil, configErrorf("loader: sequence length must be at least 1, got %d", seqLength)
	}
	if seqLength == 1 {
		// Image mode: windows are single names, overlap is meaningless.
		overlap = 0
	}
	if overlap < 0 || overlap >= seqLength {
		return nil, configErrorf("loader: overlap %d outside valid range [0, %d)", overlap, seqLength)
	}

	ws := make(WindowSet, len(names))
	total := 0
	for subset, list := range names {
		if len(list) == 0 {
			continue
		}

		pad := seqLength / 2
		extended := make([]string, 0, len(list)+2*pad)
		for i := 0; i < pad; i++ {
			extended = append(extended, list[0])
		}
		extended = append(extended, list...)
		for i := 0; i < pad; i++ {
			extended = append(extended, list[len(list)-1])
		}

		stride := seqLength - overlap
		var windows []Window
		for start := 0; start+seqLength <= len(extended); start += stride {
			windows = append(windows, Window{
				Subset: subset,
				Names:  extended[start : start+seqLength],
			})
		}
		ws[subset] = windows
		total += len(windows)
	}

	if total == 0 {
		return nil, configErrorf("loader: dataset produced no windows, the name list cannot be empty")
	}
	return ws, nil
}
