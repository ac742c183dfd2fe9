// Command ladlebench benchmarks the loader's prefetch engine against a
// synthetic dataset. It sweeps a list of worker counts, measures per-batch
// latency and overall throughput for each, and renders the results with
// gonum/plot so the effect of prefetching on a given machine is easy to see.
//
// Configuration follows defaults < JSON config file < CLI flags.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/dataLadle/loader"
)

// benchConfig holds everything the sweep needs. The JSON field names match
// the config file format.
type benchConfig struct {
	Workers   []int  `json:"workers"`
	Steps     int    `json:"steps"`
	BatchSize int    `json:"batch_size"`
	SeqLength int    `json:"seq_length"`
	Overlap   int    `json:"overlap"`
	QueueSize int   `json:"queue_size"`
	Seed      int64 `json:"seed"`

	Subsets  int `json:"subsets"`
	Frames   int `json:"frames"`
	Height   int `json:"height"`
	Width    int `json:"width"`
	Channels int `json:"channels"`
	NClasses int `json:"nclasses"`

	// IODelay simulates per-window fetch cost (e.g. "5ms").
	IODelay string `json:"io_delay"`

	OutDir string `json:"out"`
}

func defaultBenchConfig() benchConfig {
	return benchConfig{
		Workers:   []int{0, 1, 2, 4},
		Steps:     200,
		BatchSize: 8,
		SeqLength: 5,
		Overlap:   -1,
		QueueSize: 50,
		Seed:      0xbeef,
		Subsets:   4,
		Frames:    400,
		Height:    32,
		Width:     32,
		Channels:  3,
		NClasses:  5,
		IODelay:   "2ms",
		OutDir:    "plots",
	}
}

// benchDataset synthesizes frames in memory so the benchmark measures the
// pipeline, not a disk.
type benchDataset struct {
	subsets  int
	frames   int
	h, w, c  int
	nclasses int
	delay    time.Duration
}

func (d *benchDataset) Name() string { return "synthetic" }

func (d *benchDataset) NonVoidNClasses() int { return d.nclasses }

func (d *benchDataset) VoidLabels() []int { return nil }

func (d *benchDataset) GetNames() (map[string][]string, error) {
	names := make(map[string][]string, d.subsets)
	for s := 0; s < d.subsets; s++ {
		list := make([]string, d.frames)
		for i := range list {
			list[i] = fmt.Sprintf("frame%06d", i)
		}
		names[fmt.Sprintf("clip%02d", s)] = list
	}
	return names, nil
}

func (d *benchDataset) LoadWindow(w loader.Window) (*loader.Sample, error) {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	seq := len(w.Names)
	data := loader.NewArray(seq, d.h, d.w, d.c)
	labs := loader.NewLabelArray(seq, d.h, d.w)
	for i, name := range w.Names {
		idx, err := strconv.Atoi(strings.TrimPrefix(name, "frame"))
		if err != nil {
			return nil, loader.FatalFetch(name, err)
		}
		frame := data.Data[i*d.h*d.w*d.c : (i+1)*d.h*d.w*d.c]
		for j := range frame {
			frame[j] = float32((idx+j)%256) / 255
		}
		raster := labs.Data[i*d.h*d.w : (i+1)*d.h*d.w]
		for j := range raster {
			raster[j] = int32((idx + j) % d.nclasses)
		}
	}
	return &loader.Sample{Data: data, Labels: labs, Subset: w.Subset, Filenames: w.Names}, nil
}

// benchResult is one sweep point.
type benchResult struct {
	workers    int
	latencies  plotter.XYs // step index vs latency in ms
	throughput float64     // windows per second
}

func runBench(cfg benchConfig, workers int, delay time.Duration) (benchResult, error) {
	ds := &benchDataset{
		subsets:  cfg.Subsets,
		frames:   cfg.Frames,
		h:        cfg.Height,
		w:        cfg.Width,
		c:        cfg.Channels,
		nclasses: cfg.NClasses,
		delay:    delay,
	}

	lcfg := loader.DefaultConfig()
	lcfg.SeqLength = cfg.SeqLength
	lcfg.Overlap = cfg.Overlap
	lcfg.BatchSize = cfg.BatchSize
	lcfg.Workers = workers
	lcfg.QueueSize = cfg.QueueSize
	lcfg.Seed = cfg.Seed
	l, err := loader.New(ds, lcfg)
	if err != nil {
		return benchResult{}, err
	}
	defer l.Finish()

	res := benchResult{
		workers:   workers,
		latencies: make(plotter.XYs, 0, cfg.Steps),
	}
	windows := 0
	start := time.Now()
	for step := 0; step < cfg.Steps; step++ {
		stepStart := time.Now()
		b, err := l.Next()
		if err != nil {
			return benchResult{}, err
		}
		res.latencies = append(res.latencies, plotter.XY{
			X: float64(step),
			Y: float64(time.Since(stepStart)) / float64(time.Millisecond),
		})
		windows += b.Len()
	}
	res.throughput = float64(windows) / time.Since(start).Seconds()
	return res, nil
}

// sweepColor cycles a small palette across sweep points.
func sweepColor(i int) color.RGBA {
	palette := []color.RGBA{
		{R: 120, G: 120, B: 120, A: 220},
		{R: 20, G: 80, B: 200, A: 220},
		{R: 200, G: 30, B: 30, A: 220},
		{R: 40, G: 140, B: 40, A: 220},
		{R: 180, G: 120, B: 20, A: 220},
	}
	return palette[i%len(palette)]
}

func plotLatency(outDir string, results []benchResult) error {
	p := plot.New()
	p.Title.Text = "Per-batch latency by worker count"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "latency (ms)"

	for i, r := range results {
		line, err := plotter.NewLine(r.latencies)
		if err != nil {
			return err
		}
		line.Color = sweepColor(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%d workers", r.workers), line)
	}
	p.Add(plotter.NewGrid())
	p.Y.Min = 0

	outPath := filepath.Join(outDir, "bench_latency.png")
	return p.Save(8*vg.Inch, 6*vg.Inch, outPath)
}

func plotThroughput(outDir string, results []benchResult) error {
	p := plot.New()
	p.Title.Text = "Throughput by worker count"
	p.X.Label.Text = "workers"
	p.Y.Label.Text = "windows / second"

	xys := make(plotter.XYs, len(results))
	maxY := 0.0
	for i, r := range results {
		xys[i] = plotter.XY{X: float64(r.workers), Y: r.throughput}
		maxY = math.Max(maxY, r.throughput)
	}
	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 20, G: 80, B: 200, A: 220}
	p.Add(line, points, plotter.NewGrid())
	p.Y.Min = 0
	p.Y.Max = maxY * 1.1

	outPath := filepath.Join(outDir, "bench_throughput.png")
	return p.Save(6*vg.Inch, 4*vg.Inch, outPath)
}

// parseWorkerList parses "0,1,2,4" into a slice.
func parseWorkerList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	workers := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad worker count %q: %w", part, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("worker count must be >= 0, got %d", n)
		}
		workers = append(workers, n)
	}
	return workers, nil
}

func main() {
	cfg := defaultBenchConfig()

	configPath := flag.String("config", "", "path to JSON benchmark config (optional). CLI flags override its values.")
	workersFlag := flag.String("workers", "0,1,2,4", "comma-separated worker counts to sweep (0 = synchronous)")
	stepsFlag := flag.Int("steps", cfg.Steps, "number of batches to draw per sweep point")
	batchSizeFlag := flag.Int("batch-size", cfg.BatchSize, "windows per batch")
	seqLengthFlag := flag.Int("seq-length", cfg.SeqLength, "frames per window")
	overlapFlag := flag.Int("overlap", cfg.Overlap, "frames shared between consecutive windows (-1 = seq-length-1)")
	queueSizeFlag := flag.Int("queue-size", cfg.QueueSize, "prefetch queue capacity")
	seedFlag := flag.Int64("seed", cfg.Seed, "shuffle seed")
	subsetsFlag := flag.Int("subsets", cfg.Subsets, "number of synthetic subsets")
	framesFlag := flag.Int("frames", cfg.Frames, "frames per synthetic subset")
	heightFlag := flag.Int("height", cfg.Height, "synthetic frame height")
	widthFlag := flag.Int("width", cfg.Width, "synthetic frame width")
	channelsFlag := flag.Int("channels", cfg.Channels, "synthetic frame channels")
	nclassesFlag := flag.Int("nclasses", cfg.NClasses, "synthetic label classes")
	ioDelayFlag := flag.Duration("io-delay", 2*time.Millisecond, "simulated fetch cost per window (e.g. 5ms)")
	outDirFlag := flag.String("out", cfg.OutDir, "output directory for generated plots")
	flag.Parse()

	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			log.Fatalf("failed to read config %s: %v", *configPath, err)
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			log.Fatalf("failed to parse config %s: %v", *configPath, err)
		}
		log.Printf("Loaded benchmark config from %s", *configPath)
	}

	// Explicitly set flags take precedence over the JSON file.
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	if setFlags["steps"] {
		cfg.Steps = *stepsFlag
	}
	if setFlags["batch-size"] {
		cfg.BatchSize = *batchSizeFlag
	}
	if setFlags["seq-length"] {
		cfg.SeqLength = *seqLengthFlag
	}
	if setFlags["overlap"] {
		cfg.Overlap = *overlapFlag
	}
	if setFlags["queue-size"] {
		cfg.QueueSize = *queueSizeFlag
	}
	if setFlags["seed"] {
		cfg.Seed = *seedFlag
	}
	if setFlags["subsets"] {
		cfg.Subsets = *subsetsFlag
	}
	if setFlags["frames"] {
		cfg.Frames = *framesFlag
	}
	if setFlags["height"] {
		cfg.Height = *heightFlag
	}
	if setFlags["width"] {
		cfg.Width = *widthFlag
	}
	if setFlags["channels"] {
		cfg.Channels = *channelsFlag
	}
	if setFlags["nclasses"] {
		cfg.NClasses = *nclassesFlag
	}
	if setFlags["io-delay"] {
		cfg.IODelay = ioDelayFlag.String()
	}
	if setFlags["out"] {
		cfg.OutDir = *outDirFlag
	}
	if setFlags["workers"] || cfg.Workers == nil {
		workers, err := parseWorkerList(*workersFlag)
		if err != nil {
			log.Fatalf("invalid -workers: %v", err)
		}
		cfg.Workers = workers
	}

	delay, err := time.ParseDuration(cfg.IODelay)
	if err != nil {
		log.Fatalf("invalid io_delay %q: %v", cfg.IODelay, err)
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		log.Fatalf("failed to create output dir %s: %v", cfg.OutDir, err)
	}

	log.Printf("Sweeping workers=%v steps=%d batch=%d seq=%d delay=%s",
		cfg.Workers, cfg.Steps, cfg.BatchSize, cfg.SeqLength, delay)

	results := make([]benchResult, 0, len(cfg.Workers))
	for _, w := range cfg.Workers {
		res, err := runBench(cfg, w, delay)
		if err != nil {
			log.Fatalf("benchmark with %d workers failed: %v", w, err)
		}
		log.Printf("workers=%d throughput=%.1f windows/s", w, res.throughput)
		results = append(results, res)
	}

	if err := plotLatency(cfg.OutDir, results); err != nil {
		log.Fatalf("failed to plot latency: %v", err)
	}
	if err := plotThroughput(cfg.OutDir, results); err != nil {
		log.Fatalf("failed to plot throughput: %v", err)
	}
	log.Printf("Plots written to %s", cfg.OutDir)
}
