// Package benchmarks provides the control-plane benchmark harness: built-in
// branch streams and hazard scenarios replayed against fresh cores.
package benchmarks

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/dualsim/timing/core"
	"github.com/sarchlab/dualsim/timing/pipeline"
	"github.com/sarchlab/dualsim/timing/scenario"
	"github.com/sarchlab/dualsim/timing/trace"
)

// BenchmarkResult holds the results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// SimulatedCycles is the total cycle count
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// StallCycles is the number of cycles with a load-use stall
	StallCycles uint64 `json:"stall_cycles"`

	// PipelineFlushes is the number of flush cycles
	PipelineFlushes uint64 `json:"pipeline_flushes"`

	// Redirects is the number of corrected-PC selections in both slots
	Redirects uint64 `json:"redirects"`

	// Forwards is the number of operands not read from the register file
	Forwards uint64 `json:"forwards"`

	// Branch predictor stats
	BranchResolutions     uint64  `json:"branch_resolutions,omitempty"`
	BranchCorrect         uint64  `json:"branch_correct,omitempty"`
	BranchMispredictions  uint64  `json:"branch_mispredictions,omitempty"`
	BranchAccuracyPercent float64 `json:"branch_accuracy_percent,omitempty"`
	BTBHitRatePercent     float64 `json:"btb_hit_rate_percent,omitempty"`

	// Mismatches lists scenario expectations that did not hold
	Mismatches []scenario.Mismatch `json:"mismatches,omitempty"`

	// Err is set when the benchmark could not run
	Err error `json:"-"`

	// WallTime is the actual time taken to run the benchmark
	WallTime time.Duration `json:"wall_time_ns"`
}

// Passed reports whether the benchmark ran and met every expectation.
func (r BenchmarkResult) Passed() bool {
	return r.Err == nil && len(r.Mismatches) == 0
}

// Benchmark defines a single benchmark. Exactly one of Stream and Scenario
// is normally set; a benchmark with both replays the scenario first.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Stream is a dynamic branch sequence driven with closed-loop
	// predictions.
	Stream []BranchEvent

	// Scenario is a fixed per-cycle stimulus with expectations.
	Scenario *scenario.Scenario
}

// FromScenario wraps a loaded scenario as a benchmark.
func FromScenario(sc *scenario.Scenario) Benchmark {
	return Benchmark{
		Name:        sc.Name,
		Description: sc.Description,
		Scenario:    sc,
	}
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Predictor configures the branch predictor of every core
	Predictor pipeline.BranchPredictorConfig

	// Strict enables input validation on every cycle
	Strict bool

	// Workers is the number of benchmarks run in parallel (default: 1)
	Workers int

	// TraceDir, when set, receives one <name>.trace file per benchmark
	TraceDir string

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Logger receives run events (default: discard)
	Logger logrus.FieldLogger
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Predictor: pipeline.DefaultBranchPredictorConfig(),
		Workers:   1,
		Output:    os.Stdout,
	}
}

// Harness runs benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		config.Logger = l
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks, each on its own core, and returns results
// in the order the benchmarks were added.
func (h *Harness) RunAll() ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, len(h.benchmarks))
	traces := traceFileNames(h.benchmarks)

	pool, err := ants.NewPool(h.config.Workers)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create worker pool")
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range h.benchmarks {
		i := i
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			results[i] = h.runBenchmark(h.benchmarks[i], traces[i])
		})
		if err != nil {
			wg.Done()
			return nil, errors.Wrapf(err, "failed to submit benchmark %s", h.benchmarks[i].Name)
		}
	}
	wg.Wait()

	return results, nil
}

// traceFileNames picks one trace file name per benchmark. Benchmarks whose
// names share a base, such as scenarios loaded from a/x.yaml and b/x.yaml,
// get a numeric suffix so no two workers write the same file.
func traceFileNames(benchmarks []Benchmark) []string {
	names := make([]string, len(benchmarks))
	used := make(map[string]bool, len(benchmarks))

	for i, b := range benchmarks {
		base := filepath.Base(b.Name)
		name := base + ".trace"
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s.%d.trace", base, n)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// runBenchmark executes a single benchmark on a fresh core.
func (h *Harness) runBenchmark(bench Benchmark, traceFile string) BenchmarkResult {
	result := BenchmarkResult{
		Name:        bench.Name,
		Description: bench.Description,
	}
	logger := h.config.Logger.WithField("benchmark", bench.Name)

	opts := []core.Option{core.WithLogger(logger)}
	if h.config.Strict {
		opts = append(opts, core.WithStrictChecks())
	}

	var tracer *trace.Writer
	if h.config.TraceDir != "" {
		path := filepath.Join(h.config.TraceDir, traceFile)
		f, err := os.Create(path)
		if err != nil {
			result.Err = errors.Wrap(err, "failed to create trace file")
			return result
		}
		defer f.Close()

		tracer = trace.NewWriter(f)
		opts = append(opts, core.WithTracer(tracer))
	}

	c := core.NewCore(h.config.Predictor, opts...)

	// Run simulation and measure time
	start := time.Now()
	if err := h.drive(c, bench, &result); err != nil {
		result.Err = err
	}
	result.WallTime = time.Since(start)

	if tracer != nil {
		if err := tracer.Flush(); err != nil && result.Err == nil {
			result.Err = errors.Wrap(err, "failed to write trace")
		}
	}

	// Collect statistics
	stats := c.Stats()
	result.SimulatedCycles = stats.Control.Cycles
	result.StallCycles = stats.Control.Stalls
	result.PipelineFlushes = stats.Control.Flushes
	result.Redirects = stats.Control.Redirects[pipeline.Slot1] + stats.Control.Redirects[pipeline.Slot2]
	for sel := pipeline.ForwardMemOwn; int(sel) < len(stats.Control.Forwards); sel++ {
		result.Forwards += stats.Control.Forwards[sel]
	}

	// Mispredictions are the redirects driven by the prediction bits that
	// actually travelled down the pipeline, not the table's view at
	// resolution time.
	bpStats := stats.Predictor
	result.BranchResolutions = bpStats.Resolutions
	result.BranchMispredictions = result.Redirects
	if result.BranchResolutions >= result.BranchMispredictions {
		result.BranchCorrect = result.BranchResolutions - result.BranchMispredictions
	}
	if result.BranchResolutions > 0 {
		result.BranchAccuracyPercent = float64(result.BranchCorrect) / float64(result.BranchResolutions) * 100
	}
	result.BTBHitRatePercent = bpStats.BTBHitRate()

	logger.WithFields(logrus.Fields{
		"cycles":   result.SimulatedCycles,
		"accuracy": result.BranchAccuracyPercent,
		"passed":   result.Passed(),
	}).Info("benchmark finished")

	return result
}

// drive replays the benchmark. A strict-mode input violation surfaces as
// an error instead of a panic.
func (h *Harness) drive(c *core.Core, bench Benchmark, result *BenchmarkResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = errors.Wrap(e, "invalid cycle inputs")
				return
			}
			panic(r)
		}
	}()

	if bench.Scenario != nil {
		run := c.Run(bench.Scenario)
		result.Mismatches = run.Mismatches
	}
	if len(bench.Stream) > 0 {
		newStreamDriver(c, bench.Stream).run()
	}
	return nil
}

// PrintResults outputs benchmark results as a table.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	table := tablewriter.NewWriter(h.config.Output)
	table.SetHeader([]string{
		"Benchmark", "Cycles", "Stalls", "Flushes", "Forwards",
		"Branches", "Mispredicts", "Accuracy", "BTB Hits", "Status",
	})

	for _, r := range results {
		status := "ok"
		switch {
		case r.Err != nil:
			status = "error"
		case len(r.Mismatches) > 0:
			status = fmt.Sprintf("%d mismatches", len(r.Mismatches))
		}

		table.Append([]string{
			r.Name,
			fmt.Sprint(r.SimulatedCycles),
			fmt.Sprint(r.StallCycles),
			fmt.Sprint(r.PipelineFlushes),
			fmt.Sprint(r.Forwards),
			fmt.Sprint(r.BranchResolutions),
			fmt.Sprint(r.BranchMispredictions),
			fmt.Sprintf("%.1f%%", r.BranchAccuracyPercent),
			fmt.Sprintf("%.1f%%", r.BTBHitRatePercent),
			status,
		})
	}
	table.Render()

	for _, r := range results {
		if r.Err != nil {
			_, _ = fmt.Fprintf(h.config.Output, "%s: %v\n", r.Name, r.Err)
		}
		for _, m := range r.Mismatches {
			_, _ = fmt.Fprintf(h.config.Output, "%s: %s\n", r.Name, m)
		}
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,stalls,flushes,redirects,forwards,branches,correct,mispredictions,accuracy,btb_hit_rate,mismatches")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%d,%d,%d,%d,%d,%d,%.2f,%.2f,%d\n",
			r.Name,
			r.SimulatedCycles,
			r.StallCycles,
			r.PipelineFlushes,
			r.Redirects,
			r.Forwards,
			r.BranchResolutions,
			r.BranchCorrect,
			r.BranchMispredictions,
			r.BranchAccuracyPercent,
			r.BTBHitRatePercent,
			len(r.Mismatches),
		)
	}
}
