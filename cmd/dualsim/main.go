// Command dualsim replays stimulus scenarios and branch-stream benchmarks
// against the dual-issue control plane and reports its statistics.
//
// Usage:
//
//	dualsim [global flags] run <scenario.yaml>...
//	dualsim [global flags] bench [-csv] [-core]
//	dualsim [global flags] config [-toml]
//
// Example:
//
//	# Compare a direct-mapped predictor against the default
//	dualsim --table set-associative --entries 256 bench
//
//	# Replay scenarios four at a time and keep per-cycle traces
//	dualsim --workers 4 --trace-dir traces run scenarios/*.yaml
package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"

	"github.com/sarchlab/dualsim/benchmarks"
	"github.com/sarchlab/dualsim/timing/config"
	"github.com/sarchlab/dualsim/timing/scenario"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to a JSON or TOML configuration file",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level (panic, fatal, error, warn, info, debug, trace)",
	}
	strictFlag = &cli.BoolFlag{
		Name:  "strict",
		Usage: "Fail on cycles with out-of-range register numbers",
	}
	tableFlag = &cli.StringFlag{
		Name:  "table",
		Usage: "Predictor table: ideal, set-associative or lru",
	}
	entriesFlag = &cli.IntFlag{
		Name:  "entries",
		Usage: "Predictor table capacity",
	}
	assocFlag = &cli.IntFlag{
		Name:  "assoc",
		Usage: "Ways per set of a set-associative table",
	}
	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "Number of scenarios replayed in parallel",
		Value: runtime.NumCPU(),
	}
	traceDirFlag = &cli.StringFlag{
		Name:  "trace-dir",
		Usage: "Directory receiving one cycle trace per scenario",
	}
	csvFlag = &cli.BoolFlag{
		Name:  "csv",
		Usage: "Output results in CSV format",
	}
	coreFlag = &cli.BoolFlag{
		Name:  "core",
		Usage: "Run only the core benchmark set",
	}
	tomlFlag = &cli.BoolFlag{
		Name:  "toml",
		Usage: "Print the configuration as TOML instead of JSON",
	}
	cpuProfileFlag = &cli.StringFlag{
		Name:  "cpuprofile",
		Usage: "Write a CPU profile to file",
	}
)

// profile holds the open CPU profile, if any.
var profile *os.File

func startProfile(ctx *cli.Context) error {
	path := ctx.String(cpuProfileFlag.Name)
	if path == "" {
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "could not create CPU profile")
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "could not start CPU profile")
	}
	profile = f
	return nil
}

func stopProfile(ctx *cli.Context) error {
	if profile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := profile.Close()
	profile = nil
	return err
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "dualsim",
		Usage: "dual-issue pipeline control-plane simulator",
		Flags: []cli.Flag{
			configFlag,
			logLevelFlag,
			strictFlag,
			tableFlag,
			entriesFlag,
			assocFlag,
			workersFlag,
			traceDirFlag,
			cpuProfileFlag,
		},
		Before: startProfile,
		After:  stopProfile,
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Replay scenario files",
				ArgsUsage: "<scenario.yaml>...",
				Action:    runScenarios,
				Flags:     []cli.Flag{csvFlag},
			},
			{
				Name:   "bench",
				Usage:  "Run the built-in microbenchmarks",
				Action: runBenchmarks,
				Flags:  []cli.Flag{csvFlag, coreFlag},
			},
			{
				Name:   "config",
				Usage:  "Print the effective configuration",
				Action: dumpConfig,
				Flags:  []cli.Flag{tomlFlag},
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig builds the effective configuration: defaults, then the
// config file, then command-line overrides.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := ctx.String(configFlag.Name); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if ctx.IsSet(logLevelFlag.Name) {
		cfg.LogLevel = ctx.String(logLevelFlag.Name)
	}
	if ctx.IsSet(strictFlag.Name) {
		cfg.Strict = ctx.Bool(strictFlag.Name)
	}
	if ctx.IsSet(tableFlag.Name) {
		cfg.Predictor.Table = ctx.String(tableFlag.Name)
	}
	if ctx.IsSet(entriesFlag.Name) {
		cfg.Predictor.Entries = ctx.Int(entriesFlag.Name)
	}
	if ctx.IsSet(assocFlag.Name) {
		cfg.Predictor.Associativity = ctx.Int(assocFlag.Name)
	}
	if ctx.IsSet(traceDirFlag.Name) {
		cfg.Trace = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newHarness creates a harness from the effective configuration. Logs go
// to stderr, results to the app's writer.
func newHarness(ctx *cli.Context, cfg *config.Config) (*benchmarks.Harness, error) {
	logger := logrus.New()
	logger.SetOutput(ctx.App.ErrWriter)
	logger.SetLevel(cfg.Level())

	hc := benchmarks.DefaultConfig()
	hc.Predictor = cfg.BranchPredictor()
	hc.Strict = cfg.Strict
	hc.Workers = ctx.Int(workersFlag.Name)
	hc.Output = ctx.App.Writer
	hc.Logger = logger

	if cfg.Trace {
		hc.TraceDir = ctx.String(traceDirFlag.Name)
		if hc.TraceDir == "" {
			hc.TraceDir = "."
		}
		if err := os.MkdirAll(hc.TraceDir, 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create trace directory")
		}
	}

	return benchmarks.NewHarness(hc), nil
}

func report(ctx *cli.Context, h *benchmarks.Harness, results []benchmarks.BenchmarkResult) error {
	if ctx.Bool(csvFlag.Name) {
		h.PrintCSV(results)
	} else {
		h.PrintResults(results)
	}

	failed := 0
	for _, r := range results {
		if !r.Passed() {
			failed++
		}
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d runs failed", failed, len(results)), 1)
	}
	return nil
}

func runScenarios(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return cli.Exit("run: no scenario files given", 2)
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	h, err := newHarness(ctx, cfg)
	if err != nil {
		return err
	}

	for _, path := range ctx.Args().Slice() {
		sc, err := scenario.Load(path)
		if err != nil {
			return err
		}
		h.AddBenchmark(benchmarks.FromScenario(sc))
	}

	results, err := h.RunAll()
	if err != nil {
		return err
	}
	return report(ctx, h, results)
}

func runBenchmarks(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	h, err := newHarness(ctx, cfg)
	if err != nil {
		return err
	}

	if ctx.Bool(coreFlag.Name) {
		h.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		h.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}

	results, err := h.RunAll()
	if err != nil {
		return err
	}
	return report(ctx, h, results)
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	data, err := cfg.Marshal(ctx.Bool(tomlFlag.Name))
	if err != nil {
		return errors.Wrap(err, "failed to serialize config")
	}
	_, err = fmt.Fprintln(ctx.App.Writer, string(data))
	return err
}
