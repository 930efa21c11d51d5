package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ocfmining/go-coalition-sim/sim"
)

var (
	scenarioName = flag.String("scenario", "single_coalition", "scenario preset to run")
	runAll       = flag.Bool("all", false, "run every scenario preset and compare")
	numRuns      = flag.Int("runs", 0, "runs per scenario (0 = config default)")
	seed         = flag.Int64("seed", 0, "base rng seed (0 = time-based)")
	sweepName    = flag.String("sweep", "", "parameter to sweep instead of a plain run")
	sweepValues  = flag.String("sweep-values", "", "comma-separated sweep values (default per parameter)")
	outDir       = flag.String("out", "out", "output directory")
	makePlots    = flag.Bool("plots", true, "write figures alongside the data")
)

var defaultSweepValues = map[sim.SweepParam][]float64{
	sim.SweepECPInitialPrice: {50, 100, 150, 200, 250, 300, 350, 400},
	sim.SweepNumMiners:       {10, 15, 20, 25, 30, 40},
	sim.SweepTxPerBlock:      {5, 10, 15, 20},
	sim.SweepBlockReward:     {500, 1000, 1500, 2000},
}

func main() {
	flag.Parse()
	logger := log.New(os.Stdout, "", 0)

	if *sweepName != "" {
		if err := runSweep(logger); err != nil {
			logger.Fatalln("sweep errored:", err)
		}
		return
	}

	names := []string{*scenarioName}
	if *runAll {
		names = sim.ScenarioNames()
	}

	results := make([]sim.AggregateResult, 0, len(names))
	for _, name := range names {
		agg, err := runScenario(logger, name)
		if err != nil {
			logger.Fatalf("scenario=%s errored: %v", name, err)
		}
		results = append(results, agg)
	}

	if err := writeResults(filepath.Join(*outDir, "results"), results); err != nil {
		logger.Fatalln("export errored:", err)
	}

	if *runAll {
		printComparison(logger, results)
	}
}

func baseConfig(name string) (sim.Config, error) {
	cfg := sim.DefaultConfig()
	sc, err := sim.ScenarioByName(name)
	if err != nil {
		return cfg, err
	}
	cfg.Scenario = sc
	if *numRuns > 0 {
		cfg.NumRuns = *numRuns
	}
	cfg.Seed = *seed
	return cfg, nil
}

func runScenario(logger *log.Logger, name string) (sim.AggregateResult, error) {
	cfg, err := baseConfig(name)
	if err != nil {
		return sim.AggregateResult{}, err
	}

	logger.Printf("scenario=%s runs=%d miners=%d seed=%d", name, cfg.NumRuns, cfg.NumMiners, cfg.Seed)

	engine, err := sim.NewEngine(cfg, logger)
	if err != nil {
		return sim.AggregateResult{}, err
	}
	agg, err := engine.Run(cfg.NumRuns)
	if err != nil {
		return sim.AggregateResult{}, err
	}

	logger.Printf("scenario=%s blocks=%.1f rewards=%.2f ecp_utility=%.2f [%.2f, %.2f] system_utility=%.2f coalition_size=%.2f bandwidth_kb=%.2f",
		name, agg.BlocksFound, agg.TotalRewards,
		agg.ECPUtility.Mean, agg.ECPUtility.CILow, agg.ECPUtility.CIHigh,
		agg.SystemUtility.Mean, agg.CoalitionSize.Mean, agg.BandwidthKB.Mean)

	if *makePlots {
		dir := filepath.Join(*outDir, name)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return sim.AggregateResult{}, err
		}
		plotScenario(dir, agg)
		if len(agg.Runs) > 0 {
			drawMembershipTimeline(filepath.Join(dir, "membership.png"), agg.Runs[0])
		}
	}
	return agg, nil
}

// sweepValueList returns the values for one sweep run: the parsed -sweep-values
// list when given, else the parameter's defaults. The defaults are shared, so
// the parsed list is always a fresh slice.
func sweepValueList(param sim.SweepParam, raw string) ([]float64, error) {
	if raw == "" {
		return defaultSweepValues[param], nil
	}
	var values []float64
	for _, s := range strings.Split(raw, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("bad sweep value %q: %w", s, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func runSweep(logger *log.Logger) error {
	param := sim.SweepParam(*sweepName)
	values, err := sweepValueList(param, *sweepValues)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("no values for sweep parameter %q (known: %v)", param, sim.SweepParams())
	}

	cfg, err := baseConfig(*scenarioName)
	if err != nil {
		return err
	}

	logger.Printf("sweep=%s scenario=%s values=%v", param, cfg.Scenario.Name, values)
	result, err := sim.RunSweep(cfg, param, values, logger)
	if err != nil {
		return err
	}
	if n := result.Failed(); n > 0 {
		logger.Printf("sweep=%s failed_values=%d/%d", param, n, len(values))
	}

	dir := filepath.Join(*outDir, "sweep_"+string(param))
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}
	if err := writeSweep(dir, result); err != nil {
		return err
	}
	if *makePlots {
		plotSweep(dir, result)
	}
	return nil
}

// printComparison reports each scenario against the first as a baseline.
func printComparison(logger *log.Logger, results []sim.AggregateResult) {
	if len(results) < 2 {
		return
	}
	base := results[0]
	logger.Printf("baseline=%s system_utility=%.2f bandwidth_kb=%.2f", base.Scenario, base.SystemUtility.Mean, base.BandwidthKB.Mean)
	for _, r := range results[1:] {
		logger.Printf("scenario=%s system_utility=%+.1f%% ecp_utility=%.2f bandwidth_kb=%+.1f%% coalition_size=%.2f",
			r.Scenario,
			sim.Improvement(base.SystemUtility.Mean, r.SystemUtility.Mean),
			r.ECPUtility.Mean,
			sim.Improvement(base.BandwidthKB.Mean, r.BandwidthKB.Mean),
			r.CoalitionSize.Mean)
	}
}
