package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ocfmining/go-coalition-sim/sim"
)

// writeResults exports the aggregated scenario results as a summary CSV, a
// full JSON dump, and one history CSV per scenario run.
func writeResults(dir string, results []sim.AggregateResult) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}

	if err := writeJSON(filepath.Join(dir, "results.json"), results); err != nil {
		return err
	}
	if err := writeSummaryCSV(filepath.Join(dir, "summary.csv"), results); err != nil {
		return err
	}
	for _, agg := range results {
		for i, run := range agg.Runs {
			name := fmt.Sprintf("%s_run%d_history.csv", agg.Scenario, i)
			if err := writeHistoryCSV(filepath.Join(dir, name), run); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}

func writeSummaryCSV(path string, results []sim.AggregateResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"scenario", "num_runs", "blocks_found", "total_rewards", "rewards_withheld",
		"ecp_utility_mean", "ecp_utility_ci_low", "ecp_utility_ci_high",
		"system_utility_mean", "system_utility_ci_low", "system_utility_ci_high",
		"avg_coalition_size", "avg_nonce_length", "avg_bandwidth_kb", "avg_delivery_latency_ms",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			r.Scenario,
			fmt.Sprintf("%d", r.NumRuns),
			fmt.Sprintf("%.2f", r.BlocksFound),
			fmt.Sprintf("%.2f", r.TotalRewards),
			fmt.Sprintf("%.2f", r.RewardsWithheld),
			fmt.Sprintf("%.4f", r.ECPUtility.Mean),
			fmt.Sprintf("%.4f", r.ECPUtility.CILow),
			fmt.Sprintf("%.4f", r.ECPUtility.CIHigh),
			fmt.Sprintf("%.4f", r.SystemUtility.Mean),
			fmt.Sprintf("%.4f", r.SystemUtility.CILow),
			fmt.Sprintf("%.4f", r.SystemUtility.CIHigh),
			fmt.Sprintf("%.4f", r.CoalitionSize.Mean),
			fmt.Sprintf("%.4f", r.NonceLength.Mean),
			fmt.Sprintf("%.4f", r.BandwidthKB.Mean),
			fmt.Sprintf("%.4f", r.DeliveryLatency.Mean),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeHistoryCSV(path string, run sim.RunResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"time", "ecp_utility", "system_utility", "total_nonce_length",
		"avg_coalition_size", "num_coalitions", "blocks_found", "total_rewards",
		"ecp_price", "bandwidth_kb", "websocket_latency_ms", "dual_latency_ms", "zk_willingness",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, s := range run.Snapshots {
		row := []string{
			fmt.Sprintf("%.0f", s.Time),
			fmt.Sprintf("%.4f", s.ECPUtility),
			fmt.Sprintf("%.4f", s.SystemUtility),
			fmt.Sprintf("%.4f", s.TotalDemand),
			fmt.Sprintf("%.4f", s.AvgCoalitionSize),
			fmt.Sprintf("%d", s.NumCoalitions),
			fmt.Sprintf("%d", s.BlocksFound),
			fmt.Sprintf("%.2f", s.TotalRewards),
			fmt.Sprintf("%.4f", s.ECPPrice),
			fmt.Sprintf("%.4f", s.BandwidthKB),
			fmt.Sprintf("%.2f", s.WebsocketLatency),
			fmt.Sprintf("%.2f", s.DualLatency),
			fmt.Sprintf("%.4f", s.ZKWillingness),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// writeSweep exports a sweep as JSON plus a compact per-value CSV.
func writeSweep(dir string, result sim.SweepResult) error {
	if err := writeJSON(filepath.Join(dir, "sweep.json"), result); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, "sweep.csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		string(result.Param), "error",
		"blocks_found", "total_rewards", "ecp_utility_mean", "system_utility_mean",
		"avg_coalition_size", "avg_bandwidth_kb",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, p := range result.Points {
		row := []string{
			fmt.Sprintf("%g", p.Value),
			p.Err,
			fmt.Sprintf("%.2f", p.Result.BlocksFound),
			fmt.Sprintf("%.2f", p.Result.TotalRewards),
			fmt.Sprintf("%.4f", p.Result.ECPUtility.Mean),
			fmt.Sprintf("%.4f", p.Result.SystemUtility.Mean),
			fmt.Sprintf("%.4f", p.Result.CoalitionSize.Mean),
			fmt.Sprintf("%.4f", p.Result.BandwidthKB.Mean),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
