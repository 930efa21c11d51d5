package sim

import (
	"fmt"
	"log"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Snapshot is the world state sampled at one metric interval of one run.
type Snapshot struct {
	Time             float64 `json:"time"`
	ECPUtility       float64 `json:"ecp_utility"`
	SystemUtility    float64 `json:"system_utility"`
	TotalDemand      float64 `json:"total_nonce_length"`
	AvgCoalitionSize float64 `json:"avg_coalition_size"`
	NumCoalitions    int     `json:"num_coalitions"`
	BlocksFound      int     `json:"blocks_found"`
	TotalRewards     float64 `json:"total_rewards"`
	ECPPrice         float64 `json:"ecp_price"`
	BandwidthKB      float64 `json:"bandwidth_kb"`
	WebsocketLatency float64 `json:"websocket_latency_ms"`
	DualLatency      float64 `json:"dual_latency_ms"`
	ZKWillingness    float64 `json:"zk_willingness"`
	MemberCounts     []int   `json:"member_counts"`
}

// RunResult is one run reduced to time-averages, final totals, and its full
// snapshot history.
type RunResult struct {
	Scenario           string     `json:"scenario"`
	BlocksFound        int        `json:"blocks_found"`
	TotalRewards       float64    `json:"total_rewards"`
	RewardsWithheld    float64    `json:"rewards_withheld"`
	AvgECPUtility      float64    `json:"avg_ecp_utility"`
	AvgSystemUtility   float64    `json:"avg_system_utility"`
	AvgCoalitionSize   float64    `json:"avg_coalition_size"`
	AvgNonceLength     float64    `json:"avg_nonce_length"`
	AvgBandwidthKB     float64    `json:"avg_bandwidth_kb"`
	AvgDeliveryLatency float64    `json:"avg_delivery_latency_ms"`
	FinalNumCoalitions int        `json:"final_num_coalitions"`
	Snapshots          []Snapshot `json:"snapshots"`
}

// SummaryStat describes one metric across runs, with a Student's-t
// confidence interval around the mean.
type SummaryStat struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	CILow  float64 `json:"ci_low"`
	CIHigh float64 `json:"ci_high"`
}

// AggregateResult is a scenario's cross-run summary.
type AggregateResult struct {
	Scenario string `json:"scenario"`
	NumRuns  int    `json:"num_runs"`

	ECPUtility      SummaryStat `json:"ecp_utility"`
	SystemUtility   SummaryStat `json:"system_utility"`
	CoalitionSize   SummaryStat `json:"avg_coalition_size"`
	NonceLength     SummaryStat `json:"avg_nonce_length"`
	BandwidthKB     SummaryStat `json:"avg_bandwidth_kb"`
	DeliveryLatency SummaryStat `json:"avg_delivery_latency_ms"`

	BlocksFound     float64 `json:"blocks_found"`
	TotalRewards    float64 `json:"total_rewards"`
	RewardsWithheld float64 `json:"rewards_withheld"`

	Runs []RunResult `json:"runs"`
}

// Aggregate reduces per-run results to cross-run statistics. Order of the
// input does not matter.
func Aggregate(cfg Config, runs []RunResult) AggregateResult {
	n := len(runs)
	agg := AggregateResult{
		Scenario: cfg.Scenario.Name,
		NumRuns:  n,
		Runs:     runs,
	}
	if n == 0 {
		return agg
	}

	pick := func(f func(RunResult) float64) []float64 {
		vals := make([]float64, n)
		for i, r := range runs {
			vals[i] = f(r)
		}
		return vals
	}

	agg.ECPUtility = summarize(pick(func(r RunResult) float64 { return r.AvgECPUtility }), cfg.Confidence)
	agg.SystemUtility = summarize(pick(func(r RunResult) float64 { return r.AvgSystemUtility }), cfg.Confidence)
	agg.CoalitionSize = summarize(pick(func(r RunResult) float64 { return r.AvgCoalitionSize }), cfg.Confidence)
	agg.NonceLength = summarize(pick(func(r RunResult) float64 { return r.AvgNonceLength }), cfg.Confidence)
	agg.BandwidthKB = summarize(pick(func(r RunResult) float64 { return r.AvgBandwidthKB }), cfg.Confidence)
	agg.DeliveryLatency = summarize(pick(func(r RunResult) float64 { return r.AvgDeliveryLatency }), cfg.Confidence)

	for _, r := range runs {
		agg.BlocksFound += float64(r.BlocksFound)
		agg.TotalRewards += r.TotalRewards
		agg.RewardsWithheld += r.RewardsWithheld
	}
	agg.BlocksFound /= float64(n)
	agg.TotalRewards /= float64(n)
	agg.RewardsWithheld /= float64(n)

	return agg
}

func summarize(values []float64, confidence float64) SummaryStat {
	s := SummaryStat{}
	if len(values) == 0 {
		return s
	}
	s.Mean, _ = stats.Mean(values)
	s.Std, _ = stats.StandardDeviationPopulation(values)
	s.Min, _ = stats.Min(values)
	s.Max, _ = stats.Max(values)
	s.CILow, s.CIHigh = confidenceInterval(values, confidence)
	return s
}

// confidenceInterval is the two-sided Student's-t interval around the mean.
// Fewer than two values gives a degenerate interval at the mean.
func confidenceInterval(values []float64, confidence float64) (low, high float64) {
	mean, _ := stats.Mean(values)
	n := len(values)
	if n < 2 {
		return mean, mean
	}
	sd, _ := stats.StandardDeviationSample(values)
	stderr := sd / math.Sqrt(float64(n))

	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	margin := t.Quantile((1+confidence)/2) * stderr
	return mean - margin, mean + margin
}

// Improvement is the percentage change of value over baseline.
func Improvement(baseline, value float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (value - baseline) / baseline * 100
}

// SweepPoint holds the outcome for one swept value. Err is set when every
// run at that value failed.
type SweepPoint struct {
	Value  float64         `json:"value"`
	Result AggregateResult `json:"result"`
	Err    string          `json:"error,omitempty"`
}

// SweepResult keys aggregate results by swept value, in input order.
type SweepResult struct {
	Param  SweepParam   `json:"param"`
	Points []SweepPoint `json:"points"`
}

// Failed counts the sweep values whose runs all failed.
func (s SweepResult) Failed() int {
	n := 0
	for _, p := range s.Points {
		if p.Err != "" {
			n++
		}
	}
	return n
}

// RunSweep runs a full batch per value of the swept parameter. A value whose
// batch fails is recorded and skipped; the sweep itself errors only on a bad
// parameter name or bound.
func RunSweep(cfg Config, param SweepParam, values []float64, logger *log.Logger) (SweepResult, error) {
	out := SweepResult{Param: param, Points: make([]SweepPoint, 0, len(values))}
	for _, v := range values {
		pointCfg, err := cfg.WithParam(param, v)
		if err != nil {
			return SweepResult{}, fmt.Errorf("sweep %s=%v: %w", param, v, err)
		}
		engine, err := NewEngine(pointCfg, logger)
		if err != nil {
			return SweepResult{}, fmt.Errorf("sweep %s=%v: %w", param, v, err)
		}
		agg, err := engine.Run(pointCfg.NumRuns)
		point := SweepPoint{Value: v, Result: agg}
		if err != nil {
			point.Err = err.Error()
		}
		out.Points = append(out.Points, point)
	}
	return out, nil
}
