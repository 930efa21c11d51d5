// Package sim implements a discrete-time simulation of miners forming
// coalitions, buying auxiliary compute from an edge provider, and splitting
// block rewards. The model follows the coalition-formation (OCF) /
// Stackelberg-pricing framework: miners play sequential best response over
// STAY/MERGE/SPLIT/LEAVE strategies, the provider optimizes its unit price
// against the coalitions' demand, and blocks arrive as a Poisson process.
package sim

import (
	"fmt"
	"sort"
)

// HashrateDist selects the distribution miner hashrates are sampled from.
type HashrateDist int

const (
	HashrateUniform HashrateDist = iota
	HashrateNormal
	HashrateExponential
)

func (d HashrateDist) String() string {
	switch d {
	case HashrateUniform:
		return "uniform"
	case HashrateNormal:
		return "normal"
	case HashrateExponential:
		return "exponential"
	}
	panic("unknown distribution")
}

// Scenario is the set of feature toggles that distinguishes the named
// experiment configurations. MaxCoalitions is the per-miner membership cap J;
// zero means non-cooperative (every miner mines alone, no formation game).
type Scenario struct {
	Name            string
	MaxCoalitions   int
	ECPEnabled      bool
	BloomFilter     bool
	SmartContract   bool
	ECPOptimization bool
	FastDelivery    bool
	ZKProof         bool
}

var scenarios = []Scenario{
	{Name: "non_cooperative"},
	{Name: "single_coalition", MaxCoalitions: 1, ECPEnabled: true},
	{Name: "multi_coalition_j2", MaxCoalitions: 2, ECPEnabled: true},
	{Name: "multi_coalition_j3_naive", MaxCoalitions: 3, ECPEnabled: true},
	{Name: "enhanced_j3", MaxCoalitions: 3, ECPEnabled: true, BloomFilter: true,
		SmartContract: true, ECPOptimization: true, FastDelivery: true, ZKProof: true},
	{Name: "enhanced_j5", MaxCoalitions: 5, ECPEnabled: true, BloomFilter: true,
		SmartContract: true, ECPOptimization: true, FastDelivery: true, ZKProof: true},
	{Name: "enhanced_j7", MaxCoalitions: 7, ECPEnabled: true, BloomFilter: true,
		SmartContract: true, ECPOptimization: true, FastDelivery: true, ZKProof: true},
}

// ScenarioNames returns the preset names in their canonical order.
func ScenarioNames() []string {
	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.Name
	}
	return names
}

// ScenarioByName resolves a preset. Unknown names are a configuration error
// and must be rejected before any run starts.
func ScenarioByName(name string) (Scenario, error) {
	for _, s := range scenarios {
		if s.Name == name {
			return s, nil
		}
	}
	known := ScenarioNames()
	sort.Strings(known)
	return Scenario{}, fmt.Errorf("unknown scenario %q (known: %v)", name, known)
}

// Config carries every numeric parameter of the simulation. It is immutable
// once handed to an Engine; scenario presets toggle features, Config sets the
// quantities they operate on.
type Config struct {
	// Scenario toggles the feature set under study.
	Scenario Scenario

	// Timing (seconds).
	Timestep         float64
	WarmupPeriod     int
	CollectionPeriod int

	// Statistical analysis.
	NumRuns    int
	Confidence float64

	// Network.
	NumMiners int

	// Blockchain economics.
	BlockReward       float64
	TxPerBlock        int
	TotalTransactions int
	TxFeeMin          float64
	TxFeeMax          float64
	Difficulty        float64

	// Miners.
	HashrateDist          HashrateDist
	HashrateMin           float64
	HashrateMax           float64
	ContextSwitchOverhead float64

	// Provider (ECP).
	ProviderCapacity     float64
	ProviderCost         float64
	ProviderInitialPrice float64
	PriceMin             float64
	PriceMax             float64

	// Stackelberg pricing game.
	PriceLearningRate  float64
	PriceMaxIterations int
	PriceConvergence   float64
	PriceStepDecay     float64

	// Overlap optimization.
	OverlapThreshold     float64
	OverlapSavingsFactor float64

	// Coalition-formation (OCF) game.
	FormationMaxIterations int
	FormationEpsilon       float64
	FormationInterval      int // seconds between formation rounds
	PricingInterval        int // seconds between price updates
	AdmissionTolerance     float64

	// Bandwidth model.
	TransactionSize int // bytes
	BloomFilterBits int
	BloomHashes     int
	NewTxFraction   float64 // share of held txs assumed new per sync period

	// Trust model (applies when the smart-contract toggle is off).
	TrustOverheadFactor float64
	TheftProbability    float64
	TheftAmount         float64

	// Result-delivery latency model (milliseconds).
	WebsocketLatencyMean float64
	WebsocketLatencyStd  float64
	UDPLatencyMean       float64
	UDPLatencyStd        float64
	UDPLossRate          float64

	// ZK-proof join-hesitancy model.
	ZKHesitancyFactor float64

	// Metrics.
	MetricInterval int // seconds between snapshots (and pool refills)

	// Seed fixes the random stream; it is re-applied at the start of every
	// run so runs stay independently reproducible. Zero means unseeded.
	Seed int64
}

// DefaultConfig returns the reference parameterization: 20 miners at
// 100-500 MH/s against a 15 GH difficulty, which yields on the order of ten
// blocks over a 150 s run.
func DefaultConfig() Config {
	return Config{
		Scenario: scenarios[0],

		Timestep:         1.0,
		WarmupPeriod:     50,
		CollectionPeriod: 100,

		NumRuns:    5,
		Confidence: 0.95,

		NumMiners: 20,

		BlockReward:       1000,
		TxPerBlock:        10,
		TotalTransactions: 1000,
		TxFeeMin:          0,
		TxFeeMax:          100,
		Difficulty:        15e9,

		HashrateDist:          HashrateUniform,
		HashrateMin:           100e6,
		HashrateMax:           500e6,
		ContextSwitchOverhead: 0.016,

		ProviderCapacity:     10e9,
		ProviderCost:         0.5,
		ProviderInitialPrice: 200,
		PriceMin:             0,
		PriceMax:             450,

		PriceLearningRate:  0.01,
		PriceMaxIterations: 100,
		PriceConvergence:   0.01,
		PriceStepDecay:     0.95,

		OverlapThreshold:     0.3,
		OverlapSavingsFactor: 0.25,

		FormationMaxIterations: 20,
		FormationEpsilon:       0.01,
		FormationInterval:      50,
		PricingInterval:        50,
		AdmissionTolerance:     0.95,

		TransactionSize: 250,
		BloomFilterBits: 50000,
		BloomHashes:     7,
		NewTxFraction:   0.15,

		TrustOverheadFactor: 0.07,
		TheftProbability:    0.01,
		TheftAmount:         0.20,

		WebsocketLatencyMean: 10.0,
		WebsocketLatencyStd:  3.0,
		UDPLatencyMean:       2.0,
		UDPLatencyStd:        0.5,
		UDPLossRate:          0.02,

		ZKHesitancyFactor: 0.30,

		MetricInterval: 10,
	}
}

// TotalTime is the full per-run horizon in seconds.
func (c Config) TotalTime() int {
	return c.WarmupPeriod + c.CollectionPeriod
}

// Validate fails fast on configuration errors, before any run starts.
func (c Config) Validate() error {
	switch {
	case c.Timestep <= 0:
		return fmt.Errorf("timestep must be positive, got %v", c.Timestep)
	case c.WarmupPeriod < 0 || c.CollectionPeriod <= 0:
		return fmt.Errorf("invalid periods: warmup=%d collection=%d", c.WarmupPeriod, c.CollectionPeriod)
	case c.NumMiners < 1:
		return fmt.Errorf("need at least one miner, got %d", c.NumMiners)
	case c.Confidence <= 0 || c.Confidence >= 1:
		return fmt.Errorf("confidence must be in (0,1), got %v", c.Confidence)
	case c.HashrateMin <= 0 || c.HashrateMax < c.HashrateMin:
		return fmt.Errorf("invalid hashrate range [%v, %v]", c.HashrateMin, c.HashrateMax)
	case c.Difficulty <= 0:
		return fmt.Errorf("difficulty must be positive, got %v", c.Difficulty)
	case c.BlockReward < 0:
		return fmt.Errorf("block reward must be non-negative, got %v", c.BlockReward)
	case c.TxPerBlock < 0 || c.TotalTransactions < 0:
		return fmt.Errorf("invalid transaction counts: perBlock=%d total=%d", c.TxPerBlock, c.TotalTransactions)
	case c.TxFeeMin < 0 || c.TxFeeMax < c.TxFeeMin:
		return fmt.Errorf("invalid fee range [%v, %v]", c.TxFeeMin, c.TxFeeMax)
	case c.PriceMax < c.PriceMin:
		return fmt.Errorf("invalid price band [%v, %v]", c.PriceMin, c.PriceMax)
	case c.ProviderInitialPrice < 0:
		return fmt.Errorf("initial price must be non-negative, got %v", c.ProviderInitialPrice)
	case c.MetricInterval <= 0:
		return fmt.Errorf("metric interval must be positive, got %d", c.MetricInterval)
	case c.FormationInterval <= 0 || c.PricingInterval <= 0:
		return fmt.Errorf("invalid update intervals: formation=%d pricing=%d", c.FormationInterval, c.PricingInterval)
	case c.AdmissionTolerance <= 0 || c.AdmissionTolerance > 1:
		return fmt.Errorf("admission tolerance must be in (0,1], got %v", c.AdmissionTolerance)
	}
	return nil
}

// SweepParam names a configuration quantity a parameter sweep may vary.
type SweepParam string

const (
	SweepECPInitialPrice SweepParam = "ecp_initial_price"
	SweepNumMiners       SweepParam = "num_miners"
	SweepTxPerBlock      SweepParam = "txs_per_block"
	SweepBlockReward     SweepParam = "block_reward"
)

// SweepParams lists the sweepable parameters.
func SweepParams() []SweepParam {
	return []SweepParam{SweepECPInitialPrice, SweepNumMiners, SweepTxPerBlock, SweepBlockReward}
}

// WithParam returns a copy of the config with the swept parameter applied.
// Unknown parameters and nonsensical values are configuration errors.
func (c Config) WithParam(p SweepParam, value float64) (Config, error) {
	switch p {
	case SweepECPInitialPrice:
		if value < c.PriceMin || value > c.PriceMax {
			return c, fmt.Errorf("initial price %v outside band [%v, %v]", value, c.PriceMin, c.PriceMax)
		}
		c.ProviderInitialPrice = value
	case SweepNumMiners:
		if value < 1 {
			return c, fmt.Errorf("miner count %v must be at least 1", value)
		}
		c.NumMiners = int(value)
	case SweepTxPerBlock:
		if value < 0 {
			return c, fmt.Errorf("txs per block %v must be non-negative", value)
		}
		c.TxPerBlock = int(value)
	case SweepBlockReward:
		if value < 0 {
			return c, fmt.Errorf("block reward %v must be non-negative", value)
		}
		c.BlockReward = value
	default:
		return c, fmt.Errorf("unknown sweep parameter %q", p)
	}
	return c, nil
}
