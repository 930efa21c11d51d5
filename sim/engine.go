package sim

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/montanaflynn/stats"
	exprand "golang.org/x/exp/rand"
)

// Engine drives one scenario: it owns the miners, coalitions, provider, and
// mempool, and advances them in discrete timesteps. A fresh world is built
// for every run; Run repeats and aggregates.
type Engine struct {
	cfg Config
	log *log.Logger

	rng *exprand.Rand

	miners     []*Miner
	coalitions []*Coalition
	provider   *Provider
	delivery   *ResultDelivery
	discount   *RewardDiscount
	bloom      *BloomSync

	// pool is the global mempool, kept in ascending ID order.
	pool            []Transaction
	nextTxID        int
	nextCoalitionID int

	now    float64
	warmup bool

	BlocksFound     int
	TotalRewards    float64
	RewardsWithheld float64

	deliverySum   float64
	deliveryCount int

	snapshots []Snapshot
}

func NewEngine(cfg Config, logger *log.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if logger == nil {
		logger = log.New(os.Stdout, "", 0)
	}
	return &Engine{cfg: cfg, log: logger}, nil
}

func (e *Engine) Config() Config           { return e.cfg }
func (e *Engine) Miners() []*Miner         { return e.miners }
func (e *Engine) Coalitions() []*Coalition { return e.coalitions }
func (e *Engine) Provider() *Provider      { return e.provider }
func (e *Engine) PoolSize() int            { return len(e.pool) }

// Run executes numRuns independent runs and aggregates them. A run that
// fails is logged and skipped; Run errors only when every run failed.
func (e *Engine) Run(numRuns int) (AggregateResult, error) {
	if numRuns <= 0 {
		numRuns = e.cfg.NumRuns
	}
	results := make([]RunResult, 0, numRuns)
	for run := 0; run < numRuns; run++ {
		res, err := e.singleRun(run)
		if err != nil {
			e.log.Printf("scenario=%s run=%d/%d failed err=%v", e.cfg.Scenario.Name, run+1, numRuns, err)
			continue
		}
		e.log.Printf("scenario=%s run=%d/%d blocks=%d rewards=%.2f coalitions=%d",
			e.cfg.Scenario.Name, run+1, numRuns, res.BlocksFound, res.TotalRewards, res.FinalNumCoalitions)
		results = append(results, res)
	}
	if len(results) == 0 {
		return AggregateResult{}, errors.New("all runs failed")
	}
	return Aggregate(e.cfg, results), nil
}

func (e *Engine) singleRun(run int) (res RunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run %d panicked: %v", run, r)
		}
	}()

	e.initialize(run)

	total := e.cfg.TotalTime()
	dt := int(e.cfg.Timestep)
	if dt < 1 {
		dt = 1
	}

	e.warmup = true
	for t := 0; t < e.cfg.WarmupPeriod; t += dt {
		e.step(t)
	}
	e.warmup = false
	for t := e.cfg.WarmupPeriod; t < total; t += dt {
		e.step(t)
		if t%e.cfg.MetricInterval == 0 {
			e.recordMetrics(t)
			e.refillPool()
		}
	}
	return e.finalMetrics(), nil
}

// initialize rebuilds the world for one run. Seeded configs derive a
// distinct per-run stream so runs are independent but reproducible.
func (e *Engine) initialize(run int) {
	seed := e.cfg.Seed
	if seed > 0 {
		seed += int64(run)
	}
	e.rng = NewRand(seed)

	e.miners = make([]*Miner, 0, e.cfg.NumMiners)
	for i := 0; i < e.cfg.NumMiners; i++ {
		e.miners = append(e.miners, NewMiner(i, e.cfg.SampleHashrate(e.rng), &e.cfg))
	}

	e.provider = nil
	if e.cfg.Scenario.ECPEnabled {
		e.provider = NewProvider(&e.cfg)
	}
	e.delivery = NewResultDelivery(&e.cfg, e.rng)
	e.discount = NewRewardDiscount(&e.cfg)
	e.bloom = NewBloomSync(&e.cfg)

	e.coalitions = e.coalitions[:0]
	e.nextCoalitionID = 0
	if e.cfg.Scenario.MaxCoalitions > 0 {
		// Seed a few coalitions so the first formation round has targets
		// instead of everyone splitting solo.
		seeds := e.cfg.NumMiners / 5
		if seeds < 1 {
			seeds = 1
		}
		if seeds > 3 {
			seeds = 3
		}
		order := e.rng.Perm(len(e.miners))
		for i := 0; i < seeds; i++ {
			head := e.miners[order[i]]
			c := NewCoalition(e.nextCoalitionID, head, &e.cfg)
			e.nextCoalitionID++
			head.Join(c)
			e.coalitions = append(e.coalitions, c)
		}
	} else {
		// Non-cooperative: every miner mines in its own solo coalition.
		for _, m := range e.miners {
			c := NewCoalition(e.nextCoalitionID, m, &e.cfg)
			e.nextCoalitionID++
			m.Join(c)
			e.coalitions = append(e.coalitions, c)
		}
	}

	e.pool = make([]Transaction, 0, e.cfg.TotalTransactions)
	e.nextTxID = 0
	for i := 0; i < e.cfg.TotalTransactions; i++ {
		e.pool = append(e.pool, Transaction{ID: e.nextTxID, Fee: e.cfg.SampleFee(e.rng)})
		e.nextTxID++
	}

	e.now = 0
	e.BlocksFound = 0
	e.TotalRewards = 0
	e.RewardsWithheld = 0
	e.deliverySum = 0
	e.deliveryCount = 0
	e.snapshots = e.snapshots[:0]
}

// step advances the world one timestep: formation, transaction flow,
// pricing, compute allocation, block discovery, then provider reset.
func (e *Engine) step(t int) {
	e.now = float64(t)

	if e.cfg.Scenario.MaxCoalitions > 0 && t%e.cfg.FormationInterval == 0 {
		e.runFormation()
	}

	for _, m := range e.miners {
		m.CollectTransactions(e.pool, e.cfg.Timestep, e.rng)
	}
	for _, c := range e.coalitions {
		c.AggregateTransactions()
	}

	if e.provider != nil {
		if t%e.cfg.PricingInterval == 0 {
			e.provider.OptimizePrice(e.coalitions)
		}
		e.requestCompute()
	}

	e.attemptBlockDiscovery()

	if e.provider != nil {
		e.provider.ResetLoad()
	}
}

func (e *Engine) requestCompute() {
	for _, c := range e.coalitions {
		c.ComputePurchased = 0
		demand := c.OptimalComputeDemand(e.provider.Price, e.provider.Cost)
		if demand > 0 {
			c.RequestCompute(e.provider, demand)
		}
	}
	e.provider.OptimizeOverlap(e.provider.Requests())
}

// attemptBlockDiscovery first decides whether the network found a block at
// all, then picks the winner in proportion to effective hashrate.
func (e *Engine) attemptBlockDiscovery() {
	if len(e.coalitions) == 0 || e.cfg.Difficulty <= 0 {
		return
	}
	weights := make([]float64, len(e.coalitions))
	total := 0.0
	for i, c := range e.coalitions {
		weights[i] = c.EffectiveHashrate()
		total += weights[i]
	}
	if total <= 0 {
		return
	}
	rate := total / e.cfg.Difficulty
	prob := 1 - math.Exp(-rate*e.cfg.Timestep)
	if e.rng.Float64() >= prob {
		return
	}
	idx := weightedIndex(e.rng, weights)
	if idx < 0 {
		return
	}
	e.handleBlockFound(e.coalitions[idx])
}

func (e *Engine) handleBlockFound(c *Coalition) {
	txs := c.SelectTransactions(e.cfg.TxPerBlock)
	fees := 0.0
	for _, tx := range txs {
		fees += tx.Fee
	}
	reward := e.cfg.BlockReward + fees

	price := 0.0
	if e.provider != nil {
		price = e.provider.Price
	}
	_, withheld := c.DistributeRewards(reward, price, e.discount, e.rng)

	c.BlocksFound++
	e.BlocksFound++
	e.TotalRewards += reward
	e.RewardsWithheld += withheld

	latency := e.delivery.WebsocketLatency()
	if e.cfg.Scenario.FastDelivery {
		latency = e.delivery.DualLatency()
	}
	if !math.IsInf(latency, 1) {
		e.deliverySum += latency
		e.deliveryCount++
	}

	e.removeMined(txs)

	e.log.Printf("t=%.0f block=%d coalition=%d reward=%.2f txs=%d latency=%.2fms",
		e.now, e.BlocksFound, c.ID, reward, len(txs), latency)
}

// removeMined drops mined transactions from the global pool and from every
// miner's holdings.
func (e *Engine) removeMined(txs []Transaction) {
	if len(txs) == 0 {
		return
	}
	mined := make(map[int]struct{}, len(txs))
	for _, tx := range txs {
		mined[tx.ID] = struct{}{}
	}
	keep := e.pool[:0]
	for _, tx := range e.pool {
		if _, ok := mined[tx.ID]; !ok {
			keep = append(keep, tx)
		}
	}
	e.pool = keep
	for _, m := range e.miners {
		m.ClearTransactions(txs)
	}
}

// refillPool tops the mempool back up to its configured depth, standing in
// for users continuously submitting new transactions.
func (e *Engine) refillPool() {
	for len(e.pool) < e.cfg.TotalTransactions {
		e.pool = append(e.pool, Transaction{ID: e.nextTxID, Fee: e.cfg.SampleFee(e.rng)})
		e.nextTxID++
	}
}

func (e *Engine) recordMetrics(t int) {
	if e.warmup {
		return
	}

	ecpUtility := 0.0
	totalDemand := 0.0
	price := 0.0
	if e.provider != nil {
		ecpUtility = e.provider.Utility()
		totalDemand = e.provider.TotalDemand
		price = e.provider.Price
	}

	memberCounts := make([]int, len(e.coalitions))
	sizeSum := 0
	for i, c := range e.coalitions {
		memberCounts[i] = c.Size()
		sizeSum += c.Size()
	}
	avgSize := 0.0
	if len(e.coalitions) > 0 {
		avgSize = float64(sizeSum) / float64(len(e.coalitions))
	}

	const latencySamples = 8
	ws := make([]float64, 0, latencySamples)
	dual := make([]float64, 0, latencySamples)
	for i := 0; i < latencySamples; i++ {
		if v := e.delivery.WebsocketLatency(); !math.IsInf(v, 1) {
			ws = append(ws, v)
		}
		if v := e.delivery.DualLatency(); !math.IsInf(v, 1) {
			dual = append(dual, v)
		}
	}
	meanWS, _ := stats.Mean(ws)
	meanDual, _ := stats.Mean(dual)

	e.snapshots = append(e.snapshots, Snapshot{
		Time:             float64(t),
		ECPUtility:       ecpUtility,
		SystemUtility:    e.systemUtility(ecpUtility),
		TotalDemand:      totalDemand,
		AvgCoalitionSize: avgSize,
		NumCoalitions:    len(e.coalitions),
		BlocksFound:      e.BlocksFound,
		TotalRewards:     e.TotalRewards,
		ECPPrice:         price,
		BandwidthKB:      e.bandwidth() / 1024,
		WebsocketLatency: meanWS,
		DualLatency:      meanDual,
		ZKWillingness:    e.zkWillingness(),
		MemberCounts:     memberCounts,
	})
}

// systemUtility is provider profit plus the miners' side: net utilities when
// a provider charges for compute, raw earnings when it does not.
func (e *Engine) systemUtility(ecpUtility float64) float64 {
	miners := 0.0
	for _, m := range e.miners {
		if e.provider != nil {
			miners += m.TotalUtility()
		} else {
			miners += m.TotalEarnings
		}
	}
	return ecpUtility + miners
}

// bandwidth totals the per-miner cost of syncing held transactions with
// every coalition the miner belongs to, bloom-optimized when the scenario
// enables it.
func (e *Engine) bandwidth() float64 {
	total := 0.0
	for _, m := range e.miners {
		n := m.MembershipCount()
		held := m.HeldTxCount()
		if n == 0 || held == 0 {
			continue
		}
		if e.cfg.Scenario.BloomFilter {
			newTxs := int(float64(held) * e.cfg.NewTxFraction)
			total += e.bloom.OptimizedBandwidth(n, newTxs, e.cfg.TransactionSize)
		} else {
			total += e.bloom.NaiveBandwidth(held, n, e.cfg.TransactionSize)
		}
	}
	return total
}

// zkWillingness reports the mean join-willingness factor across miners under
// the scenario's privacy setting. It never feeds back into formation.
func (e *Engine) zkWillingness() float64 {
	if len(e.miners) == 0 {
		return 1
	}
	sum := 0.0
	for _, m := range e.miners {
		sum += zkAdjustedWillingness(1, m.MembershipCount(), e.cfg.Scenario.ZKProof, e.cfg.ZKHesitancyFactor)
	}
	return sum / float64(len(e.miners))
}

func (e *Engine) finalMetrics() RunResult {
	res := RunResult{
		Scenario:           e.cfg.Scenario.Name,
		BlocksFound:        e.BlocksFound,
		TotalRewards:       e.TotalRewards,
		RewardsWithheld:    e.RewardsWithheld,
		FinalNumCoalitions: len(e.coalitions),
		Snapshots:          append([]Snapshot(nil), e.snapshots...),
	}
	if e.deliveryCount > 0 {
		res.AvgDeliveryLatency = e.deliverySum / float64(e.deliveryCount)
	}
	if len(e.snapshots) == 0 {
		return res
	}

	ecp := make([]float64, len(e.snapshots))
	sys := make([]float64, len(e.snapshots))
	size := make([]float64, len(e.snapshots))
	demand := make([]float64, len(e.snapshots))
	bw := make([]float64, len(e.snapshots))
	for i, s := range e.snapshots {
		ecp[i] = s.ECPUtility
		sys[i] = s.SystemUtility
		size[i] = s.AvgCoalitionSize
		demand[i] = s.TotalDemand
		bw[i] = s.BandwidthKB
	}
	res.AvgECPUtility, _ = stats.Mean(ecp)
	res.AvgSystemUtility, _ = stats.Mean(sys)
	res.AvgCoalitionSize, _ = stats.Mean(size)
	res.AvgNonceLength, _ = stats.Mean(demand)
	res.AvgBandwidthKB, _ = stats.Mean(bw)
	return res
}
