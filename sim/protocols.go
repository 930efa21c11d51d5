package sim

import (
	"hash/fnv"
	"math"
	"strconv"

	"github.com/montanaflynn/stats"
	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// BloomSync models transaction synchronization via a Bloom filter: peers
// exchange a compact filter first and then ship only the transactions the
// filter does not already cover. The filter itself is real (double-hashed
// FNV over a fixed bit array), the bandwidth model is analytic.
type BloomSync struct {
	bits   []uint64
	nbits  int
	hashes int
}

func NewBloomSync(cfg *Config) *BloomSync {
	n := cfg.BloomFilterBits
	if n <= 0 {
		n = 1
	}
	return &BloomSync{
		bits:   make([]uint64, (n+63)/64),
		nbits:  n,
		hashes: cfg.BloomHashes,
	}
}

func (b *BloomSync) indices(id int) (uint32, uint32) {
	key := strconv.Itoa(id)
	h1 := fnv.New32a()
	h1.Write([]byte(key))
	h2 := fnv.New32()
	h2.Write([]byte(key))
	return h1.Sum32(), h2.Sum32()
}

func (b *BloomSync) Add(id int) {
	a, c := b.indices(id)
	for i := 0; i < b.hashes; i++ {
		pos := (uint(a) + uint(i)*uint(c)) % uint(b.nbits)
		b.bits[pos/64] |= 1 << (pos % 64)
	}
}

// Contains may report false positives but never false negatives.
func (b *BloomSync) Contains(id int) bool {
	a, c := b.indices(id)
	for i := 0; i < b.hashes; i++ {
		pos := (uint(a) + uint(i)*uint(c)) % uint(b.nbits)
		if b.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// Missing filters out the IDs the remote filter probably already has.
func (b *BloomSync) Missing(ids []int) []int {
	var missing []int
	for _, id := range ids {
		if !b.Contains(id) {
			missing = append(missing, id)
		}
	}
	return missing
}

// FilterBytes is the wire size of the filter.
func (b *BloomSync) FilterBytes() int { return (b.nbits + 7) / 8 }

// NaiveBandwidth is the cost of pushing every held transaction to every
// coalition the miner belongs to.
func (b *BloomSync) NaiveBandwidth(numTxs, numCoalitions, txSize int) float64 {
	return float64(numTxs * numCoalitions * txSize)
}

// OptimizedBandwidth is one filter per coalition plus only the new
// transactions.
func (b *BloomSync) OptimizedBandwidth(numCoalitions, numNewTxs, txSize int) float64 {
	return float64(b.FilterBytes()*numCoalitions + numNewTxs*txSize)
}

// Savings is the fractional bandwidth reduction of the filter approach.
func (b *BloomSync) Savings(numTxs, numCoalitions, numNewTxs, txSize int) float64 {
	naive := b.NaiveBandwidth(numTxs, numCoalitions, txSize)
	if naive == 0 {
		return 0
	}
	s := (naive - b.OptimizedBandwidth(numCoalitions, numNewTxs, txSize)) / naive
	return clamp(s, 0, 1)
}

// RewardDiscount is the cost of trust-based payouts: a flat overhead plus a
// small chance the coordinator skims part of the pot. A contract-enforced
// distribution pays in full, modeled as a nil discount.
type RewardDiscount struct {
	Overhead    float64
	TheftProb   float64
	TheftAmount float64
}

// NewRewardDiscount returns the discount for the scenario, nil when the
// smart contract makes payouts trustless.
func NewRewardDiscount(cfg *Config) *RewardDiscount {
	if cfg.Scenario.SmartContract {
		return nil
	}
	return &RewardDiscount{
		Overhead:    cfg.TrustOverheadFactor,
		TheftProb:   cfg.TheftProbability,
		TheftAmount: cfg.TheftAmount,
	}
}

// Apply returns the amount that actually reaches the members and how much
// the trust model ate.
func (d *RewardDiscount) Apply(amount float64, rng *exprand.Rand) (net, withheld float64) {
	if amount <= 0 {
		return amount, 0
	}
	net = amount * (1 - d.Overhead)
	if rng.Float64() < d.TheftProb {
		net -= net * d.TheftAmount
	}
	return net, amount - net
}

// ResultDelivery samples per-protocol latencies for shipping computed
// results back to coalitions. Dual-channel sends on both and the first
// arrival wins.
type ResultDelivery struct {
	websocket distuv.Normal
	udp       distuv.Normal
	lossRate  float64
	rng       *exprand.Rand
}

func NewResultDelivery(cfg *Config, rng *exprand.Rand) *ResultDelivery {
	return &ResultDelivery{
		websocket: distuv.Normal{Mu: cfg.WebsocketLatencyMean, Sigma: cfg.WebsocketLatencyStd, Src: rng},
		udp:       distuv.Normal{Mu: cfg.UDPLatencyMean, Sigma: cfg.UDPLatencyStd, Src: rng},
		lossRate:  cfg.UDPLossRate,
		rng:       rng,
	}
}

func (r *ResultDelivery) WebsocketLatency() float64 { return r.websocket.Rand() }

// UDPLatency returns +Inf when the packet is lost.
func (r *ResultDelivery) UDPLatency() float64 {
	if r.rng.Float64() < r.lossRate {
		return math.Inf(1)
	}
	return r.udp.Rand()
}

func (r *ResultDelivery) DualLatency() float64 {
	return math.Min(r.UDPLatency(), r.WebsocketLatency())
}

// LatencyReduction estimates the percentage improvement of dual-channel
// delivery over websocket-only, across the given sample count.
func (r *ResultDelivery) LatencyReduction(samples int) float64 {
	if samples <= 0 {
		return 0
	}
	ws := make([]float64, 0, samples)
	dual := make([]float64, 0, samples)
	for i := 0; i < samples; i++ {
		if v := r.WebsocketLatency(); !math.IsInf(v, 1) {
			ws = append(ws, v)
		}
		if v := r.DualLatency(); !math.IsInf(v, 1) {
			dual = append(dual, v)
		}
	}
	meanWS, err := stats.Mean(ws)
	if err != nil || meanWS == 0 {
		return 0
	}
	meanDual, err := stats.Mean(dual)
	if err != nil {
		return 0
	}
	return (meanWS - meanDual) / meanWS * 100
}

// zkAdjustedWillingness discounts the utility a multi-homed miner expects
// from joining yet another coalition: without zero-knowledge membership
// proofs the miner hesitates to expose its roster again.
func zkAdjustedWillingness(base float64, memberships int, usingZK bool, hesitancy float64) float64 {
	if usingZK || memberships == 0 {
		return base
	}
	return base * (1 - hesitancy)
}
