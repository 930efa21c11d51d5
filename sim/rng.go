package sim

import (
	"time"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// NewRand builds the random source a run draws from. A positive seed makes
// the stream reproducible; zero or negative seeds fall back to wall-clock
// entropy, making runs irreproducible by design.
func NewRand(seed int64) *exprand.Rand {
	if seed <= 0 {
		return exprand.New(exprand.NewSource(uint64(time.Now().UnixNano())))
	}
	return exprand.New(exprand.NewSource(uint64(seed)))
}

// SampleHashrate draws one miner hashrate from the configured distribution,
// clamped into [HashrateMin, HashrateMax].
func (c Config) SampleHashrate(rng *exprand.Rand) float64 {
	var h float64
	switch c.HashrateDist {
	case HashrateNormal:
		mean := (c.HashrateMin + c.HashrateMax) / 2
		std := (c.HashrateMax - c.HashrateMin) / 6 // 99.7% of mass inside the range
		h = distuv.Normal{Mu: mean, Sigma: std, Src: rng}.Rand()
	case HashrateExponential:
		h = distuv.Exponential{Rate: 1.0 / c.HashrateMin, Src: rng}.Rand()
	default:
		h = distuv.Uniform{Min: c.HashrateMin, Max: c.HashrateMax, Src: rng}.Rand()
	}
	return clamp(h, c.HashrateMin, c.HashrateMax)
}

// SampleFee draws one transaction fee, uniform in [TxFeeMin, TxFeeMax].
func (c Config) SampleFee(rng *exprand.Rand) float64 {
	return distuv.Uniform{Min: c.TxFeeMin, Max: c.TxFeeMax, Src: rng}.Rand()
}

// weightedIndex picks an index with probability proportional to its weight
// using cumulative-weight sampling. It returns -1 when the list is empty or
// the total weight is zero (or negative): no zero-weight entry can win.
func weightedIndex(rng *exprand.Rand, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if len(weights) == 0 || total <= 0 {
		return -1
	}
	needle := rng.Float64() * total
	cum := 0.0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cum += w
		if needle < cum {
			return i
		}
	}
	// Float round-off can leave needle == total; the last positive weight wins.
	for i := len(weights) - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return i
		}
	}
	return -1
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
