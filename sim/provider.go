package sim

import (
	"fmt"
	"math"
)

// ComputeRequest is one coalition's ask for provider compute in a step.
type ComputeRequest struct {
	Coalition *Coalition
	Requested float64
	Allocated float64
}

// Provider is the compute provider leading the pricing game. It posts a
// price, coalitions respond with demand, and it reallocates capacity each
// step.
type Provider struct {
	Capacity float64
	Load     float64

	Price float64
	Cost  float64

	TotalRevenue float64
	TotalCost    float64
	PriceHistory []float64

	requests []*ComputeRequest

	// TotalDemand accumulates across the run; CurrentDemand is this step only.
	TotalDemand   float64
	CurrentDemand float64

	// membership mirrors coalition rosters for overlap detection.
	membership map[int]map[int]struct{}

	OverlapSavings    float64
	OptimizationCount int

	CurrentUtility float64

	cfg *Config
}

func NewProvider(cfg *Config) *Provider {
	return &Provider{
		Capacity:   cfg.ProviderCapacity,
		Price:      cfg.ProviderInitialPrice,
		Cost:       cfg.ProviderCost,
		membership: map[int]map[int]struct{}{},
		cfg:        cfg,
	}
}

func (p *Provider) String() string {
	return fmt.Sprintf("provider(price=%.6f, load=%.2fGH/s, revenue=%.2f)", p.Price, p.Load/1e9, p.TotalRevenue)
}

// OptimizePrice runs gradient ascent on the provider's profit, probing the
// coalitions' demand response at each candidate price. The step shrinks each
// iteration and the price stays inside the configured band.
func (p *Provider) OptimizePrice(coalitions []*Coalition) {
	if len(coalitions) == 0 {
		return
	}
	const eps = 0.01
	price := clamp(p.Price, p.cfg.PriceMin, p.cfg.PriceMax)
	lr := p.cfg.PriceLearningRate
	for i := 0; i < p.cfg.PriceMaxIterations; i++ {
		here := p.utilityAtPrice(coalitions, price)
		above := p.utilityAtPrice(coalitions, price+eps)
		gradient := (above - here) / eps
		if math.Abs(gradient) < p.cfg.PriceConvergence {
			break
		}
		price += lr * gradient
		price = clamp(price, p.cfg.PriceMin, p.cfg.PriceMax)
		lr *= p.cfg.PriceStepDecay
	}
	p.Price = price
	p.PriceHistory = append(p.PriceHistory, price)
}

func (p *Provider) utilityAtPrice(coalitions []*Coalition, price float64) float64 {
	demand := 0.0
	for _, c := range coalitions {
		demand += c.OptimalComputeDemand(price, p.Cost)
	}
	if demand > p.Capacity {
		demand = p.Capacity
	}
	u := (price - p.Cost) * demand
	if u < 0 {
		return 0
	}
	return u
}

// Allocate grants as much of a request as remaining capacity allows and
// books the revenue and cost at the posted price.
func (p *Provider) Allocate(c *Coalition, amount float64) float64 {
	req := &ComputeRequest{Coalition: c, Requested: amount}
	p.requests = append(p.requests, req)

	available := p.Capacity - p.Load
	if available <= 0 {
		return 0
	}
	allocated := math.Min(amount, available)
	req.Allocated = allocated
	p.Load += allocated
	p.TotalDemand += allocated
	p.CurrentDemand += allocated
	p.TotalRevenue += allocated * p.Price
	p.TotalCost += allocated * p.Cost
	return allocated
}

// ResetLoad clears per-step allocation state. Cumulative demand survives.
func (p *Provider) ResetLoad() {
	p.Load = 0
	p.requests = p.requests[:0]
	p.CurrentDemand = 0
}

func (p *Provider) Requests() []*ComputeRequest { return p.requests }

// UpdateMembership snapshots coalition rosters for overlap detection.
func (p *Provider) UpdateMembership(coalitions []*Coalition) {
	p.membership = map[int]map[int]struct{}{}
	for _, c := range coalitions {
		ids := map[int]struct{}{}
		for _, m := range c.Members() {
			ids[m.ID] = struct{}{}
		}
		p.membership[c.ID] = ids
	}
}

// OptimizeOverlap scans request pairs for coalitions with heavily shared
// membership and books the cost saved by coordinating their work so neither
// pays for duplicate computation. Returns the savings for this step.
func (p *Provider) OptimizeOverlap(requests []*ComputeRequest) float64 {
	if !p.cfg.Scenario.ECPOptimization || len(requests) < 2 {
		return 0
	}
	savings := 0.0
	for i := 0; i < len(requests); i++ {
		for j := i + 1; j < len(requests); j++ {
			ratio := p.overlapRatio(requests[i].Coalition, requests[j].Coalition)
			if ratio < p.cfg.OverlapThreshold {
				continue
			}
			duplicate := math.Min(requests[i].Requested, requests[j].Requested) * ratio
			savings += duplicate * p.Cost * p.cfg.OverlapSavingsFactor
		}
	}
	p.OverlapSavings += savings
	p.OptimizationCount++
	return savings
}

// overlapRatio is shared members over the larger roster.
func (p *Provider) overlapRatio(a, b *Coalition) float64 {
	ma := p.membership[a.ID]
	mb := p.membership[b.ID]
	if len(ma) == 0 || len(mb) == 0 {
		return 0
	}
	shared := 0
	for id := range ma {
		if _, ok := mb[id]; ok {
			shared++
		}
	}
	larger := len(ma)
	if len(mb) > larger {
		larger = len(mb)
	}
	return float64(shared) / float64(larger)
}

// Utility is cumulative profit with overlap savings folded into an effective
// per-unit cost.
func (p *Provider) Utility() float64 {
	cost := p.Cost
	if p.cfg.Scenario.ECPOptimization && p.OverlapSavings > 0 && p.TotalDemand > 0 {
		cost = math.Max(0, cost-p.OverlapSavings/p.TotalDemand)
	}
	u := (p.Price - cost) * p.TotalDemand
	if u < 0 {
		u = 0
	}
	p.CurrentUtility = u
	return u
}

// CapacityUtilization is the fraction of capacity in use this step.
func (p *Provider) CapacityUtilization() float64 {
	if p.Capacity == 0 {
		return 0
	}
	return p.Load / p.Capacity
}

// AveragePrice over the pricing history, falling back to the current price.
func (p *Provider) AveragePrice() float64 {
	if len(p.PriceHistory) == 0 {
		return p.Price
	}
	sum := 0.0
	for _, v := range p.PriceHistory {
		sum += v
	}
	return sum / float64(len(p.PriceHistory))
}
