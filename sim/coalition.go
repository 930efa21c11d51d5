package sim

import (
	"fmt"
	"sort"

	exprand "golang.org/x/exp/rand"
)

// Coalition is a mutable group of miners that jointly compute, pool
// transactions, and split rewards. The first member acts as head
// (coordinator); when the head leaves, the first remaining member takes
// over.
type Coalition struct {
	ID int

	members []*Miner
	head    *Miner

	// pool is the deduplicated union of member transactions, rebuilt every
	// timestep.
	pool []Transaction

	BlocksFound    int
	TotalRewards   float64
	RewardsHistory []float64

	// Compute bought from the provider this step, and the cumulative cost.
	ComputePurchased float64
	ComputeCostPaid  float64

	// expectedRewards is the baseline used by admission and allocation
	// decisions.
	expectedRewards float64

	CurrentUtility float64
	UtilityHistory []float64

	cfg *Config
}

func NewCoalition(id int, head *Miner, cfg *Config) *Coalition {
	c := &Coalition{
		ID:              id,
		expectedRewards: cfg.BlockReward,
		cfg:             cfg,
	}
	if head != nil {
		c.members = append(c.members, head)
		c.head = head
	}
	return c
}

func (c *Coalition) String() string {
	return fmt.Sprintf("coalition(%d, members=%d, blocks=%d)", c.ID, len(c.members), c.BlocksFound)
}

func (c *Coalition) Members() []*Miner { return c.members }
func (c *Coalition) Size() int         { return len(c.members) }
func (c *Coalition) Head() *Miner      { return c.head }

func (c *Coalition) HasMember(m *Miner) bool {
	for _, mm := range c.members {
		if mm.ID == m.ID {
			return true
		}
	}
	return false
}

// MemberIDs returns the member identifiers in membership order.
func (c *Coalition) MemberIDs() []int {
	ids := make([]int, len(c.members))
	for i, m := range c.members {
		ids[i] = m.ID
	}
	return ids
}

// AddMember admits a miner, subject to the no-member-worse-off check for
// non-empty coalitions. The first member always enters and becomes head.
func (c *Coalition) AddMember(m *Miner) bool {
	if c.HasMember(m) {
		return false
	}
	if len(c.members) > 0 && !c.Admits(m) {
		return false
	}
	c.members = append(c.members, m)
	if c.head == nil {
		c.head = m
	}
	return true
}

// RemoveMember drops a miner, re-electing the first remaining member as head
// if needed.
func (c *Coalition) RemoveMember(m *Miner) bool {
	for i, mm := range c.members {
		if mm.ID == m.ID {
			c.members = append(c.members[:i], c.members[i+1:]...)
			if c.head != nil && c.head.ID == m.ID {
				if len(c.members) > 0 {
					c.head = c.members[0]
				} else {
					c.head = nil
				}
			}
			return true
		}
	}
	return false
}

// Admits verifies that no existing member would be worse off if the miner
// joined. Each member's projected share of a projected expected-reward
// baseline -- scaled up in proportion to the hashrate the newcomer brings --
// must stay within the configured tolerance of its current share-based
// utility. A coalition with no members always admits its first.
func (c *Coalition) Admits(newcomer *Miner) bool {
	if len(c.members) == 0 {
		return true
	}
	currentWork := c.TotalWork()
	if currentWork == 0 {
		return true
	}
	projectedWork := currentWork + newcomer.PotentialWork(c)
	if projectedWork == 0 {
		return false
	}

	currentExpected := c.expectedRewards
	if currentExpected <= 0 {
		currentExpected = c.cfg.BlockReward
	}
	currentHashrate := c.TotalHashrate()
	scale := 2.0 // conservative when the coalition has no hashrate on record
	if currentHashrate > 0 {
		scale = (currentHashrate + newcomer.Hashrate) / currentHashrate
	}
	projectedExpected := currentExpected * scale

	const eps = 1e-6
	for _, member := range c.members {
		work := member.WorkContribution(c)
		currentUtility := work / currentWork * currentExpected
		projectedUtility := work / projectedWork * projectedExpected
		if projectedUtility < currentUtility*c.cfg.AdmissionTolerance-eps {
			return false
		}
	}
	return true
}

// AggregateTransactions rebuilds the coalition pool as the union of member
// transactions, deduplicated by ID.
func (c *Coalition) AggregateTransactions() {
	c.pool = c.pool[:0]
	seen := map[int]struct{}{}
	for _, m := range c.members {
		for _, tx := range m.Transactions() {
			if _, ok := seen[tx.ID]; ok {
				continue
			}
			seen[tx.ID] = struct{}{}
			c.pool = append(c.pool, tx)
		}
	}
}

func (c *Coalition) PoolSize() int { return len(c.pool) }

// SelectTransactions greedily picks the highest-fee transactions up to the
// per-block capacity. Ties break toward the lower ID so runs stay
// reproducible.
func (c *Coalition) SelectTransactions(max int) []Transaction {
	if max <= 0 || len(c.pool) == 0 {
		return nil
	}
	sorted := make([]Transaction, len(c.pool))
	copy(sorted, c.pool)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Fee != sorted[j].Fee {
			return sorted[i].Fee > sorted[j].Fee
		}
		return sorted[i].ID < sorted[j].ID
	})
	if max > len(sorted) {
		max = len(sorted)
	}
	return sorted[:max]
}

// DistributeRewards splits a block's value among members in proportion to
// work contribution. The net amount is the gross reward minus the provider
// compute bill, run through the trust/theft discount. It returns the sum
// actually paid out and the amount the discount withheld.
func (c *Coalition) DistributeRewards(reward, providerPrice float64, discount *RewardDiscount, rng *exprand.Rand) (distributed, withheld float64) {
	totalWork := c.TotalWork()
	if totalWork == 0 {
		return 0, 0
	}

	computeCost := providerPrice * c.ComputePurchased
	net := reward - computeCost
	if discount != nil {
		net, withheld = discount.Apply(net, rng)
	}
	if net <= 0 {
		return 0, withheld
	}

	totalUtility := 0.0
	for _, m := range c.members {
		share := m.WorkContribution(c) / totalWork
		payout := share * net
		m.ReceiveReward(payout)
		m.UpdateUtility(payout)
		distributed += payout
		totalUtility += payout
	}

	c.TotalRewards += reward
	c.RewardsHistory = append(c.RewardsHistory, reward)
	c.ComputeCostPaid += computeCost
	c.CurrentUtility = totalUtility
	c.UtilityHistory = append(c.UtilityHistory, totalUtility)
	return distributed, withheld
}

// OptimalComputeDemand is the coalition's closed-form best response to a
// provider price: zero when the price exceeds half the expected reward,
// otherwise a share of its own work that shrinks as the coalition grows,
// clipped so the implied bill stays under 20% of expected rewards.
func (c *Coalition) OptimalComputeDemand(price, cost float64) float64 {
	if price > c.expectedRewards*0.5 {
		return 0
	}
	work := c.TotalWork()
	if work == 0 {
		return 0
	}
	n := float64(c.Size())
	demand := work * 0.5 / (1 + (n-1)*0.1)

	benefit := c.expectedRewards * 0.2
	if demand*price > benefit {
		if price > 0 {
			demand = benefit / price
		} else {
			demand = 0
		}
	}
	if demand < 0 {
		return 0
	}
	return demand
}

// RequestCompute asks the provider for an allocation and records what was
// actually granted for this step.
func (c *Coalition) RequestCompute(p *Provider, amount float64) {
	c.ComputePurchased = p.Allocate(c, amount)
}

// TotalWork sums the members' effective contributions.
func (c *Coalition) TotalWork() float64 {
	total := 0.0
	for _, m := range c.members {
		total += m.WorkContribution(c)
	}
	return total
}

// TotalHashrate sums the members' raw hashrates, ignoring allocation.
func (c *Coalition) TotalHashrate() float64 {
	total := 0.0
	for _, m := range c.members {
		total += m.Hashrate
	}
	return total
}

// EffectiveHashrate is member work plus purchased provider compute.
func (c *Coalition) EffectiveHashrate() float64 {
	return c.TotalWork() + c.ComputePurchased
}

func (c *Coalition) ExpectedRewards() float64 { return c.expectedRewards }

// ExpectedMemberUtility is a member's share of the expected-reward baseline.
func (c *Coalition) ExpectedMemberUtility(m *Miner) float64 {
	totalWork := c.TotalWork()
	if totalWork == 0 {
		return 0
	}
	u := m.WorkContribution(c) / totalWork * c.expectedRewards
	if u < 0 {
		return 0
	}
	return u
}

// expectedUtilityFor projects the baseline share a contribution of the given
// size would earn, on top of the current membership's work.
func (c *Coalition) expectedUtilityFor(work float64) float64 {
	denom := c.TotalWork() + work
	if denom == 0 {
		return 0
	}
	return work / denom * c.expectedRewards
}
