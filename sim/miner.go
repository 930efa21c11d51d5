package sim

import (
	"fmt"
	"sort"

	exprand "golang.org/x/exp/rand"
)

// Transaction is a fee-bearing unit of work. Identity is the ID alone; two
// transactions with the same ID are the same transaction.
type Transaction struct {
	ID  int
	Fee float64
}

func (t Transaction) String() string {
	return fmt.Sprintf("tx(%d, fee=%0.2f)", t.ID, t.Fee)
}

// Cold-start reward estimation for MERGE evaluation, used before a coalition
// has an expected-rewards baseline of its own.
const (
	estNetworkHashrate = 4e9    // ~20 miners at ~200 MH/s
	estBlocksPerEpoch  = 12.0   // over a 100 s collection window
	estRewardPerBlock  = 2000.0 // block reward plus typical fees
	estDiversification = 0.10   // expected-reward boost per extra membership

	// A miner with no memberships must merge, not fragment: splitting from
	// nothing is priced below any attainable utility.
	splitUtilityUnaffiliated = -1000.0
	splitUtilityFactor       = 0.1
)

// Miner owns raw hashrate, a set of collected transactions, an ordered list
// of coalition memberships with a time-allocation split, and running
// earnings/utility totals. Entities are built fresh for every run.
type Miner struct {
	ID       int
	Hashrate float64

	// CollectRate is transactions gathered per second, proportional to
	// hashrate (1 tx per MH/s).
	CollectRate int

	coalitions []*Coalition
	allocation map[int]float64 // coalition ID -> fraction of time

	txs map[int]Transaction

	TotalEarnings   float64
	EarningsHistory []float64
	CurrentUtility  float64
	UtilityHistory  []float64

	cfg *Config
}

func NewMiner(id int, hashrate float64, cfg *Config) *Miner {
	return &Miner{
		ID:          id,
		Hashrate:    hashrate,
		CollectRate: int(hashrate / 1e6),
		allocation:  map[int]float64{},
		txs:         map[int]Transaction{},
		cfg:         cfg,
	}
}

func (m *Miner) String() string {
	return fmt.Sprintf("miner(%d, %0.1fMH/s, memberships=%d)", m.ID, m.Hashrate/1e6, len(m.coalitions))
}

// Memberships returns the miner's coalitions in join order.
func (m *Miner) Memberships() []*Coalition { return m.coalitions }

func (m *Miner) MembershipCount() int { return len(m.coalitions) }

func (m *Miner) InCoalition(c *Coalition) bool {
	for _, cc := range m.coalitions {
		if cc.ID == c.ID {
			return true
		}
	}
	return false
}

// Join records a membership and recomputes the time split. It does not run
// the coalition's admission check; callers go through Coalition.AddMember.
func (m *Miner) Join(c *Coalition) bool {
	if m.InCoalition(c) {
		return false
	}
	m.coalitions = append(m.coalitions, c)
	m.reallocate()
	return true
}

// Leave drops a membership and recomputes the time split.
func (m *Miner) Leave(c *Coalition) bool {
	for i, cc := range m.coalitions {
		if cc.ID == c.ID {
			m.coalitions = append(m.coalitions[:i], m.coalitions[i+1:]...)
			delete(m.allocation, c.ID)
			m.reallocate()
			return true
		}
	}
	return false
}

// reallocate splits the miner's time across memberships in proportion to the
// expected member utility each coalition offers, falling back to an equal
// split when every expectation is zero. Fractions always sum to 1 for a
// miner with memberships; the map is empty otherwise.
func (m *Miner) reallocate() {
	if len(m.coalitions) == 0 {
		m.allocation = map[int]float64{}
		return
	}
	if len(m.coalitions) == 1 {
		m.allocation = map[int]float64{m.coalitions[0].ID: 1.0}
		return
	}
	utilities := make(map[int]float64, len(m.coalitions))
	total := 0.0
	for _, c := range m.coalitions {
		u := c.ExpectedMemberUtility(m)
		if u < 0 {
			u = 0
		}
		utilities[c.ID] = u
		total += u
	}
	m.allocation = make(map[int]float64, len(m.coalitions))
	if total == 0 {
		share := 1.0 / float64(len(m.coalitions))
		for _, c := range m.coalitions {
			m.allocation[c.ID] = share
		}
		return
	}
	for _, c := range m.coalitions {
		m.allocation[c.ID] = utilities[c.ID] / total
	}
}

// Allocation returns the fraction of time committed to a coalition.
func (m *Miner) Allocation(c *Coalition) float64 {
	return m.allocation[c.ID]
}

// WorkContribution is the hashrate the miner effectively delivers to one
// coalition: the allocated share, reduced by a context-switch penalty that
// grows with the number of simultaneous memberships.
func (m *Miner) WorkContribution(c *Coalition) float64 {
	if !m.InCoalition(c) {
		return 0
	}
	allocated := m.Hashrate * m.Allocation(c)
	return m.effectiveAfterOverhead(allocated, len(m.coalitions))
}

func (m *Miner) effectiveAfterOverhead(allocated float64, memberships int) float64 {
	if memberships <= 1 {
		return allocated
	}
	overhead := float64(memberships) * m.cfg.ContextSwitchOverhead
	eff := allocated * (1.0 - overhead)
	if eff < 0 {
		return 0
	}
	return eff
}

// projectedAllocation estimates the time fraction the miner would commit to
// a candidate coalition after joining. The same proportional rule as
// reallocate is applied to expected utilities, with the candidate's
// expectation seeded from a provisional equal-split contribution, so that
// admission projections and the allocation actually realized after joining
// follow one policy.
func (m *Miner) projectedAllocation(c *Coalition) float64 {
	prospective := len(m.coalitions) + 1
	equal := 1.0 / float64(prospective)
	provisional := m.effectiveAfterOverhead(m.Hashrate*equal, prospective)

	uCand := c.expectedUtilityFor(provisional)
	if uCand < 0 {
		uCand = 0
	}
	total := uCand
	for _, cc := range m.coalitions {
		u := cc.ExpectedMemberUtility(m)
		if u > 0 {
			total += u
		}
	}
	if total == 0 {
		return equal
	}
	return uCand / total
}

// PotentialWork is the hashrate the miner would deliver to a coalition it is
// evaluating, under the projected post-join allocation and the post-join
// context-switch penalty.
func (m *Miner) PotentialWork(c *Coalition) float64 {
	prospective := len(m.coalitions) + 1
	allocated := m.Hashrate * m.projectedAllocation(c)
	return m.effectiveAfterOverhead(allocated, prospective)
}

// CollectTransactions samples up to CollectRate×dt not-yet-held transactions
// from the offered pool.
func (m *Miner) CollectTransactions(pool []Transaction, dt float64, rng *exprand.Rand) {
	want := int(float64(m.CollectRate) * dt)
	if want <= 0 {
		return
	}
	available := make([]Transaction, 0, len(pool))
	for _, tx := range pool {
		if _, held := m.txs[tx.ID]; !held {
			available = append(available, tx)
		}
	}
	if len(available) == 0 {
		return
	}
	if want > len(available) {
		want = len(available)
	}
	for _, i := range rng.Perm(len(available))[:want] {
		tx := available[i]
		m.txs[tx.ID] = tx
	}
}

// Transactions returns held transactions ordered by ID.
func (m *Miner) Transactions() []Transaction {
	out := make([]Transaction, 0, len(m.txs))
	for _, tx := range m.txs {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Miner) HeldTxCount() int { return len(m.txs) }

// ClearTransactions drops transactions that were included in a mined block.
func (m *Miner) ClearTransactions(mined []Transaction) {
	for _, tx := range mined {
		delete(m.txs, tx.ID)
	}
}

// ReceiveReward credits a per-block payout.
func (m *Miner) ReceiveReward(amount float64) {
	m.TotalEarnings += amount
	m.EarningsHistory = append(m.EarningsHistory, amount)
}

// UpdateUtility records the miner's utility from the latest event.
func (m *Miner) UpdateUtility(u float64) {
	m.CurrentUtility = u
	m.UtilityHistory = append(m.UtilityHistory, u)
}

func (m *Miner) TotalUtility() float64 { return m.CurrentUtility }

// EvaluateMerge projects the miner's utility were it to join the coalition:
// its prospective share of the coalition's expected rewards. Before the
// coalition has any baseline, rewards are estimated from its hashrate share
// of the network, with a small diversification boost for miners that already
// hold memberships.
func (m *Miner) EvaluateMerge(c *Coalition) float64 {
	potential := m.PotentialWork(c)
	totalWork := c.TotalWork() + potential
	if totalWork == 0 {
		return 0
	}
	share := potential / totalWork

	expected := c.ExpectedRewards()
	if expected == 0 {
		coalitionHashrate := c.TotalHashrate() + m.Hashrate
		hashrateShare := coalitionHashrate / estNetworkHashrate
		expected = hashrateShare * estBlocksPerEpoch * estRewardPerBlock
		if n := len(m.coalitions); n > 0 {
			expected *= 1.0 + float64(n)*estDiversification
		}
	}
	return share * expected
}

// EvaluateSplit scores the strategy of founding a singleton coalition. Lone
// operation is deliberately unattractive: strongly negative for unaffiliated
// miners, and a small fraction of current utility otherwise.
func (m *Miner) EvaluateSplit() float64 {
	if len(m.coalitions) == 0 {
		return splitUtilityUnaffiliated
	}
	return m.TotalUtility() * splitUtilityFactor
}

// EvaluateLeave scores leaving one coalition: the utility expected from the
// remaining memberships.
func (m *Miner) EvaluateLeave(c *Coalition) float64 {
	if !m.InCoalition(c) {
		return m.TotalUtility()
	}
	if len(m.coalitions) == 1 {
		return 0
	}
	remaining := m.TotalUtility() - c.ExpectedMemberUtility(m)
	if remaining < 0 {
		return 0
	}
	return remaining
}
