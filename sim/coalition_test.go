package sim

import (
	"math"
	"testing"
)

func TestAddRemoveMemberHeadElection(t *testing.T) {
	cfg := twoCoalitionConfig(t)
	a := NewMiner(0, 100e6, &cfg)
	b := NewMiner(1, 100e6, &cfg)

	c := NewCoalition(0, a, &cfg)
	a.Join(c)
	if c.Head() != a {
		t.Fatal("founder should be head")
	}
	if !c.AddMember(b) {
		t.Fatal("second member rejected")
	}
	b.Join(c)
	if c.AddMember(b) {
		t.Fatal("duplicate member admitted")
	}

	c.RemoveMember(a)
	a.Leave(c)
	if c.Head() != b {
		t.Fatal("head should pass to the first remaining member")
	}
	c.RemoveMember(b)
	if c.Head() != nil || c.Size() != 0 {
		t.Fatal("empty coalition should have no head")
	}
}

func TestAdmitsEmptyCoalition(t *testing.T) {
	cfg := twoCoalitionConfig(t)
	c := NewCoalition(0, nil, &cfg)
	m := NewMiner(0, 100e6, &cfg)
	if !c.Admits(m) {
		t.Fatal("empty coalition must admit its first member")
	}
}

func TestAdmitsRejectsDominantNewcomer(t *testing.T) {
	cfg := twoCoalitionConfig(t)

	// One member split across two coalitions only delivers a fraction of its
	// hashrate here, so a newcomer bringing its full rate would dilute the
	// member's share far faster than it grows the baseline.
	member := NewMiner(0, 100e6, &cfg)
	c := NewCoalition(0, member, &cfg)
	member.Join(c)
	other := NewCoalition(1, nil, &cfg)
	other.AddMember(member)
	member.Join(other)
	member.allocation = map[int]float64{c.ID: 0.5, other.ID: 0.5}

	small := NewMiner(1, 1e6, &cfg)
	if !c.Admits(small) {
		t.Fatal("small newcomer should be admitted")
	}

	big := NewMiner(2, 100e6, &cfg)
	if c.Admits(big) {
		t.Fatal("dominant newcomer should be rejected")
	}
}

func TestAggregateAndSelectTransactions(t *testing.T) {
	cfg := twoCoalitionConfig(t)
	a := NewMiner(0, 100e6, &cfg)
	b := NewMiner(1, 100e6, &cfg)
	c := NewCoalition(0, a, &cfg)
	a.Join(c)
	c.AddMember(b)
	b.Join(c)

	a.txs = map[int]Transaction{
		1: {ID: 1, Fee: 10},
		2: {ID: 2, Fee: 50},
	}
	b.txs = map[int]Transaction{
		2: {ID: 2, Fee: 50}, // shared with a
		3: {ID: 3, Fee: 50},
		4: {ID: 4, Fee: 5},
	}

	c.AggregateTransactions()
	if c.PoolSize() != 4 {
		t.Fatalf("pool size %d, want 4 after dedup", c.PoolSize())
	}

	picked := c.SelectTransactions(2)
	if len(picked) != 2 {
		t.Fatalf("picked %d, want 2", len(picked))
	}
	// Highest fee first; equal fees break toward the lower ID.
	if picked[0].ID != 2 || picked[1].ID != 3 {
		t.Fatalf("picked %v, want IDs 2 then 3", picked)
	}

	if got := c.SelectTransactions(0); got != nil {
		t.Fatalf("zero capacity picked %v", got)
	}
	if got := c.SelectTransactions(10); len(got) != 4 {
		t.Fatalf("oversize request picked %d, want all 4", len(got))
	}
}

func TestDistributeRewardsConservation(t *testing.T) {
	cfg := twoCoalitionConfig(t)
	a := NewMiner(0, 300e6, &cfg)
	b := NewMiner(1, 100e6, &cfg)
	c := NewCoalition(0, a, &cfg)
	a.Join(c)
	c.AddMember(b)
	b.Join(c)

	rng := NewRand(5)
	distributed, withheld := c.DistributeRewards(1000, 0, nil, rng)
	if withheld != 0 {
		t.Fatalf("withheld %v without a discount", withheld)
	}
	if math.Abs(distributed-1000) > 1e-6 {
		t.Fatalf("distributed %v, want the full 1000", distributed)
	}

	sum := a.TotalEarnings + b.TotalEarnings
	if math.Abs(sum-1000) > 1e-6 {
		t.Fatalf("member earnings sum to %v, want 1000", sum)
	}
	// Work-proportional: a has 3x the hashrate.
	if math.Abs(a.TotalEarnings-750) > 1e-6 || math.Abs(b.TotalEarnings-250) > 1e-6 {
		t.Fatalf("earnings a=%v b=%v, want 750/250", a.TotalEarnings, b.TotalEarnings)
	}
	if c.TotalRewards != 1000 {
		t.Fatalf("coalition recorded %v, want 1000", c.TotalRewards)
	}
}

func TestDistributeRewardsComputeBill(t *testing.T) {
	cfg := twoCoalitionConfig(t)
	a := NewMiner(0, 100e6, &cfg)
	c := NewCoalition(0, a, &cfg)
	a.Join(c)
	c.ComputePurchased = 10

	distributed, _ := c.DistributeRewards(1000, 20, nil, NewRand(5))
	if math.Abs(distributed-800) > 1e-6 {
		t.Fatalf("distributed %v, want 800 after a 200 compute bill", distributed)
	}
	if c.ComputeCostPaid != 200 {
		t.Fatalf("compute cost %v, want 200", c.ComputeCostPaid)
	}
}

func TestDistributeRewardsNoWork(t *testing.T) {
	cfg := twoCoalitionConfig(t)
	c := NewCoalition(0, nil, &cfg)
	distributed, withheld := c.DistributeRewards(1000, 0, nil, NewRand(5))
	if distributed != 0 || withheld != 0 {
		t.Fatalf("empty coalition distributed %v withheld %v", distributed, withheld)
	}
}

func TestOptimalComputeDemand(t *testing.T) {
	cfg := twoCoalitionConfig(t)
	a := NewMiner(0, 100e6, &cfg)
	c := NewCoalition(0, a, &cfg)
	a.Join(c)

	// Price above half the expected rewards kills demand outright.
	if d := c.OptimalComputeDemand(c.ExpectedRewards(), 0.5); d != 0 {
		t.Fatalf("demand %v at prohibitive price, want 0", d)
	}

	// At an affordable price the bill stays under 20% of expected rewards.
	price := 0.001
	d := c.OptimalComputeDemand(price, 0.5)
	if d <= 0 {
		t.Fatal("expected positive demand at an affordable price")
	}
	if d*price > c.ExpectedRewards()*0.2+1e-9 {
		t.Fatalf("bill %v exceeds 20%% of expected rewards", d*price)
	}

	// Free compute with no budget cap would divide by zero; demand is zero.
	empty := NewCoalition(1, nil, &cfg)
	if d := empty.OptimalComputeDemand(0.1, 0.5); d != 0 {
		t.Fatalf("workless coalition demanded %v", d)
	}
}

func TestEffectiveHashrate(t *testing.T) {
	cfg := twoCoalitionConfig(t)
	a := NewMiner(0, 100e6, &cfg)
	c := NewCoalition(0, a, &cfg)
	a.Join(c)

	if got := c.EffectiveHashrate(); got != 100e6 {
		t.Fatalf("effective hashrate %v, want member work only", got)
	}
	c.ComputePurchased = 50e6
	if got := c.EffectiveHashrate(); got != 150e6 {
		t.Fatalf("effective hashrate %v, want work plus purchased compute", got)
	}
}
