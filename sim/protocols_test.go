package sim

import (
	"math"
	"testing"
)

func TestBloomNoFalseNegatives(t *testing.T) {
	cfg := DefaultConfig()
	b := NewBloomSync(&cfg)
	for i := 0; i < 500; i++ {
		b.Add(i)
	}
	for i := 0; i < 500; i++ {
		if !b.Contains(i) {
			t.Fatalf("added id %d not found", i)
		}
	}

	ids := make([]int, 0, 600)
	for i := 0; i < 600; i++ {
		ids = append(ids, i)
	}
	missing := b.Missing(ids)
	for _, id := range missing {
		if id < 500 {
			t.Fatalf("added id %d reported missing", id)
		}
	}
}

func TestBloomBandwidth(t *testing.T) {
	cfg := DefaultConfig()
	b := NewBloomSync(&cfg)

	naive := b.NaiveBandwidth(1000, 2, cfg.TransactionSize)
	optimized := b.OptimizedBandwidth(2, 150, cfg.TransactionSize)
	if optimized >= naive {
		t.Fatalf("optimized %v should undercut naive %v", optimized, naive)
	}

	s := b.Savings(1000, 2, 150, cfg.TransactionSize)
	if s <= 0 || s > 1 {
		t.Fatalf("savings %v outside (0, 1]", s)
	}
	if got := b.Savings(0, 2, 0, cfg.TransactionSize); got != 0 {
		t.Fatalf("savings %v with no transactions", got)
	}
	if b.FilterBytes() != (cfg.BloomFilterBits+7)/8 {
		t.Fatalf("filter is %d bytes", b.FilterBytes())
	}
}

func TestRewardDiscount(t *testing.T) {
	cfg := DefaultConfig()

	sc, err := ScenarioByName("enhanced_j3")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Scenario = sc
	if d := NewRewardDiscount(&cfg); d != nil {
		t.Fatal("smart contract scenarios should pay in full")
	}

	sc, err = ScenarioByName("multi_coalition_j2")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Scenario = sc
	d := NewRewardDiscount(&cfg)
	if d == nil {
		t.Fatal("trust-based scenario needs a discount")
	}

	rng := NewRand(9)
	for i := 0; i < 200; i++ {
		net, withheld := d.Apply(1000, rng)
		upper := 1000 * (1 - cfg.TrustOverheadFactor)
		lower := upper * (1 - cfg.TheftAmount)
		if net > upper+1e-9 || net < lower-1e-9 {
			t.Fatalf("net %v outside [%v, %v]", net, lower, upper)
		}
		if math.Abs(net+withheld-1000) > 1e-9 {
			t.Fatalf("net %v + withheld %v != 1000", net, withheld)
		}
	}

	if net, withheld := d.Apply(-5, rng); net != -5 || withheld != 0 {
		t.Fatalf("negative amounts pass through, got net=%v withheld=%v", net, withheld)
	}
}

func TestResultDelivery(t *testing.T) {
	cfg := DefaultConfig()
	rng := NewRand(13)
	r := NewResultDelivery(&cfg, rng)

	lost := 0
	const samples = 2000
	wsSum, dualSum := 0.0, 0.0
	for i := 0; i < samples; i++ {
		wsSum += r.WebsocketLatency()
		if v := r.UDPLatency(); math.IsInf(v, 1) {
			lost++
		}
		dualSum += r.DualLatency()
	}
	if lost == 0 {
		t.Fatal("expected some udp loss at a 2% rate")
	}
	if float64(lost)/samples > 0.1 {
		t.Fatalf("udp loss %d/%d far above the configured rate", lost, samples)
	}
	// Dual-channel rides the faster udp path almost always.
	if dualSum/samples >= wsSum/samples {
		t.Fatalf("dual mean %v should beat websocket mean %v", dualSum/samples, wsSum/samples)
	}

	reduction := r.LatencyReduction(1000)
	if reduction <= 0 || reduction > 100 {
		t.Fatalf("latency reduction %v%% out of range", reduction)
	}
}

func TestZKWillingness(t *testing.T) {
	if got := zkAdjustedWillingness(100, 2, true, 0.3); got != 100 {
		t.Fatalf("zk enabled should not discount, got %v", got)
	}
	if got := zkAdjustedWillingness(100, 0, false, 0.3); got != 100 {
		t.Fatalf("unaffiliated miner should not hesitate, got %v", got)
	}
	if got := zkAdjustedWillingness(100, 2, false, 0.3); got != 70 {
		t.Fatalf("hesitant miner willingness %v, want 70", got)
	}
}
