package sim

import "testing"

func TestWeightedIndex(t *testing.T) {
	rng := NewRand(1)

	if got := weightedIndex(rng, nil); got != -1 {
		t.Fatalf("empty weights: got %d, want -1", got)
	}
	if got := weightedIndex(rng, []float64{0, 0, 0}); got != -1 {
		t.Fatalf("zero weights: got %d, want -1", got)
	}
	if got := weightedIndex(rng, []float64{0, 5, 0}); got != 1 {
		t.Fatalf("single positive weight: got %d, want 1", got)
	}

	// A dominant weight should win nearly always.
	wins := 0
	for i := 0; i < 1000; i++ {
		if weightedIndex(rng, []float64{1, 999, 1}) == 1 {
			wins++
		}
	}
	if wins < 950 {
		t.Fatalf("dominant weight won only %d/1000", wins)
	}
}

func TestSampleHashrateBounds(t *testing.T) {
	cfg := DefaultConfig()
	for _, dist := range []HashrateDist{HashrateUniform, HashrateNormal, HashrateExponential} {
		cfg.HashrateDist = dist
		rng := NewRand(7)
		for i := 0; i < 500; i++ {
			h := cfg.SampleHashrate(rng)
			if h < cfg.HashrateMin || h > cfg.HashrateMax {
				t.Fatalf("dist=%v sample %v outside [%v, %v]", dist, h, cfg.HashrateMin, cfg.HashrateMax)
			}
		}
	}
}

func TestSampleFeeBounds(t *testing.T) {
	cfg := DefaultConfig()
	rng := NewRand(7)
	for i := 0; i < 500; i++ {
		f := cfg.SampleFee(rng)
		if f < cfg.TxFeeMin || f > cfg.TxFeeMax {
			t.Fatalf("fee %v outside [%v, %v]", f, cfg.TxFeeMin, cfg.TxFeeMax)
		}
	}
}

func TestNewRandDeterminism(t *testing.T) {
	a, b := NewRand(42), NewRand(42)
	for i := 0; i < 100; i++ {
		if a.Float64() != b.Float64() {
			t.Fatal("same seed must yield the same stream")
		}
	}
}
