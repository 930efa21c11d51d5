package sim

import (
	"strings"
	"testing"
)

func TestScenarioByName(t *testing.T) {
	for _, name := range ScenarioNames() {
		sc, err := ScenarioByName(name)
		if err != nil {
			t.Fatal(err)
		}
		if sc.Name != name {
			t.Fatalf("got scenario %q, want %q", sc.Name, name)
		}
	}
	if _, err := ScenarioByName("bogus"); err == nil {
		t.Fatal("expected error for unknown scenario")
	}
}

func TestNonCooperativePreset(t *testing.T) {
	sc, err := ScenarioByName("non_cooperative")
	if err != nil {
		t.Fatal(err)
	}
	if sc.MaxCoalitions != 0 || sc.ECPEnabled {
		t.Fatalf("non_cooperative should disable coalitions and the provider, got %+v", sc)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal("default config should validate:", err)
	}

	bad := cfg
	bad.NumMiners = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for zero miners")
	}

	bad = cfg
	bad.HashrateMax = cfg.HashrateMin / 2
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for inverted hashrate range")
	}

	bad = cfg
	bad.Confidence = 1.0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for confidence=1")
	}
}

func TestWithParam(t *testing.T) {
	cfg := DefaultConfig()

	c2, err := cfg.WithParam(SweepNumMiners, 30)
	if err != nil {
		t.Fatal(err)
	}
	if c2.NumMiners != 30 {
		t.Fatalf("got %d miners, want 30", c2.NumMiners)
	}
	if cfg.NumMiners == 30 {
		t.Fatal("WithParam must not mutate the receiver")
	}

	if _, err := cfg.WithParam(SweepECPInitialPrice, cfg.PriceMax+1); err == nil {
		t.Fatal("expected error for price outside band")
	}
	if _, err := cfg.WithParam(SweepParam("nope"), 1); err == nil {
		t.Fatal("expected error for unknown parameter")
	}
	if _, err := cfg.WithParam(SweepNumMiners, 0); err == nil {
		t.Fatal("expected error for zero miner count")
	}
}

func TestTotalTime(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.TotalTime(); got != cfg.WarmupPeriod+cfg.CollectionPeriod {
		t.Fatalf("total time %d", got)
	}
}

func TestUnknownScenarioErrorListsKnown(t *testing.T) {
	_, err := ScenarioByName("x")
	if err == nil || !strings.Contains(err.Error(), "single_coalition") {
		t.Fatalf("error should name the known presets, got %v", err)
	}
}
