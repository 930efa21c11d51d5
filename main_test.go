package main

import (
	"testing"

	"github.com/ocfmining/go-coalition-sim/sim"
)

func TestSweepValueList(t *testing.T) {
	param := sim.SweepECPInitialPrice
	want := append([]float64(nil), defaultSweepValues[param]...)

	got, err := sweepValueList(param, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("defaults: got %v, want %v", got, want)
	}

	custom, err := sweepValueList(param, " 12.5, 80,300 ")
	if err != nil {
		t.Fatal(err)
	}
	if len(custom) != 3 || custom[0] != 12.5 || custom[1] != 80 || custom[2] != 300 {
		t.Fatalf("custom values parsed as %v", custom)
	}

	// Parsing a custom list must not scribble over the shared defaults.
	for i, v := range defaultSweepValues[param] {
		if v != want[i] {
			t.Fatalf("defaults mutated: %v", defaultSweepValues[param])
		}
	}

	if _, err := sweepValueList(param, "1,two,3"); err == nil {
		t.Fatal("expected an error for a non-numeric value")
	}
}
