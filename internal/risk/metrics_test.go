package risk

import (
	"math"
	"testing"
)

func TestMaxDrawdown(t *testing.T) {
	cases := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"monotonic rise", []float64{100, 110, 120}, 0},
		{"single dip", []float64{100, 120, 90, 130}, 0.25},
		{"deepest of two", []float64{100, 80, 100, 50}, 0.5},
		{"flat", []float64{100, 100, 100}, 0},
	}

	for _, tc := range cases {
		if got := MaxDrawdown(tc.values); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: drawdown = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRollingWinRate(t *testing.T) {
	pnls := []float64{-1, -1, -1, 5, 5, 5, 5, -1, 5, 5}

	// Full window
	rate, sample := RollingWinRate(pnls, 10)
	if sample != 10 || math.Abs(rate-0.7) > 1e-9 {
		t.Fatalf("full window: rate %v sample %d, want 0.7 over 10", rate, sample)
	}

	// Lookback shorter than history: only the recent tail counts
	rate, sample = RollingWinRate(pnls, 4)
	if sample != 4 || math.Abs(rate-0.75) > 1e-9 {
		t.Fatalf("tail window: rate %v sample %d, want 0.75 over 4", rate, sample)
	}

	// Fewer trades than the lookback
	rate, sample = RollingWinRate([]float64{5, -1}, 10)
	if sample != 2 || math.Abs(rate-0.5) > 1e-9 {
		t.Fatalf("short history: rate %v sample %d, want 0.5 over 2", rate, sample)
	}

	if _, sample := RollingWinRate(nil, 10); sample != 0 {
		t.Fatal("empty history should report zero sample")
	}
}

func TestComputeSummary(t *testing.T) {
	values := []float64{10000, 10500, 10200, 11000, 10800}
	pnls := []float64{500, -300, 800, -200}

	s := Compute(nil, values, pnls, 10000)

	if math.Abs(s.TotalReturn-0.08) > 1e-9 {
		t.Errorf("total return = %v, want 0.08", s.TotalReturn)
	}
	wantDD := (10500.0 - 10200.0) / 10500.0
	if math.Abs(s.MaxDrawdown-wantDD) > 1e-9 {
		t.Errorf("max drawdown = %v, want %v", s.MaxDrawdown, wantDD)
	}
	if s.RollingSample != 4 || math.Abs(s.RollingWinRate-0.5) > 1e-9 {
		t.Errorf("rolling win rate %v over %d, want 0.5 over 4", s.RollingWinRate, s.RollingSample)
	}
	if s.Sharpe == 0 {
		t.Error("sharpe should be nonzero for a non-flat series")
	}
	if s.MaxDrawdown > 0 && s.Calmar == 0 {
		t.Error("calmar should be derived when drawdown is positive")
	}
}

func TestComputeEmptyInputs(t *testing.T) {
	s := Compute(nil, nil, nil, 10000)
	if s.TotalReturn != 0 || s.MaxDrawdown != 0 || s.RollingSample != 0 {
		t.Fatalf("empty inputs should produce a zero summary, got %+v", s)
	}
	if math.IsNaN(s.Sharpe) || math.IsNaN(s.Sortino) || math.IsNaN(s.Calmar) {
		t.Fatal("summary must never contain NaN")
	}
}
