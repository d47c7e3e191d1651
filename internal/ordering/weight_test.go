package ordering_test

import (
	"testing"

	"oxinot/internal/ordering"
)

func TestBetween_Bisects(t *testing.T) {
	w, ok := ordering.Between(1024, 2048)
	if !ok {
		t.Fatal("expected a weight between distinct neighbors")
	}
	if w <= 1024 || w >= 2048 {
		t.Fatalf("weight %v not strictly between neighbors", w)
	}
}

func TestBetween_ExhaustedGap(t *testing.T) {
	a := 1024.0
	if _, ok := ordering.Between(a, a+ordering.MinGap/2); ok {
		t.Fatal("expected exhausted gap to refuse bisection")
	}
}

func TestBetween_RepeatedBisectionEventuallyExhausts(t *testing.T) {
	lo, hi := 0.0, ordering.Gap
	steps := 0
	for {
		mid, ok := ordering.Between(lo, hi)
		if !ok {
			break
		}
		hi = mid
		steps++
		if steps > 10000 {
			t.Fatal("Between never exhausted the interval")
		}
	}
	if steps == 0 {
		t.Fatal("expected at least one successful bisection")
	}
}

func TestAfterBefore(t *testing.T) {
	w := ordering.Initial()
	if ordering.After(w) <= w {
		t.Fatal("After must sort after its input")
	}
	if ordering.Before(w) >= w {
		t.Fatal("Before must sort ahead of its input")
	}
}

func TestSpread(t *testing.T) {
	ws := ordering.Spread(4)
	if len(ws) != 4 {
		t.Fatalf("expected 4 weights, got %d", len(ws))
	}
	for i := 1; i < len(ws); i++ {
		if ws[i] <= ws[i-1] {
			t.Fatalf("spread weights not strictly ascending: %v", ws)
		}
		if ws[i]-ws[i-1] < ordering.MinGap {
			t.Fatalf("spread gap too small: %v", ws)
		}
	}
}

func TestLess_TiebreakByID(t *testing.T) {
	if !ordering.Less(1, 2, "b", "a") {
		t.Fatal("distinct weights must order by weight")
	}
	if !ordering.Less(1, 1, "a", "b") {
		t.Fatal("equal weights must tiebreak by id")
	}
	if ordering.Less(1, 1, "b", "a") {
		t.Fatal("tiebreak must be consistent")
	}
}
