package parallel

import (
	"math"
	"sync/atomic"
	"testing"
)

func TestForCoversEntireRange(t *testing.T) {
	for _, n := range []int{1, 37, 4096, 10007} {
		counts := make([]int32, n)
		For(n, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&counts[i], 1)
			}
		})
		for i, c := range counts {
			if c != 1 {
				t.Fatalf("n=%d: expected index %d to be processed once, got %d", n, i, c)
			}
		}
	}
}

func TestForNoopOnNonPositive(t *testing.T) {
	called := false
	For(0, func(start, end int) {
		called = true
	})
	if called {
		t.Fatalf("expected callback to remain unused")
	}
}

func TestSumMatchesSerial(t *testing.T) {
	n := 50000
	values := make([]float64, n)
	want := 0.0
	for i := range values {
		values[i] = math.Sin(float64(i))
		want += values[i]
	}
	got := Sum(n, func(start, end int) float64 {
		s := 0.0
		for i := start; i < end; i++ {
			s += values[i]
		}
		return s
	})
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("parallel sum mismatch: got %v want %v", got, want)
	}
	if Sum(0, func(int, int) float64 { return 1 }) != 0 {
		t.Fatalf("expected zero for empty range")
	}
}
