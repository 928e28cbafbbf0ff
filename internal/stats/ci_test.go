package stats

import (
	"math"
	"testing"
)

func expectedCI(avg, sd float64, sampleCount int, tCrit float64) (float64, float64) {
	se := sd / math.Sqrt(float64(sampleCount))
	margin := tCrit * se
	lower := avg - margin
	if lower < 0 {
		lower = 0
	}
	return lower, avg + margin
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestConfidenceInterval95(t *testing.T) {
	t.Run("empty sample is zero interval", func(t *testing.T) {
		ci := ConfidenceInterval95(nil)
		if ci.Lower() != 0 || ci.Upper() != 0 {
			t.Fatalf("expected [0, 0], got %v", ci)
		}
	})

	t.Run("single value is zero width", func(t *testing.T) {
		ci := ConfidenceInterval95([]float64{7})
		if ci.Lower() != 7 || ci.Upper() != 7 {
			t.Fatalf("expected [7, 7], got %v", ci)
		}
	})

	t.Run("uses t-critical for small samples", func(t *testing.T) {
		values := []float64{10, 12, 14, 16}
		wantLower, wantUpper := expectedCI(13, math.Sqrt(20.0/3.0), 4, 3.182)
		ci := ConfidenceInterval95(values)
		if !approxEqual(ci.Lower(), wantLower) || !approxEqual(ci.Upper(), wantUpper) {
			t.Fatalf("expected [%f, %f], got %v", wantLower, wantUpper, ci)
		}
	})

	t.Run("clamps negative lower bound", func(t *testing.T) {
		ci := ConfidenceInterval95([]float64{1, 2, 3})
		_, wantUpper := expectedCI(2, 1, 3, 4.303)
		if ci.Lower() != 0 {
			t.Fatalf("expected lower bound to be clamped, got %f", ci.Lower())
		}
		if !approxEqual(ci.Upper(), wantUpper) {
			t.Fatalf("expected upper=%f, got %f", wantUpper, ci.Upper())
		}
	})

	t.Run("uses z-critical for large samples", func(t *testing.T) {
		values := make([]float64, 200)
		for i := range values {
			values[i] = float64(100 + i%7)
		}
		avg := Mean(values)
		wantLower, wantUpper := expectedCI(avg, StandardDeviation(values), len(values), 1.96)
		ci := ConfidenceInterval95(values)
		if !approxEqual(ci.Lower(), wantLower) || !approxEqual(ci.Upper(), wantUpper) {
			t.Fatalf("expected [%f, %f], got %v", wantLower, wantUpper, ci)
		}
	})

	t.Run("brackets the mean", func(t *testing.T) {
		samples := [][]float64{
			{0.5, 0.7},
			{3, 3, 3, 3},
			{1.2, 8.4, 0.1, 5.5, 2.2, 9.9, 4.0},
			{0, 0, 0.01},
		}
		for _, values := range samples {
			ci := ConfidenceInterval95(values)
			avg := Mean(values)
			if ci.Lower() > avg || avg > ci.Upper() {
				t.Fatalf("expected %v to contain mean %f", ci, avg)
			}
			if ci.Lower() < 0 {
				t.Fatalf("expected non-negative lower bound, got %f", ci.Lower())
			}
		}
	})
}

func TestTCritical95(t *testing.T) {
	t.Run("exact table values", func(t *testing.T) {
		cases := map[int]float64{1: 12.706, 2: 4.303, 10: 2.228, 15: 2.131, 30: 2.042, 120: 1.980}
		for df, want := range cases {
			if got := TCritical95(df); got != want {
				t.Fatalf("df=%d: expected %f, got %f", df, want, got)
			}
		}
	})

	t.Run("interpolates between keys", func(t *testing.T) {
		got := TCritical95(12)
		want := 2.228 + 0.4*(2.131-2.228)
		if !approxEqual(got, want) {
			t.Fatalf("expected %f, got %f", want, got)
		}
		if got >= TCritical95(10) || got <= TCritical95(15) {
			t.Fatalf("expected df=12 value strictly between df=10 and df=15, got %f", got)
		}
	})

	t.Run("fallbacks", func(t *testing.T) {
		if got := TCritical95(0); got != 12.706 {
			t.Fatalf("expected df=0 to use df=1 value, got %f", got)
		}
		if got := TCritical95(-3); got != 12.706 {
			t.Fatalf("expected negative df to use df=1 value, got %f", got)
		}
		if got := TCritical95(121); got != 1.96 {
			t.Fatalf("expected normal approximation past the table, got %f", got)
		}
	})

	t.Run("strictly decreasing through the table", func(t *testing.T) {
		prev := TCritical95(1)
		for df := 2; df <= 121; df++ {
			cur := TCritical95(df)
			if cur >= prev {
				t.Fatalf("expected df=%d (%f) < df=%d (%f)", df, cur, df-1, prev)
			}
			prev = cur
		}
	})
}

func TestInterval(t *testing.T) {
	a := Interval{1, 3}
	b := Interval{2.5, 4}
	c := Interval{3.5, 5}
	if !a.Overlaps(b) || !b.Overlaps(a) {
		t.Fatalf("expected %v and %v to overlap", a, b)
	}
	if a.Overlaps(c) {
		t.Fatalf("expected %v and %v to be disjoint", a, c)
	}
	if a.Width() != 2 {
		t.Fatalf("expected width 2, got %f", a.Width())
	}
}
