package detect

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"cardwatch/internal/core"
	"cardwatch/internal/flag"
	"cardwatch/internal/generator"
	"cardwatch/internal/metrics"
)

var (
	d1   = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	d2   = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	year = core.TimeRange{Start: d1, End: d2}
	day  = 24 * time.Hour
)

func tx(key string, at time.Time, amount string) core.Transaction {
	return core.Transaction{EntityKey: key, OccurredAt: at, Amount: decimal.RequireFromString(amount)}
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func mustDetect(t *testing.T, records []core.Transaction, threshold int64, step time.Duration) flag.Set {
	t.Helper()
	set, err := Detect(context.Background(), records, year, dec(threshold), step)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	return set
}

func assertKeys(t *testing.T, set flag.Set, want ...string) {
	t.Helper()
	got := set.Keys()
	if len(got) != len(want) {
		t.Fatalf("flagged = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("flagged = %v, want %v", got, want)
		}
	}
}

// randomCovered returns a second-aligned instant that at least one daily
// window of the year covers.
func randomCovered(r *rand.Rand) time.Time {
	lo, hi := d1.Add(12*time.Hour), d2.Add(-12*time.Hour)
	return lo.Add(time.Duration(r.Int64N(int64(hi.Sub(lo)/time.Second))) * time.Second)
}

func TestDetect_Scenarios(t *testing.T) {
	r := rand.New(rand.NewPCG(2021, 1))

	t.Run("single record over zero threshold", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			set := mustDetect(t, []core.Transaction{tx("card_a", randomCovered(r), "10")}, 0, day)
			assertKeys(t, set, "card_a")
		}
	})

	t.Run("one of two exceeds", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			set := mustDetect(t, []core.Transaction{
				tx("card_a", randomCovered(r), "10"),
				tx("card_b", randomCovered(r), "1000"),
			}, 500, day)
			assertKeys(t, set, "card_b")
		}
	})

	t.Run("neither exceeds", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			set := mustDetect(t, []core.Transaction{
				tx("card_a", randomCovered(r), "10"),
				tx("card_b", randomCovered(r), "400"),
			}, 500, day)
			assertKeys(t, set)
		}
	})

	t.Run("sum inside one window exceeds", func(t *testing.T) {
		at := time.Date(2021, 6, 15, 9, 30, 0, 0, time.UTC)
		set := mustDetect(t, []core.Transaction{
			tx("card_a", at, "10"),
			tx("card_a", at.Add(10*time.Second), "495"),
		}, 500, day)
		assertKeys(t, set, "card_a")
	})

	t.Run("empty input", func(t *testing.T) {
		for _, step := range []time.Duration{time.Hour, 6 * time.Hour, day} {
			assertKeys(t, mustDetect(t, nil, 0, step))
		}
	})
}

func TestDetect_ThresholdEqualityNotFlagged(t *testing.T) {
	at := time.Date(2021, 6, 15, 9, 30, 0, 0, time.UTC)
	records := []core.Transaction{tx("card_a", at, "250"), tx("card_a", at.Add(time.Minute), "250")}

	assertKeys(t, mustDetect(t, records, 500, day))
	assertKeys(t, mustDetect(t, records, 499, day), "card_a")
}

func TestDetect_WindowInclusivity(t *testing.T) {
	firstStart := d1.Add(day - 12*time.Hour)     // first center is d1+24h
	lastEnd := d1.Add(364*day + 12*time.Hour)     // last center is d1+364d

	tests := []struct {
		name    string
		at      time.Time
		flagged bool
	}{
		{"on first window start", firstStart, true},
		{"before first window", firstStart.Add(-time.Second), false},
		{"on last window end", lastEnd, true},
		{"after last window", lastEnd.Add(time.Second), false},
		{"on shared bound of two windows", d1.Add(36 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := mustDetect(t, []core.Transaction{tx("card_a", tt.at, "1")}, 0, day)
			if set.Contains("card_a") != tt.flagged {
				t.Fatalf("flagged = %v, want %v", set.Contains("card_a"), tt.flagged)
			}
		})
	}
}

func TestDetect_OverlappingWindowsDeduplicate(t *testing.T) {
	at := time.Date(2021, 3, 10, 12, 0, 0, 0, time.UTC)
	records := []core.Transaction{tx("card_a", at, "600"), tx("card_a", at.Add(40*day), "600")}

	res, err := New().Run(context.Background(), records, year, dec(500), 6*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	// each record sits in the 5 windows whose centers are within 12h of it
	if len(res.Flags) != 10 {
		t.Fatalf("flag events = %d, want 10", len(res.Flags))
	}
	assertKeys(t, res.Flagged, "card_a")
}

func TestDetect_InvalidConfig(t *testing.T) {
	records := []core.Transaction{tx("card_a", d1.Add(day), "1")}
	tests := []struct {
		name      string
		rng       core.TimeRange
		threshold decimal.Decimal
		step      time.Duration
		field     string
	}{
		{"zero step", year, dec(0), 0, "step"},
		{"negative step", year, dec(0), -day, "step"},
		{"inverted range", core.TimeRange{Start: d2, End: d1}, dec(0), day, "range"},
		{"empty range", core.TimeRange{Start: d1, End: d1}, dec(0), day, "range"},
		{"negative threshold", year, dec(-1), day, "threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Detect(context.Background(), records, tt.rng, tt.threshold, tt.step)
			var cfgErr *core.ConfigError
			if !errors.Is(err, core.ErrInvalidConfig) || !errors.As(err, &cfgErr) || cfgErr.Field != tt.field {
				t.Fatalf("Detect() error = %v, want ConfigError on %s", err, tt.field)
			}
		})
	}
}

func generated(t *testing.T, cards int, seed uint64) []core.Transaction {
	t.Helper()
	records, err := generator.Generate(generator.Config{Cards: cards, Range: year, Seed: seed})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return records
}

func TestDetect_Deterministic(t *testing.T) {
	records := generated(t, 20, 42)
	first := mustDetect(t, records, 300, 6*time.Hour)
	for i := 0; i < 3; i++ {
		again := mustDetect(t, records, 300, 6*time.Hour)
		if !first.Equal(&again) {
			t.Fatalf("run %d differs: %v vs %v", i, first.Keys(), again.Keys())
		}
	}

	// input order does not matter
	shuffled := append([]core.Transaction(nil), records...)
	rand.New(rand.NewPCG(9, 9)).Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	got := mustDetect(t, shuffled, 300, 6*time.Hour)
	if !first.Equal(&got) {
		t.Fatalf("shuffled input changed the result")
	}
}

func TestDetect_MonotoneInThreshold(t *testing.T) {
	records := generated(t, 30, 7)
	var prev flag.Set
	for i, threshold := range []int64{0, 100, 200, 300, 400, 600, 1000, 100000} {
		set := mustDetect(t, records, threshold, 12*time.Hour)
		if i > 0 {
			for _, k := range set.Keys() {
				if !prev.Contains(k) {
					t.Fatalf("threshold %d flagged %s which a lower threshold did not", threshold, k)
				}
			}
		}
		prev = set
	}
	if prev.Len() != 0 {
		t.Fatalf("huge threshold still flags %v", prev.Keys())
	}
}

func TestEngine_ParallelMatchesSequential(t *testing.T) {
	records := generated(t, 25, 1234)
	ctx := context.Background()

	seq, err := New(WithWorkers(1)).Run(ctx, records, year, dec(250), 4*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	for _, workers := range []int{2, 3, 8, 64} {
		par, err := New(WithWorkers(workers)).Run(ctx, records, year, dec(250), 4*time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if !seq.Flagged.Equal(&par.Flagged) {
			t.Fatalf("workers=%d flagged %v, sequential %v", workers, par.Flagged.Keys(), seq.Flagged.Keys())
		}
		if len(seq.Flags) != len(par.Flags) {
			t.Fatalf("workers=%d produced %d flag events, sequential %d", workers, len(par.Flags), len(seq.Flags))
		}
		for i := range seq.Flags {
			a, b := seq.Flags[i], par.Flags[i]
			if a.EntityKey != b.EntityKey || !a.WindowCenter.Equal(b.WindowCenter) || !a.Sum.Equal(b.Sum) {
				t.Fatalf("workers=%d flag %d differs: %+v vs %+v", workers, i, b, a)
			}
		}
	}
}

func TestEngine_ResultAndHook(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	var hooked []core.Flag
	e := New(
		WithWorkers(4),
		WithMetrics(m),
		WithFlagHook(func(_ context.Context, f core.Flag) { hooked = append(hooked, f) }),
	)

	at := time.Date(2021, 9, 1, 8, 0, 0, 0, time.UTC)
	records := []core.Transaction{
		tx("card_b", at, "900"),
		tx("card_a", at.Add(time.Hour), "700"),
		tx("card_c", at, "5"),
	}
	res, err := e.Run(context.Background(), records, year, dec(500), day)
	if err != nil {
		t.Fatal(err)
	}

	if res.Windows != 364 || res.Records != 3 || res.Entities != 3 {
		t.Fatalf("result counts = windows %d records %d entities %d", res.Windows, res.Records, res.Entities)
	}
	if res.RunID.String() == "" || res.Step != day || !res.Threshold.Equal(dec(500)) {
		t.Fatalf("result metadata not populated: %+v", res)
	}
	assertKeys(t, res.Flagged, "card_a", "card_b")

	if len(hooked) != len(res.Flags) || len(hooked) != 2 {
		t.Fatalf("hook saw %d flags, result has %d", len(hooked), len(res.Flags))
	}
	if hooked[0].EntityKey != "card_a" || hooked[1].EntityKey != "card_b" {
		t.Fatalf("hook order = %s, %s", hooked[0].EntityKey, hooked[1].EntityKey)
	}

	if got := testutil.ToFloat64(m.WindowsScanned); got != 364 {
		t.Errorf("windows scanned metric = %v", got)
	}
	if got := testutil.ToFloat64(m.EntitiesFlagged); got != 2 {
		t.Errorf("entities flagged metric = %v", got)
	}

	if _, err := e.Run(context.Background(), records, year, dec(500), 0); err == nil {
		t.Fatal("expected error for zero step")
	}
	if got := testutil.ToFloat64(m.ScansTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("failed scans metric = %v", got)
	}
}

func TestEngine_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(WithWorkers(2)).Run(ctx, generated(t, 2, 1), year, dec(0), time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPartition(t *testing.T) {
	tests := []struct {
		n, workers int
		chunks     int
	}{
		{0, 4, 0},
		{10, 1, 1},
		{10, 2, 8},
		{3, 8, 3},
		{364, 4, 16},
	}
	for _, tt := range tests {
		chunks := partition(tt.n, tt.workers)
		if len(chunks) != tt.chunks {
			t.Fatalf("partition(%d, %d) = %d chunks, want %d", tt.n, tt.workers, len(chunks), tt.chunks)
		}
		next := 0
		for _, c := range chunks {
			if c.lo != next || c.hi <= c.lo {
				t.Fatalf("partition(%d, %d) not contiguous: %v", tt.n, tt.workers, chunks)
			}
			next = c.hi
		}
		if next != tt.n {
			t.Fatalf("partition(%d, %d) covers [0,%d)", tt.n, tt.workers, next)
		}
	}
}
