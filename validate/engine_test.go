package validate

import (
	"context"
	"errors"
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/daviemac78/Prediction-performance-survival/survival"
)

// simCohort simulates a cohort with one covariate having log hazard
// ratio b plus the given number of pure noise covariates z1, z2, ...
func simCohort(n, noise int, b float64, seed uint64) *survival.Cohort {

	rng := rand.New(rand.NewSource(seed))

	time := make([]float64, n)
	status := make([]float64, n)
	x := make([]float64, n)
	zs := make([][]float64, noise)
	for j := range zs {
		zs[j] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		x[i] = rng.NormFloat64()
		for j := range zs {
			zs[j][i] = rng.NormFloat64()
		}
		ed := distuv.Exponential{Rate: 0.2 * math.Exp(b*x[i]), Src: rng}
		et := ed.Rand()
		ct := 0.1 + 10*rng.Float64()
		if et <= ct {
			time[i] = et
			status[i] = 1
		} else {
			time[i] = ct
			status[i] = 0
		}
	}

	data := [][]float64{time, status, x}
	names := []string{"time", "status", "x1"}
	for j := range zs {
		data = append(data, zs[j])
		names = append(names, "z"+string(rune('1'+j)))
	}

	c, err := survival.NewCohort(data, names, "time", "status")
	if err != nil {
		panic(err)
	}
	return c
}

func TestConfigErrors(t *testing.T) {

	base := Config{
		B:          10,
		Horizon:    5,
		Predictors: []string{"x1"},
	}

	bad := []func(c *Config){
		func(c *Config) { c.B = 0 },
		func(c *Config) { c.B = -3 },
		func(c *Config) { c.Horizon = 0 },
		func(c *Config) { c.Horizon = -1 },
		func(c *Config) { c.HorizonShift = -0.1 },
		func(c *Config) { c.HorizonShift = 5 },
		func(c *Config) { c.Predictors = nil },
		func(c *Config) { c.Metrics = []Metric{"nosuch"} },
	}

	for i, mod := range bad {
		cfg := base
		mod(&cfg)
		_, err := New(cfg)
		var ce *survival.ConfigurationError
		if !errors.As(err, &ce) {
			t.Errorf("case %d: expected ConfigurationError, got %v", i, err)
		}
	}

	if _, err := New(base); err != nil {
		t.Errorf("valid configuration rejected: %v", err)
	}
}

// equalNaN compares two float slices treating NaN as equal to NaN.
func equalNaN(a, b []float64) bool {

	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.IsNaN(a[i]) != math.IsNaN(b[i]) {
			return false
		}
		if !math.IsNaN(a[i]) && a[i] != b[i] {
			return false
		}
	}
	return true
}

// Replicate seeding is tied to the replicate index, so results must not
// depend on the worker count or on scheduling.
func TestRunDeterministic(t *testing.T) {

	dev := simCohort(80, 0, 0.8, 101)

	run := func(workers int) *Report {
		eng, err := New(Config{
			B:          20,
			Horizon:    4,
			Seed:       7,
			Metrics:    []Metric{HarrellC, Brier},
			Predictors: []string{"x1"},
			Workers:    workers,
		})
		if err != nil {
			t.Fatal(err)
		}
		rep, err := eng.Run(context.Background(), dev, nil)
		if err != nil {
			t.Fatal(err)
		}
		return rep
	}

	r1 := run(1)
	r2 := run(4)

	for _, m := range []Metric{HarrellC, Brier} {
		s1 := r1.Series[m]
		s2 := r2.Series[m]
		if !equalNaN(s1.Bootstrap, s2.Bootstrap) ||
			!equalNaN(s1.Test, s2.Test) ||
			!equalNaN(s1.Optimism, s2.Optimism) {
			t.Errorf("metric %s: replicate series differ across worker counts", m)
		}

		c1 := r1.Record(m, Corrected)
		c2 := r2.Record(m, Corrected)
		if c1 == nil || c2 == nil || c1.Estimate != c2.Estimate {
			t.Errorf("metric %s: corrected estimates differ", m)
		}
	}

	if r1.RunID == r2.RunID {
		t.Errorf("distinct runs share a run id")
	}
}

// A model made of pure noise covariates on a small sample is optimistic
// on its own data; the correction must pull the concordance back toward
// 0.5.
func TestOptimismCorrection(t *testing.T) {

	dev := simCohort(60, 5, 0, 103)

	eng, err := New(Config{
		B:          40,
		Horizon:    4,
		Seed:       11,
		Metrics:    []Metric{HarrellC},
		Predictors: []string{"x1", "z1", "z2", "z3", "z4", "z5"},
	})
	if err != nil {
		t.Fatal(err)
	}

	rep, err := eng.Run(context.Background(), dev, nil)
	if err != nil {
		t.Fatal(err)
	}

	if rep.EffectiveB < 35 {
		t.Errorf("effective B = %d of %d", rep.EffectiveB, rep.RequestedB)
	}

	ap := rep.Record(HarrellC, Apparent)
	co := rep.Record(HarrellC, Corrected)
	if ap == nil || co == nil {
		t.Fatal("missing apparent or corrected record")
	}

	if ap.Estimate <= 0.5 {
		t.Errorf("noise model not optimistic on its own data: %v", ap.Estimate)
	}
	if co.Estimate >= ap.Estimate {
		t.Errorf("corrected %v not below apparent %v", co.Estimate, ap.Estimate)
	}
	if co.N != rep.EffectiveB {
		t.Errorf("corrected N = %d, effective B = %d", co.N, rep.EffectiveB)
	}

	// Concordance uses the analytic interval under the default method.
	if math.IsNaN(co.Lower) || math.IsNaN(co.Upper) || co.Lower >= co.Upper {
		t.Errorf("corrected interval [%v, %v]", co.Lower, co.Upper)
	}
}

func TestExternalValidation(t *testing.T) {

	dev := simCohort(100, 0, 1.0, 107)
	val := simCohort(100, 0, 1.0, 109)

	eng, err := New(Config{
		B:          15,
		Horizon:    4,
		Seed:       3,
		Metrics:    []Metric{HarrellC, OERatio},
		Predictors: []string{"x1"},
	})
	if err != nil {
		t.Fatal(err)
	}

	rep, err := eng.Run(context.Background(), dev, val)
	if err != nil {
		t.Fatal(err)
	}

	ex := rep.Record(HarrellC, External)
	if ex == nil {
		t.Fatal("missing external record")
	}
	if math.IsNaN(ex.Estimate) || ex.Estimate < 0.5 {
		t.Errorf("external concordance = %v for a predictive model", ex.Estimate)
	}
	if ex.N != val.NumObs() {
		t.Errorf("external N = %d", ex.N)
	}

	oe := rep.Record(OERatio, External)
	if oe == nil || math.IsNaN(oe.Estimate) {
		t.Errorf("missing external O/E estimate")
	}
}

// Horizon-dependent metrics degrade to NaN with a warning when no events
// occur by the horizon; the run itself must succeed and other metrics
// stay available.
func TestNoEventsAtHorizon(t *testing.T) {

	n := 40
	rng := rand.New(rand.NewSource(113))
	time := make([]float64, n)
	status := make([]float64, n)
	x := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = rng.NormFloat64()
		time[i] = 6 + 4*rng.Float64()
		status[i] = 1
	}
	dev, err := survival.NewCohort([][]float64{time, status, x},
		[]string{"time", "status", "x1"}, "time", "status")
	if err != nil {
		t.Fatal(err)
	}

	eng, err := New(Config{
		B:          8,
		Horizon:    5,
		Seed:       5,
		Metrics:    []Metric{HarrellC, UnoAUC, Brier},
		Predictors: []string{"x1"},
	})
	if err != nil {
		t.Fatal(err)
	}

	rep, err := eng.Run(context.Background(), dev, nil)
	if err != nil {
		t.Fatal(err)
	}

	if ap := rep.Record(UnoAUC, Apparent); !math.IsNaN(ap.Estimate) {
		t.Errorf("auc should be undefined before the first event, got %v", ap.Estimate)
	}
	if ap := rep.Record(Brier, Apparent); !math.IsNaN(ap.Estimate) {
		t.Errorf("brier should be undefined before the first event, got %v", ap.Estimate)
	}
	if ap := rep.Record(HarrellC, Apparent); math.IsNaN(ap.Estimate) {
		t.Errorf("concordance should be available")
	}
	if len(rep.Warnings) == 0 {
		t.Errorf("expected warnings about undefined metrics")
	}
}

func TestCancel(t *testing.T) {

	dev := simCohort(100, 0, 0.8, 127)

	eng, err := New(Config{
		B:          200,
		Horizon:    4,
		Metrics:    []Metric{HarrellC},
		Predictors: []string{"x1"},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := eng.Run(ctx, dev, nil)
	if err == nil {
		t.Errorf("expected an error from a cancelled run")
	}
	if rep != nil {
		t.Errorf("cancelled run returned a report")
	}
}

func TestShiftedHorizonBoundary(t *testing.T) {

	// Administrative censoring exactly at the horizon leaves no
	// subjects at risk beyond it; the shifted evaluation time keeps
	// the time-dependent AUC defined.
	dev := simCohort(150, 0, 1.0, 131)

	eng, err := New(Config{
		B:               10,
		Horizon:         5,
		Seed:            13,
		Metrics:         []Metric{UnoAUC},
		Predictors:      []string{"x1"},
		AdminCensorTime: 5,
	})
	if err != nil {
		t.Fatal(err)
	}

	rep, err := eng.Run(context.Background(), dev, nil)
	if err != nil {
		t.Fatal(err)
	}

	if rep.ShiftedHorizon != 4.95 {
		t.Errorf("shifted horizon = %v", rep.ShiftedHorizon)
	}
	ap := rep.Record(UnoAUC, Apparent)
	if math.IsNaN(ap.Estimate) {
		t.Errorf("auc undefined at the shifted horizon")
	}
	if ap.Horizon != 4.95 {
		t.Errorf("auc reported at horizon %v", ap.Horizon)
	}
}
