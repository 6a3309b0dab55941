package survival

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func makeCohort(t *testing.T, data [][]float64, names []string) *Cohort {

	t.Helper()
	c, err := NewCohort(data, names, "time", "status")
	if err != nil {
		t.Fatalf("cannot build cohort: %v", err)
	}
	return c
}

func TestKMUncensored(t *testing.T) {

	n := 20
	var time, status []float64
	for i := 0; i < n; i++ {
		time = append(time, float64(i+1))
		status = append(status, 1)
	}

	c := makeCohort(t, [][]float64{time, status}, []string{"time", "status"})
	sf := FitSurvfunc(c, false)

	times := sf.Time()
	nrisk := sf.NumRisk()
	for i := 0; i < n; i++ {
		if times[i] != float64(i+1) {
			t.Fail()
		}
		if nrisk[i] != float64(n-i) {
			t.Fail()
		}
	}

	// From Python Statsmodels
	se := []float64{0.04873397, 0.06708204, 0.0798436, 0.08944272,
		0.09682458, 0.10246951, 0.10665365, 0.10954451,
		0.11124298, 0.1118034, 0.11124298, 0.10954451,
		0.10665365, 0.10246951, 0.09682458, 0.08944272,
		0.0798436, 0.06708204, 0.04873397}

	sp := sf.SurvProb()
	spse := sf.SurvProbSE()
	for i := 0; i < n; i++ {
		p := 1 - float64(i+1)/float64(n)
		if math.Abs(sp[i]-p) > 1e-6 {
			t.Fail()
		}
		if i < n-1 && math.Abs(spse[i]-se[i]) > 1e-6 {
			t.Fail()
		}
	}
}

func TestKMCensored(t *testing.T) {

	time := []float64{1, 2, 3, 4, 5}
	status := []float64{1, 0, 1, 0, 1}

	c := makeCohort(t, [][]float64{time, status}, []string{"time", "status"})
	sf := FitSurvfunc(c, false)

	if !floats.EqualApprox(sf.Time(), []float64{1, 3, 5}, 1e-12) {
		t.Errorf("times: %v", sf.Time())
	}
	if !floats.EqualApprox(sf.NumRisk(), []float64{5, 3, 1}, 1e-12) {
		t.Errorf("nrisk: %v", sf.NumRisk())
	}
	if !floats.EqualApprox(sf.SurvProb(), []float64{0.8, 0.8 * 2 / 3, 0}, 1e-12) {
		t.Errorf("survprob: %v", sf.SurvProb())
	}
}

func TestKMReverse(t *testing.T) {

	time := []float64{1, 2, 3, 4, 5, 6}
	status := []float64{1, 0, 1, 0, 1, 0}
	flipped := []float64{0, 1, 0, 1, 0, 1}

	c1 := makeCohort(t, [][]float64{time, status}, []string{"time", "status"})
	c2 := makeCohort(t, [][]float64{time, flipped}, []string{"time", "status"})

	r := FitSurvfunc(c1, true)
	f := FitSurvfunc(c2, false)

	if !floats.EqualApprox(r.Time(), f.Time(), 1e-12) {
		t.Fail()
	}
	if !floats.EqualApprox(r.SurvProb(), f.SurvProb(), 1e-12) {
		t.Fail()
	}
}

func TestStepCurveAt(t *testing.T) {

	sc := NewStepCurve([]float64{1, 3, 5}, []float64{0.8, 0.5, 0.2})

	cases := []struct {
		t, want float64
	}{
		{0.5, 1},
		{1, 0.8},
		{2, 0.8},
		{3, 0.5},
		{4.5, 0.5},
		{5, 0.2},
		{100, 0.2},
	}
	for _, cs := range cases {
		if v := sc.At(cs.t); v != cs.want {
			t.Errorf("At(%v) = %v, want %v", cs.t, v, cs.want)
		}
	}

	left := []struct {
		t, want float64
	}{
		{1, 1},
		{3, 0.8},
		{3.5, 0.5},
		{5, 0.5},
		{6, 0.2},
	}
	for _, cs := range left {
		if v := sc.AtLeft(cs.t); v != cs.want {
			t.Errorf("AtLeft(%v) = %v, want %v", cs.t, v, cs.want)
		}
	}

	if q := sc.Quantile(0.5); q != 3 {
		t.Errorf("Quantile(0.5) = %v", q)
	}
	if !math.IsNaN(NewStepCurve([]float64{1}, []float64{0.9}).Quantile(0.5)) {
		t.Fail()
	}
}

func TestMedianFollowup(t *testing.T) {

	time := []float64{1, 2, 3, 4, 5}
	status := []float64{1, 0, 1, 0, 1}
	c := makeCohort(t, [][]float64{time, status}, []string{"time", "status"})

	// Reverse KM drops at the censoring times 2 and 4.
	if mf := MedianFollowup(c); mf != 4 {
		t.Errorf("median follow-up = %v", mf)
	}
}

func TestCensorCurveNoCensoring(t *testing.T) {

	time := []float64{1, 2, 3}
	status := []float64{1, 1, 1}
	c := makeCohort(t, [][]float64{time, status}, []string{"time", "status"})

	g := censorCurve(c)
	for _, tt := range []float64{0, 1, 2, 100} {
		if g.At(tt) != 1 {
			t.Fail()
		}
	}
}

func TestDegenerateWeight(t *testing.T) {

	time := []float64{1, 2}
	status := []float64{1, 0}
	c := makeCohort(t, [][]float64{time, status}, []string{"time", "status"})

	g := censorCurve(c)
	if g.At(2) != 0 {
		t.Errorf("G(2) = %v", g.At(2))
	}

	_, err := g.weightAt(2, false)
	var dw *DegenerateWeightError
	if !errors.As(err, &dw) {
		t.Errorf("expected DegenerateWeightError, got %v", err)
	}

	// The left limit at the censoring time is still usable.
	w, err := g.weightAt(2, true)
	if err != nil || w != 1 {
		t.Errorf("left-limit weight = %v, %v", w, err)
	}
}
