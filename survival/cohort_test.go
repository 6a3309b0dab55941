package survival

import (
	"strings"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

func TestCohortValidation(t *testing.T) {

	// Non-positive time
	_, err := NewCohort([][]float64{{0, 1}, {1, 1}}, []string{"time", "status"}, "time", "status")
	if err == nil {
		t.Errorf("expected error for non-positive time")
	}

	// Status outside {0, 1}
	_, err = NewCohort([][]float64{{1, 2}, {1, 2}}, []string{"time", "status"}, "time", "status")
	if err == nil {
		t.Errorf("expected error for invalid status")
	}

	// Ragged columns
	_, err = NewCohort([][]float64{{1, 2}, {1}}, []string{"time", "status"}, "time", "status")
	if err == nil {
		t.Errorf("expected error for ragged columns")
	}

	// Unknown time variable
	_, err = NewCohort([][]float64{{1, 2}, {1, 0}}, []string{"time", "status"}, "t", "status")
	if err == nil {
		t.Errorf("expected error for unknown time variable")
	}
}

func TestNumEvents(t *testing.T) {

	time := []float64{1, 2, 3, 4}
	status := []float64{1, 0, 1, 1}
	c := makeCohort(t, [][]float64{time, status}, []string{"time", "status"})

	n, nt := c.NumEvents(2.5)
	if n != 3 || nt != 1 {
		t.Errorf("events: %d total, %d by 2.5", n, nt)
	}
}

func TestResample(t *testing.T) {

	c := simCohort(50, 0.5, 61)

	r1 := c.Resample(rand.New(rand.NewSource(9)))
	r2 := c.Resample(rand.New(rand.NewSource(9)))

	if r1.NumObs() != c.NumObs() {
		t.Errorf("resample size %d", r1.NumObs())
	}
	if !floats.Equal(r1.Time(), r2.Time()) || !floats.Equal(r1.Column("x"), r2.Column("x")) {
		t.Errorf("identically seeded resamples differ")
	}

	// Every resampled time must come from the source cohort.
	src := make(map[float64]bool)
	for _, v := range c.Time() {
		src[v] = true
	}
	for _, v := range r1.Time() {
		if !src[v] {
			t.Errorf("resampled time %v not in source cohort", v)
		}
	}

	// The source cohort is untouched.
	r3 := c.Resample(rand.New(rand.NewSource(10)))
	_ = r3
	if c.NumObs() != 50 {
		t.Errorf("source cohort modified")
	}
}

func TestAdminCensor(t *testing.T) {

	time := []float64{1, 4, 6, 8}
	status := []float64{1, 1, 1, 0}
	x := []float64{1, 2, 3, 4}
	c := makeCohort(t, [][]float64{time, status, x}, []string{"time", "status", "x"})

	ac := c.AdminCensor(5)

	if !floats.Equal(ac.Time(), []float64{1, 4, 5, 5}) {
		t.Errorf("censored times = %v", ac.Time())
	}
	if !floats.Equal(ac.Status(), []float64{1, 1, 0, 0}) {
		t.Errorf("censored status = %v", ac.Status())
	}
	if !floats.Equal(ac.Column("x"), x) {
		t.Errorf("covariates changed under administrative censoring")
	}

	// The original is unchanged.
	if !floats.Equal(c.Time(), []float64{1, 4, 6, 8}) {
		t.Errorf("source cohort modified")
	}
}

func TestSummary(t *testing.T) {

	c := simCohort(150, 0.8, 67)

	ph, _ := NewPHReg(c, []string{"x"}, nil)
	fm, err := ph.Fit()
	if err != nil {
		t.Fatal(err)
	}

	s := fm.Summary()
	for _, want := range []string{"Proportional hazards", "x", "efron", "HR"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}
