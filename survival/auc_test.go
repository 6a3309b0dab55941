package survival

import (
	"errors"
	"math"
	"testing"
)

func aucCohort(t *testing.T) *Cohort {

	time := []float64{1, 2, 5, 6}
	status := []float64{1, 1, 1, 0}
	return makeCohort(t, [][]float64{time, status}, []string{"time", "status"})
}

func TestUnoAUCSeparation(t *testing.T) {

	c := aucCohort(t)

	// At tau=3 the cases are the events at 1 and 2, the controls are
	// the subjects still at risk beyond 3.
	r, err := UnoAUC(c, []float64{4, 3, 2, 1}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if r.Cases != 2 || r.Controls != 2 {
		t.Errorf("cases=%d controls=%d", r.Cases, r.Controls)
	}
	if r.AUC != 1 {
		t.Errorf("auc = %v", r.AUC)
	}
}

func TestUnoAUCTies(t *testing.T) {

	c := aucCohort(t)

	// The tied case/control pair gets half credit:
	// (1 + 1 + 0.5 + 1) / 4.
	r, err := UnoAUC(c, []float64{4, 2, 2, 1}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(r.AUC-0.875) > 1e-12 {
		t.Errorf("auc = %v", r.AUC)
	}
}

func TestUnoAUCNoCases(t *testing.T) {

	c := aucCohort(t)

	r, err := UnoAUC(c, []float64{4, 3, 2, 1}, 0.5)
	var ide *InsufficientDataError
	if !errors.As(err, &ide) {
		t.Errorf("expected InsufficientDataError, got %v", err)
	}
	if !math.IsNaN(r.AUC) {
		t.Errorf("auc should be NaN, got %v", r.AUC)
	}
}

func TestUnoAUCNoControls(t *testing.T) {

	c := aucCohort(t)

	r, err := UnoAUC(c, []float64{4, 3, 2, 1}, 10)
	if err == nil {
		t.Errorf("expected an error with no controls at the horizon")
	}
	if !math.IsNaN(r.AUC) {
		t.Errorf("auc should be NaN, got %v", r.AUC)
	}
}

func TestUnoAUCInformativeScores(t *testing.T) {

	c := simCohort(300, 1.0, 29)

	r, err := UnoAUC(c, c.Column("x"), 3)
	if err != nil {
		t.Fatal(err)
	}
	if r.AUC <= 0.6 || r.AUC > 1 {
		t.Errorf("auc = %v for strongly predictive scores", r.AUC)
	}
	if r.SE <= 0 || r.SE > 0.2 {
		t.Errorf("se = %v", r.SE)
	}
}
