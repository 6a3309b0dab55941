package survival

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// ConcordanceResult holds a concordance estimate together with an
// approximate standard error and the number of comparable pairs that
// contributed to it.
type ConcordanceResult struct {

	// The concordance probability estimate.
	Concordance float64

	// An approximate standard error (Hanley-McNeil form).
	SE float64

	// The number of comparable pairs.
	Pairs int
}

// HarrellC computes Harrell's concordance statistic for the given risk
// scores.  A pair of subjects is comparable if the one with the shorter
// observed time had the event; the pair is concordant when the subject
// with the shorter time has the higher score (higher score means higher
// risk), and score ties receive half credit.  Pairs with tied observed
// times are not comparable.
func HarrellC(c *Cohort, score []float64) (ConcordanceResult, error) {
	return concordance(c, score, math.Inf(1), nil)
}

// UnoC computes the inverse-probability-of-censoring weighted
// concordance of Uno et al., truncated at tau.  Each comparable pair
// whose shorter time t is below tau is weighted by 1/G(t-)^2 where G is
// the reverse Kaplan-Meier estimate of the censoring distribution,
// removing the bias Harrell's statistic has under heavy censoring.
func UnoC(c *Cohort, score []float64, tau float64) (ConcordanceResult, error) {

	if tau <= 0 {
		return ConcordanceResult{}, &ConfigurationError{Msg: "concordance: truncation time must be positive"}
	}
	return concordance(c, score, tau, censorCurve(c))
}

// concordance computes the concordance statistic over all comparable
// pairs.  If cens is non-nil, pairs are IPCW weighted; otherwise all
// pairs have unit weight.
func concordance(c *Cohort, score []float64, tau float64, cens *StepCurve) (ConcordanceResult, error) {

	time := c.Time()
	status := c.Status()
	n := len(time)

	if len(score) != n {
		return ConcordanceResult{}, &ConfigurationError{Msg: "concordance: score length does not match cohort"}
	}

	// Sort everything by time so that comparable pairs are (i, j)
	// with i preceding j.
	ii := make([]int, n)
	time1 := make([]float64, n)
	copy(time1, time)
	floats.Argsort(time1, ii)

	status1 := make([]float64, n)
	score1 := make([]float64, n)
	for i, j := range ii {
		status1[i] = status[j]
		score1[i] = score[j]
	}

	var numer, denom float64
	var npair int

	for i := 0; i < n; i++ {

		if status1[i] != 1 || time1[i] >= tau {
			continue
		}

		w := 1.0
		if cens != nil {
			g, err := cens.weightAt(time1[i], true)
			if err != nil {
				return ConcordanceResult{}, err
			}
			w = g * g
		}

		for j := i + 1; j < n; j++ {

			// Tied observed times are not comparable.
			if time1[j] == time1[i] {
				continue
			}

			npair++
			denom += w
			switch {
			case score1[i] > score1[j]:
				numer += w
			case score1[i] == score1[j]:
				numer += w / 2
			}
		}
	}

	if npair < 2 {
		return ConcordanceResult{Concordance: math.NaN()},
			&InsufficientDataError{Msg: "concordance: fewer than 2 comparable pairs"}
	}

	cstat := numer / denom

	// Event / non-event counts for the SE approximation.
	nevent, _ := c.NumEvents(math.Inf(1))

	return ConcordanceResult{
		Concordance: cstat,
		SE:          hanleyMcNeilSE(cstat, nevent, n-nevent),
		Pairs:       npair,
	}, nil
}

// hanleyMcNeilSE is the Hanley-McNeil standard error approximation for
// an AUC-type rank statistic with n1 cases and n2 controls.
func hanleyMcNeilSE(a float64, n1, n2 int) float64 {

	if n1 < 1 || n2 < 1 {
		return math.NaN()
	}

	q1 := a / (2 - a)
	q2 := 2 * a * a / (1 + a)
	v := a*(1-a) + float64(n1-1)*(q1-a*a) + float64(n2-1)*(q2-a*a)

	return math.Sqrt(v / float64(n1*n2))
}
