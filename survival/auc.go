package survival

import "math"

// AUCResult holds a time-dependent AUC estimate with an approximate
// standard error and the sizes of the case and control sets.
type AUCResult struct {
	AUC      float64
	SE       float64
	Cases    int
	Controls int
}

// UnoAUC computes the inverse-probability-of-censoring weighted
// time-dependent AUC of Uno et al. at the horizon tau.  Subjects with
// an event at or before tau are cases; subjects known to be event-free
// beyond tau are controls; subjects censored before tau belong to
// neither group but inform the censoring distribution.  Cases are
// weighted by 1/G(t-) at their own event time and controls by 1/G(tau).
//
// Callers evaluating at an administrative censoring boundary should
// pass a slightly smaller tau so that a control set at risk beyond tau
// exists; the engine handles this shift.
func UnoAUC(c *Cohort, score []float64, tau float64) (AUCResult, error) {

	if tau <= 0 {
		return AUCResult{}, &ConfigurationError{Msg: "auc: horizon must be positive"}
	}

	time := c.Time()
	status := c.Status()
	n := len(time)

	if len(score) != n {
		return AUCResult{}, &ConfigurationError{Msg: "auc: score length does not match cohort"}
	}

	cens := censorCurve(c)

	gtau, err := cens.weightAt(tau, false)
	if err != nil {
		return AUCResult{AUC: math.NaN()}, err
	}

	var caseIx, ctrlIx []int
	var caseWt []float64
	for i := range time {
		switch {
		case time[i] <= tau && status[i] == 1:
			w, err := cens.weightAt(time[i], true)
			if err != nil {
				return AUCResult{AUC: math.NaN()}, err
			}
			caseIx = append(caseIx, i)
			caseWt = append(caseWt, w)
		case time[i] > tau:
			ctrlIx = append(ctrlIx, i)
		}
	}

	if len(caseIx) == 0 || len(ctrlIx) == 0 {
		return AUCResult{AUC: math.NaN()},
			&InsufficientDataError{Msg: "auc: no cases or no controls at the horizon"}
	}

	var numer, denom float64
	for k, i := range caseIx {
		for _, j := range ctrlIx {
			w := caseWt[k] * gtau
			denom += w
			switch {
			case score[i] > score[j]:
				numer += w
			case score[i] == score[j]:
				numer += w / 2
			}
		}
	}

	a := numer / denom

	return AUCResult{
		AUC:      a,
		SE:       hanleyMcNeilSE(a, len(caseIx), len(ctrlIx)),
		Cases:    len(caseIx),
		Controls: len(ctrlIx),
	}, nil
}
