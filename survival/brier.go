package survival

import "math"

// BrierResult holds the censoring-weighted Brier score of a set of
// predicted survival probabilities, the Brier score of the null
// (covariate-free) model on the same cohort, and the scaled Brier score
// (index of prediction accuracy).
type BrierResult struct {

	// The Brier score of the predictions at the horizon.
	Brier float64

	// The Brier score of the null model at the horizon.
	BrierNull float64

	// IPA = 1 - Brier/BrierNull.  Negative values indicate a model
	// worse than the null model and are reported as-is.
	IPA float64
}

// BrierScore computes the censoring-weighted Brier score of Graf et al.
// at the horizon tau.  survProb[i] is the predicted probability that
// subject i survives beyond tau.  Subjects with an event by tau
// contribute survProb^2 weighted by 1/G(t-) at their own event time;
// subjects followed beyond tau contribute (1-survProb)^2 weighted by
// 1/G(tau); subjects censored before tau contribute nothing directly
// but inform the censoring distribution G.
func BrierScore(c *Cohort, survProb []float64, tau float64) (float64, error) {

	if tau <= 0 {
		return math.NaN(), &ConfigurationError{Msg: "brier: horizon must be positive"}
	}

	time := c.Time()
	status := c.Status()
	n := len(time)

	if len(survProb) != n {
		return math.NaN(), &ConfigurationError{Msg: "brier: prediction length does not match cohort"}
	}

	_, nevt := c.NumEvents(tau)
	if nevt == 0 {
		return math.NaN(), &InsufficientDataError{Msg: "brier: no events at or before the horizon"}
	}

	cens := censorCurve(c)

	var total float64
	for i := range time {
		switch {
		case time[i] <= tau && status[i] == 1:
			w, err := cens.weightAt(time[i], true)
			if err != nil {
				return math.NaN(), err
			}
			total += w * survProb[i] * survProb[i]
		case time[i] > tau:
			w, err := cens.weightAt(tau, false)
			if err != nil {
				return math.NaN(), err
			}
			total += w * (1 - survProb[i]) * (1 - survProb[i])
		}
	}

	return total / float64(n), nil
}

// ScaledBrier computes the Brier score of the predictions, the Brier
// score of a null model fit on the same cohort (a proportional hazards
// model with no covariates, i.e. the Breslow baseline alone), and the
// index of prediction accuracy IPA = 1 - Brier/BrierNull.
func ScaledBrier(c *Cohort, survProb []float64, tau float64) (BrierResult, error) {

	brier, err := BrierScore(c, survProb, tau)
	if err != nil {
		return BrierResult{Brier: math.NaN(), BrierNull: math.NaN(), IPA: math.NaN()}, err
	}

	nullModel, err := fitNullModel(c)
	if err != nil {
		return BrierResult{Brier: brier, BrierNull: math.NaN(), IPA: math.NaN()}, err
	}

	s0 := nullModel.BaselineSurvival().At(tau)
	nullProb := make([]float64, c.NumObs())
	for i := range nullProb {
		nullProb[i] = s0
	}

	brierNull, err := BrierScore(c, nullProb, tau)
	if err != nil {
		return BrierResult{Brier: brier, BrierNull: math.NaN(), IPA: math.NaN()}, err
	}

	return BrierResult{
		Brier:     brier,
		BrierNull: brierNull,
		IPA:       1 - brier/brierNull,
	}, nil
}

// fitNullModel fits a covariate-free proportional hazards model to the
// cohort, which serves as the reference for the scaled Brier score.
func fitNullModel(c *Cohort) (*FittedModel, error) {

	ph, err := NewPHReg(c, nil, nil)
	if err != nil {
		return nil, err
	}
	return ph.Fit()
}
