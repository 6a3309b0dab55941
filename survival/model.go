package survival

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// FittedModel is an immutable proportional hazards model produced by
// PHReg.Fit.  It holds the coefficient estimates, their sampling
// covariance, the covariate centering reference, and the Breslow
// baseline survival curve, and can evaluate linear predictors and
// survival probabilities on new cohorts.
type FittedModel struct {
	xnames     []string
	coeff      []float64
	vcov       []float64
	xmean      []float64
	offsetName string
	ties       TieMethod

	// Baseline survival at the covariate means, S0(t).
	baseline *StepCurve

	loglike         float64
	nobs            int
	nevents         int
	skipEarlyCensor int
}

// Names returns the covariate names of the model.
func (fm *FittedModel) Names() []string {
	return fm.xnames
}

// Coeff returns a copy of the estimated coefficients.
func (fm *FittedModel) Coeff() []float64 {
	c := make([]float64, len(fm.coeff))
	copy(c, fm.coeff)
	return c
}

// LogLike returns the maximized partial log-likelihood.
func (fm *FittedModel) LogLike() float64 {
	return fm.loglike
}

// Ties returns the tie-handling method used to fit the model.
func (fm *FittedModel) Ties() TieMethod {
	return fm.ties
}

// NumObs returns the number of observations used to fit the model.
func (fm *FittedModel) NumObs() int {
	return fm.nobs
}

// NumEvents returns the number of events in the fitting cohort.
func (fm *FittedModel) NumEvents() int {
	return fm.nevents
}

// StdErr returns the standard errors of the coefficient estimates, or
// nil if the information matrix could not be inverted.
func (fm *FittedModel) StdErr() []float64 {

	if fm.vcov == nil {
		return nil
	}
	p := len(fm.coeff)
	se := make([]float64, p)
	for j := 0; j < p; j++ {
		se[j] = math.Sqrt(fm.vcov[j*p+j])
	}
	return se
}

// BaselineSurvival returns the Breslow baseline survival curve,
// evaluated at the covariate means of the fitting cohort.
func (fm *FittedModel) BaselineSurvival() *StepCurve {
	return fm.baseline
}

// LinearPredictors evaluates the centered linear predictor for every
// row of the cohort.  The cohort must contain all model covariates (and
// the offset variable, if the model was fit with one).
func (fm *FittedModel) LinearPredictors(c *Cohort) []float64 {

	lp := make([]float64, c.NumObs())

	for j, na := range fm.xnames {
		x := c.Column(na)
		if x == nil {
			panic(fmt.Sprintf("cohort is missing model covariate '%s'", na))
		}
		for i := range x {
			lp[i] += (x[i] - fm.xmean[j]) * fm.coeff[j]
		}
	}

	if fm.offsetName != "" {
		off := c.Column(fm.offsetName)
		if off == nil {
			panic(fmt.Sprintf("cohort is missing offset variable '%s'", fm.offsetName))
		}
		for i := range off {
			lp[i] += off[i]
		}
	}

	return lp
}

// SurvivalProbabilities returns S(t|x) = S0(t)^exp(lp(x)) for every row
// of the cohort.  The returned values are non-increasing in t for any
// fixed row.
func (fm *FittedModel) SurvivalProbabilities(c *Cohort, t float64) []float64 {

	lp := fm.LinearPredictors(c)
	s0 := fm.baseline.At(t)

	sp := make([]float64, len(lp))
	for i := range lp {
		sp[i] = math.Pow(s0, math.Exp(lp[i]))
	}
	return sp
}

// Summary returns a text summary of the fitted model in the house table
// style.
func (fm *FittedModel) Summary() string {

	tbl := &SummaryTable{
		Title: "Proportional hazards regression analysis",
		Top: []string{
			fmt.Sprintf("  Sample size: %10d", fm.nobs),
			fmt.Sprintf("  Events:      %10d", fm.nevents),
			fmt.Sprintf("  Ties:        %10s", fm.ties),
			fmt.Sprintf("  Log-like:    %10.2f", fm.loglike),
		},
	}

	se := fm.StdErr()
	if se != nil {
		tbl.ColNames = []string{"Variable   ", "Coefficient", "SE", "HR", "LCB", "UCB", "Z-score", "P-value"}
		for j, na := range fm.xnames {
			b := fm.coeff[j]
			z := b / se[j]
			pv := 2 * normCDF(-math.Abs(z))
			tbl.Rows = append(tbl.Rows, []string{
				fmt.Sprintf("%-11s", na),
				fmt.Sprintf("%10.4f", b),
				fmt.Sprintf("%10.4f", se[j]),
				fmt.Sprintf("%10.4f", math.Exp(b)),
				fmt.Sprintf("%10.4f", math.Exp(b-2*se[j])),
				fmt.Sprintf("%10.4f", math.Exp(b+2*se[j])),
				fmt.Sprintf("%10.4f", z),
				fmt.Sprintf("%10.4f", pv),
			})
		}
	} else {
		tbl.ColNames = []string{"Variable   ", "Coefficient", "HR"}
		for j, na := range fm.xnames {
			b := fm.coeff[j]
			tbl.Rows = append(tbl.Rows, []string{
				fmt.Sprintf("%-11s", na),
				fmt.Sprintf("%10.4f", b),
				fmt.Sprintf("%10.4f", math.Exp(b)),
			})
		}
	}

	if fm.skipEarlyCensor > 0 {
		tbl.Msg = append(tbl.Msg,
			fmt.Sprintf("%d observations dropped for being censored before the first event", fm.skipEarlyCensor))
	}

	return tbl.String()
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// invertPosDef inverts a vectorized p x p positive definite matrix.
func invertPosDef(a []float64, p int) ([]float64, error) {

	am := mat.NewDense(p, p, a)
	var ai mat.Dense
	if err := ai.Inverse(am); err != nil {
		return nil, err
	}

	out := make([]float64, p*p)
	for j1 := 0; j1 < p; j1++ {
		for j2 := 0; j2 < p; j2++ {
			out[j1*p+j2] = ai.At(j1, j2)
		}
	}
	return out, nil
}
