package survival

import (
	"fmt"
	"log"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// TieMethod selects the approximation used to resolve tied event times
// in the partial likelihood.
type TieMethod int

// EfronTies is the default tie handling method.  BreslowTies is cruder
// but cheaper, and is what some reference implementations use; switching
// between them changes the coefficient estimates subtly, so the method
// in use is recorded on the fitted model and shown in summaries.
const (
	EfronTies TieMethod = iota
	BreslowTies
)

// String returns the conventional name of the tie method.
func (t TieMethod) String() string {
	if t == BreslowTies {
		return "breslow"
	}
	return "efron"
}

// PHRegConfig defines configuration parameters for a proportional
// hazards regression.
type PHRegConfig struct {

	// A logger to which diagnostic information is written.
	Log *log.Logger

	// Start contains starting values for the regression parameter
	// estimates.
	Start []float64

	// Ties selects the tie-handling method in the partial likelihood.
	Ties TieMethod

	// OffsetVar is the name of a variable whose values enter the
	// linear predictor with a fixed coefficient of 1.
	OffsetVar string

	// OptMethod is the gonum optimization method used to fit the model.
	OptMethod optimize.Method

	// OptSettings configures the gonum optimization routine.
	OptSettings *optimize.Settings
}

// DefaultPHRegConfig returns a default configuration for a proportional
// hazards regression.
func DefaultPHRegConfig() *PHRegConfig {

	return &PHRegConfig{
		Ties: EfronTies,
		OptMethod: &optimize.BFGS{
			Linesearcher: &optimize.MoreThuente{},
		},
	}
}

// PHReg describes a proportional hazards regression model for right
// censored data.  The model may have zero covariates (an offset-only or
// intercept-free null model), in which case Fit performs no
// optimization and only the baseline hazard is estimated.
type PHReg struct {

	// The cohort to which the model is fit.
	cohort *Cohort

	// Positions of the covariates in the cohort.
	xpos []int

	// Names of the covariates, aligned with xpos.
	xnames []string

	// Position of the offset variable, or -1.
	offsetpos int

	// Covariate means, used as the centering reference.
	xmean []float64

	ties  TieMethod
	start []float64

	// The sorted distinct times at which events occur.
	etimes []float64

	// event[k] holds the row indices with an event at etimes[k].
	event [][]int

	// exit[k] holds the row indices that leave the risk set
	// immediately after etimes[k].
	exit [][]int

	// If skip[i] is true, case i is censored before the first event
	// and never contributes to any risk set.
	skip []bool

	// The number of cases that are skipped.
	skipEarlyCensor int

	optsettings *optimize.Settings
	optmethod   optimize.Method

	log *log.Logger
}

// NewPHReg returns a PHReg value that can be used to fit a proportional
// hazards regression model to the cohort.  predictors may be empty.
func NewPHReg(c *Cohort, predictors []string, config *PHRegConfig) (*PHReg, error) {

	if config == nil {
		config = DefaultPHRegConfig()
	}

	pos := make(map[string]int)
	for j, na := range c.Names() {
		pos[na] = j
	}

	var xpos []int
	for _, xna := range predictors {
		xp, ok := pos[xna]
		if !ok {
			return nil, fmt.Errorf("predictor '%s' not found in cohort", xna)
		}
		xpos = append(xpos, xp)
	}

	offsetpos := -1
	if config.OffsetVar != "" {
		op, ok := pos[config.OffsetVar]
		if !ok {
			return nil, fmt.Errorf("offset variable '%s' not found in cohort", config.OffsetVar)
		}
		offsetpos = op
	}

	ph := &PHReg{
		cohort:      c,
		xpos:        xpos,
		xnames:      append([]string(nil), predictors...),
		offsetpos:   offsetpos,
		ties:        config.Ties,
		start:       config.Start,
		optsettings: config.OptSettings,
		optmethod:   config.OptMethod,
		log:         config.Log,
	}

	ph.setupTimes()
	ph.setupMeans()

	return ph, nil
}

// NumObs returns the number of observations in the data set.
func (ph *PHReg) NumObs() int {
	return ph.cohort.NumObs()
}

// NumParams returns the number of model parameters (regression
// coefficients).
func (ph *PHReg) NumParams() int {
	return len(ph.xpos)
}

// setupTimes identifies the distinct event times, the rows with events
// at each such time, and the rows leaving the risk set after each such
// time.  Cases censored before the first event never enter a risk set
// and are skipped.
func (ph *PHReg) setupTimes() {

	time := ph.cohort.Time()
	status := ph.cohort.Status()
	nobs := len(time)

	ph.skip = make([]bool, nobs)
	ph.skipEarlyCensor = 0

	var et []float64
	for i := range time {
		if status[i] == 1 {
			et = append(et, time[i])
		}
	}
	sort.Float64s(et)

	// Deduplicate
	if len(et) > 0 {
		j := 0
		for i := 1; i < len(et); i++ {
			if et[i] != et[j] {
				j++
				et[j] = et[i]
			}
		}
		et = et[0 : j+1]
	}
	ph.etimes = et

	ph.event = make([][]int, len(et))
	ph.exit = make([][]int, len(et))

	if len(et) == 0 {
		return
	}

	// Risk set exit times
	for i := range time {
		ii := sort.SearchFloat64s(et, time[i])
		switch {
		case ii == len(et):
			// Follow-up beyond the last event time, never exits
		case et[ii] == time[i]:
			// Event or censored at an event time
			ph.exit[ii] = append(ph.exit[ii], i)
		case ii == 0:
			// Censored before the first event, never enters
			ph.skip[i] = true
			ph.skipEarlyCensor++
		default:
			// Censored between event times
			ph.exit[ii-1] = append(ph.exit[ii-1], i)
		}
	}

	// Event times
	for i := range time {
		if status[i] == 0 || ph.skip[i] {
			continue
		}
		ii := sort.SearchFloat64s(et, time[i])
		ph.event[ii] = append(ph.event[ii], i)
	}
}

// setupMeans records the covariate means, which serve as the centering
// reference for the linear predictor and the baseline hazard.
func (ph *PHReg) setupMeans() {

	ph.xmean = make([]float64, len(ph.xpos))
	n := float64(ph.NumObs())
	for j, k := range ph.xpos {
		var s float64
		for _, v := range ph.cohort.data[k] {
			s += v
		}
		ph.xmean[j] = s / n
	}
}

// linpred fills lp with the centered linear predictor at the given
// parameter values, including the offset if present.
func (ph *PHReg) linpred(params []float64, lp []float64) {

	zero(lp)
	for j, k := range ph.xpos {
		x := ph.cohort.data[k]
		for i := range x {
			lp[i] += (x[i] - ph.xmean[j]) * params[j]
		}
	}

	if ph.offsetpos != -1 {
		off := ph.cohort.data[ph.offsetpos]
		for i := range off {
			lp[i] += off[i]
		}
	}
}

// LogLike returns the partial log-likelihood at the given parameter
// values, using the configured tie-handling method.
func (ph *PHReg) LogLike(params []float64) float64 {

	nobs := ph.NumObs()
	lp := make([]float64, nobs)
	elp := make([]float64, nobs)
	ph.linpred(params, lp)

	// Any constant can be subtracted here due to invariance in the
	// partial likelihood.
	mx := floats.Max(lp)
	for i := range lp {
		lp[i] -= mx
		elp[i] = math.Exp(lp[i])
	}

	// s0 is the sum of elp over the current risk set.
	var s0 float64
	for i := range elp {
		if !ph.skip[i] {
			s0 += elp[i]
		}
	}

	var ll float64
	for k := range ph.etimes {

		d := len(ph.event[k])
		var sd0 float64
		for _, i := range ph.event[k] {
			ll += lp[i]
			sd0 += elp[i]
		}

		for m := 0; m < d; m++ {
			f := 0.0
			if ph.ties == EfronTies {
				f = float64(m) / float64(d)
			}
			ll -= math.Log(s0 - f*sd0)
		}

		for _, i := range ph.exit[k] {
			s0 -= elp[i]
		}
	}

	return ll
}

// Score computes the score vector of the partial log-likelihood at the
// given parameter values, storing the result in score.
func (ph *PHReg) Score(params, score []float64) {

	zero(score)

	nobs := ph.NumObs()
	p := len(ph.xpos)
	lp := make([]float64, nobs)
	ph.linpred(params, lp)

	mx := floats.Max(lp)
	elp := make([]float64, nobs)
	for i := range lp {
		elp[i] = math.Exp(lp[i] - mx)
	}

	// Risk set sums of elp and elp*x.
	var s0 float64
	s1 := make([]float64, p)
	for i := range elp {
		if ph.skip[i] {
			continue
		}
		s0 += elp[i]
		for j, k := range ph.xpos {
			s1[j] += elp[i] * (ph.cohort.data[k][i] - ph.xmean[j])
		}
	}

	sd1 := make([]float64, p)
	for k := range ph.etimes {

		d := len(ph.event[k])
		var sd0 float64
		zero(sd1)
		for _, i := range ph.event[k] {
			sd0 += elp[i]
			for j, q := range ph.xpos {
				x := ph.cohort.data[q][i] - ph.xmean[j]
				score[j] += x
				sd1[j] += elp[i] * x
			}
		}

		for m := 0; m < d; m++ {
			f := 0.0
			if ph.ties == EfronTies {
				f = float64(m) / float64(d)
			}
			a0 := s0 - f*sd0
			for j := 0; j < p; j++ {
				score[j] -= (s1[j] - f*sd1[j]) / a0
			}
		}

		for _, i := range ph.exit[k] {
			s0 -= elp[i]
			for j, q := range ph.xpos {
				s1[j] -= elp[i] * (ph.cohort.data[q][i] - ph.xmean[j])
			}
		}
	}
}

// Hessian computes the Hessian matrix of the partial log-likelihood at
// the given parameter values, storing the result in hess, which is a
// vectorized p x p matrix.
func (ph *PHReg) Hessian(params, hess []float64) {

	zero(hess)

	nobs := ph.NumObs()
	p := len(ph.xpos)
	lp := make([]float64, nobs)
	ph.linpred(params, lp)

	mx := floats.Max(lp)
	elp := make([]float64, nobs)
	for i := range lp {
		elp[i] = math.Exp(lp[i] - mx)
	}

	// Risk set sums of elp, elp*x, and elp*x*x'.
	var s0 float64
	s1 := make([]float64, p)
	s2 := make([]float64, p*p)
	xc := make([]float64, p)

	update := func(i int, sign float64) {
		s0 += sign * elp[i]
		for j, q := range ph.xpos {
			xc[j] = ph.cohort.data[q][i] - ph.xmean[j]
		}
		for j1 := 0; j1 < p; j1++ {
			s1[j1] += sign * elp[i] * xc[j1]
			for j2 := 0; j2 <= j1; j2++ {
				u := sign * elp[i] * xc[j1] * xc[j2]
				s2[j1*p+j2] += u
				if j2 != j1 {
					s2[j2*p+j1] += u
				}
			}
		}
	}

	for i := range elp {
		if !ph.skip[i] {
			update(i, 1)
		}
	}

	sd1 := make([]float64, p)
	sd2 := make([]float64, p*p)

	for k := range ph.etimes {

		d := len(ph.event[k])
		var sd0 float64
		zero(sd1)
		zero(sd2)
		for _, i := range ph.event[k] {
			sd0 += elp[i]
			for j, q := range ph.xpos {
				xc[j] = ph.cohort.data[q][i] - ph.xmean[j]
			}
			for j1 := 0; j1 < p; j1++ {
				sd1[j1] += elp[i] * xc[j1]
				for j2 := 0; j2 <= j1; j2++ {
					u := elp[i] * xc[j1] * xc[j2]
					sd2[j1*p+j2] += u
					if j2 != j1 {
						sd2[j2*p+j1] += u
					}
				}
			}
		}

		for m := 0; m < d; m++ {
			f := 0.0
			if ph.ties == EfronTies {
				f = float64(m) / float64(d)
			}
			a0 := s0 - f*sd0
			for j1 := 0; j1 < p; j1++ {
				a1j1 := s1[j1] - f*sd1[j1]
				for j2 := 0; j2 < p; j2++ {
					a1j2 := s1[j2] - f*sd1[j2]
					a2 := s2[j1*p+j2] - f*sd2[j1*p+j2]
					hess[j1*p+j2] -= a2/a0 - a1j1*a1j2/(a0*a0)
				}
			}
		}

		for _, i := range ph.exit[k] {
			update(i, -1)
		}
	}
}

// baselineCumHaz returns the Breslow estimator of the baseline
// cumulative hazard function at the centered covariate reference, using
// the fitted coefficients.
func (ph *PHReg) baselineCumHaz(params []float64) ([]float64, []float64) {

	nobs := ph.NumObs()
	lp := make([]float64, nobs)
	ph.linpred(params, lp)

	elp := make([]float64, nobs)
	var s0 float64
	for i := range lp {
		elp[i] = math.Exp(lp[i])
		if !ph.skip[i] {
			s0 += elp[i]
		}
	}

	h := make([]float64, len(ph.etimes))
	var cum float64
	for k := range ph.etimes {
		cum += float64(len(ph.event[k])) / s0
		h[k] = cum
		for _, i := range ph.exit[k] {
			s0 -= elp[i]
		}
	}

	return ph.etimes, h
}

func zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}

func negative(x []float64) {
	for i := range x {
		x[i] *= -1
	}
}

// Fit fits the model to the cohort.  A failure of the optimizer to
// converge is reported as a NonConvergenceError; for a model with zero
// covariates no optimization is needed and only the baseline hazard is
// estimated.
func (ph *PHReg) Fit() (*FittedModel, error) {

	nvar := len(ph.xpos)

	if len(ph.etimes) == 0 {
		return nil, &InsufficientDataError{Msg: "phreg: no events in cohort"}
	}

	var coeff []float64
	var vcov []float64
	var ll float64

	if nvar == 0 {
		ll = ph.LogLike(nil)
	} else {
		start := ph.start
		if start == nil {
			start = make([]float64, nvar)
		}

		prob := optimize.Problem{
			Func: func(x []float64) float64 {
				return -ph.LogLike(x)
			},
			Grad: func(grad, x []float64) {
				if len(grad) != len(x) {
					grad = make([]float64, len(x))
				}
				ph.Score(x, grad)
				negative(grad)
			},
		}

		settings := ph.optsettings
		if settings == nil {
			settings = &optimize.Settings{
				GradientThreshold: 1e-5,
			}
		}
		method := ph.optmethod
		if method == nil {
			method = &optimize.BFGS{Linesearcher: &optimize.MoreThuente{}}
		}

		optrslt, err := optimize.Minimize(prob, start, settings, method)
		if err != nil {
			ph.logf("phreg: optimization failed: %v", err)
			return nil, &NonConvergenceError{Err: err}
		}
		if err = optrslt.Status.Err(); err != nil {
			ph.logf("phreg: optimization status: %v", err)
			return nil, &NonConvergenceError{Err: err}
		}

		coeff = make([]float64, nvar)
		copy(coeff, optrslt.X)
		ll = -optrslt.F
		vcov = ph.getVcov(coeff)
	}

	times, cumhaz := ph.baselineCumHaz(coeff)
	s0 := make([]float64, len(times))
	for i := range times {
		s0[i] = math.Exp(-cumhaz[i])
	}

	nevents, _ := ph.cohort.NumEvents(math.Inf(1))

	return &FittedModel{
		xnames:          ph.xnames,
		coeff:           coeff,
		vcov:            vcov,
		xmean:           ph.xmean,
		offsetName:      ph.offsetName(),
		ties:            ph.ties,
		baseline:        &StepCurve{times: times, values: s0},
		loglike:         ll,
		nobs:            ph.NumObs(),
		nevents:         nevents,
		skipEarlyCensor: ph.skipEarlyCensor,
	}, nil
}

func (ph *PHReg) offsetName() string {
	if ph.offsetpos == -1 {
		return ""
	}
	return ph.cohort.names[ph.offsetpos]
}

// getVcov inverts the observed information matrix.  If the information
// matrix is singular, nil is returned and no standard errors are
// available.
func (ph *PHReg) getVcov(coeff []float64) []float64 {

	p := len(ph.xpos)
	hess := make([]float64, p*p)
	ph.Hessian(coeff, hess)
	negative(hess)

	vcov, err := invertPosDef(hess, p)
	if err != nil {
		ph.logf("phreg: information matrix is singular, no standard errors: %v", err)
		return nil
	}
	return vcov
}

func (ph *PHReg) logf(format string, args ...interface{}) {
	if ph.log != nil {
		ph.log.Printf(format, args...)
	}
}
