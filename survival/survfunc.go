package survival

import (
	"math"
	"sort"
)

// StepCurve is a right-continuous step function on [0, inf), used for
// survival curves and baseline survival estimates.  Its value is 1
// before the first jump time and is held at the last level beyond the
// final jump time.
type StepCurve struct {

	// Jump times, sorted ascending.
	times []float64

	// values[i] is the value of the curve on [times[i], times[i+1]).
	values []float64
}

// NewStepCurve constructs a step curve from sorted jump times and the
// curve levels at those times.
func NewStepCurve(times, values []float64) *StepCurve {
	return &StepCurve{times: times, values: values}
}

// Times returns the jump times of the curve.
func (sc *StepCurve) Times() []float64 {
	return sc.times
}

// Values returns the curve levels at the jump times.
func (sc *StepCurve) Values() []float64 {
	return sc.values
}

// At returns the value of the curve at time t (right-continuous).
func (sc *StepCurve) At(t float64) float64 {

	i := sort.SearchFloat64s(sc.times, t)
	if i < len(sc.times) && sc.times[i] == t {
		return sc.values[i]
	}
	if i == 0 {
		return 1
	}
	return sc.values[i-1]
}

// AtLeft returns the left limit of the curve at time t, i.e. its value
// just before t.  This is the standard lookup for inverse probability of
// censoring weights at event times.
func (sc *StepCurve) AtLeft(t float64) float64 {

	i := sort.SearchFloat64s(sc.times, t)
	if i == 0 {
		return 1
	}
	return sc.values[i-1]
}

// Quantile returns the first jump time at which the curve falls to p or
// below, or NaN if the curve never reaches p.
func (sc *StepCurve) Quantile(p float64) float64 {

	for i := range sc.times {
		if sc.values[i] <= p {
			return sc.times[i]
		}
	}
	return math.NaN()
}

// weightAt returns the inverse probability weight 1/sc(t), or a
// DegenerateWeightError if the curve is zero at t.
func (sc *StepCurve) weightAt(t float64, left bool) (float64, error) {

	var g float64
	if left {
		g = sc.AtLeft(t)
	} else {
		g = sc.At(t)
	}
	if g <= 0 {
		return 0, &DegenerateWeightError{Time: t}
	}
	return 1 / g, nil
}

// SurvfuncRight uses the method of Kaplan and Meier to estimate the
// survival distribution based on (possibly) right censored data.  In
// reverse form the roles of the event and censoring indicators are
// swapped, yielding an estimate of the censoring distribution G(t),
// which is the ingredient needed for inverse probability of censoring
// weighting.
type SurvfuncRight struct {

	// Estimate the censoring distribution rather than the event
	// distribution.
	reverse bool

	// Times at which events occur, sorted.
	times []float64

	// Number of events at each time in times.
	nEvents []float64

	// Number of subjects at risk just before each time in times.
	nRisk []float64

	// The estimated survival function evaluated at each time in times.
	survProb []float64

	// Greenwood standard errors for the estimates in survProb.
	survProbSE []float64
}

// FitSurvfunc estimates the survival distribution of the cohort.  If
// reverse is true, the censoring distribution is estimated instead by
// exchanging the roles of events and censorings.
func FitSurvfunc(c *Cohort, reverse bool) *SurvfuncRight {

	sf := &SurvfuncRight{reverse: reverse}

	time := c.Time()
	status := c.Status()

	events := make(map[float64]float64)
	total := make(map[float64]float64)

	for i, t := range time {
		s := status[i]
		if reverse {
			s = 1 - s
		}
		if s == 1 {
			events[t]++
		}
		total[t] += 1
	}

	// Sorted distinct times, event or censoring.
	sf.times = make([]float64, 0, len(total))
	for t := range total {
		sf.times = append(sf.times, t)
	}
	sort.Float64s(sf.times)

	// Weighted event count and risk set size at each time point.
	sf.nEvents = make([]float64, len(sf.times))
	sf.nRisk = make([]float64, len(sf.times))
	for i, t := range sf.times {
		sf.nEvents[i] = events[t]
		sf.nRisk[i] = total[t]
	}
	rollback(sf.nRisk)

	sf.compress()
	sf.fit()

	return sf
}

// rollback replaces x with its reverse cumulative sums.
func rollback(x []float64) {
	var z float64
	for i := len(x) - 1; i >= 0; i-- {
		z += x[i]
		x[i] = z
	}
}

// compress removes times where no events occurred, except for the last
// point, which is retained even if there are no events there.
func (sf *SurvfuncRight) compress() {

	var ix []int
	for i := 0; i < len(sf.times); i++ {
		if sf.nEvents[i] > 0 || i == len(sf.times)-1 {
			ix = append(ix, i)
		}
	}

	if len(ix) < len(sf.times) {
		for i, j := range ix {
			sf.times[i] = sf.times[j]
			sf.nEvents[i] = sf.nEvents[j]
			sf.nRisk[i] = sf.nRisk[j]
		}
		sf.times = sf.times[0:len(ix)]
		sf.nEvents = sf.nEvents[0:len(ix)]
		sf.nRisk = sf.nRisk[0:len(ix)]
	}
}

func (sf *SurvfuncRight) fit() {

	sf.survProb = make([]float64, len(sf.times))
	x := float64(1)
	for i := range sf.times {
		x *= 1 - sf.nEvents[i]/sf.nRisk[i]
		sf.survProb[i] = x
	}

	sf.survProbSE = make([]float64, len(sf.times))
	x = 0
	for i := range sf.times {
		d := sf.nEvents[i]
		n := sf.nRisk[i]
		if n > d {
			x += d / (n * (n - d))
		} else {
			x = math.Inf(1)
		}
		sf.survProbSE[i] = math.Sqrt(x) * sf.survProb[i]
	}
}

// Time returns the times at which the survival function changes.
func (sf *SurvfuncRight) Time() []float64 {
	return sf.times
}

// NumRisk returns the number of subjects at risk at each time point
// where the survival function changes.
func (sf *SurvfuncRight) NumRisk() []float64 {
	return sf.nRisk
}

// SurvProb returns the estimated survival probabilities at the points
// where the survival function changes.
func (sf *SurvfuncRight) SurvProb() []float64 {
	return sf.survProb
}

// SurvProbSE returns the standard errors of the estimated survival
// probabilities at the points where the survival function changes.
func (sf *SurvfuncRight) SurvProbSE() []float64 {
	return sf.survProbSE
}

// Curve returns the estimated survival function as a step curve.
func (sf *SurvfuncRight) Curve() *StepCurve {
	return &StepCurve{times: sf.times, values: sf.survProb}
}

// censorCurve estimates the censoring distribution G(t) of the cohort.
// If the cohort has no censored observations the returned curve is
// identically 1.
func censorCurve(c *Cohort) *StepCurve {

	status := c.Status()
	ncens := 0
	for _, s := range status {
		if s == 0 {
			ncens++
		}
	}
	if ncens == 0 {
		return &StepCurve{
			times:  []float64{0, math.Inf(1)},
			values: []float64{1, 1},
		}
	}

	return FitSurvfunc(c, true).Curve()
}

// MedianFollowup returns the median follow-up time of the cohort,
// estimated with the reverse Kaplan-Meier method.
func MedianFollowup(c *Cohort) float64 {
	return FitSurvfunc(c, true).Curve().Quantile(0.5)
}
