package survival

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// OEResult holds the observed/expected ratio at a fixed horizon with a
// Normal-approximation confidence interval.
type OEResult struct {
	OE       float64
	Lower    float64
	Upper    float64
	Observed float64
	Expected float64
	Events   int
}

// WeakCalibrationResult holds the calibration slope and the
// slope-adjusted calibration intercept of a set of predicted survival
// probabilities.
type WeakCalibrationResult struct {
	Slope     float64
	SlopeSE   float64
	Intercept float64
}

// ModerateCalibrationResult summarizes the flexible calibration curve:
// the integrated calibration index (mean absolute difference between
// the smoothed observed risk and the predicted risk), its median (E50)
// and its 90th percentile (E90).
type ModerateCalibrationResult struct {
	ICI float64
	E50 float64
	E90 float64
}

// OERatio computes the ratio of observed to expected event probability
// at the horizon tau.  Observed risk is 1 - KM(tau) on the cohort;
// expected risk is the mean predicted event probability.  The
// confidence interval uses a Poisson-like variance on the log scale
// based on the number of observed events.
func OERatio(c *Cohort, survProb []float64, tau float64) (OEResult, error) {

	if tau <= 0 {
		return OEResult{}, &ConfigurationError{Msg: "oe: horizon must be positive"}
	}
	if len(survProb) != c.NumObs() {
		return OEResult{}, &ConfigurationError{Msg: "oe: prediction length does not match cohort"}
	}

	_, nevt := c.NumEvents(tau)
	if nevt == 0 {
		return OEResult{OE: math.NaN()},
			&InsufficientDataError{Msg: "oe: no events at or before the horizon"}
	}

	km := FitSurvfunc(c, false).Curve()
	observed := 1 - km.At(tau)

	var expected float64
	for _, s := range survProb {
		expected += 1 - s
	}
	expected /= float64(len(survProb))

	if expected <= 0 {
		return OEResult{OE: math.NaN()},
			&InsufficientDataError{Msg: "oe: expected event probability is zero"}
	}

	oe := observed / expected
	halfw := 1.96 * math.Sqrt(1/float64(nevt))

	return OEResult{
		OE:       oe,
		Lower:    oe * math.Exp(-halfw),
		Upper:    oe * math.Exp(halfw),
		Observed: observed,
		Expected: expected,
		Events:   nevt,
	}, nil
}

// cloglog maps a predicted survival probability to the complementary
// log-log scale, log(-log(S)).  Probabilities are clamped away from 0
// and 1 so the transform stays finite.
func cloglog(s float64) float64 {

	const eps = 1e-10
	if s < eps {
		s = eps
	}
	if s > 1-eps {
		s = 1 - eps
	}
	return math.Log(-math.Log(s))
}

// WeakCalibration estimates the calibration slope and intercept of the
// predictions at the horizon tau.  The slope is the coefficient of the
// cloglog-transformed predicted risk in a proportional hazards refit on
// the evaluation cohort.  The intercept compares observed and predicted
// risk on the cloglog scale after the slope adjustment: the model is
// refit with the slope-scaled transform as a fixed offset and the
// intercept is cloglog(observed risk) - cloglog(mean predicted risk)
// under that offset model.
func WeakCalibration(c *Cohort, survProb []float64, tau float64) (WeakCalibrationResult, error) {

	if tau <= 0 {
		return WeakCalibrationResult{}, &ConfigurationError{Msg: "calibration: horizon must be positive"}
	}
	if len(survProb) != c.NumObs() {
		return WeakCalibrationResult{}, &ConfigurationError{Msg: "calibration: prediction length does not match cohort"}
	}

	z := make([]float64, len(survProb))
	for i, s := range survProb {
		z[i] = cloglog(s)
	}

	// Calibration slope
	cz := c.withColumns([]string{"calz"}, [][]float64{z})
	ph, err := NewPHReg(cz, []string{"calz"}, nil)
	if err != nil {
		return WeakCalibrationResult{}, err
	}
	slopeModel, err := ph.Fit()
	if err != nil {
		return WeakCalibrationResult{Slope: math.NaN(), Intercept: math.NaN()}, err
	}
	slope := slopeModel.coeff[0]
	var slopeSE float64 = math.NaN()
	if se := slopeModel.StdErr(); se != nil {
		slopeSE = se[0]
	}

	// Slope-adjusted intercept
	off := make([]float64, len(z))
	for i := range z {
		off[i] = slope * z[i]
	}
	coff := c.withColumns([]string{"caloff"}, [][]float64{off})
	cfg := DefaultPHRegConfig()
	cfg.OffsetVar = "caloff"
	phOff, err := NewPHReg(coff, nil, cfg)
	if err != nil {
		return WeakCalibrationResult{Slope: slope, SlopeSE: slopeSE, Intercept: math.NaN()}, err
	}
	offModel, err := phOff.Fit()
	if err != nil {
		return WeakCalibrationResult{Slope: slope, SlopeSE: slopeSE, Intercept: math.NaN()}, err
	}

	sp := offModel.SurvivalProbabilities(coff, tau)
	var predicted float64
	for _, s := range sp {
		predicted += 1 - s
	}
	predicted /= float64(len(sp))

	km := FitSurvfunc(c, false).Curve()
	observed := 1 - km.At(tau)

	if observed <= 0 || predicted <= 0 {
		return WeakCalibrationResult{Slope: slope, SlopeSE: slopeSE, Intercept: math.NaN()},
			&InsufficientDataError{Msg: "calibration: no observed or predicted risk at the horizon"}
	}

	icept := cloglog(1-observed) - cloglog(1-predicted)

	return WeakCalibrationResult{
		Slope:     slope,
		SlopeSE:   slopeSE,
		Intercept: icept,
	}, nil
}

// ModerateCalibration fits a flexible calibration curve by regressing
// the cohort's outcomes on a 3-knot restricted cubic spline in the
// cloglog-transformed predicted risk, then summarizes the absolute
// differences between the smoothed observed risk and the predicted risk
// at each subject's own prediction.
func ModerateCalibration(c *Cohort, survProb []float64, tau float64) (ModerateCalibrationResult, error) {

	nan := ModerateCalibrationResult{ICI: math.NaN(), E50: math.NaN(), E90: math.NaN()}

	if tau <= 0 {
		return nan, &ConfigurationError{Msg: "calibration: horizon must be positive"}
	}
	if len(survProb) != c.NumObs() {
		return nan, &ConfigurationError{Msg: "calibration: prediction length does not match cohort"}
	}

	z := make([]float64, len(survProb))
	for i, s := range survProb {
		z[i] = cloglog(s)
	}

	// Knots at the 10th, 50th and 90th percentiles of the transform.
	zs := make([]float64, len(z))
	copy(zs, z)
	sort.Float64s(zs)
	k1 := stat.Quantile(0.1, stat.Empirical, zs, nil)
	k2 := stat.Quantile(0.5, stat.Empirical, zs, nil)
	k3 := stat.Quantile(0.9, stat.Empirical, zs, nil)
	if k1 == k2 || k2 == k3 {
		return nan, &InsufficientDataError{Msg: "calibration: predictions too concentrated for spline knots"}
	}

	spl := make([]float64, len(z))
	for i := range z {
		spl[i] = rcsTerm(z[i], k1, k2, k3)
	}

	cz := c.withColumns([]string{"calz", "calspl"}, [][]float64{z, spl})
	ph, err := NewPHReg(cz, []string{"calz", "calspl"}, nil)
	if err != nil {
		return nan, err
	}
	model, err := ph.Fit()
	if err != nil {
		return nan, err
	}

	smooth := model.SurvivalProbabilities(cz, tau)

	diffs := make([]float64, len(z))
	for i := range z {
		diffs[i] = math.Abs((1 - smooth[i]) - (1 - survProb[i]))
	}

	var ici float64
	for _, d := range diffs {
		ici += d
	}
	ici /= float64(len(diffs))

	sort.Float64s(diffs)

	return ModerateCalibrationResult{
		ICI: ici,
		E50: stat.Quantile(0.5, stat.Empirical, diffs, nil),
		E90: stat.Quantile(0.9, stat.Empirical, diffs, nil),
	}, nil
}

// rcsTerm is the non-linear basis term of a 3-knot restricted cubic
// spline in the truncated power form, normalized by the squared knot
// span.
func rcsTerm(z, k1, k2, k3 float64) float64 {

	cube := func(u float64) float64 {
		if u <= 0 {
			return 0
		}
		return u * u * u
	}

	v := cube(z-k1) - cube(z-k2)*(k3-k1)/(k3-k2) + cube(z-k3)*(k2-k1)/(k3-k2)
	return v / ((k3 - k1) * (k3 - k1))
}
