package validate

import (
	"context"
	"fmt"
	"log"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"

	"github.com/daviemac78/Prediction-performance-survival/survival"
)

// Metric names a performance metric recognized by the engine.
type Metric string

// The recognized metrics.  HarrellC and UnoC are concordance
// statistics, UnoAUC is the time-dependent AUC at the (shifted)
// horizon, Brier and IPA are the censoring-weighted Brier score and its
// scaled form, OERatio and the calibration metrics summarize agreement
// between predicted and observed risk at the horizon.
const (
	HarrellC     Metric = "harrell_c"
	UnoC         Metric = "uno_c"
	UnoAUC       Metric = "uno_auc"
	Brier        Metric = "brier"
	IPA          Metric = "ipa"
	OERatio      Metric = "oe_ratio"
	CalSlope     Metric = "cal_slope"
	CalIntercept Metric = "cal_intercept"
	ICI          Metric = "ici"
	E50          Metric = "e50"
	E90          Metric = "e90"
)

// AllMetrics lists every recognized metric in reporting order.
var AllMetrics = []Metric{
	HarrellC, UnoC, UnoAUC, Brier, IPA, OERatio, CalSlope, CalIntercept, ICI, E50, E90,
}

// CIMethod selects how confidence intervals for corrected estimates are
// formed.
type CIMethod int

const (
	// CIAuto reproduces the source methodology: percentile bootstrap
	// intervals for Brier/IPA/calibration metrics, analytic
	// (apparent-fit) intervals for concordance and AUC.
	CIAuto CIMethod = iota

	// CIPercentile uses percentile bootstrap intervals for all
	// metrics.
	CIPercentile

	// CIAnalytic uses analytic intervals wherever a standard error
	// is available, percentile intervals otherwise.
	CIAnalytic
)

// Config defines a validation run.
type Config struct {

	// B is the number of bootstrap replicates.
	B int

	// Horizon is the prediction time for horizon-based metrics.
	Horizon float64

	// HorizonShift is subtracted from Horizon when evaluating
	// metrics whose risk sets degenerate at an administrative
	// censoring boundary (the time-dependent AUC).  Zero selects the
	// default of 0.05; a negative value is invalid.
	HorizonShift float64

	// Seed is the base RNG seed.  Replicate r uses Seed+r, so runs
	// are reproducible regardless of scheduling.
	Seed uint64

	// Metrics is the set of metrics to compute.  Empty means all.
	Metrics []Metric

	// Predictors names the model covariates in the cohorts.
	Predictors []string

	// AdminCensorTime, if positive, administratively censors both
	// cohorts at this time before any computation.
	AdminCensorTime float64

	// Ties selects the tie-handling method of every model fit.
	Ties survival.TieMethod

	// Workers bounds the number of concurrent replicate fits.  Zero
	// selects the number of CPUs.
	Workers int

	// CI selects the confidence interval method for corrected
	// estimates.
	CI CIMethod

	// Log receives progress and diagnostic messages.
	Log *log.Logger
}

// Engine runs the bootstrap optimism procedure.
type Engine struct {
	cfg     Config
	metrics []Metric
}

// New validates the configuration and returns an engine.  All
// configuration problems are reported here, before any fitting starts.
func New(cfg Config) (*Engine, error) {

	if cfg.B <= 0 {
		return nil, &survival.ConfigurationError{Msg: fmt.Sprintf("validate: B must be positive, got %d", cfg.B)}
	}
	if cfg.Horizon <= 0 {
		return nil, &survival.ConfigurationError{Msg: fmt.Sprintf("validate: horizon must be positive, got %v", cfg.Horizon)}
	}
	if cfg.HorizonShift < 0 {
		return nil, &survival.ConfigurationError{Msg: "validate: horizon shift may not be negative"}
	}
	if cfg.HorizonShift == 0 {
		cfg.HorizonShift = 0.05
	}
	if cfg.HorizonShift >= cfg.Horizon {
		return nil, &survival.ConfigurationError{Msg: "validate: horizon shift must be smaller than the horizon"}
	}
	if len(cfg.Predictors) == 0 {
		return nil, &survival.ConfigurationError{Msg: "validate: no predictors specified"}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}

	metrics := cfg.Metrics
	if len(metrics) == 0 {
		metrics = AllMetrics
	}
	known := make(map[Metric]bool)
	for _, m := range AllMetrics {
		known[m] = true
	}
	for _, m := range metrics {
		if !known[m] {
			return nil, &survival.ConfigurationError{Msg: fmt.Sprintf("validate: unknown metric '%s'", m)}
		}
	}

	return &Engine{cfg: cfg, metrics: metrics}, nil
}

// metricValue is one metric evaluated on one (model, cohort) pair.
type metricValue struct {
	est float64

	// Analytic standard error and bounds, where an estimator
	// provides them; NaN otherwise.
	se           float64
	lower, upper float64

	err error
}

// replicateResult carries one replicate's evaluations back to the
// aggregation barrier.
type replicateResult struct {
	index int
	ok    bool
	boot  map[Metric]metricValue
	test  map[Metric]metricValue
}

// Run executes the validation: fits the apparent model on the
// development cohort, runs B bootstrap replicates across the worker
// pool, and aggregates optimism-corrected estimates.  The validation
// cohort may be nil; when present, every metric is additionally
// evaluated on it with the apparent model.  Cancelling the context
// stops the run between replicates and discards partial results.
func (eng *Engine) Run(ctx context.Context, development, validation *survival.Cohort) (*Report, error) {

	cfg := eng.cfg

	if cfg.AdminCensorTime > 0 {
		development = development.AdminCensor(cfg.AdminCensorTime)
		if validation != nil {
			validation = validation.AdminCensor(cfg.AdminCensorTime)
		}
	}

	rep := &Report{
		RunID:          uuid.New(),
		Seed:           cfg.Seed,
		RequestedB:     cfg.B,
		Horizon:        cfg.Horizon,
		ShiftedHorizon: cfg.Horizon - cfg.HorizonShift,
		Ties:           cfg.Ties,
		Series:         make(map[Metric]*ReplicateSeries),
		devN:           development.NumObs(),
	}
	rep.devEvents, _ = development.NumEvents(math.Inf(1))

	// Apparent fit
	apparentModel, err := eng.fitModel(development)
	if err != nil {
		return nil, err
	}
	eng.logf("apparent model fit on %d subjects, %d events", rep.devN, rep.devEvents)

	apparent := eng.evaluate(apparentModel, development)
	for _, m := range eng.metrics {
		if v := apparent[m]; v.err != nil {
			rep.Warnings = append(rep.Warnings,
				fmt.Sprintf("metric %s undefined on development cohort: %v", m, v.err))
		}
	}

	var external map[Metric]metricValue
	if validation != nil {
		external = eng.evaluate(apparentModel, validation)
	}

	// Fan out the replicates.
	results, err := eng.runReplicates(ctx, development)
	if err != nil {
		return nil, err
	}

	eng.aggregate(rep, apparent, external, results, validation)

	return rep, nil
}

// fitModel fits the configured model to a cohort.
func (eng *Engine) fitModel(c *survival.Cohort) (*survival.FittedModel, error) {

	phcfg := survival.DefaultPHRegConfig()
	phcfg.Ties = eng.cfg.Ties

	ph, err := survival.NewPHReg(c, eng.cfg.Predictors, phcfg)
	if err != nil {
		return nil, err
	}
	return ph.Fit()
}

// runReplicates executes the bootstrap replicates on the worker pool
// and blocks until every replicate has finished (the aggregation
// barrier).
func (eng *Engine) runReplicates(ctx context.Context, development *survival.Cohort) ([]replicateResult, error) {

	cfg := eng.cfg

	jobs := make(chan int)
	out := make(chan replicateResult, cfg.B)

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range jobs {
				if ctx.Err() != nil {
					continue
				}
				out <- eng.replicate(r, development)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for r := 0; r < cfg.B; r++ {
			select {
			case <-ctx.Done():
				return
			case jobs <- r:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	var results []replicateResult
	for res := range out {
		results = append(results, res)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })

	return results, nil
}

// replicate performs one RESAMPLE/FIT/EVALUATE cycle.  Each replicate
// owns a private RNG seeded from the base seed and its own index, so
// results do not depend on scheduling.
func (eng *Engine) replicate(r int, development *survival.Cohort) replicateResult {

	rng := rand.New(rand.NewSource(eng.cfg.Seed + uint64(r)))
	boot := development.Resample(rng)

	model, err := eng.fitModel(boot)
	if err != nil {
		eng.logf("replicate %d: fit failed, excluded: %v", r, err)
		return replicateResult{index: r}
	}

	return replicateResult{
		index: r,
		ok:    true,
		boot:  eng.evaluate(model, boot),
		test:  eng.evaluate(model, development),
	}
}

// evaluate computes every requested metric for the given model on the
// given cohort.  Per-metric failures are recorded on the value, never
// raised.
func (eng *Engine) evaluate(model *survival.FittedModel, co *survival.Cohort) map[Metric]metricValue {

	cfg := eng.cfg
	out := make(map[Metric]metricValue)
	want := make(map[Metric]bool)
	for _, m := range eng.metrics {
		want[m] = true
	}

	nan := math.NaN()

	// A failed metric is reported as NaN with the failure recorded;
	// partial estimates are never surfaced.
	mv := func(est, se, lower, upper float64, err error) metricValue {
		if err != nil {
			return metricValue{est: nan, se: nan, lower: nan, upper: nan, err: err}
		}
		return metricValue{est: est, se: se, lower: lower, upper: upper, err: nil}
	}

	lp := model.LinearPredictors(co)
	var sp []float64
	if want[Brier] || want[IPA] || want[OERatio] || want[CalSlope] || want[CalIntercept] ||
		want[ICI] || want[E50] || want[E90] {
		sp = model.SurvivalProbabilities(co, cfg.Horizon)
	}

	if want[HarrellC] {
		r, err := survival.HarrellC(co, lp)
		out[HarrellC] = mv(r.Concordance, r.SE,
			r.Concordance-1.96*r.SE, r.Concordance+1.96*r.SE, err)
	}

	if want[UnoC] {
		r, err := survival.UnoC(co, lp, cfg.Horizon)
		out[UnoC] = mv(r.Concordance, r.SE,
			r.Concordance-1.96*r.SE, r.Concordance+1.96*r.SE, err)
	}

	if want[UnoAUC] {
		r, err := survival.UnoAUC(co, lp, cfg.Horizon-cfg.HorizonShift)
		out[UnoAUC] = mv(r.AUC, r.SE, r.AUC-1.96*r.SE, r.AUC+1.96*r.SE, err)
	}

	if want[Brier] || want[IPA] {
		r, err := survival.ScaledBrier(co, sp, cfg.Horizon)
		if want[Brier] {
			out[Brier] = mv(r.Brier, nan, nan, nan, err)
		}
		if want[IPA] {
			out[IPA] = mv(r.IPA, nan, nan, nan, err)
		}
	}

	if want[OERatio] {
		r, err := survival.OERatio(co, sp, cfg.Horizon)
		out[OERatio] = mv(r.OE, nan, r.Lower, r.Upper, err)
	}

	if want[CalSlope] || want[CalIntercept] {
		r, err := survival.WeakCalibration(co, sp, cfg.Horizon)
		if want[CalSlope] {
			out[CalSlope] = mv(r.Slope, r.SlopeSE,
				r.Slope-1.96*r.SlopeSE, r.Slope+1.96*r.SlopeSE, err)
		}
		if want[CalIntercept] {
			out[CalIntercept] = mv(r.Intercept, nan, nan, nan, err)
		}
	}

	if want[ICI] || want[E50] || want[E90] {
		r, err := survival.ModerateCalibration(co, sp, cfg.Horizon)
		if want[ICI] {
			out[ICI] = mv(r.ICI, nan, nan, nan, err)
		}
		if want[E50] {
			out[E50] = mv(r.E50, nan, nan, nan, err)
		}
		if want[E90] {
			out[E90] = mv(r.E90, nan, nan, nan, err)
		}
	}

	return out
}

// analyticCI reports whether the corrected interval for metric m should
// come from the apparent fit's analytic standard error under the
// configured CI method.
func (eng *Engine) analyticCI(m Metric, apparent metricValue) bool {

	switch eng.cfg.CI {
	case CIPercentile:
		return false
	case CIAnalytic:
		return !math.IsNaN(apparent.se)
	default:
		// Source-methodology default: analytic for rank statistics,
		// percentile for accuracy and calibration metrics.
		return (m == HarrellC || m == UnoC || m == UnoAUC) && !math.IsNaN(apparent.se)
	}
}

// aggregate folds replicate results into optimism-corrected records.
func (eng *Engine) aggregate(rep *Report, apparent, external map[Metric]metricValue,
	results []replicateResult, validation *survival.Cohort) {

	B := eng.cfg.B

	for _, res := range results {
		if res.ok {
			rep.EffectiveB++
		}
	}
	if rep.EffectiveB < B {
		rep.Warnings = append(rep.Warnings,
			fmt.Sprintf("effective B reduced to %d of %d by non-convergent replicate fits",
				rep.EffectiveB, B))
	}

	for _, m := range eng.metrics {

		ap := apparent[m]

		series := &ReplicateSeries{
			Bootstrap: nanSlice(B),
			Test:      nanSlice(B),
			Optimism:  nanSlice(B),
		}
		rep.Series[m] = series

		var optSum float64
		var adjusted []float64
		var nOK int
		for _, res := range results {
			if !res.ok {
				continue
			}
			b := res.boot[m].est
			t := res.test[m].est
			series.Bootstrap[res.index] = b
			series.Test[res.index] = t
			if math.IsNaN(b) || math.IsNaN(t) {
				continue
			}
			opt := b - t
			series.Optimism[res.index] = opt
			optSum += opt
			adjusted = append(adjusted, ap.est-opt)
			nOK++
		}

		rep.Records = append(rep.Records, MetricRecord{
			Metric:   m,
			Role:     Apparent,
			Horizon:  eng.metricHorizon(m),
			Estimate: ap.est,
			SE:       ap.se,
			Lower:    ap.lower,
			Upper:    ap.upper,
			N:        rep.devN,
		})

		if external != nil {
			ex := external[m]
			rep.Records = append(rep.Records, MetricRecord{
				Metric:   m,
				Role:     External,
				Horizon:  eng.metricHorizon(m),
				Estimate: ex.est,
				SE:       ex.se,
				Lower:    ex.lower,
				Upper:    ex.upper,
				N:        validation.NumObs(),
			})
			if ex.err != nil {
				rep.Warnings = append(rep.Warnings,
					fmt.Sprintf("metric %s undefined on validation cohort: %v", m, ex.err))
			}
		}

		corrected := MetricRecord{
			Metric:   m,
			Role:     Corrected,
			Horizon:  eng.metricHorizon(m),
			Estimate: math.NaN(),
			SE:       math.NaN(),
			Lower:    math.NaN(),
			Upper:    math.NaN(),
			N:        nOK,
		}

		if nOK > 0 && !math.IsNaN(ap.est) {
			corrected.Estimate = ap.est - optSum/float64(nOK)

			if eng.analyticCI(m, ap) {
				corrected.SE = ap.se
				corrected.Lower = corrected.Estimate - 1.96*ap.se
				corrected.Upper = corrected.Estimate + 1.96*ap.se
			} else if nOK >= 2 {
				sort.Float64s(adjusted)
				corrected.Lower = stat.Quantile(0.025, stat.Empirical, adjusted, nil)
				corrected.Upper = stat.Quantile(0.975, stat.Empirical, adjusted, nil)
			}
		}
		rep.Records = append(rep.Records, corrected)

		if nOK < rep.EffectiveB {
			rep.Warnings = append(rep.Warnings,
				fmt.Sprintf("metric %s estimable on %d of %d successful replicates",
					m, nOK, rep.EffectiveB))
		}
	}

	if eng.cfg.CI == CIAuto {
		rep.Warnings = append(rep.Warnings,
			"default CI method: analytic (apparent fit) for concordance/AUC, percentile bootstrap otherwise")
	}
}

// metricHorizon reports the horizon a metric is actually evaluated at.
func (eng *Engine) metricHorizon(m Metric) float64 {

	if m == UnoAUC {
		return eng.cfg.Horizon - eng.cfg.HorizonShift
	}
	if m == HarrellC {
		return math.Inf(1)
	}
	return eng.cfg.Horizon
}

func nanSlice(n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = math.NaN()
	}
	return x
}

func (eng *Engine) logf(format string, args ...interface{}) {
	if eng.cfg.Log != nil {
		eng.cfg.Log.Printf(format, args...)
	}
}
