// Package validate implements optimism-corrected internal validation of
// survival risk prediction models using bootstrap resampling, following
// the approach of Harrell and Steyerberg: the apparent performance of a
// model on its own development data is debiased by the average gap
// between each bootstrap model's performance on its resample and on the
// original data.
package validate

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/daviemac78/Prediction-performance-survival/survival"
)

// DatasetRole tags the data/model combination a metric value was
// computed on.  The role is always passed explicitly; it is never
// inferred from which cohort happens to be in scope.
type DatasetRole int

const (
	// Apparent: model fit on the development cohort, evaluated on
	// the development cohort.
	Apparent DatasetRole = iota

	// BootstrapInternal: replicate model evaluated on its own
	// bootstrap sample.
	BootstrapInternal

	// BootstrapExternal: replicate model evaluated on the original
	// development cohort.
	BootstrapExternal

	// Corrected: apparent performance minus mean optimism.
	Corrected

	// External: apparent model evaluated on the validation cohort.
	External
)

// String returns the conventional name of the dataset role.
func (r DatasetRole) String() string {
	switch r {
	case Apparent:
		return "apparent"
	case BootstrapInternal:
		return "bootstrap"
	case BootstrapExternal:
		return "test"
	case Corrected:
		return "corrected"
	case External:
		return "external"
	}
	return "unknown"
}

// MetricRecord is one row of the validation report: a metric estimate
// for a given dataset role and horizon, with uncertainty bounds where
// available.
type MetricRecord struct {
	Metric  Metric
	Role    DatasetRole
	Horizon float64

	Estimate float64
	SE       float64
	Lower    float64
	Upper    float64

	// N is the number of observations (apparent/external roles) or
	// the number of successful replicates (corrected role) behind
	// the estimate.
	N int
}

// ReplicateSeries holds the raw per-replicate values for one metric, in
// replicate order.  Failed or undefined replicates hold NaN.  These
// arrays support user-supplied aggregation and plotting.
type ReplicateSeries struct {

	// Metric evaluated on the bootstrap sample with its own model.
	Bootstrap []float64

	// Metric evaluated on the original development cohort with the
	// bootstrap model.
	Test []float64

	// Optimism[r] = Bootstrap[r] - Test[r].
	Optimism []float64
}

// Report is the result of a validation run.
type Report struct {

	// RunID identifies this validation run.
	RunID uuid.UUID

	// Seed is the base RNG seed of the run.
	Seed uint64

	// RequestedB and EffectiveB are the configured and achieved
	// numbers of bootstrap replicates; they differ when replicate
	// fits fail to converge.
	RequestedB int
	EffectiveB int

	// Horizon is the prediction horizon; ShiftedHorizon is the
	// epsilon-offset horizon used for risk-set sensitive metrics.
	Horizon        float64
	ShiftedHorizon float64

	// Ties records the tie-handling method of all model fits.
	Ties survival.TieMethod

	Records []MetricRecord

	// Series holds the raw per-replicate arrays, keyed by metric.
	Series map[Metric]*ReplicateSeries

	Warnings []string

	devN      int
	devEvents int
}

// Record returns the record for the given metric and role, or nil if
// absent.
func (rep *Report) Record(m Metric, role DatasetRole) *MetricRecord {

	for i := range rep.Records {
		if rep.Records[i].Metric == m && rep.Records[i].Role == role {
			return &rep.Records[i]
		}
	}
	return nil
}

// String renders the report as a text table.
func (rep *Report) String() string {

	tbl := &survival.SummaryTable{
		Title: "Optimism-corrected model validation",
		Top: []string{
			fmt.Sprintf("  Run:         %s", rep.RunID),
			fmt.Sprintf("  Sample size: %10d", rep.devN),
			fmt.Sprintf("  Events:      %10d", rep.devEvents),
			fmt.Sprintf("  Horizon:     %10.2f", rep.Horizon),
			fmt.Sprintf("  Replicates:  %6d of %d", rep.EffectiveB, rep.RequestedB),
			fmt.Sprintf("  Ties:        %10s", rep.Ties),
		},
		ColNames: []string{"Metric       ", "Role     ", "Estimate", "SE", "LCB", "UCB", "N"},
	}

	fnum := func(x float64) string {
		if math.IsNaN(x) {
			return "."
		}
		return fmt.Sprintf("%.4f", x)
	}

	for _, r := range rep.Records {
		tbl.Rows = append(tbl.Rows, []string{
			fmt.Sprintf("%-13s", r.Metric),
			fmt.Sprintf("%-9s", r.Role),
			fnum(r.Estimate),
			fnum(r.SE),
			fnum(r.Lower),
			fnum(r.Upper),
			fmt.Sprintf("%d", r.N),
		})
	}

	tbl.Msg = append(tbl.Msg, rep.Warnings...)

	return tbl.String()
}
