package survival

import "fmt"

// NonConvergenceError indicates that the optimizer failed to locate a
// maximum of the partial likelihood.  Callers running a resampling loop
// should exclude the affected fit rather than abort the batch.
type NonConvergenceError struct {
	Err error
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("proportional hazards fit did not converge: %v", e.Err)
}

func (e *NonConvergenceError) Unwrap() error {
	return e.Err
}

// DegenerateWeightError indicates that the censoring survival estimate is
// zero at a time where an inverse probability weight is required, so the
// weight is not finite.  The affected metric is not estimable on this
// cohort.
type DegenerateWeightError struct {
	Time float64
}

func (e *DegenerateWeightError) Error() string {
	return fmt.Sprintf("censoring survival probability is zero at time %v", e.Time)
}

// InsufficientDataError indicates that a metric is undefined on the given
// cohort, e.g. no comparable pairs or no events before the horizon.
type InsufficientDataError struct {
	Msg string
}

func (e *InsufficientDataError) Error() string {
	return e.Msg
}

// ConfigurationError indicates an invalid configuration value.  It is
// raised during validation, before any fitting starts, and is fatal.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return e.Msg
}
