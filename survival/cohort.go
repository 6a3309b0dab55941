// Package survival implements estimation and performance assessment for
// right censored time-to-event data: the Kaplan-Meier product limit
// estimator and its reverse (censoring distribution) form, proportional
// hazards regression, and censoring-aware discrimination and calibration
// metrics.
package survival

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// Cohort holds a rectangular data set in column-major form.  Two of the
// columns are designated as the follow-up time and the event status
// indicator (1 = event, 0 = censored).  All remaining columns are
// available as covariates.  A Cohort is never modified after
// construction; resampling and administrative censoring return new
// values.
type Cohort struct {

	// The names of the variables, in the same order as data.
	names []string

	// data[j] is the j^th variable.
	data [][]float64

	// Positions of the time and status variables.
	timepos   int
	statuspos int
}

// NewCohort constructs a cohort from named columns.  The time variable
// must be strictly positive and the status variable must only contain 0
// and 1.
func NewCohort(data [][]float64, names []string, timevar, statusvar string) (*Cohort, error) {

	if len(data) != len(names) {
		return nil, fmt.Errorf("cohort: %d columns but %d names", len(data), len(names))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("cohort: no columns")
	}

	n := len(data[0])
	for j := range data {
		if len(data[j]) != n {
			return nil, fmt.Errorf("cohort: column '%s' has length %d, expected %d",
				names[j], len(data[j]), n)
		}
	}

	timepos := -1
	statuspos := -1
	for j, na := range names {
		switch na {
		case timevar:
			timepos = j
		case statusvar:
			statuspos = j
		}
	}
	if timepos == -1 {
		return nil, fmt.Errorf("cohort: time variable '%s' not found", timevar)
	}
	if statuspos == -1 {
		return nil, fmt.Errorf("cohort: status variable '%s' not found", statusvar)
	}

	for _, t := range data[timepos] {
		if t <= 0 {
			return nil, fmt.Errorf("cohort: times must be positive, got %v", t)
		}
	}
	for _, s := range data[statuspos] {
		if s != 0 && s != 1 {
			return nil, fmt.Errorf("cohort: status values must be 0 or 1, got %v", s)
		}
	}

	return &Cohort{
		names:     names,
		data:      data,
		timepos:   timepos,
		statuspos: statuspos,
	}, nil
}

// NumObs returns the number of rows in the cohort.
func (c *Cohort) NumObs() int {
	return len(c.data[0])
}

// Names returns the variable names.
func (c *Cohort) Names() []string {
	return c.names
}

// TimeVar returns the name of the follow-up time variable.
func (c *Cohort) TimeVar() string {
	return c.names[c.timepos]
}

// StatusVar returns the name of the event status variable.
func (c *Cohort) StatusVar() string {
	return c.names[c.statuspos]
}

// Time returns the follow-up time column.  The returned slice is owned
// by the cohort and must not be modified.
func (c *Cohort) Time() []float64 {
	return c.data[c.timepos]
}

// Status returns the event status column.  The returned slice is owned
// by the cohort and must not be modified.
func (c *Cohort) Status() []float64 {
	return c.data[c.statuspos]
}

// Column returns the column with the given name, or nil if there is no
// such column.  The returned slice is owned by the cohort and must not
// be modified.
func (c *Cohort) Column(name string) []float64 {
	for j, na := range c.names {
		if na == name {
			return c.data[j]
		}
	}
	return nil
}

// NumEvents returns the number of rows with an event, and the number of
// those events occurring at or before time t.
func (c *Cohort) NumEvents(t float64) (int, int) {

	time := c.Time()
	status := c.Status()

	var n, nt int
	for i := range time {
		if status[i] == 1 {
			n++
			if time[i] <= t {
				nt++
			}
		}
	}

	return n, nt
}

// Resample draws NumObs rows with replacement using the given random
// number generator and returns them as a new cohort.  Rows drawn more
// than once appear as distinct rows in the result.
func (c *Cohort) Resample(rng *rand.Rand) *Cohort {

	n := c.NumObs()
	ix := make([]int, n)
	for i := range ix {
		ix[i] = rng.Intn(n)
	}

	data := make([][]float64, len(c.data))
	for j := range c.data {
		x := make([]float64, n)
		for i, k := range ix {
			x[i] = c.data[j][k]
		}
		data[j] = x
	}

	return &Cohort{
		names:     c.names,
		data:      data,
		timepos:   c.timepos,
		statuspos: c.statuspos,
	}
}

// AdminCensor returns a copy of the cohort that is administratively
// censored at time t: rows with follow-up beyond t become censored at t,
// all other rows are unchanged.
func (c *Cohort) AdminCensor(t float64) *Cohort {

	data := make([][]float64, len(c.data))
	for j := range c.data {
		data[j] = c.data[j]
	}

	time := make([]float64, c.NumObs())
	status := make([]float64, c.NumObs())
	copy(time, c.data[c.timepos])
	copy(status, c.data[c.statuspos])

	for i := range time {
		if time[i] > t {
			time[i] = t
			status[i] = 0
		}
	}

	data[c.timepos] = time
	data[c.statuspos] = status

	return &Cohort{
		names:     c.names,
		data:      data,
		timepos:   c.timepos,
		statuspos: c.statuspos,
	}
}

// withColumns returns a new cohort sharing this cohort's time and status
// columns, with the given additional covariate columns appended.
func (c *Cohort) withColumns(names []string, cols [][]float64) *Cohort {

	data := [][]float64{c.Time(), c.Status()}
	newnames := []string{c.TimeVar(), c.StatusVar()}

	for j := range cols {
		data = append(data, cols[j])
		newnames = append(newnames, names[j])
	}

	return &Cohort{
		names:     newnames,
		data:      data,
		timepos:   0,
		statuspos: 1,
	}
}
