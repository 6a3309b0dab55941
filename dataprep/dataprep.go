// Package dataprep prepares cohort tables for model development and
// validation: loading flat files, converting columnar data streams, and
// dummy-coding categorical variables.  The downstream packages expect
// cohorts with standardized fields: a positive follow-up time, a 0/1
// event status, and numeric covariates that are already encoded.
package dataprep

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/kshedden/dstream/dstream"

	"github.com/daviemac78/Prediction-performance-survival/survival"
)

// FromCSV reads a cohort from a CSV file with a header row.  Every
// column is parsed as float64.  timevar and statusvar name the
// follow-up time and event status columns.
func FromCSV(r io.Reader, timevar, statusvar string) (*survival.Cohort, error) {

	cr := csv.NewReader(r)

	names, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("dataprep: reading header: %v", err)
	}

	data := make([][]float64, len(names))

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataprep: line %d: %v", line, err)
		}
		for j, s := range rec {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("dataprep: line %d, column '%s': %v", line, names[j], err)
			}
			data[j] = append(data[j], v)
		}
	}

	return survival.NewCohort(data, names, timevar, statusvar)
}

// FromDstream materializes a dstream into a cohort.  All variables in
// the stream must have float64 type.
func FromDstream(da dstream.Dstream, timevar, statusvar string) (*survival.Cohort, error) {

	names := da.Names()
	data := make([][]float64, len(names))

	da.Reset()
	for da.Next() {
		for j := range names {
			chunk, ok := da.GetPos(j).([]float64)
			if !ok {
				return nil, fmt.Errorf("dataprep: variable '%s' is not float64", names[j])
			}
			data[j] = append(data[j], chunk...)
		}
	}

	return survival.NewCohort(data, names, timevar, statusvar)
}

// ToDstream exposes a cohort as a single-chunk dstream, for handing off
// to tools built on that interface.
func ToDstream(c *survival.Cohort) dstream.Dstream {

	names := c.Names()
	var arrays [][]interface{}
	for _, na := range names {
		col := make([]float64, c.NumObs())
		copy(col, c.Column(na))
		arrays = append(arrays, []interface{}{col})
	}

	return dstream.NewFromArrays(arrays, names)
}

// DummyCode expands a categorical column into 0/1 indicator columns,
// one per distinct level except the reference level, which is the
// smallest value.  The returned names have the form name_level.
func DummyCode(name string, values []float64) ([]string, [][]float64) {

	seen := make(map[float64]bool)
	for _, v := range values {
		seen[v] = true
	}

	levels := make([]float64, 0, len(seen))
	for v := range seen {
		levels = append(levels, v)
	}
	sort.Float64s(levels)

	if len(levels) < 2 {
		return nil, nil
	}

	// The lowest level is the reference.
	var names []string
	var cols [][]float64
	for _, lev := range levels[1:] {
		col := make([]float64, len(values))
		for i, v := range values {
			if v == lev {
				col[i] = 1
			}
		}
		names = append(names, fmt.Sprintf("%s_%g", name, lev))
		cols = append(cols, col)
	}

	return names, cols
}
