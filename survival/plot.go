package survival

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// CurvePlotter draws one or more step curves (e.g. Kaplan-Meier event
// and censoring curves) on a single plot.
type CurvePlotter struct {
	plt *plot.Plot

	labels []string
	lines  []*plotter.Line

	width  vg.Length
	height vg.Length
}

// NewCurvePlotter returns a default CurvePlotter.
func NewCurvePlotter() *CurvePlotter {

	cp := &CurvePlotter{
		width:  4,
		height: 4,
	}

	var err error
	cp.plt, err = plot.New()
	if err != nil {
		panic(err)
	}

	return cp
}

// Width sets the width of the plot in inches.
func (cp *CurvePlotter) Width(w float64) *CurvePlotter {
	cp.width = vg.Length(w)
	return cp
}

// Height sets the height of the plot in inches.
func (cp *CurvePlotter) Height(h float64) *CurvePlotter {
	cp.height = vg.Length(h)
	return cp
}

// Add draws a step curve on the plot with the given legend label.
func (cp *CurvePlotter) Add(sc *StepCurve, label string) *CurvePlotter {

	ti := sc.Times()
	pr := sc.Values()

	pts := make(plotter.XYs, 2*len(ti)+1)

	j := 0
	pts[j].X = 0
	pts[j].Y = 1
	j++

	for i := range ti {
		pts[j].X = ti[i]
		pts[j].Y = pts[j-1].Y
		j++
		pts[j].X = ti[i]
		pts[j].Y = pr[i]
		j++
	}

	cp.labels = append(cp.labels, label)

	line, err := plotter.NewLine(pts)
	if err != nil {
		panic(err)
	}
	line.Color = plotutil.Color(len(cp.lines))
	cp.lines = append(cp.lines, line)

	return cp
}

// Plot assembles the plot.
func (cp *CurvePlotter) Plot() *CurvePlotter {

	cp.plt.Y.Min = 0
	cp.plt.Y.Max = 1

	cp.plt.X.Label.Text = "Time"
	cp.plt.Y.Label.Text = "Probability"

	leg, err := plot.NewLegend()
	if err != nil {
		panic(err)
	}

	for i := range cp.lines {
		cp.plt.Add(cp.lines[i])
		leg.Add(cp.labels[i], cp.lines[i])
	}

	if len(cp.lines) > 1 {
		leg.Top = false
		leg.Left = true
		cp.plt.Legend = leg
	}

	return cp
}

// Save writes the plot to the given file.
func (cp *CurvePlotter) Save(fname string) error {
	return cp.plt.Save(cp.width*vg.Inch, cp.height*vg.Inch, fname)
}
