package pipeline

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ValidationValues returns the validation scores of the candidates that
// scored, with their names.
func (r *Report) ValidationValues() (plotter.Values, []string) {
	var v plotter.Values
	var names []string
	for _, c := range r.Candidates {
		if c.Validation == nil {
			continue
		}
		v = append(v, *c.Validation)
		names = append(names, c.Name)
	}
	return v, names
}

// SavePlot draws a bar chart of the validation scores. The format follows
// the file extension.
func (r *Report) SavePlot(path string) error {
	v, names := r.ValidationValues()
	if len(v) == 0 {
		return errors.New("pipeline: no validation scores to plot")
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Validation %s", r.Metric)
	p.Y.Label.Text = string(r.Metric)
	p.Add(plotter.NewGrid())

	bars, err := plotter.NewBarChart(v, vg.Points(20))
	if err != nil {
		return err
	}
	p.Add(bars)
	p.NominalX(names...)

	width := vg.Length(len(v)) * vg.Centimeter * 2
	if width < 10*vg.Centimeter {
		width = 10 * vg.Centimeter
	}
	return p.Save(width, 8*vg.Centimeter, path)
}

// SaveResiduals draws a histogram of the selected candidate's validation
// residuals.
func (r *Report) SaveResiduals(path string) error {
	if len(r.Residuals) == 0 {
		return errors.New("pipeline: no residuals to plot")
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s validation residuals", r.Selected)
	h, err := plotter.NewHist(plotter.Values(r.Residuals), 10)
	if err != nil {
		return err
	}
	p.Add(h)
	return p.Save(5*vg.Inch, 4*vg.Inch, path)
}
