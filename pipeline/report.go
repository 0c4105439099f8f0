package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"berkotech.co/holdout/metric"
	"berkotech.co/holdout/partition"
	"berkotech.co/holdout/selection"
)

// Report is the outcome of one run.
type Report struct {
	RunID      string         `json:"runId"`
	Seed       uint64         `json:"seed"`
	Metric     metric.Kind    `json:"metric"`
	Subsets    []Subset       `json:"subsets"`
	Candidates []CandidateRow `json:"candidates"`
	Selected   string         `json:"selected,omitempty"`
	Test       *float64       `json:"test,omitempty"`
	Confusion  *Confusion     `json:"confusion,omitempty"`
	// Residuals of the selected regression candidate on the validation rows.
	Residuals []float64 `json:"-"`
}

type Subset struct {
	Partition string `json:"partition"`
	Entities  int    `json:"entities"`
	Rows      int    `json:"rows"`
}

// CandidateRow is one line of the comparison table. Validation is nil for a
// candidate that failed to fit or score.
type CandidateRow struct {
	Name         string        `json:"name"`
	Kind         string        `json:"kind"`
	Seed         uint64        `json:"seed"`
	TrainingRows int           `json:"trainingRows,omitempty"`
	Validation   *float64      `json:"validation,omitempty"`
	Error        string        `json:"error,omitempty"`
	Elapsed      time.Duration `json:"elapsedNs"`
}

// Confusion is the test confusion matrix, rows are observed labels.
type Confusion struct {
	Labels []float64 `json:"labels"`
	Counts [][]int   `json:"counts"`
}

func newReport(cfg Config, kind metric.Kind, part *partition.Result, board *selection.Board) *Report {
	r := &Report{
		RunID:  uuid.NewString(),
		Seed:   cfg.RandomSeed,
		Metric: kind,
		Subsets: []Subset{
			{partition.Train.String(), len(part.IDs(partition.Train)), part.Train().Len()},
			{partition.Validation.String(), len(part.IDs(partition.Validation)), part.Validation().Len()},
			{partition.Test.String(), len(part.IDs(partition.Test)), part.Holdout().Len()},
		},
	}
	for _, o := range board.Outcomes() {
		row := CandidateRow{
			Name:    o.Candidate.Name,
			Kind:    string(o.Candidate.Kind),
			Seed:    o.Candidate.Seed,
			Elapsed: o.Elapsed,
		}
		if o.Fitted != nil {
			row.TrainingRows = o.Fitted.TrainingRows()
		}
		if o.OK() {
			v := o.Result.Value
			row.Validation = &v
		} else {
			row.Error = o.Err.Error()
		}
		r.Candidates = append(r.Candidates, row)
	}
	return r
}

func (r *Report) setTest(res selection.Result) {
	v := res.Value
	r.Test = &v
	if c := res.Confusion; c != nil {
		t := &Confusion{Labels: c.Labels}
		for _, tl := range c.Labels {
			row := make([]int, len(c.Labels))
			for j, pl := range c.Labels {
				row[j] = c.Count(tl, pl)
			}
			t.Counts = append(t.Counts, row)
		}
		r.Confusion = t
	}
}

// WriteText prints the report as aligned tables.
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run %s, seed %d, metric %s\n\n", r.RunID, r.Seed, r.Metric)
	fmt.Fprintln(tw, "subset\tentities\trows\t")
	for _, s := range r.Subsets {
		fmt.Fprintf(tw, "%s\t%d\t%d\t\n", s.Partition, s.Entities, s.Rows)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "candidate\tkind\tseed\tvalidation\t")
	for _, c := range r.Candidates {
		score := "excluded: " + c.Error
		if c.Validation != nil {
			score = fmt.Sprintf("%.6g", *c.Validation)
		}
		mark := ""
		if c.Name == r.Selected {
			mark = " *"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%d\t%s\t\n", c.Name, mark, c.Kind, c.Seed, score)
	}
	fmt.Fprintln(tw)
	if r.Selected != "" {
		fmt.Fprintf(tw, "selected %s\n", r.Selected)
	}
	if r.Test != nil {
		fmt.Fprintf(tw, "test %s %.6g\n", r.Metric, *r.Test)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if r.Confusion != nil {
		fmt.Fprintln(w)
		c := metric.Confusion{Labels: r.Confusion.Labels, Counts: map[metric.Cell]int{}}
		for i, tl := range r.Confusion.Labels {
			for j, pl := range r.Confusion.Labels {
				c.Counts[metric.Cell{Truth: tl, Predicted: pl}] = r.Confusion.Counts[i][j]
			}
		}
		if _, err := c.WriteTo(w); err != nil {
			return err
		}
	}
	return nil
}

func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
