package metric

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
)

// Cell is one (observed, predicted) label pair.
type Cell struct {
	Truth, Predicted float64
}

// Confusion counts predictions per observed and predicted label.
type Confusion struct {
	Labels []float64
	Counts map[Cell]int
}

// NewConfusion tabulates the scorable pairs of truth and pred.
func NewConfusion(truth, pred []float64) (*Confusion, error) {
	t, p, err := scorable(truth, pred)
	if err != nil {
		return nil, err
	}
	c := &Confusion{Counts: make(map[Cell]int)}
	seen := map[float64]bool{}
	for i := range t {
		c.Counts[Cell{t[i], p[i]}]++
		for _, l := range [2]float64{t[i], p[i]} {
			if !seen[l] {
				seen[l] = true
				c.Labels = append(c.Labels, l)
			}
		}
	}
	sort.Float64s(c.Labels)
	return c, nil
}

func (c *Confusion) Count(truth, predicted float64) int {
	return c.Counts[Cell{truth, predicted}]
}

func (c *Confusion) Total() int {
	n := 0
	for _, v := range c.Counts {
		n += v
	}
	return n
}

// Accuracy is the share of counts on the diagonal.
func (c *Confusion) Accuracy() float64 {
	n := c.Total()
	if n == 0 {
		return 0
	}
	ok := 0
	for _, l := range c.Labels {
		ok += c.Count(l, l)
	}
	return float64(ok) / float64(n)
}

// WriteTo prints the matrix with observed labels as rows.
func (c *Confusion) WriteTo(w io.Writer) (int64, error) {
	cw := &countWriter{w: w}
	tw := tabwriter.NewWriter(cw, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "truth\\pred\t")
	for _, l := range c.Labels {
		fmt.Fprintf(tw, "%s\t", label(l))
	}
	fmt.Fprintln(tw)
	for _, tl := range c.Labels {
		fmt.Fprintf(tw, "%s\t", label(tl))
		for _, pl := range c.Labels {
			fmt.Fprintf(tw, "%d\t", c.Count(tl, pl))
		}
		fmt.Fprintln(tw)
	}
	err := tw.Flush()
	return cw.n, err
}

func label(l float64) string { return strconv.FormatFloat(l, 'g', -1, 64) }

type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
