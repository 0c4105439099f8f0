package candidate

import (
	"context"

	"gonum.org/v1/gonum/stat"
)

// mean predicts the training target mean.
type mean struct {
	mu float64
}

func (m *mean) fit(_ context.Context, _ [][]float64, y []float64) error {
	m.mu = stat.Mean(y, nil)
	return nil
}

func (m *mean) predict([]float64) float64 { return m.mu }

// majority predicts the most frequent training label, the lowest one on ties.
type majority struct {
	label float64
}

func (m *majority) fit(_ context.Context, _ [][]float64, y []float64) error {
	counts := map[float64]int{}
	for _, v := range y {
		counts[v]++
	}
	best := -1
	for l, c := range counts {
		if c > best || (c == best && l < m.label) {
			m.label, best = l, c
		}
	}
	return nil
}

func (m *majority) predict([]float64) float64 { return m.label }
