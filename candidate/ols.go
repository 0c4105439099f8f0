package candidate

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sajari/regression"
)

var errSingular = errors.New("singular design matrix")

// ols is ordinary least squares with an intercept.
type ols struct {
	r *regression.Regression
}

func (m *ols) fit(ctx context.Context, x [][]float64, y []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r := new(regression.Regression)
	r.SetObserved("y")
	for j := range x[0] {
		r.SetVar(j, fmt.Sprintf("x%d", j))
	}
	for i := range x {
		r.Train(regression.DataPoint(y[i], append([]float64(nil), x[i]...)))
	}
	if err := r.Run(); err != nil {
		return fmt.Errorf("ols: %w", err)
	}
	for j := 0; j <= len(x[0]); j++ {
		if c := r.Coeff(j); math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("ols: %w", errSingular)
		}
	}
	m.r = r
	return nil
}

func (m *ols) predict(x []float64) float64 {
	p, err := m.r.Predict(x)
	if err != nil {
		return math.NaN()
	}
	return p
}
