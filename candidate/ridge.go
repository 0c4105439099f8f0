package candidate

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ridge solves (XᵀX + λI)β = Xᵀy. The intercept is not penalized.
type ridge struct {
	lambda float64
	beta   []float64
}

func (m *ridge) fit(ctx context.Context, x [][]float64, y []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.lambda < 0 {
		return fmt.Errorf("ridge: negative lambda %v", m.lambda)
	}
	n, k := len(x), len(x[0])+1
	X := mat.NewDense(n, k, nil)
	for i, row := range x {
		X.Set(i, 0, 1)
		for j, v := range row {
			X.Set(i, j+1, v)
		}
	}
	Y := mat.NewVecDense(n, append([]float64(nil), y...))

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	for j := 1; j < k; j++ {
		xtx.Set(j, j, xtx.At(j, j)+m.lambda)
	}
	var xty mat.VecDense
	xty.MulVec(X.T(), Y)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return fmt.Errorf("ridge: %w", err)
	}
	m.beta = mat.Col(nil, 0, &beta)
	return nil
}

func (m *ridge) predict(x []float64) float64 {
	return m.beta[0] + floats.Dot(m.beta[1:], x)
}
