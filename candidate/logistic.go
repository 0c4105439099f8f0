package candidate

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// logistic is a binary classifier trained by gradient descent on the
// cross-entropy loss. Features are standardized on the training rows.
type logistic struct {
	learnRate  float64
	iterations int
	threshold  float64
	seed       uint64

	mu, sigma []float64
	theta     []float64 // bias first
	loss      float64
}

func (m *logistic) fit(ctx context.Context, x [][]float64, y []float64) error {
	for _, v := range y {
		if v != 0 && v != 1 {
			return fmt.Errorf("logistic: %w (got %v)", ErrNotBinary, v)
		}
	}
	if m.iterations < 1 || m.learnRate <= 0 {
		return fmt.Errorf("logistic: iterations %d, learn rate %v", m.iterations, m.learnRate)
	}
	n, k := len(x), len(x[0])

	m.mu = make([]float64, k)
	m.sigma = make([]float64, k)
	col := make([]float64, n)
	for j := 0; j < k; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		m.mu[j], m.sigma[j] = stat.MeanStdDev(col, nil)
		if m.sigma[j] == 0 || math.IsNaN(m.sigma[j]) {
			m.sigma[j] = 1
		}
	}
	backing := make([]float64, 0, n*(k+1))
	for _, row := range x {
		backing = append(backing, m.scale(row)...)
	}

	g := gorgonia.NewGraph()
	xT := tensor.New(tensor.WithShape(n, k+1), tensor.WithBacking(backing))
	yT := tensor.New(tensor.WithShape(n), tensor.WithBacking(append([]float64(nil), y...)))
	unit := make([]float64, n)
	floats.AddConst(1, unit)
	oneT := tensor.New(tensor.WithShape(n), tensor.WithBacking(unit))

	rng := rand.New(rand.NewPCG(m.seed, m.seed+1))
	start := make([]float64, k+1)
	for i := range start {
		start[i] = rng.NormFloat64() * 0.01
	}

	X := gorgonia.NodeFromAny(g, xT, gorgonia.WithName("x"))
	Y := gorgonia.NodeFromAny(g, yT, gorgonia.WithName("y"))
	one := gorgonia.NodeFromAny(g, oneT, gorgonia.WithName("one"))
	theta := gorgonia.NewVector(
		g,
		gorgonia.Float64,
		gorgonia.WithName("theta"),
		gorgonia.WithShape(k+1),
		gorgonia.WithValue(tensor.New(tensor.WithShape(k+1), tensor.WithBacking(start))))

	prob := must(gorgonia.Sigmoid(must(gorgonia.Mul(X, theta))))
	pos := must(gorgonia.HadamardProd(Y, must(gorgonia.Log(prob))))
	neg := must(gorgonia.HadamardProd(
		must(gorgonia.Sub(one, Y)),
		must(gorgonia.Log(must(gorgonia.Sub(one, prob))))))
	cost := must(gorgonia.Neg(must(gorgonia.Mean(must(gorgonia.Add(pos, neg))))))

	if _, err := gorgonia.Grad(cost, theta); err != nil {
		return fmt.Errorf("logistic: backpropagate: %w", err)
	}

	machine := gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(theta))
	defer machine.Close()

	model := []gorgonia.ValueGrad{theta}
	solver := gorgonia.NewVanillaSolver(gorgonia.WithLearnRate(m.learnRate))

	for i := 0; i < m.iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := machine.RunAll(); err != nil {
			return fmt.Errorf("logistic: iteration %d: %w", i, err)
		}
		m.loss = cost.Value().Data().(float64)
		if err := solver.Step(model); err != nil {
			return fmt.Errorf("logistic: iteration %d: %w", i, err)
		}
		machine.Reset()
	}
	if math.IsNaN(m.loss) || math.IsInf(m.loss, 0) {
		return fmt.Errorf("logistic: %w (loss %v)", ErrNotConverged, m.loss)
	}
	m.theta = append([]float64(nil), theta.Value().Data().([]float64)...)
	return nil
}

// scale standardizes a row and prepends the bias term.
func (m *logistic) scale(row []float64) []float64 {
	out := make([]float64, len(row)+1)
	out[0] = 1
	for j, v := range row {
		out[j+1] = (v - m.mu[j]) / m.sigma[j]
	}
	return out
}

func (m *logistic) probability(row []float64) float64 {
	return 1 / (1 + math.Exp(-floats.Dot(m.theta, m.scale(row))))
}

func (m *logistic) predict(row []float64) float64 {
	if m.probability(row) >= m.threshold {
		return 1
	}
	return 0
}

func must(n *gorgonia.Node, err error) *gorgonia.Node {
	if err != nil {
		panic(err)
	}
	return n
}
