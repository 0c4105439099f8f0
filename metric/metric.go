// Package metric scores predictions against observed values.
//
// Regression error is the mean of squared residuals. Rows where either the
// observed value or the prediction is not finite are not scored.
package metric

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

type Kind string

const (
	MSE      Kind = "mse"
	Accuracy Kind = "accuracy"
)

var (
	ErrUnknownKind    = errors.New("metric: unknown kind")
	ErrLength         = errors.New("metric: prediction count does not match observations")
	ErrNoObservations = errors.New("metric: no scorable observations")
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case MSE, Accuracy:
		return k, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownKind, s)
}

// Classification reports whether predictions are class labels.
func (k Kind) Classification() bool { return k == Accuracy }

// Better reports whether a is strictly better than b.
func (k Kind) Better(a, b float64) bool {
	if k == Accuracy {
		return a > b
	}
	return a < b
}

// Score computes the metric for k.
func (k Kind) Score(truth, pred []float64) (float64, error) {
	switch k {
	case MSE:
		return MeanSquaredError(truth, pred)
	case Accuracy:
		return AccuracyOf(truth, pred)
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownKind, string(k))
}

// scorable drops the pairs that cannot be compared.
func scorable(truth, pred []float64) (t, p []float64, err error) {
	if len(truth) != len(pred) {
		return nil, nil, fmt.Errorf("%w: %d predictions for %d rows", ErrLength, len(pred), len(truth))
	}
	for i := range truth {
		if finite(truth[i]) && finite(pred[i]) {
			t = append(t, truth[i])
			p = append(p, pred[i])
		}
	}
	if len(t) == 0 {
		return nil, nil, ErrNoObservations
	}
	return t, p, nil
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func MeanSquaredError(truth, pred []float64) (float64, error) {
	t, p, err := scorable(truth, pred)
	if err != nil {
		return 0, err
	}
	diff := make([]float64, len(t))
	floats.SubTo(diff, p, t)
	return floats.Dot(diff, diff) / float64(len(diff)), nil
}

// AccuracyOf is the fraction of exact label matches.
func AccuracyOf(truth, pred []float64) (float64, error) {
	t, p, err := scorable(truth, pred)
	if err != nil {
		return 0, err
	}
	ok := 0
	for i := range t {
		if t[i] == p[i] {
			ok++
		}
	}
	return float64(ok) / float64(len(t)), nil
}
