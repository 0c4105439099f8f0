// Package candidate defines model candidates and fits them.
//
// A Candidate is resolved once by New: target, ordered predictor terms,
// estimator kind and hyper-parameters. Fit binds it to one training subset
// and returns a Fitted model that owns the learned parameters.
package candidate

import (
	"context"
	"fmt"
	"math"
	"sort"

	"berkotech.co/holdout/dataset"
)

type Kind string

const (
	OLS      Kind = "ols"
	Ridge    Kind = "ridge"
	Logistic Kind = "logistic"
	Mean     Kind = "mean"
	Majority Kind = "majority"
)

type estimator interface {
	fit(ctx context.Context, x [][]float64, y []float64) error
	predict(x []float64) float64
}

type kindInfo struct {
	params     map[string]float64 // known hyper-parameters and their defaults
	predictors bool               // needs at least one predictor
	classifier bool               // predicts class labels
	build      func(p Params, seed uint64) estimator
}

var kinds = map[Kind]kindInfo{
	OLS: {
		predictors: true,
		build:      func(Params, uint64) estimator { return &ols{} },
	},
	Ridge: {
		params:     map[string]float64{"lambda": 1},
		predictors: true,
		build: func(p Params, _ uint64) estimator {
			return &ridge{lambda: p.Get("lambda", 1)}
		},
	},
	Logistic: {
		params:     map[string]float64{"learnRate": 0.1, "iterations": 500, "threshold": 0.5},
		predictors: true,
		classifier: true,
		build: func(p Params, seed uint64) estimator {
			return &logistic{
				learnRate:  p.Get("learnRate", 0.1),
				iterations: int(p.Get("iterations", 500)),
				threshold:  p.Get("threshold", 0.5),
				seed:       seed,
			}
		},
	},
	Mean: {
		build: func(Params, uint64) estimator { return &mean{} },
	},
	Majority: {
		classifier: true,
		build:      func(Params, uint64) estimator { return &majority{} },
	},
}

// Classifier reports whether k predicts class labels rather than a
// continuous value. Unknown kinds are not classifiers.
func (k Kind) Classifier() bool { return kinds[k].classifier }

// Kinds returns the known estimator kinds, sorted.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Params is a set of hyper-parameters.
type Params map[string]float64

// Get value of the parameter by name if exists and dflt value otherwise.
func (p Params) Get(name string, dflt float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return dflt
}

func (p Params) clone() Params {
	q := make(Params, len(p))
	for k, v := range p {
		q[k] = v
	}
	return q
}

// Term is a predictor column expanded to the powers 1..Degree.
type Term struct {
	Column string
	Degree int
}

func (t Term) width() int { return t.Degree }

// Candidate is a fully specified, not yet fit model configuration.
type Candidate struct {
	Name       string
	Kind       Kind
	Target     string
	Predictors []Term
	Params     Params
	// Seed drives any randomness inside the estimator.
	Seed uint64
}

// New validates and resolves a candidate. Terms with Degree 0 are linear.
func New(name string, kind Kind, target string, predictors []Term, params Params) (Candidate, error) {
	c := Candidate{
		Name:       name,
		Kind:       kind,
		Target:     target,
		Predictors: make([]Term, len(predictors)),
		Params:     params.clone(),
	}
	for i, t := range predictors {
		if t.Degree == 0 {
			t.Degree = 1
		}
		c.Predictors[i] = t
	}
	if err := c.validate(); err != nil {
		return Candidate{}, err
	}
	return c, nil
}

// WithSeed returns a copy of c using seed.
func (c Candidate) WithSeed(seed uint64) Candidate {
	c.Seed = seed
	return c
}

func (c Candidate) validate() error {
	info, ok := kinds[c.Kind]
	switch {
	case c.Name == "":
		return fmt.Errorf("candidate: missing name")
	case !ok:
		return fmt.Errorf("candidate %s: %w %q", c.Name, ErrUnknownKind, c.Kind)
	case c.Target == "":
		return fmt.Errorf("candidate %s: missing target", c.Name)
	case info.predictors && len(c.Predictors) == 0:
		return fmt.Errorf("candidate %s: %s needs at least one predictor", c.Name, c.Kind)
	}
	for name := range c.Params {
		if _, ok := info.params[name]; !ok {
			return fmt.Errorf("candidate %s: %w %q for %s", c.Name, ErrUnknownParam, name, c.Kind)
		}
	}
	for _, t := range c.Predictors {
		switch {
		case t.Column == "":
			return fmt.Errorf("candidate %s: predictor without column", c.Name)
		case t.Column == c.Target:
			return fmt.Errorf("candidate %s: target %q used as predictor", c.Name, t.Column)
		case t.Degree < 1:
			return fmt.Errorf("candidate %s: degree %d for %q", c.Name, t.Degree, t.Column)
		}
	}
	return nil
}

// Fit learns the candidate's parameters from train.
//
// Fit must only ever be given the training subset of a partition. Fitting on
// validation or test rows leaks them into the model and invalidates every
// score computed afterwards; nothing here can detect that.
func (c Candidate) Fit(ctx context.Context, train *dataset.Dataset) (*Fitted, error) {
	fail := func(err error) (*Fitted, error) {
		return nil, &FitError{Candidate: c.Name, Err: err}
	}
	if err := c.validate(); err != nil {
		return fail(err)
	}
	if train.Len() == 0 {
		return fail(ErrEmptyTraining)
	}
	x, err := c.design(train)
	if err != nil {
		return fail(err)
	}
	y, err := train.Column(c.Target)
	if err != nil {
		return fail(fmt.Errorf("target: %w", err))
	}

	var xs [][]float64
	var ys []float64
	targets := 0
	for i := range y {
		if !finite(y[i]) {
			continue
		}
		targets++
		if allFinite(x[i]) {
			xs = append(xs, x[i])
			ys = append(ys, y[i])
		}
	}
	if targets == 0 {
		return fail(fmt.Errorf("%w %q", ErrNoTarget, c.Target))
	}
	if len(ys) == 0 {
		return fail(ErrNoCompleteRows)
	}

	est := kinds[c.Kind].build(c.Params, c.Seed)
	if err := est.fit(ctx, xs, ys); err != nil {
		return fail(err)
	}
	return &Fitted{candidate: c, est: est, rows: len(ys)}, nil
}

// design expands the predictor terms of every row of d.
func (c Candidate) design(d *dataset.Dataset) ([][]float64, error) {
	width := 0
	cols := make([][]float64, len(c.Predictors))
	for j, t := range c.Predictors {
		v, err := d.Column(t.Column)
		if err != nil {
			return nil, fmt.Errorf("predictor: %w", err)
		}
		cols[j] = v
		width += t.width()
	}
	x := make([][]float64, d.Len())
	for i := range x {
		row := make([]float64, 0, width)
		for j, t := range c.Predictors {
			v := cols[j][i]
			for p := 1; p <= t.Degree; p++ {
				row = append(row, math.Pow(v, float64(p)))
			}
		}
		x[i] = row
	}
	return x, nil
}

// Fitted is a candidate bound to the training rows it was fit on.
type Fitted struct {
	candidate Candidate
	est       estimator
	rows      int
}

func (f *Fitted) Candidate() Candidate { return f.candidate }

// Seed is the seed the estimator consumed.
func (f *Fitted) Seed() uint64 { return f.candidate.Seed }

// TrainingRows is the number of complete rows used for fitting.
func (f *Fitted) TrainingRows() int { return f.rows }

// Predict returns one prediction per row of d. Rows with a missing predictor
// value get NaN. Predict does not modify f.
func (f *Fitted) Predict(d *dataset.Dataset) ([]float64, error) {
	x, err := f.candidate.design(d)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		if !allFinite(row) {
			out[i] = math.NaN()
			continue
		}
		out[i] = f.est.predict(row)
	}
	return out, nil
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if !finite(x) {
			return false
		}
	}
	return true
}
