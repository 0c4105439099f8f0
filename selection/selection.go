// Package selection fits candidates on the training subset, compares them on
// the validation subset and scores the winner once on the test subset.
//
// The test rows are reachable only through Selection.Test, and a Selection
// exists only after SelectBest has fixed the winner.
package selection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"berkotech.co/holdout/candidate"
	"berkotech.co/holdout/dataset"
	"berkotech.co/holdout/metric"
	"berkotech.co/holdout/partition"
)

var (
	ErrNoResults    = errors.New("selection: no validation results")
	ErrNoCandidates = errors.New("selection: every candidate failed")
	ErrTestSpent    = errors.New("selection: test score already computed")
	ErrNotValidated = errors.New("selection: result was not computed on the validation subset")
)

// Result is one score of one candidate on one subset.
type Result struct {
	Candidate string
	Partition partition.Label
	Metric    metric.Kind
	Value     float64
	Rows      int
	Confusion *metric.Confusion
}

// EvaluationError is a failure to score a fitted candidate. For selection it
// counts the same as a fit failure.
type EvaluationError struct {
	Candidate string
	Partition partition.Label
	Err       error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %s on %v: %v", e.Candidate, e.Partition, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// Evaluate scores f on d.
func Evaluate(f *candidate.Fitted, d *dataset.Dataset, label partition.Label, kind metric.Kind) (Result, error) {
	c := f.Candidate()
	fail := func(err error) (Result, error) {
		return Result{}, &EvaluationError{Candidate: c.Name, Partition: label, Err: err}
	}
	pred, err := f.Predict(d)
	if err != nil {
		return fail(err)
	}
	if len(pred) != d.Len() {
		return fail(fmt.Errorf("%w: %d predictions for %d rows", metric.ErrLength, len(pred), d.Len()))
	}
	truth, err := d.Column(c.Target)
	if err != nil {
		return fail(err)
	}
	v, err := kind.Score(truth, pred)
	if err != nil {
		return fail(err)
	}
	r := Result{Candidate: c.Name, Partition: label, Metric: kind, Value: v, Rows: d.Len()}
	if kind.Classification() {
		if r.Confusion, err = metric.NewConfusion(truth, pred); err != nil {
			return fail(err)
		}
	}
	return r, nil
}

// Best returns the index of the best validation result. Only a strictly
// better score displaces the current best, so ties go to the earlier result.
func Best(results []Result, kind metric.Kind) (int, error) {
	if len(results) == 0 {
		return -1, ErrNoResults
	}
	best := -1
	for i, r := range results {
		if r.Partition != partition.Validation {
			return -1, fmt.Errorf("%w: %s on %v", ErrNotValidated, r.Candidate, r.Partition)
		}
		if best < 0 || kind.Better(r.Value, results[best].Value) {
			best = i
		}
	}
	return best, nil
}

// Outcome is what happened to one candidate during validation. Err is a
// *candidate.FitError, an *EvaluationError, or the context error for a
// candidate that never ran.
type Outcome struct {
	Candidate candidate.Candidate
	Fitted    *candidate.Fitted
	Result    Result
	Err       error
	Elapsed   time.Duration
}

func (o Outcome) OK() bool { return o.Err == nil }

type options struct {
	parallelism int
	logger      *log.Logger
}

type Option func(*options)

// Parallelism bounds the number of candidates fit at once.
func Parallelism(n int) Option {
	return func(o *options) { o.parallelism = n }
}

// Logger receives one line per candidate.
func Logger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Board holds the validation outcomes in declaration order.
type Board struct {
	metric   metric.Kind
	outcomes []Outcome
	holdout  *partition.Holdout
	key      *partition.Key
}

// Validate fits every candidate on part.Train and scores it on
// part.Validation. Fit and evaluation failures are recorded on the board.
// If ctx is done before all candidates finish, Validate returns the board
// together with the context error; outcomes that completed remain valid.
// Validate claims the key of part's holdout, so it runs once per partition.
func Validate(ctx context.Context, part *partition.Result, candidates []candidate.Candidate, kind metric.Kind, opts ...Option) (*Board, error) {
	o := options{parallelism: 1, logger: log.New(io.Discard, "", 0)}
	for _, opt := range opts {
		opt(&o)
	}
	key, err := part.Holdout().Claim()
	if err != nil {
		return nil, err
	}
	b := &Board{metric: kind, outcomes: make([]Outcome, len(candidates)), holdout: part.Holdout(), key: key}
	ran := make([]bool, len(candidates))

	train, val := part.Train(), part.Validation()
	var g errgroup.Group
	if o.parallelism > 0 {
		g.SetLimit(o.parallelism)
	}
	for i, c := range candidates {
		b.outcomes[i].Candidate = c
		if ctx.Err() != nil {
			continue
		}
		ran[i] = true
		g.Go(func() error {
			out := validate(ctx, c, train, val, kind)
			b.outcomes[i] = out
			if out.OK() {
				o.logger.Printf("%s: validation %s %.6g (%s)", c.Name, kind, out.Result.Value, out.Elapsed.Round(time.Millisecond))
			} else {
				o.logger.Printf("%s: excluded: %v", c.Name, out.Err)
			}
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		for i := range ran {
			if !ran[i] {
				b.outcomes[i].Err = err
			}
		}
		return b, err
	}
	return b, nil
}

func validate(ctx context.Context, c candidate.Candidate, train, val *dataset.Dataset, kind metric.Kind) Outcome {
	start := time.Now()
	out := Outcome{Candidate: c}
	out.Fitted, out.Err = c.Fit(ctx, train)
	if out.Err == nil {
		out.Result, out.Err = Evaluate(out.Fitted, val, partition.Validation, kind)
	}
	out.Elapsed = time.Since(start)
	return out
}

func (b *Board) Metric() metric.Kind { return b.metric }

// Outcomes returns a copy of the outcomes in declaration order.
func (b *Board) Outcomes() []Outcome {
	return append([]Outcome(nil), b.outcomes...)
}

// SelectBest finalizes the choice among the candidates that fit and scored.
func (b *Board) SelectBest() (*Selection, error) {
	var results []Result
	var index []int
	for i, o := range b.outcomes {
		if o.OK() {
			results = append(results, o.Result)
			index = append(index, i)
		}
	}
	if len(results) == 0 {
		return nil, ErrNoCandidates
	}
	best, err := Best(results, b.metric)
	if err != nil {
		return nil, err
	}
	b.key.Finalize()
	return &Selection{board: b, outcome: b.outcomes[index[best]]}, nil
}

// Selection is a finalized choice. It cannot be changed, and it is the only
// holder that can unlock the test subset.
type Selection struct {
	board   *Board
	outcome Outcome

	mu   sync.Mutex
	done bool
}

func (s *Selection) Candidate() candidate.Candidate { return s.outcome.Candidate }

func (s *Selection) Fitted() *candidate.Fitted { return s.outcome.Fitted }

// Validation returns the score that won the selection.
func (s *Selection) Validation() Result { return s.outcome.Result }

// Finalized reports whether s is a completed selection.
func (s *Selection) Finalized() bool { return s != nil && s.board != nil && s.outcome.Fitted != nil }

// Test scores the selected candidate on the test subset. It succeeds at most
// once; its result is never fed back into selection.
func (s *Selection) Test() (Result, error) {
	if !s.Finalized() {
		return Result{}, fmt.Errorf("final evaluation failed: %w", partition.ErrSealed)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return Result{}, ErrTestSpent
	}
	s.done = true
	test, err := s.board.holdout.Open(s.board.key)
	if err != nil {
		return Result{}, fmt.Errorf("final evaluation failed: %w", err)
	}
	r, err := Evaluate(s.outcome.Fitted, test, partition.Test, s.board.metric)
	if err != nil {
		return Result{}, fmt.Errorf("final evaluation failed: %w", err)
	}
	return r, nil
}
