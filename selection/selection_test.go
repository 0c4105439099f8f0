package selection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"berkotech.co/holdout/candidate"
	"berkotech.co/holdout/dataset"
	"berkotech.co/holdout/metric"
	"berkotech.co/holdout/partition"
)

// subjects has n entities with two visits each; y = 3x + 2 exactly and
// label is 1 when x is positive.
func subjects(t *testing.T, n int) *dataset.Dataset {
	t.Helper()
	records := [][]string{{"subject", "x", "y", "label"}}
	for i := 0; i < n; i++ {
		for v := 0; v < 2; v++ {
			x := float64(i-n/2) + float64(v)/4 + 0.5
			label := "0"
			if x > 0 {
				label = "1"
			}
			records = append(records, []string{fmt.Sprintf("s%03d", i), fmt.Sprint(x), fmt.Sprint(3*x + 2), label})
		}
	}
	d, err := dataset.FromRecords(records, "subject")
	assert.NilError(t, err)
	return d
}

func split(t *testing.T, d *dataset.Dataset) *partition.Result {
	t.Helper()
	p, err := partition.New(0.75, 0.33, 42)
	assert.NilError(t, err)
	r, err := p.Split(d)
	assert.NilError(t, err)
	return r
}

func must(t *testing.T, name string, kind candidate.Kind, target string, terms []candidate.Term, params candidate.Params) candidate.Candidate {
	t.Helper()
	c, err := candidate.New(name, kind, target, terms, params)
	assert.NilError(t, err)
	return c
}

func TestBestPicksLowestError(t *testing.T) {
	results := []Result{
		{Candidate: "a", Partition: partition.Validation, Value: 3},
		{Candidate: "b", Partition: partition.Validation, Value: 1},
		{Candidate: "c", Partition: partition.Validation, Value: 2},
	}
	i, err := Best(results, metric.MSE)
	assert.NilError(t, err)
	assert.Equal(t, results[i].Candidate, "b")

	i, err = Best(results, metric.Accuracy)
	assert.NilError(t, err)
	assert.Equal(t, results[i].Candidate, "a")
}

func TestBestTiesGoToFirstDeclared(t *testing.T) {
	for _, kind := range []metric.Kind{metric.MSE, metric.Accuracy} {
		for _, values := range [][]float64{{1, 1}, {0.5, 0.5, 0.5}, {2, 0.5, 0.5}, {0.5, 2, 0.5}} {
			var results []Result
			for j, v := range values {
				results = append(results, Result{Candidate: fmt.Sprint(j), Partition: partition.Validation, Value: v})
			}
			i, err := Best(results, kind)
			assert.NilError(t, err)
			want := 0
			for j, v := range values {
				if kind.Better(v, values[want]) {
					want = j
				}
			}
			assert.Equal(t, i, want, "%s %v", kind, values)
		}
	}
	i, err := Best([]Result{
		{Candidate: "first", Partition: partition.Validation, Value: 0.25},
		{Candidate: "second", Partition: partition.Validation, Value: 0.25},
	}, metric.MSE)
	assert.NilError(t, err)
	assert.Equal(t, i, 0)
}

func TestBestEmpty(t *testing.T) {
	i, err := Best(nil, metric.MSE)
	assert.ErrorIs(t, err, ErrNoResults)
	assert.Equal(t, i, -1)
}

func TestBestRejectsTestResults(t *testing.T) {
	_, err := Best([]Result{{Candidate: "a", Partition: partition.Test, Value: 1}}, metric.MSE)
	assert.ErrorIs(t, err, ErrNotValidated)
}

func TestSelectLowerValidationError(t *testing.T) {
	part := split(t, subjects(t, 100))
	a := must(t, "A", candidate.OLS, "y", []candidate.Term{{Column: "x"}}, nil)
	b := must(t, "B", candidate.Mean, "y", nil, nil)

	var logs bytes.Buffer
	board, err := Validate(context.Background(), part, []candidate.Candidate{a, b}, metric.MSE,
		Parallelism(2), Logger(log.New(&logs, "", 0)))
	assert.NilError(t, err)
	out := board.Outcomes()
	assert.Equal(t, len(out), 2)
	assert.Assert(t, out[0].OK() && out[1].OK())
	assert.Assert(t, out[0].Result.Value < out[1].Result.Value)
	assert.Equal(t, out[0].Result.Partition, partition.Validation)
	assert.Equal(t, out[0].Result.Rows, part.Validation().Len())
	assert.Check(t, is.Contains(logs.String(), "A: validation mse"))

	sel, err := board.SelectBest()
	assert.NilError(t, err)
	assert.Equal(t, sel.Candidate().Name, "A")
	assert.Assert(t, sel.Finalized())
	assert.Equal(t, sel.Validation().Value, out[0].Result.Value)

	test, err := sel.Test()
	assert.NilError(t, err)
	assert.Equal(t, test.Candidate, "A")
	assert.Equal(t, test.Partition, partition.Test)
	assert.Equal(t, test.Rows, part.Holdout().Len())
	assert.Assert(t, test.Value < 1e-9)

	_, err = sel.Test()
	assert.ErrorIs(t, err, ErrTestSpent)
}

func TestFailedCandidateIsExcluded(t *testing.T) {
	part := split(t, subjects(t, 100))
	cands := []candidate.Candidate{
		must(t, "missing", candidate.OLS, "y", []candidate.Term{{Column: "weight"}}, nil),
		must(t, "mean", candidate.Mean, "y", nil, nil),
		must(t, "linear", candidate.OLS, "y", []candidate.Term{{Column: "x"}}, nil),
	}
	board, err := Validate(context.Background(), part, cands, metric.MSE)
	assert.NilError(t, err)
	out := board.Outcomes()

	var fe *candidate.FitError
	assert.Assert(t, errors.As(out[0].Err, &fe))
	assert.Equal(t, fe.Candidate, "missing")
	assert.Assert(t, out[0].Fitted == nil)
	assert.Assert(t, out[1].OK())
	assert.Assert(t, out[2].OK())

	sel, err := board.SelectBest()
	assert.NilError(t, err)
	assert.Equal(t, sel.Candidate().Name, "linear")
}

func TestAllCandidatesFail(t *testing.T) {
	part := split(t, subjects(t, 40))
	cands := []candidate.Candidate{
		must(t, "a", candidate.OLS, "y", []candidate.Term{{Column: "nope"}}, nil),
		must(t, "b", candidate.Mean, "nope", nil, nil),
	}
	board, err := Validate(context.Background(), part, cands, metric.MSE)
	assert.NilError(t, err)
	_, err = board.SelectBest()
	assert.ErrorIs(t, err, ErrNoCandidates)
	assert.Assert(t, !part.Holdout().Spent())
}

func TestTestIsUnreachableWithoutSelection(t *testing.T) {
	part := split(t, subjects(t, 40))
	var s *Selection
	assert.Assert(t, !s.Finalized())
	_, err := s.Test()
	assert.ErrorIs(t, err, partition.ErrSealed)
	_, err = (&Selection{}).Test()
	assert.ErrorIs(t, err, partition.ErrSealed)
	_, err = part.Holdout().Open(nil)
	assert.ErrorIs(t, err, partition.ErrSealed)
	assert.Assert(t, !part.Holdout().Spent())
}

func TestValidateHoldsTheHoldoutKey(t *testing.T) {
	part := split(t, subjects(t, 40))
	cands := []candidate.Candidate{must(t, "mean", candidate.Mean, "y", nil, nil)}
	board, err := Validate(context.Background(), part, cands, metric.MSE)
	assert.NilError(t, err)

	_, err = part.Holdout().Claim()
	assert.ErrorIs(t, err, partition.ErrClaimed)
	_, err = Validate(context.Background(), part, cands, metric.MSE)
	assert.ErrorIs(t, err, partition.ErrClaimed)
	_, err = part.Holdout().Open(&partition.Key{})
	assert.ErrorIs(t, err, partition.ErrWrongKey)
	assert.Assert(t, !part.Holdout().Spent())

	sel, err := board.SelectBest()
	assert.NilError(t, err)
	_, err = sel.Test()
	assert.NilError(t, err)
	assert.Assert(t, part.Holdout().Spent())
}

func TestValidateRefusesClaimedHoldout(t *testing.T) {
	part := split(t, subjects(t, 40))
	k, err := part.Holdout().Claim()
	assert.NilError(t, err)
	k.Finalize()
	cands := []candidate.Candidate{must(t, "mean", candidate.Mean, "y", nil, nil)}
	board, err := Validate(context.Background(), part, cands, metric.MSE)
	assert.ErrorIs(t, err, partition.ErrClaimed)
	assert.Assert(t, board == nil)
}

func TestSecondSelectionCannotReuseTest(t *testing.T) {
	part := split(t, subjects(t, 40))
	cands := []candidate.Candidate{must(t, "mean", candidate.Mean, "y", nil, nil)}
	board, err := Validate(context.Background(), part, cands, metric.MSE)
	assert.NilError(t, err)
	first, err := board.SelectBest()
	assert.NilError(t, err)
	second, err := board.SelectBest()
	assert.NilError(t, err)

	_, err = first.Test()
	assert.NilError(t, err)
	_, err = second.Test()
	assert.ErrorIs(t, err, partition.ErrSpent)
	assert.ErrorContains(t, err, "final evaluation failed")
}

func TestClassification(t *testing.T) {
	part := split(t, subjects(t, 60))
	cands := []candidate.Candidate{
		must(t, "majority", candidate.Majority, "label", nil, nil),
		must(t, "logit", candidate.Logistic, "label", []candidate.Term{{Column: "x"}},
			candidate.Params{"learnRate": 0.5, "iterations": 300}).WithSeed(1),
	}
	board, err := Validate(context.Background(), part, cands, metric.Accuracy, Parallelism(0))
	assert.NilError(t, err)
	sel, err := board.SelectBest()
	assert.NilError(t, err)
	assert.Equal(t, sel.Candidate().Name, "logit")
	assert.Assert(t, sel.Validation().Confusion != nil)
	assert.Equal(t, sel.Validation().Confusion.Total(), part.Validation().Len())

	test, err := sel.Test()
	assert.NilError(t, err)
	assert.Assert(t, test.Value > 0.9)
	assert.Equal(t, test.Confusion.Accuracy(), test.Value)
}

func TestValidateCancelled(t *testing.T) {
	part := split(t, subjects(t, 40))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cands := []candidate.Candidate{
		must(t, "a", candidate.Mean, "y", nil, nil),
		must(t, "b", candidate.OLS, "y", []candidate.Term{{Column: "x"}}, nil),
	}
	board, err := Validate(ctx, part, cands, metric.MSE)
	assert.ErrorIs(t, err, context.Canceled)
	for _, o := range board.Outcomes() {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
	_, err = board.SelectBest()
	assert.ErrorIs(t, err, ErrNoCandidates)
}

// cancelOnWrite cancels a context the first time a line is logged.
type cancelOnWrite struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (w *cancelOnWrite) Write(p []byte) (int, error) {
	w.once.Do(w.cancel)
	return len(p), nil
}

func TestValidateCancelledMidway(t *testing.T) {
	part := split(t, subjects(t, 40))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cands := []candidate.Candidate{
		must(t, "a", candidate.Mean, "y", nil, nil),
		must(t, "b", candidate.OLS, "y", []candidate.Term{{Column: "x"}}, nil),
		must(t, "c", candidate.Mean, "y", nil, nil),
	}
	w := &cancelOnWrite{cancel: cancel}
	board, err := Validate(ctx, part, cands, metric.MSE, Parallelism(1), Logger(log.New(w, "", 0)))
	assert.ErrorIs(t, err, context.Canceled)

	out := board.Outcomes()
	assert.Assert(t, out[0].OK())
	for _, o := range out[1:] {
		assert.Check(t, is.ErrorIs(o.Err, context.Canceled), o.Candidate.Name)
	}

	sel, err := board.SelectBest()
	assert.NilError(t, err)
	assert.Equal(t, sel.Candidate().Name, "a")
}

func TestEvaluateMissingTarget(t *testing.T) {
	part := split(t, subjects(t, 40))
	f, err := must(t, "m", candidate.Mean, "y", nil, nil).Fit(context.Background(), part.Train())
	assert.NilError(t, err)
	d, err := dataset.FromRecords([][]string{{"subject", "x"}, {"z", "1"}}, "subject")
	assert.NilError(t, err)
	_, err = Evaluate(f, d, partition.Validation, metric.MSE)
	var ee *EvaluationError
	assert.Assert(t, errors.As(err, &ee))
	assert.Equal(t, ee.Candidate, "m")
}
