// Package pipeline runs a whole model selection: split by entity, fit every
// candidate on the training subset, select on the validation subset and
// score the selected candidate once on the test subset.
package pipeline

import (
	"context"
	"io"
	"log"
	"math"

	"berkotech.co/holdout/dataset"
	"berkotech.co/holdout/partition"
	"berkotech.co/holdout/selection"
)

// Run executes cfg against d. Configuration and partition errors are
// returned before any model is fit. When the context ends during fitting,
// or selection or the final evaluation fails, the partial report is
// returned with the error.
func Run(ctx context.Context, cfg Config, d *dataset.Dataset, logger *log.Logger) (*Report, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	kind, cands, err := cfg.resolve()
	if err != nil {
		return nil, err
	}
	p, err := partition.New(cfg.TrainFraction, cfg.ValidationFraction, cfg.RandomSeed)
	if err != nil {
		return nil, &ConfigError{Field: "fractions", Err: err}
	}
	part, err := p.Split(d)
	if err != nil {
		return nil, err
	}
	logger.Printf("split %d entities (%d rows): train=%d validation=%d test=%d",
		len(d.IDs()), d.Len(),
		len(part.IDs(partition.Train)), len(part.IDs(partition.Validation)), len(part.IDs(partition.Test)))

	if cfg.Output.Subsets {
		dir := cfg.Output.Dir
		if dir == "" {
			dir = "."
		}
		if err := part.Persist(dir); err != nil {
			return nil, err
		}
		logger.Printf("wrote subsets to %s", dir)
	}

	parallelism := cfg.Parallelism
	if parallelism == 0 {
		parallelism = 1
	}
	board, verr := selection.Validate(ctx, part, cands, kind,
		selection.Parallelism(parallelism), selection.Logger(logger))
	if board == nil {
		return nil, verr
	}
	rep := newReport(cfg, kind, part, board)
	if verr != nil {
		return rep, verr
	}

	sel, err := board.SelectBest()
	if err != nil {
		return rep, err
	}
	rep.Selected = sel.Candidate().Name
	logger.Printf("selected %s", rep.Selected)
	if !kind.Classification() {
		rep.Residuals, err = residuals(sel, part.Validation())
		if err != nil {
			return rep, err
		}
	}

	test, err := sel.Test()
	if err != nil {
		return rep, err
	}
	rep.setTest(test)
	logger.Printf("test %s %.6g", kind, test.Value)
	return rep, nil
}

// residuals are observed minus predicted values of the selected candidate on
// the validation rows, skipping rows that cannot be scored.
func residuals(sel *selection.Selection, val *dataset.Dataset) ([]float64, error) {
	pred, err := sel.Fitted().Predict(val)
	if err != nil {
		return nil, err
	}
	truth, err := val.Column(sel.Candidate().Target)
	if err != nil {
		return nil, err
	}
	var out []float64
	for i := range truth {
		r := truth[i] - pred[i]
		if !math.IsNaN(r) && !math.IsInf(r, 0) {
			out = append(out, r)
		}
	}
	return out, nil
}
