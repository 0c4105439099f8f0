package main

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"berkotech.co/holdout/metric"
	"berkotech.co/holdout/pipeline"
)

func TestWriteOutputsResiduals(t *testing.T) {
	dir := t.TempDir()
	v := 0.5
	rep := &pipeline.Report{
		Metric:     metric.MSE,
		Candidates: []pipeline.CandidateRow{{Name: "A", Kind: "ols", Validation: &v}},
		Selected:   "A",
		Residuals:  []float64{-0.4, -0.1, 0, 0.2, 0.3, 0.5},
	}
	out := pipeline.Output{
		JSON:      filepath.Join(dir, "report.json"),
		Residuals: filepath.Join(dir, "residuals.png"),
	}
	writeOutputs(out, rep)

	for _, path := range []string{out.JSON, out.Residuals} {
		info, err := os.Stat(path)
		assert.NilError(t, err)
		assert.Assert(t, info.Size() > 0, path)
	}
}

func TestWriteOutputsSkipsResidualsForClassification(t *testing.T) {
	dir := t.TempDir()
	rep := &pipeline.Report{Metric: metric.Accuracy, Selected: "logit", Residuals: []float64{1}}
	out := pipeline.Output{Residuals: filepath.Join(dir, "residuals.png")}
	writeOutputs(out, rep)

	_, err := os.Stat(out.Residuals)
	assert.Assert(t, os.IsNotExist(err))
}
