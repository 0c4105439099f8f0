package dataset

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

const visits = `subject,visit,score
s2,1,10.5
s1,1,9
s2,2,11
s3,1,
s1,2,8.5
`

func load(t *testing.T) *Dataset {
	t.Helper()
	d, err := Load(strings.NewReader(visits), "subject")
	assert.NilError(t, err)
	return d
}

func TestLoad(t *testing.T) {
	d := load(t)
	assert.Equal(t, d.Len(), 5)
	assert.Equal(t, d.Entity(), "subject")
	assert.DeepEqual(t, d.Names(), []string{"subject", "visit", "score"})
	assert.DeepEqual(t, d.IDs(), []string{"s1", "s2", "s3"})
	assert.Equal(t, d.EntityAt(0), "s2")
}

func TestLoadNumericIDsStayText(t *testing.T) {
	d, err := Load(strings.NewReader("id,x\n007,1\n7,2\n"), "id")
	assert.NilError(t, err)
	assert.DeepEqual(t, d.IDs(), []string{"007", "7"})
}

func TestLoadMissingEntityColumn(t *testing.T) {
	_, err := Load(strings.NewReader(visits), "patient")
	assert.ErrorIs(t, err, ErrNoColumn)
}

func TestLoadRowWithoutID(t *testing.T) {
	_, err := FromRecords([][]string{{"id", "x"}, {"a", "1"}, {"", "2"}}, "id")
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestColumn(t *testing.T) {
	d := load(t)
	score, err := d.Column("score")
	assert.NilError(t, err)
	assert.Equal(t, len(score), 5)
	assert.Equal(t, score[0], 10.5)
	assert.Assert(t, math.IsNaN(score[3]))

	_, err = d.Column("weight")
	assert.ErrorIs(t, err, ErrNoColumn)
	assert.Assert(t, d.HasColumn("visit"))
	assert.Assert(t, !d.HasColumn("weight"))
}

func TestSelectKeepsAllRowsOfAnEntity(t *testing.T) {
	d := load(t)
	sub := d.Select(map[string]struct{}{"s1": {}, "s3": {}})
	assert.Equal(t, sub.Len(), 3)
	assert.DeepEqual(t, sub.IDs(), []string{"s1", "s3"})
	visit, err := sub.Column("visit")
	assert.NilError(t, err)
	assert.DeepEqual(t, visit, []float64{1, 1, 2})
}

func TestSelectNothing(t *testing.T) {
	d := load(t)
	sub := d.Select(map[string]struct{}{"s9": {}})
	assert.Equal(t, sub.Len(), 0)
	assert.Check(t, is.Len(sub.IDs(), 0))
}

func TestWriteCSV(t *testing.T) {
	d := load(t)
	var buf bytes.Buffer
	assert.NilError(t, d.Select(map[string]struct{}{"s1": {}}).WriteCSV(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, len(lines), 3)
	assert.Equal(t, lines[0], "subject,visit,score")
	assert.Assert(t, strings.HasPrefix(lines[1], "s1,1,"))
}
