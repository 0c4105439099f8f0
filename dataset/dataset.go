// Package dataset wraps a gota DataFrame whose rows are keyed by an entity
// identifier. A subject observed at several time points contributes several
// rows that share one identifier.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

var (
	ErrNoColumn  = errors.New("dataset: no such column")
	ErrMissingID = errors.New("dataset: row without entity identifier")
)

// Dataset is an immutable table plus the name of its entity column.
type Dataset struct {
	df     dataframe.DataFrame
	entity string
	ids    []string // per row
}

// Load reads a CSV with a header row. The entity column is always read as text.
func Load(r io.Reader, entity string) (*Dataset, error) {
	df := dataframe.ReadCSV(r, dataframe.WithTypes(map[string]series.Type{entity: series.String}))
	if df.Err != nil {
		return nil, fmt.Errorf("dataset: read csv: %w", df.Err)
	}
	return FromFrame(df, entity)
}

// FromRecords builds a Dataset from string records, the first being the header.
func FromRecords(records [][]string, entity string) (*Dataset, error) {
	df := dataframe.LoadRecords(records, dataframe.WithTypes(map[string]series.Type{entity: series.String}))
	if df.Err != nil {
		return nil, fmt.Errorf("dataset: load records: %w", df.Err)
	}
	return FromFrame(df, entity)
}

// FromFrame checks that every row of df carries exactly one entity identifier.
func FromFrame(df dataframe.DataFrame, entity string) (*Dataset, error) {
	col := df.Col(entity)
	if col.Err != nil {
		return nil, fmt.Errorf("%w %q", ErrNoColumn, entity)
	}
	ids := col.Records()
	for i, missing := range col.IsNaN() {
		if missing || ids[i] == "" {
			return nil, fmt.Errorf("%w at row %d", ErrMissingID, i+1)
		}
	}
	return &Dataset{df: df, entity: entity, ids: ids}, nil
}

func (d *Dataset) Len() int { return len(d.ids) }

func (d *Dataset) Entity() string { return d.entity }

func (d *Dataset) Names() []string { return d.df.Names() }

// EntityAt returns the identifier of row i.
func (d *Dataset) EntityAt(i int) string { return d.ids[i] }

// IDs returns the distinct entity identifiers in sorted order, so the result
// does not depend on row order.
func (d *Dataset) IDs() []string {
	seen := make(map[string]struct{}, len(d.ids))
	var out []string
	for _, id := range d.ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// HasColumn reports whether the column exists.
func (d *Dataset) HasColumn(name string) bool {
	for _, n := range d.df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Column returns a column as floats. Values that do not parse are NaN.
func (d *Dataset) Column(name string) ([]float64, error) {
	s := d.df.Col(name)
	if s.Err != nil {
		return nil, fmt.Errorf("%w %q", ErrNoColumn, name)
	}
	return s.Float(), nil
}

// Select returns the rows whose entity identifier is in ids, preserving row order.
func (d *Dataset) Select(ids map[string]struct{}) *Dataset {
	rows := []int{}
	var sub []string
	for i, id := range d.ids {
		if _, ok := ids[id]; ok {
			rows = append(rows, i)
			sub = append(sub, id)
		}
	}
	return &Dataset{df: d.df.Subset(rows), entity: d.entity, ids: sub}
}

// WriteCSV writes the rows with a header.
func (d *Dataset) WriteCSV(w io.Writer) error {
	return d.df.WriteCSV(w)
}
