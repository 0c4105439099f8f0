// Package partition splits a dataset into train, validation and test subsets
// by entity identifier. Rows inherit the label of their identifier, so an
// entity with several rows never straddles two subsets.
package partition

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/stat/sampleuv"

	"berkotech.co/holdout/dataset"
)

type Label int

const (
	Train Label = iota
	Validation
	Test
)

func (l Label) String() string {
	switch l {
	case Train:
		return "train"
	case Validation:
		return "validation"
	case Test:
		return "test"
	}
	return fmt.Sprintf("Label(%d)", int(l))
}

// ErrFraction is returned by New for a fraction outside (0,1).
var ErrFraction = errors.New("partition: fraction must lie in (0,1)")

// Error reports a split that would leave a partition empty.
type Error struct {
	Empty                   []Label
	Entities                int
	Train, Validation, Test int
}

func (e *Error) Error() string {
	if e.Entities == 0 {
		return "partition: dataset has no entity identifiers"
	}
	return fmt.Sprintf("partition: empty %v with %d entities (train=%d validation=%d test=%d)",
		e.Empty, e.Entities, e.Train, e.Validation, e.Test)
}

// Partitioner draws identifiers with a seeded source. Every call to Split
// starts from the same seed, so equal inputs give equal partitions.
type Partitioner struct {
	trainFraction      float64
	validationFraction float64
	seed               uint64
}

// New returns a partitioner. trainFraction is the share of entities that is
// eligible for training; validationFraction is the share of that pool held
// out for validation. The remaining entities form the test set.
func New(trainFraction, validationFraction float64, seed uint64) (*Partitioner, error) {
	if !(trainFraction > 0 && trainFraction < 1) {
		return nil, fmt.Errorf("%w: train fraction %v", ErrFraction, trainFraction)
	}
	if !(validationFraction > 0 && validationFraction < 1) {
		return nil, fmt.Errorf("%w: validation fraction %v", ErrFraction, validationFraction)
	}
	return &Partitioner{trainFraction: trainFraction, validationFraction: validationFraction, seed: seed}, nil
}

func (p *Partitioner) Seed() uint64 { return p.seed }

// Sizes returns the number of train, validation and test entities Split
// produces for n distinct identifiers.
func (p *Partitioner) Sizes(n int) (train, validation, test int) {
	pool := int(math.Round(p.trainFraction * float64(n)))
	validation = int(math.Round(p.validationFraction * float64(pool)))
	return pool - validation, validation, n - pool
}

// Split labels every distinct identifier of d and materializes the subsets.
func (p *Partitioner) Split(d *dataset.Dataset) (*Result, error) {
	ids := d.IDs()
	n := len(ids)
	train, validation, test := p.Sizes(n)
	if err := checkSizes(n, train, validation, test); err != nil {
		return nil, err
	}
	src := rand.NewPCG(p.seed, p.seed^0x9e3779b97f4a7c15)

	pool := make([]int, train+validation)
	sampleuv.WithoutReplacement(pool, n, src)
	sort.Ints(pool)
	held := make([]int, validation)
	sampleuv.WithoutReplacement(held, len(pool), src)

	labels := make(map[string]Label, n)
	for _, id := range ids {
		labels[id] = Test
	}
	for _, i := range pool {
		labels[ids[i]] = Train
	}
	for _, j := range held {
		labels[ids[pool[j]]] = Validation
	}
	return newResult(d, labels), nil
}

func checkSizes(n, train, validation, test int) error {
	e := &Error{Entities: n, Train: train, Validation: validation, Test: test}
	if n == 0 {
		return e
	}
	if train <= 0 {
		e.Empty = append(e.Empty, Train)
	}
	if validation <= 0 {
		e.Empty = append(e.Empty, Validation)
	}
	if test <= 0 {
		e.Empty = append(e.Empty, Test)
	}
	if len(e.Empty) > 0 {
		return e
	}
	return nil
}

// Result is the immutable outcome of a split. It owns the identifier to
// label mapping; the subsets are views derived from it once.
type Result struct {
	labels     map[string]Label
	ids        [3][]string
	train      *dataset.Dataset
	validation *dataset.Dataset
	holdout    *Holdout
}

func newResult(d *dataset.Dataset, labels map[string]Label) *Result {
	r := &Result{labels: labels}
	var sets [3]map[string]struct{}
	for i := range sets {
		sets[i] = make(map[string]struct{})
	}
	for id, l := range labels {
		sets[l][id] = struct{}{}
		r.ids[l] = append(r.ids[l], id)
	}
	for i := range r.ids {
		sort.Strings(r.ids[i])
	}
	r.train = d.Select(sets[Train])
	r.validation = d.Select(sets[Validation])
	r.holdout = &Holdout{d: d.Select(sets[Test])}
	return r
}

// Train returns the rows models may be fit on.
func (r *Result) Train() *dataset.Dataset { return r.train }

// Validation returns the rows candidates are compared on.
func (r *Result) Validation() *dataset.Dataset { return r.validation }

// Holdout returns the sealed test rows.
func (r *Result) Holdout() *Holdout { return r.holdout }

// IDs returns the sorted identifiers carrying label l.
func (r *Result) IDs(l Label) []string {
	return append([]string(nil), r.ids[l]...)
}

// Label returns the label of an identifier.
func (r *Result) Label(id string) (Label, bool) {
	l, ok := r.labels[id]
	return l, ok
}

// Persist writes train.csv, validation.csv and test.csv into dir. Writing the
// test rows does not open the holdout.
func (r *Result) Persist(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, d := range map[string]*dataset.Dataset{
		"train.csv":      r.train,
		"validation.csv": r.validation,
		"test.csv":       r.holdout.d,
	} {
		if err := writeFile(filepath.Join(dir, name), d); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, d *dataset.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := d.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("partition: write %s: %w", path, err)
	}
	return f.Close()
}
