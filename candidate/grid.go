package candidate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat/combin"
)

// DegreeParam in a Grid sets the polynomial degree of every predictor term.
const DegreeParam = "degree"

// Grid is a hyper-parameter sweep around a base candidate.
type Grid struct {
	Base   Candidate
	Values map[string][]float64
}

// Expand returns one candidate per point of the Cartesian product of Values.
// Parameter names are taken in sorted order and the last one varies fastest,
// so the result is the same on every call.
func (g Grid) Expand() ([]Candidate, error) {
	names := make([]string, 0, len(g.Values))
	for name := range g.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return []Candidate{g.Base}, nil
	}
	lens := make([]int, len(names))
	for i, name := range names {
		lens[i] = len(g.Values[name])
		if lens[i] == 0 {
			return nil, fmt.Errorf("candidate %s: no values for %q", g.Base.Name, name)
		}
	}

	var out []Candidate
	for _, point := range combin.Cartesian(lens) {
		params := g.Base.Params.clone()
		terms := append([]Term(nil), g.Base.Predictors...)
		parts := make([]string, len(names))
		for i, name := range names {
			v := g.Values[name][point[i]]
			parts[i] = name + "=" + strconv.FormatFloat(v, 'g', -1, 64)
			if name == DegreeParam {
				if v != float64(int(v)) || v < 1 {
					return nil, fmt.Errorf("candidate %s: degree %v", g.Base.Name, v)
				}
				for j := range terms {
					terms[j].Degree = int(v)
				}
				continue
			}
			params[name] = v
		}
		c, err := New(g.Base.Name+"["+strings.Join(parts, ",")+"]", g.Base.Kind, g.Base.Target, terms, params)
		if err != nil {
			return nil, err
		}
		out = append(out, c.WithSeed(g.Base.Seed))
	}
	return out, nil
}
