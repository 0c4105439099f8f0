package pipeline

import (
	"fmt"
	"io"

	"go.yaml.in/yaml/v2"

	"berkotech.co/holdout/candidate"
	"berkotech.co/holdout/metric"
)

// Config is a run description, usually read from YAML.
type Config struct {
	Data               string            `yaml:"data"`
	ID                 string            `yaml:"id"`
	TrainFraction      float64           `yaml:"trainFraction"`
	ValidationFraction float64           `yaml:"validationFraction"`
	RandomSeed         uint64            `yaml:"randomSeed"`
	Metric             string            `yaml:"metric"`
	Parallelism        int               `yaml:"parallelism"`
	Candidates         []CandidateConfig `yaml:"candidates"`
	Sweeps             []SweepConfig     `yaml:"sweeps"`
	Output             Output            `yaml:"output"`
}

type CandidateConfig struct {
	Name       string             `yaml:"name"`
	Kind       string             `yaml:"kind"`
	Target     string             `yaml:"target"`
	Predictors []Term             `yaml:"predictors"`
	Params     map[string]float64 `yaml:"params"`
	Seed       *uint64            `yaml:"seed"`
}

// SweepConfig is a candidate plus a grid of hyper-parameter values.
type SweepConfig struct {
	CandidateConfig `yaml:",inline"`
	Grid            map[string][]float64 `yaml:"grid"`
}

// Term is a predictor. In YAML it is either a column name or a mapping
// with column and degree.
type Term struct {
	Column string `yaml:"column"`
	Degree int    `yaml:"degree"`
}

func (t *Term) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var column string
	if err := unmarshal(&column); err == nil {
		*t = Term{Column: column}
		return nil
	}
	type plain Term
	return unmarshal((*plain)(t))
}

type Output struct {
	Dir       string `yaml:"dir"`
	Subsets   bool   `yaml:"subsets"`
	Plot      string `yaml:"plot"`
	JSON      string `yaml:"json"`
	Residuals string `yaml:"residuals"`
}

// ConfigError is an invalid configuration. It is reported before any data
// is touched.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// LoadConfig parses YAML. Unknown keys are errors.
func LoadConfig(r io.Reader) (Config, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := yaml.UnmarshalStrict(b, &c); err != nil {
		return Config{}, &ConfigError{Field: "yaml", Err: err}
	}
	return c, nil
}

// Validate checks c and resolves its candidates.
func (c Config) Validate() error {
	_, _, err := c.resolve()
	return err
}

// Resolve returns the candidates: explicit ones first, then every sweep
// expanded in order. A candidate without a seed gets RandomSeed plus its
// position plus one.
func (c Config) Resolve() ([]candidate.Candidate, error) {
	_, cands, err := c.resolve()
	return cands, err
}

func (c Config) resolve() (metric.Kind, []candidate.Candidate, error) {
	if c.ID == "" {
		return "", nil, configErr("id", "entity column is required")
	}
	if !(c.TrainFraction > 0 && c.TrainFraction < 1) {
		return "", nil, configErr("trainFraction", "%v is outside (0,1)", c.TrainFraction)
	}
	if !(c.ValidationFraction > 0 && c.ValidationFraction < 1) {
		return "", nil, configErr("validationFraction", "%v is outside (0,1)", c.ValidationFraction)
	}
	kind, err := metric.ParseKind(c.Metric)
	if err != nil {
		return "", nil, &ConfigError{Field: "metric", Err: err}
	}
	if c.Parallelism < 0 {
		return "", nil, configErr("parallelism", "%d is negative", c.Parallelism)
	}

	var out []candidate.Candidate
	seeds := []*uint64{}
	for i, cc := range c.Candidates {
		cand, err := cc.build()
		if err == nil {
			err = matches(cand.Kind, kind)
		}
		if err != nil {
			return "", nil, &ConfigError{Field: fmt.Sprintf("candidates[%d]", i), Err: err}
		}
		out = append(out, cand)
		seeds = append(seeds, cc.Seed)
	}
	for i, sc := range c.Sweeps {
		base, err := sc.build()
		if err == nil {
			err = matches(base.Kind, kind)
		}
		if err != nil {
			return "", nil, &ConfigError{Field: fmt.Sprintf("sweeps[%d]", i), Err: err}
		}
		grid, err := candidate.Grid{Base: base, Values: sc.Grid}.Expand()
		if err != nil {
			return "", nil, &ConfigError{Field: fmt.Sprintf("sweeps[%d].grid", i), Err: err}
		}
		for range grid {
			seeds = append(seeds, sc.Seed)
		}
		out = append(out, grid...)
	}
	if len(out) == 0 {
		return "", nil, configErr("candidates", "no candidates")
	}

	names := map[string]bool{}
	for i, cand := range out {
		if names[cand.Name] {
			return "", nil, configErr("candidates", "duplicate name %q", cand.Name)
		}
		names[cand.Name] = true
		if cand.Target == c.ID {
			return "", nil, configErr("candidates", "%s: target is the entity column", cand.Name)
		}
		for _, t := range cand.Predictors {
			if t.Column == c.ID {
				return "", nil, configErr("candidates", "%s: entity column used as predictor", cand.Name)
			}
		}
		if seeds[i] != nil {
			out[i] = cand.WithSeed(*seeds[i])
		} else {
			out[i] = cand.WithSeed(c.RandomSeed + uint64(i) + 1)
		}
	}
	return kind, out, nil
}

// matches rejects a regression estimator scored by a classification metric
// and the reverse.
func matches(k candidate.Kind, m metric.Kind) error {
	if k.Classifier() != m.Classification() {
		if m.Classification() {
			return fmt.Errorf("%s predicts a continuous value, metric %s needs a classifier", k, m)
		}
		return fmt.Errorf("%s is a classifier, metric %s needs a regression estimator", k, m)
	}
	return nil
}

func (cc CandidateConfig) build() (candidate.Candidate, error) {
	terms := make([]candidate.Term, len(cc.Predictors))
	for i, t := range cc.Predictors {
		terms[i] = candidate.Term{Column: t.Column, Degree: t.Degree}
	}
	return candidate.New(cc.Name, candidate.Kind(cc.Kind), cc.Target, terms, cc.Params)
}
