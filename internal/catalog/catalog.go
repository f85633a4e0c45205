// Package catalog holds the fixed state and variable lists the dashboard
// offers. Both are embedded YAML decoded once and never modified.
package catalog

import (
	_ "embed"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Default selections shown when the dashboard first loads.
const (
	DefaultState    = "Virginia"
	DefaultVariable = "MeanCommute"
)

// RUCCVariable is the catalog column sourced from the rural-urban
// spreadsheet rather than the county CSV.
const RUCCVariable = "RUCC_2013"

var (
	// ErrUnknownState is returned for a state outside the catalog.
	ErrUnknownState = eris.New("catalog: unknown state")
	// ErrUnknownVariable is returned for a variable outside the catalog.
	ErrUnknownVariable = eris.New("catalog: unknown variable")
)

//go:embed states.yaml
var statesYAML []byte

//go:embed variables.yaml
var variablesYAML []byte

// State is a selectable state and the point its map is centered on.
type State struct {
	Name string  `yaml:"name" json:"name"`
	Lat  float64 `yaml:"lat" json:"lat"`
	Lon  float64 `yaml:"lon" json:"lon"`
	FIPS string  `yaml:"fips" json:"fips"`
}

// Variable is a selectable numeric census column.
type Variable struct {
	Name  string `yaml:"name" json:"name"`
	Label string `yaml:"label" json:"label"`
	Group string `yaml:"group" json:"group"`
}

// Catalog is the ordered, read-only set of states and variables.
type Catalog struct {
	states    []State
	variables []Variable
	stateIdx  map[string]int
	varIdx    map[string]int
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns the embedded catalog. It is decoded on first use.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = Parse(statesYAML, variablesYAML)
	})
	return defaultCat, defaultErr
}

// Parse decodes catalog YAML documents. Duplicate names are rejected.
func Parse(statesDoc, variablesDoc []byte) (*Catalog, error) {
	var sf struct {
		States []State `yaml:"states"`
	}
	if err := yaml.Unmarshal(statesDoc, &sf); err != nil {
		return nil, eris.Wrap(err, "catalog: decode states")
	}
	var vf struct {
		Variables []Variable `yaml:"variables"`
	}
	if err := yaml.Unmarshal(variablesDoc, &vf); err != nil {
		return nil, eris.Wrap(err, "catalog: decode variables")
	}
	return New(sf.States, vf.Variables)
}

// New builds a catalog from explicit lists, mainly for tests.
func New(states []State, variables []Variable) (*Catalog, error) {
	c := &Catalog{
		states:    append([]State(nil), states...),
		variables: append([]Variable(nil), variables...),
		stateIdx:  make(map[string]int, len(states)),
		varIdx:    make(map[string]int, len(variables)),
	}
	for i, s := range c.states {
		if s.Name == "" {
			return nil, eris.Errorf("catalog: state %d has no name", i)
		}
		if _, dup := c.stateIdx[s.Name]; dup {
			return nil, eris.Errorf("catalog: duplicate state %q", s.Name)
		}
		c.stateIdx[s.Name] = i
	}
	for i, v := range c.variables {
		if v.Name == "" {
			return nil, eris.Errorf("catalog: variable %d has no name", i)
		}
		if _, dup := c.varIdx[v.Name]; dup {
			return nil, eris.Errorf("catalog: duplicate variable %q", v.Name)
		}
		c.varIdx[v.Name] = i
	}
	return c, nil
}

// States returns the states in display order. The slice is a copy.
func (c *Catalog) States() []State {
	return append([]State(nil), c.states...)
}

// Variables returns the variables in display order. The slice is a copy.
func (c *Catalog) Variables() []Variable {
	return append([]Variable(nil), c.variables...)
}

// StateNames returns state names in display order.
func (c *Catalog) StateNames() []string {
	names := make([]string, len(c.states))
	for i, s := range c.states {
		names[i] = s.Name
	}
	return names
}

// VariableNames returns variable names in display order.
func (c *Catalog) VariableNames() []string {
	names := make([]string, len(c.variables))
	for i, v := range c.variables {
		names[i] = v.Name
	}
	return names
}

// State looks up a state by exact name.
func (c *Catalog) State(name string) (State, error) {
	i, ok := c.stateIdx[name]
	if !ok {
		return State{}, eris.Wrapf(ErrUnknownState, "%q", name)
	}
	return c.states[i], nil
}

// Variable looks up a variable by exact name.
func (c *Catalog) Variable(name string) (Variable, error) {
	i, ok := c.varIdx[name]
	if !ok {
		return Variable{}, eris.Wrapf(ErrUnknownVariable, "%q", name)
	}
	return c.variables[i], nil
}

// HasState reports whether name is a catalog state.
func (c *Catalog) HasState(name string) bool {
	_, ok := c.stateIdx[name]
	return ok
}
