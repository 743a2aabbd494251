package rules

import (
	"fmt"

	"github.com/klyr/eudoxus/internal/eudoxus"
	"github.com/klyr/eudoxus/internal/fields"
	"github.com/klyr/eudoxus/internal/normalize"
)

// Rule runs one named automaton over every field a target selects.
type Rule struct {
	ID         string
	Target     fields.Target
	Policy     eudoxus.Policy
	Automaton  string
	Score      int
	Tags       []string
	Transforms normalize.Options
	Msg        string
}

// Match is one rule firing on one field.
type Match struct {
	RuleID    string
	Field     string
	Target    fields.Target
	Operator  string
	Automaton string
	Score     int
	Tags      []string
	Message   string
	Evidence  string
	Hits      int
}

type Result struct {
	Score   int
	Matches []Match
}

// LoadError records an automaton that could not be loaded and the rules
// left disabled because of it.
type LoadError struct {
	Automaton string
	Path      string
	Rules     []string
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("automaton %s (%s): %v", e.Automaton, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
