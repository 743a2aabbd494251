package rules

import (
	"log/slog"
	"net/http"

	"github.com/klyr/eudoxus/internal/eudoxus"
	"github.com/klyr/eudoxus/internal/fields"
	"github.com/klyr/eudoxus/internal/normalize"
	"github.com/klyr/eudoxus/internal/observability"
)

// Engine evaluates the rules of a site against a request. It is safe for
// concurrent use once built.
type Engine struct {
	registry   *eudoxus.Registry
	sites      map[string][]Rule
	loadErrors []*LoadError
	logger     *slog.Logger
	metrics    *observability.Metrics
}

func (e *Engine) Registry() *eudoxus.Registry {
	return e.registry
}

// LoadErrors lists the automata that failed to load, sorted by name.
func (e *Engine) LoadErrors() []*LoadError {
	return e.loadErrors
}

// Rules returns the active rules of a site.
func (e *Engine) Rules(site string) []Rule {
	if e == nil {
		return nil
	}
	return e.sites[site]
}

// NeedsBody reports whether any active rule of the site reads the body.
func (e *Engine) NeedsBody(site string) bool {
	for _, rule := range e.Rules(site) {
		if rule.Target.NeedsBody() {
			return true
		}
	}
	return false
}

// Evaluate runs the site's rules over r. Every field a rule matches is
// reported on its own, so a rule can fire several times in one request.
func (e *Engine) Evaluate(site string, r *http.Request, body []byte) Result {
	result := Result{}
	rules := e.Rules(site)
	if len(rules) == 0 || r == nil {
		return result
	}

	extracted := make(map[fields.Target][]fields.Field)
	for _, rule := range rules {
		list, ok := extracted[rule.Target]
		if !ok {
			list = fields.Extract(r, body, rule.Target)
			extracted[rule.Target] = list
		}

		for _, field := range list {
			m, ok := e.evaluateField(rule, field)
			if !ok {
				continue
			}
			result.Score += m.Score
			result.Matches = append(result.Matches, m)
		}
	}
	return result
}

func (e *Engine) evaluateField(rule Rule, field fields.Field) (Match, bool) {
	value := normalize.Apply(field.Value, rule.Transforms)

	hits, err := e.registry.Evaluate(rule.Automaton, value, rule.Policy)
	if err != nil {
		e.metrics.EvaluationFailed(rule.ID)
		e.logger.Debug("rule evaluation failed", "rule_id", rule.ID, "error", err)
		return Match{}, false
	}
	e.metrics.Scanned(rule.Policy.String(), len(value))
	if len(hits) == 0 {
		return Match{}, false
	}

	evidence := "<redacted>"
	if !field.Sensitive {
		evidence = snippet(hits[0].Span(value))
		if evidence == "" {
			evidence = snippet(value)
		}
	}

	m := Match{
		RuleID:    rule.ID,
		Field:     field.Name,
		Target:    rule.Target,
		Operator:  rule.Policy.String(),
		Automaton: rule.Automaton,
		Score:     rule.Score,
		Tags:      append([]string(nil), rule.Tags...),
		Evidence:  evidence,
		Hits:      len(hits),
	}
	m.Message = expandMessage(rule.Msg, m)
	return m, true
}
