package eudoxus

import (
	"fmt"
	"strings"
)

// Policy selects how matches of one execution are consumed.
type Policy int

const (
	// PolicyAll reports every match of the whole input.
	PolicyAll Policy = iota
	// PolicyFirst stops at the first match and reports it only when it
	// spans the entire input.
	PolicyFirst
)

// Operator names used by rule configuration.
const (
	OperatorAll   = "ee"
	OperatorFirst = "ee_match"
)

func (p Policy) String() string {
	switch p {
	case PolicyAll:
		return OperatorAll
	case PolicyFirst:
		return OperatorFirst
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy maps an operator name to a policy.
func ParsePolicy(name string) (Policy, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "@") {
	case OperatorAll, "all":
		return PolicyAll, nil
	case OperatorFirst, "first":
		return PolicyFirst, nil
	default:
		return 0, fmt.Errorf("unknown operator %q", name)
	}
}

// Stream applies a policy to an execution fed in chunks.
type Stream struct {
	exec   *Execution
	policy Policy
	first  *Match
}

// NewStream starts a policy-aware execution of a.
func NewStream(a *Automaton, policy Policy) *Stream {
	return &Stream{exec: NewExecution(a), policy: policy}
}

// Feed consumes chunk. Under PolicyAll it returns the chunk's matches;
// under PolicyFirst nothing is known until Finalize.
func (s *Stream) Feed(chunk []byte) []Match {
	if s.policy == PolicyFirst {
		s.exec.Walk(chunk, s.keepFirst)
		return nil
	}
	return s.exec.Feed(chunk)
}

// Finalize ends the input and returns the remaining matches.
func (s *Stream) Finalize() []Match {
	if s.policy != PolicyFirst {
		return s.exec.Finalize()
	}

	s.exec.FinalizeWalk(s.keepFirst)
	if s.first == nil || !spansInput(*s.first, s.exec.Consumed()) {
		return nil
	}
	return []Match{*s.first}
}

// Consumed returns the number of bytes fed so far.
func (s *Stream) Consumed() int64 {
	return s.exec.Consumed()
}

func (s *Stream) keepFirst(m Match) bool {
	s.first = &m
	return false
}

func spansInput(m Match, total int64) bool {
	if m.End != total {
		return false
	}
	return m.Length <= 0 || int64(m.Length) == total
}

// Evaluate runs a over the whole input under policy.
func Evaluate(a *Automaton, input []byte, policy Policy) []Match {
	s := NewStream(a, policy)
	out := s.Feed(input)
	return append(out, s.Finalize()...)
}

// Matches reports whether Evaluate would return at least one match.
func Matches(a *Automaton, input []byte, policy Policy) bool {
	if policy == PolicyFirst {
		return len(Evaluate(a, input, policy)) > 0
	}
	found := false
	x := NewExecution(a)
	x.Walk(input, func(Match) bool {
		found = true
		return false
	})
	if !found {
		x.FinalizeWalk(func(Match) bool {
			found = true
			return false
		})
	}
	return found
}
