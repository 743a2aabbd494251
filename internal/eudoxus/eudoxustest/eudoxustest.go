// Package eudoxustest builds small automata for tests. Production automata
// come from the offline compiler; these builders cover the two shapes the
// tests need: anchored tries and unanchored Aho-Corasick machines.
package eudoxustest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/klyr/eudoxus/internal/eudoxus"
)

type node struct {
	next map[byte]int
	fail int
	out  []uint32
}

// Trie returns an anchored trie: input must start with a pattern, and any
// byte that leaves the trie moves to a dead state. Every pattern end carries
// an output, so the shortest pattern along a path fires first.
func Trie(patterns ...string) eudoxus.Definition {
	return trie(patterns, false)
}

// LongestTrie is Trie with outputs only on leaves, so a prefix that
// continues into a longer pattern never fires.
func LongestTrie(patterns ...string) eudoxus.Definition {
	return trie(patterns, true)
}

func trie(patterns []string, leavesOnly bool) eudoxus.Definition {
	nodes, outputs := buildNodes(patterns)

	const dead = 1
	// node i of the trie becomes state i+1 for i > 0, root stays 0
	stateOf := func(i int) uint32 {
		if i == 0 {
			return 0
		}
		return uint32(i + 1)
	}

	states := make([]eudoxus.StateDef, len(nodes)+1)
	states[dead] = eudoxus.StateDef{Default: dead}
	for i, n := range nodes {
		def := eudoxus.StateDef{Default: dead, Edges: map[byte]uint32{}}
		for b, next := range n.next {
			def.Edges[b] = stateOf(next)
		}
		if !leavesOnly || len(n.next) == 0 {
			def.Outputs = append([]uint32(nil), n.out...)
		}
		states[stateOf(i)] = def
	}

	return eudoxus.Definition{Outputs: outputs, States: states}
}

// AhoCorasick returns an unanchored automaton that reports every occurrence
// of every pattern. Failure links are resolved into total transitions.
func AhoCorasick(patterns ...string) eudoxus.Definition {
	nodes, outputs := buildNodes(patterns)

	order := make([]int, 0, len(nodes))
	queue := make([]int, 0)
	for _, next := range nodes[0].next {
		nodes[next].fail = 0
		queue = append(queue, next)
	}
	for len(queue) > 0 {
		state := queue[0]
		queue = queue[1:]
		order = append(order, state)

		for b, next := range nodes[state].next {
			fail := nodes[state].fail
			for fail != 0 {
				if _, ok := nodes[fail].next[b]; ok {
					break
				}
				fail = nodes[fail].fail
			}
			if target, ok := nodes[fail].next[b]; ok && target != next {
				nodes[next].fail = target
			} else {
				nodes[next].fail = 0
			}
			nodes[next].out = append(nodes[next].out, nodes[nodes[next].fail].out...)
			queue = append(queue, next)
		}
	}

	delta := make([][256]uint32, len(nodes))
	for b := 0; b < 256; b++ {
		if next, ok := nodes[0].next[byte(b)]; ok {
			delta[0][b] = uint32(next)
		}
	}
	for _, state := range order {
		for b := 0; b < 256; b++ {
			if next, ok := nodes[state].next[byte(b)]; ok {
				delta[state][b] = uint32(next)
			} else {
				delta[state][b] = delta[nodes[state].fail][b]
			}
		}
	}

	states := make([]eudoxus.StateDef, len(nodes))
	for i, n := range nodes {
		def := eudoxus.StateDef{Edges: map[byte]uint32{}, Outputs: dedupe(n.out)}
		for b, target := range delta[i] {
			if target != 0 {
				def.Edges[byte(b)] = target
			}
		}
		states[i] = def
	}

	return eudoxus.Definition{Outputs: outputs, States: states}
}

func buildNodes(patterns []string) ([]node, []eudoxus.Output) {
	nodes := []node{{next: map[byte]int{}}}
	var outputs []eudoxus.Output
	seen := map[string]bool{}

	for _, pattern := range patterns {
		if pattern == "" || seen[pattern] {
			continue
		}
		seen[pattern] = true

		current := 0
		for i := 0; i < len(pattern); i++ {
			b := pattern[i]
			next, ok := nodes[current].next[b]
			if !ok {
				nodes = append(nodes, node{next: map[byte]int{}})
				next = len(nodes) - 1
				nodes[current].next[b] = next
			}
			current = next
		}

		index := uint32(len(outputs))
		outputs = append(outputs, eudoxus.Output{
			ID:       index,
			Priority: index,
			Length:   uint32(len(pattern)),
			Data:     []byte(pattern),
		})
		nodes[current].out = append(nodes[current].out, index)
	}

	return nodes, outputs
}

func dedupe(refs []uint32) []uint32 {
	if len(refs) == 0 {
		return nil
	}
	seen := make(map[uint32]bool, len(refs))
	out := make([]uint32, 0, len(refs))
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out
}

// MustEncode encodes def or fails the test.
func MustEncode(tb testing.TB, def eudoxus.Definition) []byte {
	tb.Helper()
	data, err := eudoxus.Encode(def)
	require.NoError(tb, err)
	return data
}

// MustBuild encodes and loads def or fails the test.
func MustBuild(tb testing.TB, def eudoxus.Definition) *eudoxus.Automaton {
	tb.Helper()
	a, err := eudoxus.Build(def)
	require.NoError(tb, err)
	return a
}
