package eudoxus_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klyr/eudoxus/internal/eudoxus"
	"github.com/klyr/eudoxus/internal/eudoxus/eudoxustest"
)

type hit struct {
	data string
	end  int64
}

func hits(matches []eudoxus.Match) []hit {
	out := make([]hit, 0, len(matches))
	for _, m := range matches {
		out = append(out, hit{data: string(m.Data), end: m.End})
	}
	return out
}

func whole(a *eudoxus.Automaton, input []byte) []eudoxus.Match {
	x := eudoxus.NewExecution(a)
	return append(x.Feed(input), x.Finalize()...)
}

func chunked(a *eudoxus.Automaton, chunks [][]byte) []eudoxus.Match {
	x := eudoxus.NewExecution(a)
	var out []eudoxus.Match
	for _, c := range chunks {
		out = append(out, x.Feed(c)...)
	}
	return append(out, x.Finalize()...)
}

func TestExecutionReportsEveryOccurrence(t *testing.T) {
	a := eudoxustest.MustBuild(t, eudoxustest.AhoCorasick("he", "she", "his", "hers"))

	got := hits(whole(a, []byte("ushers")))
	assert.Equal(t, []hit{{"he", 4}, {"she", 4}, {"hers", 6}}, got)
}

func TestExecutionStartAndSpan(t *testing.T) {
	a := eudoxustest.MustBuild(t, eudoxustest.AhoCorasick("foo"))
	input := []byte("xxfooyyfoo")

	matches := whole(a, input)
	require.Len(t, matches, 2)
	assert.Equal(t, int64(2), matches[0].Start())
	assert.Equal(t, []byte("foo"), matches[0].Span(input))
	assert.Equal(t, int64(10), matches[1].End)
	assert.Nil(t, matches[1].Span(input[:5]))

	unknown := eudoxus.Match{End: 4}
	assert.Equal(t, int64(-1), unknown.Start())
	assert.Nil(t, unknown.Span(input))
}

func TestExecutionChunkInvariance(t *testing.T) {
	automata := map[string]*eudoxus.Automaton{
		"aho":   eudoxustest.MustBuild(t, eudoxustest.AhoCorasick("he", "she", "his", "hers", "a", "aa")),
		"trie":  eudoxustest.MustBuild(t, eudoxustest.Trie("foo", "foobar", "barfoo")),
		"final": eudoxustest.MustBuild(t, endsWith('a')),
	}
	inputs := []string{"", "a", "ushers", "aaaa", "foobar", "hishersheaa", "xx\x00she\xffhe"}

	for name, a := range automata {
		for _, in := range inputs {
			input := []byte(in)
			want := hits(whole(a, input))

			for i := 0; i <= len(input); i++ {
				for j := i; j <= len(input); j++ {
					got := hits(chunked(a, [][]byte{input[:i], input[i:j], input[j:]}))
					require.Equal(t, want, got, "%s %q split at %d,%d", name, in, i, j)
				}
			}
		}
	}
}

func TestExecutionChunkInvarianceRandom(t *testing.T) {
	a := eudoxustest.MustBuild(t, eudoxustest.AhoCorasick("ab", "bab", "abba", "\x00\x01"))
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		input := make([]byte, rng.Intn(64))
		for i := range input {
			input[i] = "ab\x00\x01"[rng.Intn(4)]
		}
		want := hits(whole(a, input))

		var chunks [][]byte
		rest := input
		for len(rest) > 0 {
			n := rng.Intn(len(rest)) + 1
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		require.Equal(t, want, hits(chunked(a, chunks)), "input %q", input)
	}
}

func TestExecutionBinarySafe(t *testing.T) {
	a := eudoxustest.MustBuild(t, eudoxustest.AhoCorasick("\x00\xff", "a\x00"))

	got := hits(whole(a, []byte("\x00\x00\xffa\x00\xff")))
	assert.Equal(t, []hit{{"\x00\xff", 3}, {"a\x00", 5}, {"\x00\xff", 6}}, got)

	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	assert.NotPanics(t, func() { whole(a, all) })
}

func TestExecutionStopsInSink(t *testing.T) {
	a := eudoxustest.MustBuild(t, eudoxustest.Trie("foo"))
	x := eudoxus.NewExecution(a)

	assert.Empty(t, x.Feed([]byte("xfoo")))
	assert.Empty(t, x.Feed([]byte("foo")))
	assert.Equal(t, uint32(1), x.State())
	assert.Equal(t, int64(7), x.Consumed())
	assert.False(t, x.Stopped())
	sink, ok := a.State(1)
	require.True(t, ok)
	assert.True(t, sink.Sink())
	start, ok := a.State(0)
	require.True(t, ok)
	assert.False(t, start.Sink())
}

func TestExecutionFinalOutputs(t *testing.T) {
	a := eudoxustest.MustBuild(t, endsWith('a'))

	x := eudoxus.NewExecution(a)
	assert.Empty(t, x.Feed([]byte("bca")))
	assert.Equal(t, []hit{{"a$", 3}}, hits(x.Finalize()))
	assert.Empty(t, x.Finalize())

	x = eudoxus.NewExecution(a)
	assert.Empty(t, x.Feed([]byte("ab")))
	assert.Empty(t, x.Finalize())
}

func TestExecutionWalkStop(t *testing.T) {
	a := eudoxustest.MustBuild(t, eudoxustest.AhoCorasick("a"))
	x := eudoxus.NewExecution(a)

	var seen []int64
	running := x.Walk([]byte("aaa"), func(m eudoxus.Match) bool {
		seen = append(seen, m.End)
		return len(seen) < 2
	})
	assert.False(t, running)
	assert.True(t, x.Stopped())
	assert.Equal(t, []int64{1, 2}, seen)
	assert.Equal(t, int64(3), x.Consumed())

	assert.False(t, x.Walk([]byte("aa"), func(eudoxus.Match) bool { return true }))
	assert.Empty(t, x.Finalize())
	assert.Equal(t, int64(5), x.Consumed())

	x.Reset()
	assert.False(t, x.Stopped())
	assert.Len(t, x.Feed([]byte("aa")), 2)
}

// endsWith reports, at end of input only, that the last byte was b.
func endsWith(b byte) eudoxus.Definition {
	return eudoxus.Definition{
		Outputs: []eudoxus.Output{{ID: 1, Length: 1, Data: []byte{b, '$'}}},
		States: []eudoxus.StateDef{
			{Edges: map[byte]uint32{b: 1}},
			{Edges: map[byte]uint32{b: 1}, Final: []uint32{0}},
		},
	}
}

func BenchmarkExecutionWalk(b *testing.B) {
	a, err := eudoxus.Build(eudoxustest.AhoCorasick("select", "union", "<script", "onerror=", "../", "etc/passwd"))
	if err != nil {
		b.Fatal(err)
	}
	input := make([]byte, 64<<10)
	for i := range input {
		input[i] = "abcdefghijklmnop /<>=."[i%22]
	}

	b.SetBytes(int64(len(input)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x := eudoxus.NewExecution(a)
		x.Walk(input, func(eudoxus.Match) bool { return true })
	}
}
