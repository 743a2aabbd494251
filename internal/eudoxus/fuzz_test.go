package eudoxus_test

import (
	"errors"
	"testing"

	"github.com/klyr/eudoxus/internal/eudoxus"
	"github.com/klyr/eudoxus/internal/eudoxus/eudoxustest"
)

func FuzzLoad(f *testing.F) {
	f.Add(eudoxustest.MustEncode(f, eudoxustest.Trie("foo", "foobar")))
	f.Add(eudoxustest.MustEncode(f, eudoxustest.AhoCorasick("he", "she", "his", "hers")))
	f.Add([]byte("EUDX"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		a, err := eudoxus.Load(data)
		if err != nil {
			if !errors.Is(err, eudoxus.ErrCorruptData) && !errors.Is(err, eudoxus.ErrUnsupportedVersion) {
				t.Fatalf("untyped load error: %v", err)
			}
			if a != nil {
				t.Fatalf("automaton returned with error %v", err)
			}
			return
		}

		// Any loaded automaton must scan arbitrary bytes without panicking.
		eudoxus.Evaluate(a, data, eudoxus.PolicyAll)
		eudoxus.Evaluate(a, data, eudoxus.PolicyFirst)
	})
}

func FuzzChunkInvariance(f *testing.F) {
	a, err := eudoxus.Build(eudoxustest.AhoCorasick("ab", "bab", "abba", "\x00"))
	if err != nil {
		f.Fatal(err)
	}
	f.Add([]byte("abbabab"), uint8(3))
	f.Add([]byte("\x00a\x00b"), uint8(0))

	f.Fuzz(func(t *testing.T, input []byte, split uint8) {
		cut := int(split)
		if cut > len(input) {
			cut = len(input)
		}
		want := hits(whole(a, input))
		got := hits(chunked(a, [][]byte{input[:cut], input[cut:]}))
		if len(want) != len(got) {
			t.Fatalf("split %d: %d matches, want %d", cut, len(got), len(want))
		}
		for i := range want {
			if want[i] != got[i] {
				t.Fatalf("split %d: match %d is %v, want %v", cut, i, got[i], want[i])
			}
		}
	})
}
