// Package eudoxus loads precompiled Eudoxus automata and executes them
// against raw byte input.
//
// An Automaton is immutable once Load returns it and may be shared by any
// number of goroutines. Per-scan state lives in an Execution or Stream, which
// belong to exactly one caller.
package eudoxus

import "bytes"

// Output is a pattern completion attached to a state.
type Output struct {
	ID       uint32
	Priority uint32
	// Length is the match length in bytes; zero means unknown.
	Length uint32
	Data   []byte
}

// State is a node of the automaton. Its transition function is total: bytes
// without a labelled edge follow the default target.
type State struct {
	dense   []uint32
	labels  []byte
	targets []uint32
	deflt   uint32

	outputs []uint32
	final   []uint32
	sink    bool
}

// Next returns the target of the transition on b.
func (s *State) Next(b byte) uint32 {
	if s.dense != nil {
		return s.dense[b]
	}
	if i := bytes.IndexByte(s.labels, b); i >= 0 {
		return s.targets[i]
	}
	return s.deflt
}

// Outputs returns the output indexes fired on entering the state, in
// priority order.
func (s *State) Outputs() []uint32 {
	return s.outputs
}

// FinalOutputs returns the output indexes fired when input ends in the state.
func (s *State) FinalOutputs() []uint32 {
	return s.final
}

// Dense reports whether the state stores a full 256-entry table.
func (s *State) Dense() bool {
	return s.dense != nil
}

// Sink reports whether every transition loops back to the state and it
// fires nothing on entry, so no further input can produce a match.
func (s *State) Sink() bool {
	return s.sink
}

// Automaton is a loaded, validated Eudoxus automaton.
type Automaton struct {
	version     uint16
	states      []State
	outputs     []Output
	fingerprint string
}

// Version returns the format version the automaton was loaded from.
func (a *Automaton) Version() uint16 {
	return a.version
}

// NumStates returns the number of states. State 0 is the start state.
func (a *Automaton) NumStates() int {
	return len(a.states)
}

// NumOutputs returns the size of the output table.
func (a *Automaton) NumOutputs() int {
	return len(a.outputs)
}

// State returns state i, or false when i is out of range. The returned
// pointer must not be modified.
func (a *Automaton) State(i uint32) (*State, bool) {
	if uint64(i) >= uint64(len(a.states)) {
		return nil, false
	}
	return &a.states[i], true
}

// Output returns a copy of output i, or false when i is out of range.
func (a *Automaton) Output(i uint32) (Output, bool) {
	if uint64(i) >= uint64(len(a.outputs)) {
		return Output{}, false
	}
	out := a.outputs[i]
	out.Data = append([]byte(nil), out.Data...)
	return out, true
}

// Fingerprint identifies the blob the automaton was loaded from.
func (a *Automaton) Fingerprint() string {
	return a.fingerprint
}

func (a *Automaton) match(index uint32, end int64) Match {
	out := &a.outputs[index]
	return Match{
		Output:   index,
		ID:       out.ID,
		Priority: out.Priority,
		End:      end,
		Length:   int(out.Length),
		Data:     out.Data,
	}
}

// Match is one output firing during an execution.
type Match struct {
	Output   uint32
	ID       uint32
	Priority uint32
	// End is the offset one past the last matched byte, counted from the
	// start of the logical input across every chunk.
	End    int64
	Length int
	// Data aliases the automaton's output payload and must not be modified.
	Data []byte
}

// Start returns the offset of the first matched byte, or -1 when the output
// does not record its length.
func (m Match) Start() int64 {
	if m.Length <= 0 || int64(m.Length) > m.End {
		return -1
	}
	return m.End - int64(m.Length)
}

// Span returns the matched bytes of input, or nil if the match cannot be
// located in it.
func (m Match) Span(input []byte) []byte {
	start := m.Start()
	if start < 0 || m.End > int64(len(input)) {
		return nil
	}
	return input[start:m.End]
}
