package eudoxus

// Execution walks one logical input through an automaton. The input may be
// delivered in any number of chunks; results do not depend on how it is
// split. An Execution must not be used from more than one goroutine.
type Execution struct {
	a        *Automaton
	state    uint32
	consumed int64
	stopped  bool
	final    bool
}

// NewExecution starts an execution at the automaton's start state.
func NewExecution(a *Automaton) *Execution {
	return &Execution{a: a}
}

// Walk consumes chunk, calling yield for every match in input order. If
// yield returns false the execution stops: the current and later chunks are
// only counted, no further transitions or matches happen. Walk reports
// whether the execution is still running.
func (x *Execution) Walk(chunk []byte, yield func(Match) bool) bool {
	if x.stopped {
		x.consumed += int64(len(chunk))
		return false
	}

	states := x.a.states
	state := x.state
	for i, b := range chunk {
		state = states[state].Next(b)
		st := &states[state]
		if len(st.outputs) > 0 {
			end := x.consumed + int64(i) + 1
			for _, ref := range st.outputs {
				if !yield(x.a.match(ref, end)) {
					x.state = state
					x.consumed += int64(len(chunk))
					x.stopped = true
					return false
				}
			}
			continue
		}
		if st.sink {
			x.state = state
			x.consumed += int64(len(chunk))
			return true
		}
	}

	x.state = state
	x.consumed += int64(len(chunk))
	return true
}

// Feed consumes chunk and returns its matches.
func (x *Execution) Feed(chunk []byte) []Match {
	var out []Match
	x.Walk(chunk, func(m Match) bool {
		out = append(out, m)
		return true
	})
	return out
}

// FinalizeWalk ends the input, yielding the end-of-input outputs of the
// current state. Only the first call has any effect.
func (x *Execution) FinalizeWalk(yield func(Match) bool) {
	if x.final {
		return
	}
	x.final = true
	if x.stopped {
		return
	}
	for _, ref := range x.a.states[x.state].final {
		if !yield(x.a.match(ref, x.consumed)) {
			x.stopped = true
			return
		}
	}
}

// Finalize ends the input and returns the end-of-input matches.
func (x *Execution) Finalize() []Match {
	var out []Match
	x.FinalizeWalk(func(m Match) bool {
		out = append(out, m)
		return true
	})
	return out
}

// Consumed returns the number of bytes fed so far.
func (x *Execution) Consumed() int64 {
	return x.consumed
}

// State returns the current state index.
func (x *Execution) State() uint32 {
	return x.state
}

// Stopped reports whether a callback ended the execution early.
func (x *Execution) Stopped() bool {
	return x.stopped
}

// Reset rewinds the execution to the start state for a new input.
func (x *Execution) Reset() {
	*x = Execution{a: x.a}
}
