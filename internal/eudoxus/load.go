package eudoxus

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"
)

// Load parses and validates a compiled automaton. It never returns a
// partially valid automaton: on any structural problem the error is a
// *FormatError matching ErrCorruptData or ErrUnsupportedVersion.
func Load(data []byte) (*Automaton, error) {
	if len(data) < len(Magic)+2 {
		return nil, corrupt(0, "truncated header: %d bytes", len(data))
	}
	if string(data[:len(Magic)]) != Magic {
		return nil, corrupt(0, "bad magic %q", data[:len(Magic)])
	}
	version := binary.LittleEndian.Uint16(data[len(Magic):])
	if version != Version1 {
		return nil, &FormatError{Kind: ErrUnsupportedVersion, Offset: len(Magic), Reason: fmt.Sprintf("version %d", version)}
	}
	if len(data) < headerSize+trailerSize {
		return nil, corrupt(len(data), "truncated header: %d bytes", len(data))
	}

	body := data[:len(data)-trailerSize]
	want := binary.LittleEndian.Uint32(data[len(body):])
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, corrupt(len(body), "checksum mismatch: stored %08x, computed %08x", want, got)
	}

	// The automaton keeps references into its own copy of the payload.
	body = append([]byte(nil), body...)
	d := &decoder{buf: body, off: len(Magic) + 2}

	if flags := d.u16("flags"); flags != 0 {
		return nil, corrupt(d.off-2, "unknown flags %#04x", flags)
	}
	numStates := d.u32("state count")
	numOutputs := d.u32("output count")
	if numStates == 0 {
		return nil, corrupt(d.off-8, "automaton has no states")
	}
	if numStates > MaxStates {
		return nil, corrupt(d.off-8, "state count %d exceeds %d", numStates, MaxStates)
	}
	if numOutputs > MaxOutputs {
		return nil, corrupt(d.off-4, "output count %d exceeds %d", numOutputs, MaxOutputs)
	}
	minSize := int64(numOutputs)*outputHeadSize + int64(numStates)*minStateSize
	if minSize > int64(d.remaining()) {
		return nil, corrupt(d.off, "declared %d states and %d outputs need at least %d bytes, have %d",
			numStates, numOutputs, minSize, d.remaining())
	}

	a := &Automaton{
		version: version,
		outputs: make([]Output, numOutputs),
		states:  make([]State, numStates),
	}

	for i := range a.outputs {
		out := &a.outputs[i]
		out.ID = d.u32("output id")
		out.Priority = d.u32("output priority")
		out.Length = d.u32("output length")
		size := d.u32("output data length")
		if d.err == nil && size > MaxOutputData {
			d.fail(corrupt(d.off-4, "output %d data length %d exceeds %d", i, size, MaxOutputData))
		}
		out.Data = d.take(int(size), "output data")
		if d.err != nil {
			return nil, d.err
		}
	}

	for i := range a.states {
		if err := a.readState(d, uint32(i)); err != nil {
			return nil, err
		}
	}

	if d.remaining() != 0 {
		return nil, corrupt(d.off, "%d trailing bytes after state table", d.remaining())
	}

	sum := sha256.Sum256(data)
	a.fingerprint = hex.EncodeToString(sum[:])[:16]
	return a, nil
}

func (a *Automaton) readState(d *decoder, index uint32) error {
	numStates := uint32(len(a.states))
	st := &a.states[index]

	start := d.off
	kind := d.u8("state kind")
	nout := d.u16("state output count")
	nfinal := d.u16("state final output count")
	if d.err != nil {
		return d.err
	}

	target := func(what string) uint32 {
		off := d.off
		t := d.u32(what)
		if d.err == nil && t >= numStates {
			d.fail(corrupt(off, "state %d: %s %d out of range (%d states)", index, what, t, numStates))
		}
		return t
	}

	switch kind {
	case kindDense:
		if d.remaining() < denseTableSize {
			return corrupt(d.off, "state %d: truncated dense table", index)
		}
		st.dense = make([]uint32, 256)
		for b := range st.dense {
			st.dense[b] = target("transition target")
		}
	case kindSparse:
		st.deflt = target("default target")
		n := int(d.u16("edge count"))
		if d.err == nil && n > 256 {
			d.fail(corrupt(d.off-2, "state %d: %d edges", index, n))
		}
		if d.err == nil && n*sparseEdgeSize > d.remaining() {
			d.fail(corrupt(d.off, "state %d: truncated edge list", index))
		}
		if d.err != nil {
			return d.err
		}
		st.labels = make([]byte, n)
		st.targets = make([]uint32, n)
		for e := 0; e < n; e++ {
			label := d.u8("edge label")
			if d.err == nil && e > 0 && label <= st.labels[e-1] {
				d.fail(corrupt(d.off-1, "state %d: edge labels not strictly increasing", index))
			}
			st.labels[e] = label
			st.targets[e] = target("edge target")
		}
	default:
		return corrupt(start, "state %d: unknown kind %d", index, kind)
	}
	if d.err != nil {
		return d.err
	}

	var err error
	if st.outputs, err = a.readOutputRefs(d, index, int(nout)); err != nil {
		return err
	}
	if st.final, err = a.readOutputRefs(d, index, int(nfinal)); err != nil {
		return err
	}

	st.sink = len(st.outputs) == 0 && len(st.final) == 0 && st.loopsOnly(index)
	return nil
}

func (a *Automaton) readOutputRefs(d *decoder, index uint32, n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	if n*4 > d.remaining() {
		return nil, corrupt(d.off, "state %d: truncated output list", index)
	}
	refs := make([]uint32, n)
	for i := range refs {
		off := d.off
		refs[i] = d.u32("output reference")
		if refs[i] >= uint32(len(a.outputs)) {
			return nil, corrupt(off, "state %d: output reference %d out of range (%d outputs)", index, refs[i], len(a.outputs))
		}
	}

	sort.SliceStable(refs, func(i, j int) bool {
		pi, pj := a.outputs[refs[i]].Priority, a.outputs[refs[j]].Priority
		if pi != pj {
			return pi < pj
		}
		return refs[i] < refs[j]
	})
	for i := 1; i < len(refs); i++ {
		if refs[i] == refs[i-1] {
			return nil, corrupt(d.off, "state %d: duplicate output reference %d", index, refs[i])
		}
	}
	return refs, nil
}

func (s *State) loopsOnly(self uint32) bool {
	if s.dense != nil {
		for _, t := range s.dense {
			if t != self {
				return false
			}
		}
		return true
	}
	if s.deflt != self {
		return false
	}
	for _, t := range s.targets {
		if t != self {
			return false
		}
	}
	return true
}

// LoadReader reads at most limit bytes from r and loads them. A limit of
// zero or less, or above MaxBlobBytes, means MaxBlobBytes.
func LoadReader(r io.Reader, limit int64) (*Automaton, error) {
	if limit <= 0 || limit > MaxBlobBytes {
		limit = MaxBlobBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read automaton: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, corrupt(int(limit), "blob exceeds %d bytes", limit)
	}
	return Load(data)
}

// LoadFile loads the automaton stored at path.
func LoadFile(path string) (*Automaton, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	a, err := LoadReader(file, MaxBlobBytes)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return a, nil
}
