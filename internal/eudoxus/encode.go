package eudoxus

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"sort"
)

// Definition is the constructable form of an automaton. It is what compilers
// produce and what Encode serialises. Indexes are not validated here; Load
// is the only place structural invariants are enforced.
type Definition struct {
	Outputs []Output
	States  []StateDef
}

// StateDef describes one state. With Dense set, Table holds all 256 targets
// and Default/Edges are ignored.
type StateDef struct {
	Dense   bool
	Table   [256]uint32
	Default uint32
	Edges   map[byte]uint32
	Outputs []uint32
	Final   []uint32
}

// Encode serialises def in the current wire format.
func Encode(def Definition) ([]byte, error) {
	buf := make([]byte, 0, headerSize+len(def.States)*minStateSize+len(def.Outputs)*outputHeadSize+trailerSize)
	buf = append(buf, Magic...)
	buf = binary.LittleEndian.AppendUint16(buf, CurrentVersion)
	buf = binary.LittleEndian.AppendUint16(buf, 0)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(def.States)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(def.Outputs)))

	for i, out := range def.Outputs {
		if uint64(len(out.Data)) > math.MaxUint32 {
			return nil, fmt.Errorf("output %d: data too large", i)
		}
		buf = binary.LittleEndian.AppendUint32(buf, out.ID)
		buf = binary.LittleEndian.AppendUint32(buf, out.Priority)
		buf = binary.LittleEndian.AppendUint32(buf, out.Length)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(out.Data)))
		buf = append(buf, out.Data...)
	}

	for i, st := range def.States {
		if len(st.Outputs) > math.MaxUint16 || len(st.Final) > math.MaxUint16 {
			return nil, fmt.Errorf("state %d: too many outputs", i)
		}
		kind := kindSparse
		if st.Dense {
			kind = kindDense
		}
		buf = append(buf, kind)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(st.Outputs)))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(st.Final)))

		if st.Dense {
			for _, target := range st.Table {
				buf = binary.LittleEndian.AppendUint32(buf, target)
			}
		} else {
			labels := make([]int, 0, len(st.Edges))
			for b := range st.Edges {
				labels = append(labels, int(b))
			}
			sort.Ints(labels)
			buf = binary.LittleEndian.AppendUint32(buf, st.Default)
			buf = binary.LittleEndian.AppendUint16(buf, uint16(len(labels)))
			for _, b := range labels {
				buf = append(buf, byte(b))
				buf = binary.LittleEndian.AppendUint32(buf, st.Edges[byte(b)])
			}
		}

		for _, ref := range st.Outputs {
			buf = binary.LittleEndian.AppendUint32(buf, ref)
		}
		for _, ref := range st.Final {
			buf = binary.LittleEndian.AppendUint32(buf, ref)
		}
	}

	return binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf)), nil
}

// Build encodes def and loads the result, so the returned automaton has
// passed the same validation as one read from disk.
func Build(def Definition) (*Automaton, error) {
	data, err := Encode(def)
	if err != nil {
		return nil, err
	}
	return Load(data)
}
