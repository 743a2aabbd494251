package eudoxus

import "encoding/binary"

// Wire format constants. All integers are little-endian.
const (
	Magic          = "EUDX"
	Version1       = uint16(1)
	CurrentVersion = Version1

	MaxStates     = 1 << 20
	MaxOutputs    = 1 << 20
	MaxOutputData = 1 << 16
	MaxBlobBytes  = 256 << 20

	headerSize     = 16
	trailerSize    = 4
	outputHeadSize = 16
	stateHeadSize  = 5
	sparseEdgeSize = 5
	denseTableSize = 256 * 4
	// smallest encodings, used to reject inflated counts before allocating
	minStateSize = stateHeadSize + 4 + 2
)

const (
	kindDense  = uint8(0)
	kindSparse = uint8(1)
)

// decoder reads fixed-width fields from a blob. Every read is bounds
// checked; the first failure sticks and later reads return zero values.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

func (d *decoder) take(n int, what string) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > d.remaining() {
		d.err = corrupt(d.off, "truncated %s: need %d bytes, have %d", what, n, d.remaining())
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8(what string) uint8 {
	b := d.take(1, what)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) u16(what string) uint16 {
	b := d.take(2, what)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *decoder) u32(what string) uint32 {
	b := d.take(4, what)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}
