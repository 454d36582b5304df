package bitstream

import (
	"errors"
	"fmt"
)

// Errors surfaced by Fragment.WriteTo. ErrCapacity is retryable with a
// larger destination buffer; ErrSerialization is not.
var (
	ErrCapacity      = errors.New("bitstream: destination buffer too small")
	ErrSerialization = errors.New("bitstream: unit serialization failed")
)

// Unit is a structured NAL unit that can serialize itself, header bytes
// included, into a bit writer. A unit may finish off a byte boundary
// (slice headers do); the fragment accounts for the padding.
type Unit interface {
	Marshal(w *Writer) error
}

// State tracks the lifecycle of the access unit accumulator.
type State int

const (
	StateIdle      State = iota // no units accumulated
	StatePopulated              // units added, not yet written
	StateFlushed                // successfully written, awaiting Reset
)

// Fragment accumulates the NAL units of one access unit and serializes
// them as an Annex B byte sequence. There is exactly one fragment per
// encoder instance; it is reused and must be Reset between access units.
// Every exit path of WriteTo resets the fragment so a failed write cannot
// leak units into the next access unit.
type Fragment struct {
	units []Unit
	state State
}

// Add appends a NAL unit to the access unit.
func (f *Fragment) Add(u Unit) {
	f.units = append(f.units, u)
	f.state = StatePopulated
}

// Empty reports whether no units are accumulated.
func (f *Fragment) Empty() bool { return len(f.units) == 0 }

// State returns the accumulator state.
func (f *Fragment) State() State { return f.state }

// Reset discards all accumulated units.
func (f *Fragment) Reset() {
	f.units = f.units[:0]
	f.state = StateIdle
}

// WriteTo serializes the accumulated units into dst and returns the
// payload length in bits. dstBits is the destination capacity in bits;
// the write fails with ErrCapacity if the serialized length exceeds it.
// The first unit gets a four-byte start code, later units three bytes.
// The reported length excludes the zero padding of the final byte, per
// the packed-header convention of the hardware ABI.
func (f *Fragment) WriteTo(dst []byte, dstBits int) (int, error) {
	var out []byte
	padBits := 0
	for i, u := range f.units {
		var w Writer
		if err := u.Marshal(&w); err != nil {
			f.Reset()
			return 0, fmt.Errorf("%w: unit %d: %v", ErrSerialization, i, err)
		}
		if err := w.Err(); err != nil {
			f.Reset()
			return 0, fmt.Errorf("%w: unit %d: %v", ErrSerialization, i, err)
		}
		bits := w.BitLen()
		if bits == 0 {
			f.Reset()
			return 0, fmt.Errorf("%w: unit %d: empty unit", ErrSerialization, i)
		}
		padBits = (8 - bits%8) % 8

		if i == 0 {
			out = append(out, 0x00, 0x00, 0x00, 0x01)
		} else {
			out = append(out, 0x00, 0x00, 0x01)
		}
		out = append(out, EscapeRBSP(w.Bytes())...)
	}

	total := len(out)*8 - padBits
	if total > dstBits {
		f.Reset()
		return 0, fmt.Errorf("%w: need %d bits, have %d", ErrCapacity, total, dstBits)
	}
	copy(dst, out)
	f.units = f.units[:0]
	f.state = StateFlushed
	return total, nil
}
