// Package bitstream converts structured H.264/HEVC syntax structures into
// packed NAL unit bytes. It provides an MSB-first bit writer with the
// Exp-Golomb codes used by both standards, RBSP-to-NAL conversion with
// emulation prevention, and the access unit accumulator that orders NAL
// units for emission.
package bitstream

import "errors"

// ErrValueRange is returned when a syntax element value does not fit in the
// bit width the standard assigns to it.
var ErrValueRange = errors.New("bitstream: value out of range for field width")

// Writer appends bits MSB-first to an internal buffer. The zero value is
// ready to use.
type Writer struct {
	buf  []byte
	free int // unwritten bits remaining in the final byte, 0..7
	err  error
}

// Err returns the first error encountered by any write call.
func (w *Writer) Err() error { return w.err }

// BitLen returns the number of bits written so far.
func (w *Writer) BitLen() int { return len(w.buf)*8 - w.free }

// WriteBit appends a single bit.
func (w *Writer) WriteBit(b uint8) {
	if w.err != nil {
		return
	}
	if w.free == 0 {
		w.buf = append(w.buf, 0)
		w.free = 8
	}
	w.free--
	if b != 0 {
		w.buf[len(w.buf)-1] |= 1 << uint(w.free)
	}
}

// WriteBits appends the low n bits of v, MSB first. n must be 0..32.
func (w *Writer) WriteBits(v uint32, n int) {
	if w.err != nil {
		return
	}
	if n < 32 && v >= 1<<uint(n) {
		w.err = ErrValueRange
		return
	}
	for i := n - 1; i >= 0; i-- {
		w.WriteBit(uint8(v >> uint(i) & 1))
	}
}

// WriteFlag appends a one-bit flag.
func (w *Writer) WriteFlag(b bool) {
	if b {
		w.WriteBit(1)
	} else {
		w.WriteBit(0)
	}
}

// WriteUE appends v as an unsigned Exp-Golomb code (ue(v), Rec. ITU-T
// H.264 §9.1 / H.265 §9.2).
func (w *Writer) WriteUE(v uint32) {
	if w.err != nil {
		return
	}
	if v == 0xFFFFFFFF {
		w.err = ErrValueRange
		return
	}
	vp1 := uint64(v) + 1
	n := 0
	for t := vp1; t > 1; t >>= 1 {
		n++
	}
	for i := 0; i < n; i++ {
		w.WriteBit(0)
	}
	for i := n; i >= 0; i-- {
		w.WriteBit(uint8(vp1 >> uint(i) & 1))
	}
}

// WriteSE appends v as a signed Exp-Golomb code (se(v)): positive values
// map to odd codes, negative to even.
func (w *Writer) WriteSE(v int32) {
	if v > 0 {
		w.WriteUE(uint32(2*v - 1))
	} else {
		w.WriteUE(uint32(-2 * int64(v)))
	}
}

// WriteTrailingBits appends the rbsp_stop_one_bit and zero-pads to a byte
// boundary, completing an RBSP.
func (w *Writer) WriteTrailingBits() {
	w.WriteBit(1)
	for w.free != 0 {
		w.WriteBit(0)
	}
}

// ByteAligned reports whether the next bit starts a new byte.
func (w *Writer) ByteAligned() bool { return w.free == 0 }

// Bytes returns the written bytes. The final byte is zero-padded if the
// writer is not byte aligned.
func (w *Writer) Bytes() []byte { return w.buf }

// EscapeRBSP converts an RBSP to NAL unit payload form by inserting
// emulation_prevention_three_byte before any 00 00 0x (x <= 3) sequence.
func EscapeRBSP(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+len(rbsp)/16)
	zeros := 0
	for _, b := range rbsp {
		if zeros >= 2 && b <= 0x03 {
			out = append(out, 0x03)
			zeros = 0
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, b)
	}
	return out
}
