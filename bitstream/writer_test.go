package bitstream

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriterBits(t *testing.T) {
	t.Parallel()
	var w Writer
	w.WriteBits(0xA, 4)
	w.WriteBits(0x5, 4)
	if err := w.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := w.Bytes(); !bytes.Equal(got, []byte{0xA5}) {
		t.Errorf("bytes: got %x, want a5", got)
	}
	if w.BitLen() != 8 {
		t.Errorf("BitLen: got %d, want 8", w.BitLen())
	}
	if !w.ByteAligned() {
		t.Error("expected byte alignment after 8 bits")
	}
}

func TestWriterBitsRange(t *testing.T) {
	t.Parallel()
	var w Writer
	w.WriteBits(0x10, 4) // does not fit in 4 bits
	if !errors.Is(w.Err(), ErrValueRange) {
		t.Errorf("got %v, want ErrValueRange", w.Err())
	}
	// Later writes are no-ops once the writer is poisoned.
	before := w.BitLen()
	w.WriteBits(1, 1)
	if w.BitLen() != before {
		t.Error("write after error changed the buffer")
	}
}

func TestWriterUE(t *testing.T) {
	t.Parallel()
	// Golden codes from the Exp-Golomb table: value -> bit string.
	cases := []struct {
		v    uint32
		bits string
	}{
		{0, "1"},
		{1, "010"},
		{2, "011"},
		{3, "00100"},
		{4, "00101"},
		{7, "0001000"},
		{8, "0001001"},
	}
	for _, tc := range cases {
		var w Writer
		w.WriteUE(tc.v)
		if got := bitString(&w); got != tc.bits {
			t.Errorf("ue(%d): got %s, want %s", tc.v, got, tc.bits)
		}
	}
}

func TestWriterSE(t *testing.T) {
	t.Parallel()
	cases := []struct {
		v    int32
		bits string
	}{
		{0, "1"},
		{1, "010"},
		{-1, "011"},
		{2, "00100"},
		{-2, "00101"},
		{3, "00110"},
	}
	for _, tc := range cases {
		var w Writer
		w.WriteSE(tc.v)
		if got := bitString(&w); got != tc.bits {
			t.Errorf("se(%d): got %s, want %s", tc.v, got, tc.bits)
		}
	}
}

func TestWriterTrailingBits(t *testing.T) {
	t.Parallel()
	var w Writer
	w.WriteBits(0x3, 3)
	w.WriteTrailingBits()
	if !w.ByteAligned() {
		t.Fatal("not aligned after trailing bits")
	}
	// 011 + stop bit 1 + 0000 padding.
	if got := w.Bytes(); !bytes.Equal(got, []byte{0x70}) {
		t.Errorf("got %x, want 70", got)
	}
}

func TestEscapeRBSP(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"no emulation", []byte{0x01, 0x02, 0x03}, []byte{0x01, 0x02, 0x03}},
		{"zero zero zero", []byte{0x00, 0x00, 0x00}, []byte{0x00, 0x00, 0x03, 0x00}},
		{"zero zero one", []byte{0x00, 0x00, 0x01}, []byte{0x00, 0x00, 0x03, 0x01}},
		{"zero zero three", []byte{0x00, 0x00, 0x03}, []byte{0x00, 0x00, 0x03, 0x03}},
		{"zero zero four", []byte{0x00, 0x00, 0x04}, []byte{0x00, 0x00, 0x04}},
		{"run of zeros", []byte{0x00, 0x00, 0x00, 0x00, 0x01},
			[]byte{0x00, 0x00, 0x03, 0x00, 0x00, 0x03, 0x01}},
		{"mid stream", []byte{0xFF, 0x00, 0x00, 0x02, 0xFF},
			[]byte{0xFF, 0x00, 0x00, 0x03, 0x02, 0xFF}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := EscapeRBSP(tc.in); !bytes.Equal(got, tc.want) {
				t.Errorf("got %x, want %x", got, tc.want)
			}
		})
	}
}

func bitString(w *Writer) string {
	out := make([]byte, 0, w.BitLen())
	for i := 0; i < w.BitLen(); i++ {
		if w.Bytes()[i/8]>>(7-i%8)&1 != 0 {
			out = append(out, '1')
		} else {
			out = append(out, '0')
		}
	}
	return string(out)
}
