package main

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/zsiec/hwenc/encode"
	"github.com/zsiec/hwenc/h264"
	"github.com/zsiec/hwenc/h265"
)

func TestPyramidDepth(t *testing.T) {
	t.Parallel()
	cases := []struct{ bf, depth int }{
		{0, 0}, {1, 1}, {2, 2}, {3, 2}, {7, 3},
	}
	for _, tc := range cases {
		if got := pyramidDepth(tc.bf); got != tc.depth {
			t.Errorf("pyramidDepth(%d): got %d, want %d", tc.bf, got, tc.depth)
		}
	}
}

func TestSchedulerSequence(t *testing.T) {
	t.Parallel()
	cfg := &encode.Config{GOPSize: 8, BPerP: 3, MaxBDepth: pyramidDepth(3)}
	s := newScheduler(cfg, 9)

	want := []struct {
		display int64
		typ     encode.PictureType
		isRef   bool
		depth   int
	}{
		{0, encode.PictureIDR, true, 0},
		{4, encode.PictureP, true, 0},
		{2, encode.PictureB, true, 1},
		{1, encode.PictureB, false, 2},
		{3, encode.PictureB, false, 2},
		{7, encode.PictureP, true, 0},
		{5, encode.PictureB, true, 1},
		{6, encode.PictureB, false, 2},
		{8, encode.PictureIDR, true, 0},
	}

	var got []*encode.Picture
	for {
		pic := s.next()
		if pic == nil {
			break
		}
		got = append(got, pic)
	}
	if len(got) != len(want) {
		t.Fatalf("picture count: got %d, want %d", len(got), len(want))
	}
	for i, pic := range got {
		w := want[i]
		if pic.DisplayOrder != w.display || pic.Type != w.typ ||
			pic.IsReference != w.isRef || pic.BDepth != w.depth {
			t.Errorf("pic %d: got d%d %s ref=%v depth=%d, want d%d %s ref=%v depth=%d",
				i, pic.DisplayOrder, pic.Type, pic.IsReference, pic.BDepth,
				w.display, w.typ, w.isRef, w.depth)
		}
		if pic.EncodeOrder != int64(i) {
			t.Errorf("pic %d: encode order %d", i, pic.EncodeOrder)
		}
		if pic.Type == encode.PictureIDR && pic.DisplayOrder != pic.EncodeOrder {
			t.Errorf("pic %d: IDR display %d != encode %d",
				i, pic.DisplayOrder, pic.EncodeOrder)
		}
		if i > 0 && pic.Prev != got[i-1] {
			t.Errorf("pic %d: broken Prev chain", i)
		}
		for _, ref := range append(pic.Refs[0], pic.Refs[1]...) {
			if ref.EncodeOrder >= pic.EncodeOrder {
				t.Errorf("pic %d: reference d%d not yet encoded", i, ref.DisplayOrder)
			}
			if !pic.InDPB(ref) {
				t.Errorf("pic %d: reference d%d missing from DPB", i, ref.DisplayOrder)
			}
		}
		if pic.Type == encode.PictureB {
			if pic.Refs[0][0].DisplayOrder >= pic.DisplayOrder ||
				pic.Refs[1][0].DisplayOrder <= pic.DisplayOrder {
				t.Errorf("pic %d: B references do not bracket display order", i)
			}
		}
		// All DPB members except the picture itself must be references.
		for _, d := range pic.DPB {
			if d != pic && !d.IsReference {
				t.Errorf("pic %d: non-reference d%d retained", i, d.DisplayOrder)
			}
		}
	}
}

func TestSchedulerLowDelay(t *testing.T) {
	t.Parallel()
	cfg := &encode.Config{GOPSize: 4, BPerP: 0, MaxBDepth: 0}
	s := newScheduler(cfg, 6)
	wantType := []encode.PictureType{
		encode.PictureIDR, encode.PictureP, encode.PictureP, encode.PictureP,
		encode.PictureIDR, encode.PictureP,
	}
	for i, wt := range wantType {
		pic := s.next()
		if pic == nil {
			t.Fatalf("stream ended at picture %d", i)
		}
		if pic.Type != wt || pic.DisplayOrder != int64(i) {
			t.Errorf("pic %d: got d%d %s, want %s", i, pic.DisplayOrder, pic.Type, wt)
		}
	}
	if s.next() != nil {
		t.Error("expected end of stream")
	}
}

// TestScheduleDrivesCodecs pushes full schedules through both parameter
// cores, exercising the marking, reference list, and RPS derivations
// across every pyramid shape.
func TestScheduleDrivesCodecs(t *testing.T) {
	t.Parallel()
	for bf := 0; bf <= 3; bf++ {
		t.Run(fmt.Sprintf("bf%d", bf), func(t *testing.T) {
			t.Parallel()
			base := encode.Config{
				Width:     320,
				Height:    240,
				BitDepth:  8,
				Chroma:    encode.Chroma420,
				Framerate: encode.Rational{Num: 30, Den: 1},
				GOPSize:   8,
				BPerP:     bf,
				MaxBDepth: pyramidDepth(bf),
				BitRate:   1_000_000,
				RC:        encode.RCVBR,
				Profile:   -1,
				Level:     -1,
				AUD:       true,
				Slices:    2,
			}

			h4 := base
			h4.SEI = encode.SEITiming | encode.SEIIdentifier |
				encode.SEIRecoveryPoint | encode.SEIA53CC
			c4, err := h264.New(&h4, nil)
			if err != nil {
				t.Fatalf("h264.New: %v", err)
			}
			out := driveCodec(t, &h4, c4, 300)
			if !bytes.Contains(out, []byte{0, 0, 0, 1, 0x09}) {
				t.Error("h264 stream missing access unit delimiter")
			}

			h5 := base
			h5.SEI = encode.SEIHDR | encode.SEIA53CC
			h5.GPB = true
			c5, err := h265.New(&h5, nil)
			if err != nil {
				t.Fatalf("h265.New: %v", err)
			}
			out = driveCodec(t, &h5, c5, 300)
			if !bytes.Contains(out, []byte{0, 0, 1, 0x42, 0x01}) {
				t.Error("h265 stream missing SPS")
			}
		})
	}
}

func driveCodec(t *testing.T, cfg *encode.Config, codec encode.Codec, blocks int) []byte {
	t.Helper()
	if err := codec.InitSequenceParams(); err != nil {
		t.Fatalf("InitSequenceParams: %v", err)
	}
	sched := newScheduler(cfg, 20)
	buf := make([]byte, 4096)
	var out []byte

	emit := func(n int) {
		out = append(out, buf[:(n+7)/8]...)
	}

	for {
		pic := sched.next()
		if pic == nil {
			break
		}
		pic.Frame = &encode.Frame{CCData: ccPair(pic.DisplayOrder)}

		if err := codec.InitPictureParams(pic); err != nil {
			t.Fatalf("InitPictureParams d%d: %v", pic.DisplayOrder, err)
		}
		if pic.Type == encode.PictureIDR {
			n, err := retryWrite(&buf, codec.WriteSequenceHeader)
			if err != nil {
				t.Fatalf("WriteSequenceHeader: %v", err)
			}
			emit(n)
		}
		n, err := retryWrite(&buf, func(dst []byte, dstBits int) (int, error) {
			return codec.WriteExtraHeaders(pic, dst, dstBits)
		})
		if err != nil {
			t.Fatalf("WriteExtraHeaders d%d: %v", pic.DisplayOrder, err)
		}
		emit(n)

		for i := 0; i < cfg.Slices; i++ {
			sl := &encode.Slice{
				Index:      i,
				BlockStart: i * blocks / cfg.Slices,
				BlockSize:  (i+1)*blocks/cfg.Slices - i*blocks/cfg.Slices,
			}
			if err := codec.InitSliceParams(pic, sl); err != nil {
				t.Fatalf("InitSliceParams d%d: %v", pic.DisplayOrder, err)
			}
			n, err := retryWrite(&buf, func(dst []byte, dstBits int) (int, error) {
				return codec.WriteSliceHeader(pic, sl, dst, dstBits)
			})
			if err != nil {
				t.Fatalf("WriteSliceHeader d%d: %v", pic.DisplayOrder, err)
			}
			emit(n)
		}
	}
	if len(out) == 0 {
		t.Fatal("no header bytes produced")
	}
	return out
}
