// Command hwenc drives the H.264 and HEVC parameter cores over a
// synthetic B-pyramid picture sequence and writes the derived Annex-B
// headers to files. It plays the roles the hardware driver normally
// plays around the core: picture type scheduling, reference and DPB
// bookkeeping, and buffer capacity retries.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/hwenc/bitstream"
	"github.com/zsiec/hwenc/encode"
	"github.com/zsiec/hwenc/h264"
	"github.com/zsiec/hwenc/h265"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	width := envInt("WIDTH", 1920)
	height := envInt("HEIGHT", 1080)
	frames := envInt("FRAMES", 300)
	gop := envInt("GOP", 120)
	bf := envInt("BF", 3)
	bitrate := envInt("BITRATE", 4_000_000)
	outDir := envOr("OUT_DIR", "out")

	if bf < 0 || bf > 3 {
		slog.Error("BF must be between 0 and 3", "bf", bf)
		os.Exit(1)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}

	slog.Info("hwenc starting",
		"version", version,
		"size", fmt.Sprintf("%dx%d", width, height),
		"frames", frames,
		"gop", gop,
		"bf", bf,
	)

	base := encode.Config{
		Width:     width,
		Height:    height,
		BitDepth:  8,
		Chroma:    encode.Chroma420,
		Framerate: encode.Rational{Num: 30, Den: 1},
		GOPSize:   gop,
		BPerP:     bf,
		MaxBDepth: pyramidDepth(bf),
		BitRate:   int64(bitrate),
		RC:        encode.RCVBR,
		Profile:   -1,
		Level:     -1,
		AUD:       true,
	}

	var g errgroup.Group

	g.Go(func() error {
		cfg := base
		cfg.SEI = encode.SEITiming | encode.SEIIdentifier |
			encode.SEIRecoveryPoint | encode.SEIA53CC
		codec, err := h264.New(&cfg, slog.With("codec", "h264"))
		if err != nil {
			return fmt.Errorf("h264: %w", err)
		}
		mbs := ((width + 15) / 16) * ((height + 15) / 16)
		return run(&cfg, codec, mbs, frames, filepath.Join(outDir, "headers.264"))
	})

	g.Go(func() error {
		cfg := base
		cfg.SEI = encode.SEIHDR | encode.SEIA53CC
		cfg.GPB = true
		codec, err := h265.New(&cfg, slog.With("codec", "h265"))
		if err != nil {
			return fmt.Errorf("h265: %w", err)
		}
		aw, ah := align(width, 16), align(height, 16)
		ctus := ((aw + 31) / 32) * ((ah + 31) / 32)
		return run(&cfg, codec, ctus, frames, filepath.Join(outDir, "headers.265"))
	})

	if err := g.Wait(); err != nil {
		slog.Error("encode error", "error", err)
		os.Exit(1)
	}
	slog.Info("done", "dir", outDir)
}

// run pushes the synthetic schedule through one codec and appends every
// derived header to the output file.
func run(cfg *encode.Config, codec encode.Codec, blocks, frames int, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := codec.InitSequenceParams(); err != nil {
		return err
	}

	sched := newScheduler(cfg, frames)

	// HDR statics and a caption byte pair per frame, so the SEI paths
	// see real side data.
	mastering := &encode.MasteringDisplay{
		Primaries: [3][2]encode.Rational{
			{{Num: 708, Den: 1000}, {Num: 292, Den: 1000}},
			{{Num: 170, Den: 1000}, {Num: 797, Den: 1000}},
			{{Num: 131, Den: 1000}, {Num: 46, Den: 1000}},
		},
		WhitePoint:   [2]encode.Rational{{Num: 3127, Den: 10000}, {Num: 3290, Den: 10000}},
		MaxLuminance: encode.Rational{Num: 1000, Den: 1},
		MinLuminance: encode.Rational{Num: 1, Den: 10000},
		HasPrimaries: true,
		HasLuminance: true,
	}
	light := &encode.ContentLight{MaxCLL: 1000, MaxFALL: 400}

	buf := make([]byte, 4096)
	written := int64(0)

	for {
		pic := sched.next()
		if pic == nil {
			break
		}
		pic.Frame = &encode.Frame{
			Mastering: mastering,
			Light:     light,
			CCData:    ccPair(pic.DisplayOrder),
		}

		if err := codec.InitPictureParams(pic); err != nil {
			return err
		}

		if pic.Type == encode.PictureIDR {
			n, err := retryWrite(&buf, codec.WriteSequenceHeader)
			if err != nil {
				return err
			}
			if written, err = flush(f, buf, n, written); err != nil {
				return err
			}
		}
		n, err := retryWrite(&buf, func(dst []byte, dstBits int) (int, error) {
			return codec.WriteExtraHeaders(pic, dst, dstBits)
		})
		if err != nil {
			return err
		}
		if written, err = flush(f, buf, n, written); err != nil {
			return err
		}

		for i := 0; i < cfg.Slices; i++ {
			sl := &encode.Slice{
				Index:      i,
				BlockStart: i * blocks / cfg.Slices,
				BlockSize:  (i+1)*blocks/cfg.Slices - i*blocks/cfg.Slices,
			}
			if err := codec.InitSliceParams(pic, sl); err != nil {
				return err
			}
			n, err := retryWrite(&buf, func(dst []byte, dstBits int) (int, error) {
				return codec.WriteSliceHeader(pic, sl, dst, dstBits)
			})
			if err != nil {
				return err
			}
			if written, err = flush(f, buf, n, written); err != nil {
				return err
			}
		}
	}

	slog.Info("header stream written", "path", path, "bytes", written)
	return nil
}

// retryWrite calls write with the current buffer, doubling it while the
// serialized output does not fit. Returns the payload length in bits.
func retryWrite(buf *[]byte, write func(dst []byte, dstBits int) (int, error)) (int, error) {
	for {
		n, err := write(*buf, len(*buf)*8)
		if errors.Is(err, bitstream.ErrCapacity) {
			*buf = make([]byte, len(*buf)*2)
			continue
		}
		return n, err
	}
}

func flush(f *os.File, buf []byte, nbits int, written int64) (int64, error) {
	n := (nbits + 7) / 8
	if n == 0 {
		return written, nil
	}
	if _, err := f.Write(buf[:n]); err != nil {
		return written, err
	}
	return written + int64(n), nil
}

// ccPair synthesizes one CEA-608 field-1 cc_data triplet carrying two
// printable characters derived from the display order.
func ccPair(display int64) []byte {
	c1 := byte('A' + display%26)
	c2 := byte('a' + display%26)
	return []byte{0xfc, c1, c2}
}

// scheduler produces the encode-order picture sequence: closed GOPs of
// IDR + P anchors with a dyadic B pyramid between consecutive anchors.
// It owns the reference retention bookkeeping the hardware driver
// normally does.
type scheduler struct {
	cfg    *encode.Config
	arena  *encode.Arena
	frames int

	queue       []*encode.Picture
	display     int64
	encodeOrder int64
	prev        *encode.Picture
	retained    []*encode.Picture
	surface     uint32
}

func newScheduler(cfg *encode.Config, frames int) *scheduler {
	return &scheduler{
		cfg:    cfg,
		arena:  encode.NewArena(encode.MaxDPBSize + 8),
		frames: frames,
	}
}

// next returns the next picture in encode order, or nil at end of
// stream.
func (s *scheduler) next() *encode.Picture {
	if len(s.queue) == 0 {
		s.fill()
	}
	if len(s.queue) == 0 {
		return nil
	}
	pic := s.queue[0]
	s.queue = s.queue[1:]
	return pic
}

// fill plans the next anchor segment: the anchor picture followed by
// the B pyramid filling the gap back to the previous anchor.
func (s *scheduler) fill() {
	if s.display >= int64(s.frames) {
		return
	}

	if s.display%int64(s.cfg.GOPSize) == 0 {
		idr := s.newPicture(s.display, encode.PictureIDR, true, 0)
		idr.DPB = []*encode.Picture{idr}
		s.retained = []*encode.Picture{idr}
		s.queue = append(s.queue, idr)
		s.display++
		return
	}

	prevAnchor := s.retained[len(s.retained)-1]
	gap := int64(s.cfg.BPerP) + 1
	hi := s.display + gap - 1
	gopEnd := (prevAnchor.DisplayOrder/int64(s.cfg.GOPSize) + 1) * int64(s.cfg.GOPSize)
	if hi > gopEnd-1 {
		hi = gopEnd - 1
	}
	if hi > int64(s.frames)-1 {
		hi = int64(s.frames) - 1
	}

	anchor := s.newPicture(hi, encode.PictureP, true, 0)
	anchor.Refs[0] = []*encode.Picture{prevAnchor}
	anchor.DPB = []*encode.Picture{prevAnchor, anchor}
	s.retained = []*encode.Picture{prevAnchor, anchor}
	s.queue = append(s.queue, anchor)

	s.planB(prevAnchor, anchor, 1)
	s.display = hi + 1
}

// planB recursively emits the B picture splitting [lo, hi], deeper
// levels after their reference. A leaf carries the maximum pyramid
// depth so its coded form is marked unreferenced.
func (s *scheduler) planB(lo, hi *encode.Picture, depth int) {
	if hi.DisplayOrder-lo.DisplayOrder < 2 {
		return
	}
	mid := (lo.DisplayOrder + hi.DisplayOrder) / 2
	isRef := mid-lo.DisplayOrder >= 2 || hi.DisplayOrder-mid >= 2
	bDepth := depth
	if !isRef {
		bDepth = s.cfg.MaxBDepth
	}

	b := s.newPicture(mid, encode.PictureB, isRef, bDepth)
	b.Refs[0] = []*encode.Picture{lo}
	b.Refs[1] = []*encode.Picture{hi}
	b.DPB = append([]*encode.Picture(nil), s.retained...)
	if isRef {
		b.DPB = append(b.DPB, b)
		s.retained = append(s.retained, b)
	}
	s.queue = append(s.queue, b)

	s.planB(lo, b, depth+1)
	s.planB(b, hi, depth+1)
}

func (s *scheduler) newPicture(display int64, t encode.PictureType, isRef bool, bDepth int) *encode.Picture {
	pic := s.arena.New(s.encodeOrder)
	pic.DisplayOrder = display
	pic.Type = t
	pic.IsReference = isRef
	pic.BDepth = bDepth
	pic.Prev = s.prev
	pic.ReconSurface = s.surface
	pic.CodedBuffer = s.surface + 1000
	s.surface++
	s.encodeOrder++
	s.prev = pic
	return pic
}

// pyramidDepth returns the dyadic pyramid depth covering bf consecutive
// B pictures.
func pyramidDepth(bf int) int {
	if bf <= 0 {
		return 0
	}
	return bits.Len(uint(bf))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("ignoring non-integer env value", "key", key, "value", v)
	}
	return fallback
}

func align(v, a int) int {
	return (v + a - 1) / a * a
}
