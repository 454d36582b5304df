package encode

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned for configurations rejected before any
// derivation is attempted: unsupported chroma formats, out-of-range
// levels or QP values, bad tile grids.
var ErrInvalidConfig = errors.New("encode: invalid configuration")

// ChromaFormat enumerates the chroma subsampling patterns of the
// chroma_format_idc tables.
type ChromaFormat int

const (
	ChromaMonochrome ChromaFormat = iota
	Chroma420
	Chroma422
	Chroma444
)

func (c ChromaFormat) String() string {
	switch c {
	case ChromaMonochrome:
		return "monochrome"
	case Chroma420:
		return "4:2:0"
	case Chroma422:
		return "4:2:2"
	case Chroma444:
		return "4:4:4"
	}
	return "unknown"
}

// SubsampleShift returns the log2 horizontal and vertical chroma
// subsampling factors.
func (c ChromaFormat) SubsampleShift() (w, h int) {
	switch c {
	case Chroma420:
		return 1, 1
	case Chroma422:
		return 1, 0
	default:
		return 0, 0
	}
}

// RateControlMode selects how QP fields are derived. Only the header
// consequences matter here; actual rate control is the hardware's job.
type RateControlMode int

const (
	RCConstantQP RateControlMode = iota
	RCCBR
	RCVBR
)

// SEIFlags is the bitmask of SEI message kinds to attach when their
// inputs are available.
type SEIFlags uint

const (
	SEITiming SEIFlags = 1 << iota
	SEIIdentifier
	SEIRecoveryPoint
	SEIA53CC
	SEIMasteringDisplay
	SEIContentLight
)

// SEIHDR aggregates the HDR metadata messages, matching the "hdr" named
// preset of the options surface.
const SEIHDR = SEIMasteringDisplay | SEIContentLight

var seiNames = map[string]SEIFlags{
	"timing":            SEITiming,
	"identifier":        SEIIdentifier,
	"recovery_point":    SEIRecoveryPoint,
	"a53_cc":            SEIA53CC,
	"mastering_display": SEIMasteringDisplay,
	"content_light":     SEIContentLight,
	"hdr":               SEIHDR,
}

// ParseSEIFlags parses a comma-separated list of SEI names ("timing",
// "identifier", "recovery_point", "a53_cc", "mastering_display",
// "content_light", or the aggregate "hdr").
func ParseSEIFlags(s string) (SEIFlags, error) {
	var out SEIFlags
	if s == "" {
		return 0, nil
	}
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		f, ok := seiNames[name]
		if !ok {
			return 0, fmt.Errorf("%w: unknown SEI kind %q", ErrInvalidConfig, name)
		}
		out |= f
	}
	return out, nil
}

// HEVCFeatures mirrors the per-feature enable flags a hardware
// capability query reports. A nil pointer in Caps means the query was
// unavailable and conservative defaults apply.
type HEVCFeatures struct {
	AMP           bool
	SAO           bool
	TemporalMVP   bool
	PCM           bool
	CUQPDelta     bool
	TransformSkip bool
}

// HEVCBlockSizes mirrors the coding/transform block size ranges a
// hardware capability query reports.
type HEVCBlockSizes struct {
	CTUSize         int // max coding tree block size, pixels
	MinCBSize       int // min luma coding block size, pixels
	MinTBLog2Minus2 int
	MaxTBLog2Minus2 int
	MaxTHDepthInter int
	MaxTHDepthIntra int
}

// Caps holds optional hardware capability query results. Absent fields
// fall back to documented conservative defaults rather than failing.
type Caps struct {
	Features   *HEVCFeatures
	BlockSizes *HEVCBlockSizes
}

// Config collects everything the codec implementations need to derive
// parameter sets. Zero values select the documented defaults where a
// default exists; Validate rejects the rest.
type Config struct {
	Width  int
	Height int

	BitDepth int // luma == chroma bit depth
	Chroma   ChromaFormat

	Framerate    Rational // zero ⇒ TimeBase drives VUI timing
	TimeBase     Rational
	SampleAspect Rational

	// Colour description, in the H.273 code points. Zero values mean
	// unspecified (2 is the standard's "unspecified" code; 0 here maps
	// to it).
	ColorPrimaries uint8
	ColorTransfer  uint8
	ColorMatrix    uint8
	FullRange      bool
	ChromaLocation int // 0 = unspecified, else H.264 Figure E-1 value + 1

	GOPSize   int
	BPerP     int // consecutive B frames between anchors
	MaxBDepth int // B pyramid depth

	BitRate            int64
	HRDBufferSize      int64
	HRDInitialFullness int64

	RC RateControlMode
	QP int // P-frame QP for constant-QP mode

	// I/B QP derivation factors. Zero factor means "same as P".
	IQuantFactor float64
	IQuantOffset float64
	BQuantFactor float64
	BQuantOffset float64

	Profile int // codec-specific profile constant; -1 = codec default
	Tier    int // HEVC only: 0 main, 1 high
	Level   int // codec-specific level_idc; -1 = derive from stream

	TileCols int // HEVC only
	TileRows int
	Slices   int

	// GPB codes P slices as generalized B slices with both reference
	// lists pointing backward. HEVC only.
	GPB bool

	AUD bool
	SEI SEIFlags

	Caps *Caps
}

// Validate rejects configurations that no codec can accept. Codec
// implementations perform their own further checks (chroma support,
// profile support).
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.BitDepth == 0 {
		c.BitDepth = 8
	}
	if c.BitDepth != 8 && c.BitDepth != 10 && c.BitDepth != 12 {
		return fmt.Errorf("%w: bit depth %d", ErrInvalidConfig, c.BitDepth)
	}
	if c.Level != -1 && (c.Level < 0 || c.Level > 0xff) {
		return fmt.Errorf("%w: level %d must fit in 8-bit unsigned integer", ErrInvalidConfig, c.Level)
	}
	if c.QP < 0 || c.QP > 52 {
		return fmt.Errorf("%w: qp %d", ErrInvalidConfig, c.QP)
	}
	if c.TileCols < 0 || c.TileRows < 0 {
		return fmt.Errorf("%w: tile grid %dx%d", ErrInvalidConfig, c.TileCols, c.TileRows)
	}
	if c.GOPSize <= 0 {
		c.GOPSize = 120
	}
	if c.Slices <= 0 {
		c.Slices = 1
	}
	if c.TimeBase.IsZero() {
		c.TimeBase = Rational{1, 90000}
	}
	return nil
}

// FixedQP derives the constant QP values for IDR/I, P, and B pictures.
// Outside constant-QP mode the values still seed pic_init_qp and
// slice_qp_delta.
func (c *Config) FixedQP(defaultQP int) (idr, p, b int) {
	if c.RC != RCConstantQP {
		return defaultQP, defaultQP, defaultQP
	}
	p = clampQP(c.QP)
	idr = p
	if c.IQuantFactor > 0 {
		idr = clampQP(int(c.IQuantFactor*float64(p) + c.IQuantOffset + 0.5))
	}
	b = p
	if c.BQuantFactor > 0 {
		b = clampQP(int(c.BQuantFactor*float64(p) + c.BQuantOffset + 0.5))
	}
	return idr, p, b
}

func clampQP(v int) int {
	if v < 1 {
		return 1
	}
	if v > 51 {
		return 51
	}
	return v
}
