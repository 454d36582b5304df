// Package encode defines the picture model, configuration, and codec
// strategy interface for deriving H.264/HEVC bitstream headers and
// hardware parameter blocks. The picture-type scheduler, surface
// management, and buffer submission are external: the caller hands this
// package pictures with type, ordering, reference lists, and DPB snapshot
// already assigned, and drives each picture synchronously through
// InitPictureParams, InitSliceParams, and the header writes.
package encode

// Reference list and DPB bounds, matching the fixed-size reference frame
// arrays of the hardware ABI.
const (
	MaxRefListLen = 16
	MaxDPBSize    = 16
)

// PictureType classifies a picture as assigned by the external scheduler.
type PictureType int

const (
	PictureIDR PictureType = iota
	PictureI
	PictureP
	PictureB
)

func (t PictureType) String() string {
	switch t {
	case PictureIDR:
		return "IDR"
	case PictureI:
		return "I"
	case PictureP:
		return "P"
	case PictureB:
		return "B"
	}
	return "?"
}

// Picture describes one picture to encode. Refs[0] holds backward
// (lower-POC) references, Refs[1] forward references for B pictures.
// DPB is the set of pictures the decoder must retain after decoding this
// one, this picture included. Prev links the immediately preceding
// picture in encode order; it is nil only for the first IDR.
type Picture struct {
	DisplayOrder int64
	EncodeOrder  int64
	Type         PictureType
	IsReference  bool
	BDepth       int

	Refs [2][]*Picture
	DPB  []*Picture
	Prev *Picture

	// Input frame side data, read-only borrow for the duration of the
	// per-picture calls.
	Frame *Frame

	// Handles assigned by the external submission layer. Carried through
	// into the parameter blocks untouched.
	ReconSurface uint32
	CodedBuffer  uint32

	// Per-picture codec state, owned by the selected Codec.
	codecState any
}

// CodecState returns the per-picture state attached by the codec.
func (p *Picture) CodecState() any { return p.codecState }

// SetCodecState attaches per-picture codec state.
func (p *Picture) SetCodecState(s any) { p.codecState = s }

// InDPB reports whether other is present in p's DPB snapshot.
func (p *Picture) InDPB(other *Picture) bool {
	for _, d := range p.DPB {
		if d == other {
			return true
		}
	}
	return false
}

// IsRef reports whether other appears in either of p's reference lists.
func (p *Picture) IsRef(other *Picture) bool {
	for _, l := range p.Refs {
		for _, r := range l {
			if r == other {
				return true
			}
		}
	}
	return false
}

// Slice addresses one slice of a picture in coding blocks (macroblocks
// for H.264, CTUs for HEVC).
type Slice struct {
	Index      int
	BlockStart int
	BlockSize  int
}
