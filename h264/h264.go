// Package h264 derives H.264 parameter sets, slice headers, reference
// list renumbering, and picture ordering state, and fills the hardware
// parameter blocks for the H.264 encode ABI.
package h264

// NAL unit types (Rec. ITU-T H.264 Table 7-1).
const (
	NALSlice    = 1
	NALIDRSlice = 5
	NALSEI      = 6
	NALSPS      = 7
	NALPPS      = 8
	NALAUD      = 9
)

// Slice type codes (Table 7-6). The +5 variants signal that all slices
// of the picture share the type.
const (
	SliceP    = 0
	SliceB    = 1
	SliceI    = 2
	SliceAllP = 5
	SliceAllB = 6
	SliceAllI = 7
)

// Profile constants. The high bits carry the constrained/intra
// modifiers; profile_idc is the low byte.
const (
	ProfileConstrained = 1 << 9
	ProfileIntra       = 1 << 11

	ProfileBaseline            = 66
	ProfileConstrainedBaseline = 66 | ProfileConstrained
	ProfileMain                = 77
	ProfileExtended            = 88
	ProfileHigh                = 100
	ProfileHigh10              = 110
	ProfileHigh10Intra         = 110 | ProfileIntra
	ProfileHigh422             = 122
	ProfileHigh422Intra        = 122 | ProfileIntra
	ProfileHigh444             = 144
	ProfileHigh444Predictive   = 244
	ProfileHigh444Intra        = 244 | ProfileIntra
	ProfileCAVLC444            = 44
)

// MbSize is the macroblock size in luma samples.
const MbSize = 16

// aspectRatioIDC looks up the fixed Table E-1 sample aspect ratios.
// Index is the aspect_ratio_idc; 255 is extended SAR.
var pixelAspect = [17][2]int{
	{0, 1}, {1, 1}, {12, 11}, {10, 11}, {16, 11}, {40, 33}, {24, 11},
	{20, 11}, {32, 11}, {80, 33}, {18, 11}, {15, 11}, {64, 33},
	{160, 99}, {4, 3}, {3, 2}, {2, 1},
}

// ExtendedSAR is the aspect_ratio_idc escape for explicit sar_width /
// sar_height.
const ExtendedSAR = 255

// lookupAspectRatio returns the Table E-1 index for a reduced aspect
// ratio, or ExtendedSAR when no entry matches.
func lookupAspectRatio(num, den int) int {
	for i := 1; i < len(pixelAspect); i++ {
		if pixelAspect[i][0] == num && pixelAspect[i][1] == den {
			return i
		}
	}
	return ExtendedSAR
}
