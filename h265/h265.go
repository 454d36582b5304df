// Package h265 derives HEVC parameter sets, slice segment headers,
// short-term reference picture sets, and picture ordering state, and
// fills the hardware parameter blocks for the HEVC encode ABI.
package h265

// NAL unit types (Rec. ITU-T H.265 Table 7-1).
const (
	NALTrailN    = 0
	NALTrailR    = 1
	NALRASLN     = 8
	NALRASLR     = 9
	NALBLAWLP    = 16
	NALIDRWRADL  = 19
	NALIDRNLP    = 20
	NALCRANUT    = 21
	NALRsvIRAP23 = 23
	NALVPS       = 32
	NALSPS       = 33
	NALPPS       = 34
	NALAUD       = 35
	NALSEIPrefix = 39
)

// Slice types (Table 7-7).
const (
	SliceB = 0
	SliceP = 1
	SliceI = 2
)

// Profile constants (general_profile_idc values, Annex A.3).
const (
	ProfileMain   = 1
	ProfileMain10 = 2
	ProfileRext   = 4
)

// Tier constants.
const (
	TierMain = 0
	TierHigh = 1
)

// pixelAspect is the fixed Table E-1 sample aspect ratio list, shared
// with H.264. Index is the aspect_ratio_idc.
var pixelAspect = [17][2]int{
	{0, 1}, {1, 1}, {12, 11}, {10, 11}, {16, 11}, {40, 33}, {24, 11},
	{20, 11}, {32, 11}, {80, 33}, {18, 11}, {15, 11}, {64, 33},
	{160, 99}, {4, 3}, {3, 2}, {2, 1},
}

// ExtendedSAR is the aspect_ratio_idc escape for explicit sar_width /
// sar_height.
const ExtendedSAR = 255

func lookupAspectRatio(num, den int) int {
	for i := 1; i < len(pixelAspect); i++ {
		if pixelAspect[i][0] == num && pixelAspect[i][1] == den {
			return i
		}
	}
	return ExtendedSAR
}

// ceilLog2 returns the number of bits needed to address n values.
func ceilLog2(n int) int {
	bits := 0
	for (1 << bits) < n {
		bits++
	}
	return bits
}
