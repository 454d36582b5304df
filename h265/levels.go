package h265

// LevelDescriptor is one row of the Table A.8/A.9 level limits.
type LevelDescriptor struct {
	Name             string
	LevelIDC         int
	MaxLumaPs        int64
	MaxCPBMain       int64 // kbits
	MaxCPBHigh       int64 // kbits, zero when no high tier is defined
	MaxSliceSegments int
	MaxTileRows      int
	MaxTileCols      int
	MaxLumaSr        int64
	MaxBRMain        int64 // kbit/s before the profile CpbNalFactor
	MaxBRHigh        int64
}

var levels = []LevelDescriptor{
	{"1", 30, 36864, 350, 0, 16, 1, 1, 552960, 128, 0},
	{"2", 60, 122880, 1500, 0, 16, 1, 1, 3686400, 1500, 0},
	{"2.1", 63, 245760, 3000, 0, 20, 1, 1, 7372800, 3000, 0},
	{"3", 90, 552960, 6000, 0, 30, 2, 2, 16588800, 6000, 0},
	{"3.1", 93, 983040, 10000, 0, 40, 3, 3, 33177600, 10000, 0},
	{"4", 120, 2228224, 12000, 30000, 75, 5, 5, 66846720, 12000, 30000},
	{"4.1", 123, 2228224, 20000, 50000, 75, 5, 5, 133693440, 20000, 50000},
	{"5", 150, 8912896, 25000, 100000, 200, 11, 10, 267386880, 25000, 100000},
	{"5.1", 153, 8912896, 40000, 160000, 200, 11, 10, 534773760, 40000, 160000},
	{"5.2", 156, 8912896, 60000, 240000, 200, 11, 10, 1069547520, 60000, 240000},
	{"6", 180, 35651584, 60000, 240000, 600, 22, 20, 1069547520, 60000, 240000},
	{"6.1", 183, 35651584, 120000, 480000, 600, 22, 20, 2139095040, 120000, 480000},
	{"6.2", 186, 35651584, 240000, 800000, 600, 22, 20, 4278190080, 240000, 800000},
}

// maxDpbPicBuf is the fixed DPB allocation unit of A.4.2.
const maxDpbPicBuf = 6

// cpbNalFactor is the A.4.1 CpbNalFactor for the Main-family profiles.
// The range extension factors are larger, so using this for them only
// makes the check stricter.
const cpbNalFactor = 1100

// GuessLevel picks the lowest level whose limits accommodate the
// stream. Unknown parameters may be zero and are then not checked.
// Returns nil when no defined level fits.
func GuessLevel(profileIDC, tier int, bitrate int64,
	width, height, sliceSegments, tileRows, tileCols, maxDecPicBuffering int) *LevelDescriptor {

	pictureSize := int64(width) * int64(height)

	for i := range levels {
		l := &levels[i]

		if pictureSize > l.MaxLumaPs {
			continue
		}
		if int64(width)*int64(width) > 8*l.MaxLumaPs ||
			int64(height)*int64(height) > 8*l.MaxLumaPs {
			continue
		}
		if sliceSegments > l.MaxSliceSegments {
			continue
		}
		if tileRows > l.MaxTileRows || tileCols > l.MaxTileCols {
			continue
		}

		if bitrate > 0 {
			br := l.MaxBRMain
			if tier == TierHigh {
				if l.MaxBRHigh == 0 {
					continue
				}
				br = l.MaxBRHigh
			}
			if bitrate > br*cpbNalFactor {
				continue
			}
		}

		if maxDecPicBuffering > 0 {
			// A.4.2: the DPB limit grows when the picture is small
			// relative to the level's maximum.
			var maxDpb int
			switch {
			case pictureSize <= l.MaxLumaPs/4:
				maxDpb = min16(4 * maxDpbPicBuf)
			case pictureSize <= l.MaxLumaPs/2:
				maxDpb = min16(2 * maxDpbPicBuf)
			case pictureSize <= 3*l.MaxLumaPs/4:
				maxDpb = min16(4 * maxDpbPicBuf / 3)
			default:
				maxDpb = maxDpbPicBuf
			}
			if maxDecPicBuffering > maxDpb {
				continue
			}
		}
		return l
	}
	return nil
}

func min16(v int) int {
	if v > 16 {
		return 16
	}
	return v
}
