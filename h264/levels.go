package h264

// LevelDescriptor is one row of Table A-1.
type LevelDescriptor struct {
	Name               string
	LevelIDC           int
	ConstraintSet3Flag bool
	MaxMBPS            int64 // macroblocks per second
	MaxFS              int64 // frame size, macroblocks
	MaxDpbMbs          int64
	MaxBR              int64 // kbit/s, scaled by the profile's cpbbr factor
	MaxCPB             int64
}

var levels = []LevelDescriptor{
	{"1", 10, false, 1485, 99, 396, 64, 175},
	{"1b", 11, true, 1485, 99, 396, 128, 350},
	{"1b", 9, false, 1485, 99, 396, 128, 350},
	{"1.1", 11, false, 3000, 396, 900, 192, 500},
	{"1.2", 12, false, 6000, 396, 2376, 384, 1000},
	{"1.3", 13, false, 11880, 396, 2376, 768, 2000},
	{"2", 20, false, 11880, 396, 2376, 2000, 2000},
	{"2.1", 21, false, 19800, 792, 4752, 4000, 4000},
	{"2.2", 22, false, 20250, 1620, 8100, 4000, 4000},
	{"3", 30, false, 40500, 1620, 8100, 10000, 10000},
	{"3.1", 31, false, 108000, 3600, 18000, 14000, 14000},
	{"3.2", 32, false, 216000, 5120, 20480, 20000, 20000},
	{"4", 40, false, 245760, 8192, 32768, 20000, 25000},
	{"4.1", 41, false, 245760, 8192, 32768, 50000, 62500},
	{"4.2", 42, false, 522240, 8704, 34816, 50000, 62500},
	{"5", 50, false, 589824, 22080, 110400, 135000, 135000},
	{"5.1", 51, false, 983040, 36864, 184320, 240000, 240000},
	{"5.2", 52, false, 2073600, 36864, 184320, 240000, 240000},
	{"6", 60, false, 4177920, 139264, 696320, 240000, 240000},
	{"6.1", 61, false, 8355840, 139264, 696320, 480000, 480000},
	{"6.2", 62, false, 16711680, 139264, 696320, 800000, 800000},
}

// cpbBRFactor returns the NAL bitrate scaling factor for a profile
// (Table A-2 cpbBrNalFactor).
func cpbBRFactor(profileIDC int) int64 {
	switch profileIDC {
	case ProfileHigh:
		return 1500
	case ProfileHigh10:
		return 3600
	case ProfileHigh422, ProfileHigh444Predictive:
		return 4800
	default:
		return 1200
	}
}

// GuessLevel picks the lowest level whose Table A-1 limits accommodate
// the stream. Unknown parameters may be zero and are then not checked.
// Returns nil when no defined level fits.
func GuessLevel(profileIDC int, bitrate int64, framerate, width, height, maxDecFrameBuffering int) *LevelDescriptor {
	widthMbs := int64((width + MbSize - 1) / MbSize)
	heightMbs := int64((height + MbSize - 1) / MbSize)
	noCS3 := profileIDC == ProfileHigh || profileIDC == ProfileHigh10 ||
		profileIDC == ProfileHigh422 || profileIDC == ProfileHigh444Predictive ||
		profileIDC == ProfileCAVLC444

	for i := range levels {
		l := &levels[i]
		if l.ConstraintSet3Flag && noCS3 {
			continue
		}
		if width > 0 && height > 0 {
			if widthMbs*heightMbs > l.MaxFS {
				continue
			}
			// MinCR-style sanity limit on very wide or tall frames.
			if widthMbs*widthMbs > 8*l.MaxFS || heightMbs*heightMbs > 8*l.MaxFS {
				continue
			}
			if maxDecFrameBuffering > 0 &&
				int64(maxDecFrameBuffering)*widthMbs*heightMbs > l.MaxDpbMbs {
				continue
			}
			if framerate > 0 && int64(framerate)*widthMbs*heightMbs > l.MaxMBPS {
				continue
			}
		}
		if bitrate > 0 && bitrate > l.MaxBR*cpbBRFactor(profileIDC) {
			continue
		}
		return l
	}
	return nil
}
