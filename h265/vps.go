package h265

import "github.com/zsiec/hwenc/bitstream"

// writeNALHeader writes the two-byte HEVC NAL unit header with layer 0
// and temporal id 0.
func writeNALHeader(w *bitstream.Writer, nalType int) {
	w.WriteBits(0, 1) // forbidden_zero_bit
	w.WriteBits(uint32(nalType), 6)
	w.WriteBits(0, 6) // nuh_layer_id
	w.WriteBits(1, 3) // nuh_temporal_id_plus1
}

// ProfileTierLevel is the profile_tier_level syntax structure (§7.3.3),
// restricted to a single layer with no sub-layers.
type ProfileTierLevel struct {
	ProfileSpace uint32
	TierFlag     bool
	ProfileIDC   uint32

	ProfileCompatibilityFlag [32]bool

	ProgressiveSourceFlag   bool
	InterlacedSourceFlag    bool
	NonPackedConstraintFlag bool
	FrameOnlyConstraintFlag bool

	Max14BitConstraintFlag       bool
	Max12BitConstraintFlag       bool
	Max10BitConstraintFlag       bool
	Max8BitConstraintFlag        bool
	Max422ChromaConstraintFlag   bool
	Max420ChromaConstraintFlag   bool
	MaxMonochromeConstraintFlag  bool
	IntraConstraintFlag          bool
	OnePictureOnlyConstraintFlag bool
	LowerBitRateConstraintFlag   bool

	LevelIDC int
}

func (p *ProfileTierLevel) compat(idc uint32) bool {
	return p.ProfileIDC == idc || p.ProfileCompatibilityFlag[idc]
}

func (p *ProfileTierLevel) marshal(w *bitstream.Writer) {
	w.WriteBits(p.ProfileSpace, 2)
	w.WriteFlag(p.TierFlag)
	w.WriteBits(p.ProfileIDC, 5)
	for i := 0; i < 32; i++ {
		w.WriteFlag(p.ProfileCompatibilityFlag[i])
	}
	w.WriteFlag(p.ProgressiveSourceFlag)
	w.WriteFlag(p.InterlacedSourceFlag)
	w.WriteFlag(p.NonPackedConstraintFlag)
	w.WriteFlag(p.FrameOnlyConstraintFlag)

	rext := false
	for idc := uint32(4); idc <= 10; idc++ {
		if p.compat(idc) {
			rext = true
			break
		}
	}
	switch {
	case rext:
		w.WriteFlag(p.Max12BitConstraintFlag)
		w.WriteFlag(p.Max10BitConstraintFlag)
		w.WriteFlag(p.Max8BitConstraintFlag)
		w.WriteFlag(p.Max422ChromaConstraintFlag)
		w.WriteFlag(p.Max420ChromaConstraintFlag)
		w.WriteFlag(p.MaxMonochromeConstraintFlag)
		w.WriteFlag(p.IntraConstraintFlag)
		w.WriteFlag(p.OnePictureOnlyConstraintFlag)
		w.WriteFlag(p.LowerBitRateConstraintFlag)
		if p.compat(5) || p.compat(9) || p.compat(10) {
			w.WriteFlag(p.Max14BitConstraintFlag)
			w.WriteBits(0, 32) // reserved_zero_33bits
			w.WriteBits(0, 1)
		} else {
			w.WriteBits(0, 32) // reserved_zero_34bits
			w.WriteBits(0, 2)
		}
	case p.compat(2):
		w.WriteBits(0, 7) // reserved_zero_7bits
		w.WriteFlag(p.OnePictureOnlyConstraintFlag)
		w.WriteBits(0, 32) // reserved_zero_35bits
		w.WriteBits(0, 3)
	default:
		w.WriteBits(0, 32) // reserved_zero_43bits
		w.WriteBits(0, 11)
	}

	inbld := false
	for idc := uint32(1); idc <= 5; idc++ {
		if p.compat(idc) {
			inbld = true
			break
		}
	}
	if inbld {
		w.WriteFlag(false) // general_inbld_flag
	} else {
		w.WriteBits(0, 1) // reserved_zero_bit
	}

	w.WriteBits(uint32(p.LevelIDC), 8)
}

// RawVPS is the video parameter set syntax structure (§7.3.2.1),
// restricted to one layer and no sub-layers.
type RawVPS struct {
	VideoParameterSetID uint32

	BaseLayerInternalFlag  bool
	BaseLayerAvailableFlag bool
	TemporalIDNestingFlag  bool

	ProfileTierLevel ProfileTierLevel

	MaxDecPicBufferingMinus1 uint32
	MaxNumReorderPics        uint32
	MaxLatencyIncreasePlus1  uint32

	TimingInfoPresentFlag       bool
	NumUnitsInTick              uint32
	TimeScale                   uint32
	POCProportionalToTimingFlag bool
	NumTicksPOCDiffOneMinus1    uint32
}

// Marshal writes the complete VPS NAL unit.
func (v *RawVPS) Marshal(w *bitstream.Writer) error {
	writeNALHeader(w, NALVPS)

	w.WriteBits(v.VideoParameterSetID, 4)
	w.WriteFlag(v.BaseLayerInternalFlag)
	w.WriteFlag(v.BaseLayerAvailableFlag)
	w.WriteBits(0, 6) // vps_max_layers_minus1
	w.WriteBits(0, 3) // vps_max_sub_layers_minus1
	w.WriteFlag(v.TemporalIDNestingFlag)
	w.WriteBits(0xffff, 16) // vps_reserved_0xffff_16bits

	v.ProfileTierLevel.marshal(w)

	w.WriteFlag(false) // vps_sub_layer_ordering_info_present_flag
	w.WriteUE(v.MaxDecPicBufferingMinus1)
	w.WriteUE(v.MaxNumReorderPics)
	w.WriteUE(v.MaxLatencyIncreasePlus1)

	w.WriteBits(0, 6) // vps_max_layer_id
	w.WriteUE(0)      // vps_num_layer_sets_minus1

	w.WriteFlag(v.TimingInfoPresentFlag)
	if v.TimingInfoPresentFlag {
		w.WriteBits(v.NumUnitsInTick, 32)
		w.WriteBits(v.TimeScale, 32)
		w.WriteFlag(v.POCProportionalToTimingFlag)
		if v.POCProportionalToTimingFlag {
			w.WriteUE(v.NumTicksPOCDiffOneMinus1)
		}
		w.WriteUE(0) // vps_num_hrd_parameters
	}
	w.WriteFlag(false) // vps_extension_flag
	w.WriteTrailingBits()
	return w.Err()
}
