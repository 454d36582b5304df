package h264

import "github.com/zsiec/hwenc/bitstream"

// HRD holds the hypothetical reference decoder parameters carried in
// the VUI (Annex E.1.2). Only one CPB is ever emitted.
type HRD struct {
	BitRateScale                       uint32
	CPBSizeScale                       uint32
	BitRateValueMinus1                 uint32
	CPBSizeValueMinus1                 uint32
	CBRFlag                            bool
	InitialCPBRemovalDelayLengthMinus1 uint32
	CPBRemovalDelayLengthMinus1        uint32
	DPBOutputDelayLengthMinus1         uint32
	TimeOffsetLength                   uint32
}

func (h *HRD) marshal(w *bitstream.Writer) {
	w.WriteUE(0) // cpb_cnt_minus1
	w.WriteBits(h.BitRateScale, 4)
	w.WriteBits(h.CPBSizeScale, 4)
	w.WriteUE(h.BitRateValueMinus1)
	w.WriteUE(h.CPBSizeValueMinus1)
	w.WriteFlag(h.CBRFlag)
	w.WriteBits(h.InitialCPBRemovalDelayLengthMinus1, 5)
	w.WriteBits(h.CPBRemovalDelayLengthMinus1, 5)
	w.WriteBits(h.DPBOutputDelayLengthMinus1, 5)
	w.WriteBits(h.TimeOffsetLength, 5)
}

// VUI holds the video usability information of the SPS (Annex E.1.1).
type VUI struct {
	AspectRatioInfoPresentFlag bool
	AspectRatioIDC             int
	SarWidth                   int
	SarHeight                  int

	VideoSignalTypePresentFlag   bool
	VideoFormat                  uint32
	VideoFullRangeFlag           bool
	ColourDescriptionPresentFlag bool
	ColourPrimaries              uint32
	TransferCharacteristics      uint32
	MatrixCoefficients           uint32

	ChromaLocInfoPresentFlag       bool
	ChromaSampleLocTypeTopField    uint32
	ChromaSampleLocTypeBottomField uint32

	TimingInfoPresentFlag bool
	NumUnitsInTick        uint32
	TimeScale             uint32
	FixedFrameRateFlag    bool

	NALHRDParametersPresentFlag bool
	NALHRDParameters            HRD
	LowDelayHRDFlag             bool

	PicStructPresentFlag bool

	BitstreamRestrictionFlag           bool
	MotionVectorsOverPicBoundariesFlag bool
	MaxBytesPerPicDenom                uint32
	MaxBitsPerMbDenom                  uint32
	Log2MaxMvLengthHorizontal          uint32
	Log2MaxMvLengthVertical            uint32
	MaxNumReorderFrames                uint32
	MaxDecFrameBuffering               uint32
}

func (v *VUI) marshal(w *bitstream.Writer) {
	w.WriteFlag(v.AspectRatioInfoPresentFlag)
	if v.AspectRatioInfoPresentFlag {
		w.WriteBits(uint32(v.AspectRatioIDC), 8)
		if v.AspectRatioIDC == ExtendedSAR {
			w.WriteBits(uint32(v.SarWidth), 16)
			w.WriteBits(uint32(v.SarHeight), 16)
		}
	}
	w.WriteFlag(false) // overscan_info_present_flag
	w.WriteFlag(v.VideoSignalTypePresentFlag)
	if v.VideoSignalTypePresentFlag {
		w.WriteBits(v.VideoFormat, 3)
		w.WriteFlag(v.VideoFullRangeFlag)
		w.WriteFlag(v.ColourDescriptionPresentFlag)
		if v.ColourDescriptionPresentFlag {
			w.WriteBits(v.ColourPrimaries, 8)
			w.WriteBits(v.TransferCharacteristics, 8)
			w.WriteBits(v.MatrixCoefficients, 8)
		}
	}
	w.WriteFlag(v.ChromaLocInfoPresentFlag)
	if v.ChromaLocInfoPresentFlag {
		w.WriteUE(v.ChromaSampleLocTypeTopField)
		w.WriteUE(v.ChromaSampleLocTypeBottomField)
	}
	w.WriteFlag(v.TimingInfoPresentFlag)
	if v.TimingInfoPresentFlag {
		w.WriteBits(v.NumUnitsInTick, 32)
		w.WriteBits(v.TimeScale, 32)
		w.WriteFlag(v.FixedFrameRateFlag)
	}
	w.WriteFlag(v.NALHRDParametersPresentFlag)
	if v.NALHRDParametersPresentFlag {
		v.NALHRDParameters.marshal(w)
	}
	w.WriteFlag(false) // vcl_hrd_parameters_present_flag
	if v.NALHRDParametersPresentFlag {
		w.WriteFlag(v.LowDelayHRDFlag)
	}
	w.WriteFlag(v.PicStructPresentFlag)
	w.WriteFlag(v.BitstreamRestrictionFlag)
	if v.BitstreamRestrictionFlag {
		w.WriteFlag(v.MotionVectorsOverPicBoundariesFlag)
		w.WriteUE(v.MaxBytesPerPicDenom)
		w.WriteUE(v.MaxBitsPerMbDenom)
		w.WriteUE(v.Log2MaxMvLengthHorizontal)
		w.WriteUE(v.Log2MaxMvLengthVertical)
		w.WriteUE(v.MaxNumReorderFrames)
		w.WriteUE(v.MaxDecFrameBuffering)
	}
}

// RawSPS is the sequence parameter set syntax structure (§7.3.2.1.1).
type RawSPS struct {
	ProfileIDC         int
	ConstraintSet0Flag bool
	ConstraintSet1Flag bool
	ConstraintSet2Flag bool
	ConstraintSet3Flag bool
	ConstraintSet4Flag bool
	ConstraintSet5Flag bool
	LevelIDC           int

	SeqParameterSetID uint32

	ChromaFormatIDC      uint32
	BitDepthLumaMinus8   uint32
	BitDepthChromaMinus8 uint32

	Log2MaxFrameNumMinus4       uint32
	PicOrderCntType             uint32
	Log2MaxPicOrderCntLsbMinus4 uint32

	MaxNumRefFrames uint32

	PicWidthInMbsMinus1       uint32
	PicHeightInMapUnitsMinus1 uint32

	FrameMbsOnlyFlag       bool
	Direct8x8InferenceFlag bool

	FrameCroppingFlag     bool
	FrameCropLeftOffset   uint32
	FrameCropRightOffset  uint32
	FrameCropTopOffset    uint32
	FrameCropBottomOffset uint32

	VUIParametersPresentFlag bool
	VUI                      VUI
}

// highProfile reports whether profile_idc selects the extended SPS
// fields (chroma format, bit depth).
func (s *RawSPS) highProfile() bool {
	switch s.ProfileIDC {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		return true
	}
	return false
}

// Marshal writes the complete SPS NAL unit.
func (s *RawSPS) Marshal(w *bitstream.Writer) error {
	w.WriteBits(0, 1) // forbidden_zero_bit
	w.WriteBits(3, 2) // nal_ref_idc
	w.WriteBits(NALSPS, 5)

	w.WriteBits(uint32(s.ProfileIDC), 8)
	w.WriteFlag(s.ConstraintSet0Flag)
	w.WriteFlag(s.ConstraintSet1Flag)
	w.WriteFlag(s.ConstraintSet2Flag)
	w.WriteFlag(s.ConstraintSet3Flag)
	w.WriteFlag(s.ConstraintSet4Flag)
	w.WriteFlag(s.ConstraintSet5Flag)
	w.WriteBits(0, 2) // reserved_zero_2bits
	w.WriteBits(uint32(s.LevelIDC), 8)
	w.WriteUE(s.SeqParameterSetID)

	if s.highProfile() {
		w.WriteUE(s.ChromaFormatIDC)
		if s.ChromaFormatIDC == 3 {
			w.WriteFlag(false) // separate_colour_plane_flag
		}
		w.WriteUE(s.BitDepthLumaMinus8)
		w.WriteUE(s.BitDepthChromaMinus8)
		w.WriteFlag(false) // qpprime_y_zero_transform_bypass_flag
		w.WriteFlag(false) // seq_scaling_matrix_present_flag
	}

	w.WriteUE(s.Log2MaxFrameNumMinus4)
	w.WriteUE(s.PicOrderCntType)
	if s.PicOrderCntType == 0 {
		w.WriteUE(s.Log2MaxPicOrderCntLsbMinus4)
	}
	w.WriteUE(s.MaxNumRefFrames)
	w.WriteFlag(false) // gaps_in_frame_num_value_allowed_flag
	w.WriteUE(s.PicWidthInMbsMinus1)
	w.WriteUE(s.PicHeightInMapUnitsMinus1)
	w.WriteFlag(s.FrameMbsOnlyFlag)
	if !s.FrameMbsOnlyFlag {
		w.WriteFlag(false) // mb_adaptive_frame_field_flag
	}
	w.WriteFlag(s.Direct8x8InferenceFlag)
	w.WriteFlag(s.FrameCroppingFlag)
	if s.FrameCroppingFlag {
		w.WriteUE(s.FrameCropLeftOffset)
		w.WriteUE(s.FrameCropRightOffset)
		w.WriteUE(s.FrameCropTopOffset)
		w.WriteUE(s.FrameCropBottomOffset)
	}
	w.WriteFlag(s.VUIParametersPresentFlag)
	if s.VUIParametersPresentFlag {
		s.VUI.marshal(w)
	}
	w.WriteTrailingBits()
	return w.Err()
}

// MaxFrameNum returns the frame_num modulus.
func (s *RawSPS) MaxFrameNum() int {
	return 1 << (4 + s.Log2MaxFrameNumMinus4)
}

// MaxPicOrderCntLsb returns the pic_order_cnt_lsb modulus.
func (s *RawSPS) MaxPicOrderCntLsb() int {
	return 1 << (4 + s.Log2MaxPicOrderCntLsbMinus4)
}
