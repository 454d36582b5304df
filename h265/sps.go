package h265

import "github.com/zsiec/hwenc/bitstream"

// VUI holds the video usability information of the SPS (Annex E.2.1).
// HRD parameters are never emitted; rate control timing lives in the
// hardware, not the headers.
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

	TimingInfoPresentFlag       bool
	NumUnitsInTick              uint32
	TimeScale                   uint32
	POCProportionalToTimingFlag bool
	NumTicksPOCDiffOneMinus1    uint32

	BitstreamRestrictionFlag           bool
	MotionVectorsOverPicBoundariesFlag bool
	RestrictedRefPicListsFlag          bool
	MaxBytesPerPicDenom                uint32
	MaxBitsPerMinCuDenom               uint32
	Log2MaxMvLengthHorizontal          uint32
	Log2MaxMvLengthVertical            uint32
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
	w.WriteFlag(false) // neutral_chroma_indication_flag
	w.WriteFlag(false) // field_seq_flag
	w.WriteFlag(false) // frame_field_info_present_flag
	w.WriteFlag(false) // default_display_window_flag
	w.WriteFlag(v.TimingInfoPresentFlag)
	if v.TimingInfoPresentFlag {
		w.WriteBits(v.NumUnitsInTick, 32)
		w.WriteBits(v.TimeScale, 32)
		w.WriteFlag(v.POCProportionalToTimingFlag)
		if v.POCProportionalToTimingFlag {
			w.WriteUE(v.NumTicksPOCDiffOneMinus1)
		}
		w.WriteFlag(false) // vui_hrd_parameters_present_flag
	}
	w.WriteFlag(v.BitstreamRestrictionFlag)
	if v.BitstreamRestrictionFlag {
		w.WriteFlag(false) // tiles_fixed_structure_flag
		w.WriteFlag(v.MotionVectorsOverPicBoundariesFlag)
		w.WriteFlag(v.RestrictedRefPicListsFlag)
		w.WriteUE(0) // min_spatial_segmentation_idc
		w.WriteUE(v.MaxBytesPerPicDenom)
		w.WriteUE(v.MaxBitsPerMinCuDenom)
		w.WriteUE(v.Log2MaxMvLengthHorizontal)
		w.WriteUE(v.Log2MaxMvLengthVertical)
	}
}

// RawSPS is the sequence parameter set syntax structure (§7.3.2.2),
// restricted to no sub-layers, no scaling lists, and no long-term
// reference pictures.
type RawSPS struct {
	VideoParameterSetID   uint32
	TemporalIDNestingFlag bool

	ProfileTierLevel ProfileTierLevel

	SeqParameterSetID uint32

	ChromaFormatIDC uint32

	PicWidthInLumaSamples  uint32
	PicHeightInLumaSamples uint32

	ConformanceWindowFlag bool
	ConfWinLeftOffset     uint32
	ConfWinRightOffset    uint32
	ConfWinTopOffset      uint32
	ConfWinBottomOffset   uint32

	BitDepthLumaMinus8   uint32
	BitDepthChromaMinus8 uint32

	Log2MaxPicOrderCntLsbMinus4 uint32

	MaxDecPicBufferingMinus1 uint32
	MaxNumReorderPics        uint32
	MaxLatencyIncreasePlus1  uint32

	Log2MinLumaCodingBlockSizeMinus3     uint32
	Log2DiffMaxMinLumaCodingBlockSize    uint32
	Log2MinLumaTransformBlockSizeMinus2  uint32
	Log2DiffMaxMinLumaTransformBlockSize uint32
	MaxTransformHierarchyDepthInter      uint32
	MaxTransformHierarchyDepthIntra      uint32

	AmpEnabledFlag                  bool
	SampleAdaptiveOffsetEnabledFlag bool
	TemporalMVPEnabledFlag          bool
	StrongIntraSmoothingEnabledFlag bool

	PCMEnabledFlag                       bool
	PCMSampleBitDepthLumaMinus1          uint32
	PCMSampleBitDepthChromaMinus1        uint32
	Log2MinPCMLumaCodingBlockSizeMinus3  uint32
	Log2DiffMaxMinPCMLumaCodingBlockSize uint32
	PCMLoopFilterDisabledFlag            bool

	VUIParametersPresentFlag bool
	VUI                      VUI
}

// Marshal writes the complete SPS NAL unit.
func (s *RawSPS) Marshal(w *bitstream.Writer) error {
	writeNALHeader(w, NALSPS)

	w.WriteBits(s.VideoParameterSetID, 4)
	w.WriteBits(0, 3) // sps_max_sub_layers_minus1
	w.WriteFlag(s.TemporalIDNestingFlag)

	s.ProfileTierLevel.marshal(w)

	w.WriteUE(s.SeqParameterSetID)
	w.WriteUE(s.ChromaFormatIDC)
	if s.ChromaFormatIDC == 3 {
		w.WriteFlag(false) // separate_colour_plane_flag
	}
	w.WriteUE(s.PicWidthInLumaSamples)
	w.WriteUE(s.PicHeightInLumaSamples)
	w.WriteFlag(s.ConformanceWindowFlag)
	if s.ConformanceWindowFlag {
		w.WriteUE(s.ConfWinLeftOffset)
		w.WriteUE(s.ConfWinRightOffset)
		w.WriteUE(s.ConfWinTopOffset)
		w.WriteUE(s.ConfWinBottomOffset)
	}
	w.WriteUE(s.BitDepthLumaMinus8)
	w.WriteUE(s.BitDepthChromaMinus8)
	w.WriteUE(s.Log2MaxPicOrderCntLsbMinus4)

	w.WriteFlag(false) // sps_sub_layer_ordering_info_present_flag
	w.WriteUE(s.MaxDecPicBufferingMinus1)
	w.WriteUE(s.MaxNumReorderPics)
	w.WriteUE(s.MaxLatencyIncreasePlus1)

	w.WriteUE(s.Log2MinLumaCodingBlockSizeMinus3)
	w.WriteUE(s.Log2DiffMaxMinLumaCodingBlockSize)
	w.WriteUE(s.Log2MinLumaTransformBlockSizeMinus2)
	w.WriteUE(s.Log2DiffMaxMinLumaTransformBlockSize)
	w.WriteUE(s.MaxTransformHierarchyDepthInter)
	w.WriteUE(s.MaxTransformHierarchyDepthIntra)

	w.WriteFlag(false) // scaling_list_enabled_flag
	w.WriteFlag(s.AmpEnabledFlag)
	w.WriteFlag(s.SampleAdaptiveOffsetEnabledFlag)
	w.WriteFlag(s.PCMEnabledFlag)
	if s.PCMEnabledFlag {
		w.WriteBits(s.PCMSampleBitDepthLumaMinus1, 4)
		w.WriteBits(s.PCMSampleBitDepthChromaMinus1, 4)
		w.WriteUE(s.Log2MinPCMLumaCodingBlockSizeMinus3)
		w.WriteUE(s.Log2DiffMaxMinPCMLumaCodingBlockSize)
		w.WriteFlag(s.PCMLoopFilterDisabledFlag)
	}

	w.WriteUE(0)       // num_short_term_ref_pic_sets
	w.WriteFlag(false) // long_term_ref_pics_present_flag
	w.WriteFlag(s.TemporalMVPEnabledFlag)
	w.WriteFlag(s.StrongIntraSmoothingEnabledFlag)

	w.WriteFlag(s.VUIParametersPresentFlag)
	if s.VUIParametersPresentFlag {
		s.VUI.marshal(w)
	}
	w.WriteFlag(false) // sps_extension_present_flag
	w.WriteTrailingBits()
	return w.Err()
}

// MaxPicOrderCntLsb returns the slice_pic_order_cnt_lsb modulus.
func (s *RawSPS) MaxPicOrderCntLsb() int {
	return 1 << (4 + s.Log2MaxPicOrderCntLsbMinus4)
}
