package h265

import "github.com/zsiec/hwenc/bitstream"

// RawPPS is the picture parameter set syntax structure (§7.3.2.3),
// restricted to no dependent slices, no weighted prediction, no
// scaling lists, and uniformly spaced tiles.
type RawPPS struct {
	PicParameterSetID uint32
	SeqParameterSetID uint32

	NumRefIdxL0DefaultActiveMinus1 uint32
	NumRefIdxL1DefaultActiveMinus1 uint32

	InitQPMinus26 int32

	ConstrainedIntraPredFlag bool
	TransformSkipEnabledFlag bool

	CUQPDeltaEnabledFlag bool
	DiffCUQPDeltaDepth   uint32

	TilesEnabledFlag                 bool
	NumTileColumnsMinus1             uint32
	NumTileRowsMinus1                uint32
	LoopFilterAcrossTilesEnabledFlag bool

	LoopFilterAcrossSlicesEnabledFlag bool
}

// Marshal writes the complete PPS NAL unit.
func (p *RawPPS) Marshal(w *bitstream.Writer) error {
	writeNALHeader(w, NALPPS)

	w.WriteUE(p.PicParameterSetID)
	w.WriteUE(p.SeqParameterSetID)
	w.WriteFlag(false) // dependent_slice_segments_enabled_flag
	w.WriteFlag(false) // output_flag_present_flag
	w.WriteBits(0, 3)  // num_extra_slice_header_bits
	w.WriteFlag(false) // sign_data_hiding_enabled_flag
	w.WriteFlag(false) // cabac_init_present_flag
	w.WriteUE(p.NumRefIdxL0DefaultActiveMinus1)
	w.WriteUE(p.NumRefIdxL1DefaultActiveMinus1)
	w.WriteSE(p.InitQPMinus26)
	w.WriteFlag(p.ConstrainedIntraPredFlag)
	w.WriteFlag(p.TransformSkipEnabledFlag)
	w.WriteFlag(p.CUQPDeltaEnabledFlag)
	if p.CUQPDeltaEnabledFlag {
		w.WriteUE(p.DiffCUQPDeltaDepth)
	}
	w.WriteSE(0)       // pps_cb_qp_offset
	w.WriteSE(0)       // pps_cr_qp_offset
	w.WriteFlag(false) // pps_slice_chroma_qp_offsets_present_flag
	w.WriteFlag(false) // weighted_pred_flag
	w.WriteFlag(false) // weighted_bipred_flag
	w.WriteFlag(false) // transquant_bypass_enabled_flag
	w.WriteFlag(p.TilesEnabledFlag)
	w.WriteFlag(false) // entropy_coding_sync_enabled_flag
	if p.TilesEnabledFlag {
		w.WriteUE(p.NumTileColumnsMinus1)
		w.WriteUE(p.NumTileRowsMinus1)
		w.WriteFlag(true) // uniform_spacing_flag
		w.WriteFlag(p.LoopFilterAcrossTilesEnabledFlag)
	}
	w.WriteFlag(p.LoopFilterAcrossSlicesEnabledFlag)
	w.WriteFlag(false) // deblocking_filter_control_present_flag
	w.WriteFlag(false) // pps_scaling_list_data_present_flag
	w.WriteFlag(false) // lists_modification_present_flag
	w.WriteUE(0)       // log2_parallel_merge_level_minus2
	w.WriteFlag(false) // slice_segment_header_extension_present_flag
	w.WriteFlag(false) // pps_extension_present_flag
	w.WriteTrailingBits()
	return w.Err()
}

// RawAUD is the access unit delimiter (§7.3.2.5).
type RawAUD struct {
	PicType uint32
}

// Marshal writes the AUD NAL unit.
func (a *RawAUD) Marshal(w *bitstream.Writer) error {
	writeNALHeader(w, NALAUD)
	w.WriteBits(a.PicType, 3)
	w.WriteTrailingBits()
	return w.Err()
}
