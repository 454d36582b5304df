package h264

import "github.com/zsiec/hwenc/bitstream"

// RawPPS is the picture parameter set syntax structure (§7.3.2.2).
type RawPPS struct {
	PicParameterSetID uint32
	SeqParameterSetID uint32

	EntropyCodingModeFlag bool

	NumRefIdxL0DefaultActiveMinus1 uint32
	NumRefIdxL1DefaultActiveMinus1 uint32

	WeightedPredFlag  bool
	WeightedBipredIDC uint32

	PicInitQPMinus26    int32
	ChromaQPIndexOffset int32

	DeblockingFilterControlPresentFlag bool
	ConstrainedIntraPredFlag           bool

	// MoreRBSPData gates the trailing High-profile fields.
	MoreRBSPData              bool
	Transform8x8ModeFlag      bool
	SecondChromaQPIndexOffset int32
}

// Marshal writes the complete PPS NAL unit.
func (p *RawPPS) Marshal(w *bitstream.Writer) error {
	w.WriteBits(0, 1) // forbidden_zero_bit
	w.WriteBits(3, 2) // nal_ref_idc
	w.WriteBits(NALPPS, 5)

	w.WriteUE(p.PicParameterSetID)
	w.WriteUE(p.SeqParameterSetID)
	w.WriteFlag(p.EntropyCodingModeFlag)
	w.WriteFlag(false) // bottom_field_pic_order_in_frame_present_flag
	w.WriteUE(0)       // num_slice_groups_minus1
	w.WriteUE(p.NumRefIdxL0DefaultActiveMinus1)
	w.WriteUE(p.NumRefIdxL1DefaultActiveMinus1)
	w.WriteFlag(p.WeightedPredFlag)
	w.WriteBits(p.WeightedBipredIDC, 2)
	w.WriteSE(p.PicInitQPMinus26)
	w.WriteSE(0) // pic_init_qs_minus26
	w.WriteSE(p.ChromaQPIndexOffset)
	w.WriteFlag(p.DeblockingFilterControlPresentFlag)
	w.WriteFlag(p.ConstrainedIntraPredFlag)
	w.WriteFlag(false) // redundant_pic_cnt_present_flag
	if p.MoreRBSPData {
		w.WriteFlag(p.Transform8x8ModeFlag)
		w.WriteFlag(false) // pic_scaling_matrix_present_flag
		w.WriteSE(p.SecondChromaQPIndexOffset)
	}
	w.WriteTrailingBits()
	return w.Err()
}

// RawAUD is the access unit delimiter (§7.3.2.4).
type RawAUD struct {
	PrimaryPicType uint32
}

// Marshal writes the AUD NAL unit.
func (a *RawAUD) Marshal(w *bitstream.Writer) error {
	w.WriteBits(0, 1)
	w.WriteBits(0, 2) // nal_ref_idc
	w.WriteBits(NALAUD, 5)
	w.WriteBits(a.PrimaryPicType, 3)
	w.WriteTrailingBits()
	return w.Err()
}
