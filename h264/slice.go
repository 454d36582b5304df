package h264

import "github.com/zsiec/hwenc/bitstream"

// RefPicListMod is one explicit reference list reordering step
// (§7.3.3.1). The terminating idc 3 is written by Marshal.
type RefPicListMod struct {
	ModificationOfPicNumsIDC uint32 // 0 = subtract diff, 1 = add diff
	AbsDiffPicNumMinus1      uint32
}

// MMCO is one memory management control operation (§7.3.3.3). Only op 1
// (mark short-term picture unused) is emitted by this core; the
// terminating op 0 is written by Marshal.
type MMCO struct {
	Op                        uint32
	DifferenceOfPicNumsMinus1 uint32
}

// RawSliceHeader is the slice header syntax structure (§7.3.3). The
// SPS/PPS pointers supply the field widths and presence flags; Marshal
// ends after the header, unaligned, since the hardware appends the
// slice data itself.
type RawSliceHeader struct {
	SPS *RawSPS
	PPS *RawPPS

	NALUnitType int
	NALRefIDC   uint32

	FirstMbInSlice    uint32
	SliceType         uint32
	PicParameterSetID uint32
	FrameNum          uint32
	IDRPicID          uint32
	PicOrderCntLsb    uint32

	DirectSpatialMvPredFlag bool

	RefPicListModificationFlagL0 bool
	RPLML0                       []RefPicListMod
	RefPicListModificationFlagL1 bool
	RPLML1                       []RefPicListMod

	// dec_ref_pic_marking
	NoOutputOfPriorPicsFlag       bool
	LongTermReferenceFlag         bool
	AdaptiveRefPicMarkingModeFlag bool
	MMCOs                         []MMCO

	CabacInitIDC uint32
	SliceQPDelta int32
}

// Marshal writes the slice NAL header and slice header bits.
func (s *RawSliceHeader) Marshal(w *bitstream.Writer) error {
	w.WriteBits(0, 1) // forbidden_zero_bit
	w.WriteBits(s.NALRefIDC, 2)
	w.WriteBits(uint32(s.NALUnitType), 5)

	w.WriteUE(s.FirstMbInSlice)
	w.WriteUE(s.SliceType)
	w.WriteUE(s.PicParameterSetID)
	w.WriteBits(s.FrameNum, int(4+s.SPS.Log2MaxFrameNumMinus4))
	if s.NALUnitType == NALIDRSlice {
		w.WriteUE(s.IDRPicID)
	}
	if s.SPS.PicOrderCntType == 0 {
		w.WriteBits(s.PicOrderCntLsb, int(4+s.SPS.Log2MaxPicOrderCntLsbMinus4))
	}

	st := s.SliceType % 5
	if st == SliceB {
		w.WriteFlag(s.DirectSpatialMvPredFlag)
	}
	if st == SliceP || st == SliceB {
		w.WriteFlag(false) // num_ref_idx_active_override_flag
	}

	// ref_pic_list_modification
	if st != SliceI {
		w.WriteFlag(s.RefPicListModificationFlagL0)
		if s.RefPicListModificationFlagL0 {
			for _, m := range s.RPLML0 {
				w.WriteUE(m.ModificationOfPicNumsIDC)
				w.WriteUE(m.AbsDiffPicNumMinus1)
			}
			w.WriteUE(3) // end of modification list
		}
	}
	if st == SliceB {
		w.WriteFlag(s.RefPicListModificationFlagL1)
		if s.RefPicListModificationFlagL1 {
			for _, m := range s.RPLML1 {
				w.WriteUE(m.ModificationOfPicNumsIDC)
				w.WriteUE(m.AbsDiffPicNumMinus1)
			}
			w.WriteUE(3)
		}
	}

	// dec_ref_pic_marking
	if s.NALRefIDC != 0 {
		if s.NALUnitType == NALIDRSlice {
			w.WriteFlag(s.NoOutputOfPriorPicsFlag)
			w.WriteFlag(s.LongTermReferenceFlag)
		} else {
			w.WriteFlag(s.AdaptiveRefPicMarkingModeFlag)
			if s.AdaptiveRefPicMarkingModeFlag {
				for _, m := range s.MMCOs {
					w.WriteUE(m.Op)
					w.WriteUE(m.DifferenceOfPicNumsMinus1)
				}
				w.WriteUE(0) // end of MMCO list
			}
		}
	}

	if s.PPS.EntropyCodingModeFlag && st != SliceI {
		w.WriteUE(s.CabacInitIDC)
	}
	w.WriteSE(s.SliceQPDelta)
	if s.PPS.DeblockingFilterControlPresentFlag {
		w.WriteUE(0) // disable_deblocking_filter_idc
		w.WriteSE(0) // slice_alpha_c0_offset_div2
		w.WriteSE(0) // slice_beta_offset_div2
	}
	return w.Err()
}
