package h265

import "github.com/zsiec/hwenc/bitstream"

// STRefPicSet is the short-term reference picture set written inline in
// each slice header (§7.3.7). Delta POCs are stored chained: each entry
// is the gap to the previous picture in the direction, minus one.
type STRefPicSet struct {
	NumNegativePics int
	NumPositivePics int

	DeltaPocS0Minus1    [16]uint32
	UsedByCurrPicS0Flag [16]bool
	DeltaPocS1Minus1    [16]uint32
	UsedByCurrPicS1Flag [16]bool
}

func (r *STRefPicSet) marshal(w *bitstream.Writer) {
	// Written with stRpsIdx 0, so no inter-RPS prediction flag.
	w.WriteUE(uint32(r.NumNegativePics))
	w.WriteUE(uint32(r.NumPositivePics))
	for i := 0; i < r.NumNegativePics; i++ {
		w.WriteUE(r.DeltaPocS0Minus1[i])
		w.WriteFlag(r.UsedByCurrPicS0Flag[i])
	}
	for i := 0; i < r.NumPositivePics; i++ {
		w.WriteUE(r.DeltaPocS1Minus1[i])
		w.WriteFlag(r.UsedByCurrPicS1Flag[i])
	}
}

// RawSliceHeader is the slice segment header (§7.3.6.1). The SPS/PPS
// pointers supply the field widths and presence flags; CtbAddrBits is
// the slice_segment_address width, Ceil(Log2(PicSizeInCtbsY)). The
// header ends with byte alignment, after which the hardware appends the
// slice data.
type RawSliceHeader struct {
	SPS *RawSPS
	PPS *RawPPS

	NALUnitType int
	CtbAddrBits int

	FirstSliceSegmentInPicFlag bool
	SliceSegmentAddress        uint32

	SliceType uint32

	PicOrderCntLsb uint32

	ShortTermRefPicSet STRefPicSet

	TemporalMVPEnabledFlag bool
	CollocatedFromL0Flag   bool

	SAOLumaFlag   bool
	SAOChromaFlag bool

	MvdL1ZeroFlag bool

	FiveMinusMaxNumMergeCand uint32

	SliceQPDelta int32

	LoopFilterAcrossSlicesEnabledFlag bool
}

func (s *RawSliceHeader) irap() bool {
	return s.NALUnitType >= NALBLAWLP && s.NALUnitType <= NALRsvIRAP23
}

func (s *RawSliceHeader) idr() bool {
	return s.NALUnitType == NALIDRWRADL || s.NALUnitType == NALIDRNLP
}

// Marshal writes the slice NAL header and slice segment header bits.
func (s *RawSliceHeader) Marshal(w *bitstream.Writer) error {
	writeNALHeader(w, s.NALUnitType)

	w.WriteFlag(s.FirstSliceSegmentInPicFlag)
	if s.irap() {
		w.WriteFlag(false) // no_output_of_prior_pics_flag
	}
	w.WriteUE(s.PPS.PicParameterSetID)
	if !s.FirstSliceSegmentInPicFlag {
		w.WriteBits(s.SliceSegmentAddress, s.CtbAddrBits)
	}

	w.WriteUE(s.SliceType)

	if !s.idr() {
		w.WriteBits(s.PicOrderCntLsb, int(4+s.SPS.Log2MaxPicOrderCntLsbMinus4))
		w.WriteFlag(false) // short_term_ref_pic_set_sps_flag
		s.ShortTermRefPicSet.marshal(w)
		if s.SPS.TemporalMVPEnabledFlag {
			w.WriteFlag(s.TemporalMVPEnabledFlag)
		}
	}

	if s.SPS.SampleAdaptiveOffsetEnabledFlag {
		w.WriteFlag(s.SAOLumaFlag)
		w.WriteFlag(s.SAOChromaFlag)
	}

	if s.SliceType == SliceP || s.SliceType == SliceB {
		w.WriteFlag(false) // num_ref_idx_active_override_flag
		if s.SliceType == SliceB {
			w.WriteFlag(s.MvdL1ZeroFlag)
		}
		if s.TemporalMVPEnabledFlag {
			if s.SliceType == SliceB {
				w.WriteFlag(s.CollocatedFromL0Flag)
			}
			// collocated_ref_idx is absent while num_ref_idx defaults
			// keep a single active reference per list.
		}
		w.WriteUE(s.FiveMinusMaxNumMergeCand)
	}

	w.WriteSE(s.SliceQPDelta)

	if s.PPS.LoopFilterAcrossSlicesEnabledFlag {
		w.WriteFlag(s.LoopFilterAcrossSlicesEnabledFlag)
	}

	if s.PPS.TilesEnabledFlag {
		w.WriteUE(0) // num_entry_point_offsets
	}

	// byte_alignment()
	w.WriteTrailingBits()
	return w.Err()
}
