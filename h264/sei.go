package h264

import (
	"fmt"

	"github.com/zsiec/hwenc/bitstream"
	"github.com/zsiec/hwenc/sei"
)

// RawSEI wraps a set of SEI payloads in one SEI NAL unit.
type RawSEI struct {
	Payloads []sei.Payload
}

// Marshal writes the SEI NAL unit with all accumulated messages.
func (s *RawSEI) Marshal(w *bitstream.Writer) error {
	w.WriteBits(0, 1) // forbidden_zero_bit
	w.WriteBits(0, 2) // nal_ref_idc
	w.WriteBits(NALSEI, 5)
	for _, p := range s.Payloads {
		if err := sei.WriteMessage(w, p); err != nil {
			return fmt.Errorf("h264: sei message: %w", err)
		}
	}
	w.WriteTrailingBits()
	return w.Err()
}

// BufferingPeriod is the buffering_period SEI payload (Annex D.1.2).
// Field widths come from the HRD parameters of the active SPS.
type BufferingPeriod struct {
	SPS                          *RawSPS
	InitialCPBRemovalDelay       uint32
	InitialCPBRemovalDelayOffset uint32
}

// Type implements sei.Payload.
func (b *BufferingPeriod) Type() int { return sei.TypeBufferingPeriod }

// MarshalBody implements sei.Payload.
func (b *BufferingPeriod) MarshalBody() ([]byte, error) {
	var w bitstream.Writer
	w.WriteUE(b.SPS.SeqParameterSetID)
	if b.SPS.VUI.NALHRDParametersPresentFlag {
		n := int(b.SPS.VUI.NALHRDParameters.InitialCPBRemovalDelayLengthMinus1 + 1)
		w.WriteBits(b.InitialCPBRemovalDelay, n)
		w.WriteBits(b.InitialCPBRemovalDelayOffset, n)
	}
	w.WriteTrailingBits()
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// PicTiming is the pic_timing SEI payload (Annex D.1.3). CPB and DPB
// delays are in field units, so frame delays are doubled by the caller.
type PicTiming struct {
	SPS             *RawSPS
	CPBRemovalDelay uint32
	DPBOutputDelay  uint32
	PicStruct       uint32
}

// Type implements sei.Payload.
func (p *PicTiming) Type() int { return sei.TypePicTiming }

// MarshalBody implements sei.Payload.
func (p *PicTiming) MarshalBody() ([]byte, error) {
	var w bitstream.Writer
	if p.SPS.VUI.NALHRDParametersPresentFlag {
		hrd := &p.SPS.VUI.NALHRDParameters
		w.WriteBits(p.CPBRemovalDelay, int(hrd.CPBRemovalDelayLengthMinus1+1))
		w.WriteBits(p.DPBOutputDelay, int(hrd.DPBOutputDelayLengthMinus1+1))
	}
	if p.SPS.VUI.PicStructPresentFlag {
		w.WriteBits(p.PicStruct, 4)
	}
	w.WriteTrailingBits()
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
